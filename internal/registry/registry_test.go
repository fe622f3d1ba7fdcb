package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
markers:
  Insider: "🕵"
channels:
  - id: "-1002234923591"
    name: "@Tanjirocall"
    category: snipeKOL
  - id: "2514471362"
    name: "@cringemonke"
    category: Whale Bought
  - id: "1111"
    category: Insider
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolve(t *testing.T) {
	r, err := Load(writeRegistry(t, sampleYAML))
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())

	tests := []struct {
		name   string
		source string
		want   Channel
	}{
		{
			name:   "configured with prefix stored",
			source: "2234923591",
			want:   Channel{ID: "2234923591", Name: "@Tanjirocall", Category: "snipeKOL", Marker: "🎯"},
		},
		{
			name:   "lookup with channel prefix",
			source: "-1002514471362",
			want:   Channel{ID: "2514471362", Name: "@cringemonke", Category: "Whale Bought", Marker: "🐋"},
		},
		{
			name:   "custom marker and synthesized name",
			source: "1111",
			want:   Channel{ID: "1111", Name: "@channel_1111", Category: "Insider", Marker: "🕵"},
		},
		{
			name:   "unknown source",
			source: "-42",
			want:   Channel{ID: "-42", Name: "@channel_42", Category: UnknownCategory, Marker: DefaultMarker},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.source))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, "@channel_7", r.Resolve("7").Name)
}

func TestLoadRejectsBadInput(t *testing.T) {
	_, err := Load(writeRegistry(t, "channels: [oops"))
	assert.Error(t, err)

	_, err = Load(writeRegistry(t, "channels:\n  - id: \"5\"\n  - id: \"-1005\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "123", Canonical(" -100123 "))
	assert.Equal(t, "-100", Canonical("-100"))
	assert.Equal(t, "@alpha", Canonical("@alpha"))
}

package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	pumpMint   = "9BB6NFEcjBCtnNLFko2FqVQBq8HHM13kCyYcdQbgpump"
	pumpMint2  = "2qEHjDLDLbuBgRYvsxhc5D6uDWAivNFZGan56P1tpump"
	digitMint  = "6p6xgHyF7AeE6TZkSmFsko444wqoP15icUSqi2jfGiPN"
	moonMint   = "BN2VyMooNdG6doxJ24eQcU9BkV4298wj9siMnUuxZFVc"
	usdcMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	wrappedSOL = "So11111111111111111111111111111111111111112"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty text",
			text: "",
			want: nil,
		},
		{
			name: "whitespace only",
			text: "  \n\t ",
			want: nil,
		},
		{
			name: "no candidates",
			text: "gm degens, chart looks healthy, next call soon",
			want: nil,
		},
		{
			name: "pump suffix",
			text: "🚀 new gem " + pumpMint + " aping now",
			want: []string{pumpMint},
		},
		{
			name: "leading digit",
			text: "CA " + digitMint,
			want: []string{digitMint},
		},
		{
			name: "moon substring",
			text: moonMint + " to the moon",
			want: []string{moonMint},
		},
		{
			name: "bare id without launchpad hint is ignored",
			text: "my wallet " + usdcMint + " and " + wrappedSOL,
			want: nil,
		},
		{
			name: "labelled id is accepted without hint",
			text: "Contract: " + usdcMint,
			want: []string{usdcMint},
		},
		{
			name: "russian label",
			text: "Контракт: " + usdcMint,
			want: []string{usdcMint},
		},
		{
			name: "token page link",
			text: "chart https://dexscreener.com/solana/" + usdcMint + " lfg",
			want: []string{usdcMint},
		},
		{
			name: "link query parameter",
			text: "https://birdeye.so/token?address=" + usdcMint + "&chain=solana",
			want: []string{usdcMint},
		},
		{
			name: "invalid base58 with hint",
			text: "0000000000000000000000000000000000000000pump",
			want: nil,
		},
		{
			name: "long prose word",
			text: "thisisaverylongwordthatshouldnotpumpatallever",
			want: nil,
		},
		{
			name: "duplicates collapse in order",
			text: pumpMint2 + " " + pumpMint + " again " + pumpMint2 + " https://pump.fun/coin/" + pumpMint,
			want: []string{pumpMint, pumpMint2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text))
		})
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	text := "Contract: " + usdcMint + "\n" + pumpMint + " " + digitMint
	first := Extract(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Extract(text))
	}
	assert.ElementsMatch(t, []string{usdcMint, pumpMint, digitMint}, first)
}

func TestIsContractID(t *testing.T) {
	assert.True(t, IsContractID(wrappedSOL))
	assert.True(t, IsContractID(pumpMint))
	assert.False(t, IsContractID("short"))
	assert.False(t, IsContractID("0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl"))
}

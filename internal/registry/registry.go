// Package registry maps inbound source identifiers to display names and
// categories. It is loaded once at startup and never mutated afterwards.
package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	UnknownCategory = "unknown"
	DefaultMarker   = "🍀"

	// Telegram prefixes supergroup and channel ids with -100
	channelPrefix = "-100"
)

// DefaultMarkers maps categories to the marker shown next to a source in
// escalation alerts
var DefaultMarkers = map[string]string{
	"snipeKOL":     "🎯",
	"snipeGEM":     "💎",
	"TG_KOL":       "🍀",
	"EarlyGEM":     "💎",
	"EarlyKOL":     "⚡",
	"SmartMoney":   "💵",
	"Whale Bought": "🐋",
	"Volume alert": "🚀",
	"AlphAI_KOL":   "🐂",
}

// Channel is the resolved view of a source
type Channel struct {
	ID       string
	Name     string
	Category string
	Marker   string
}

// File is the on-disk layout of the registry
type File struct {
	Markers  map[string]string `yaml:"markers"`
	Channels []ChannelEntry    `yaml:"channels"`
}

// ChannelEntry is one configured source
type ChannelEntry struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// Registry resolves source ids. Safe for concurrent use.
type Registry struct {
	channels map[string]ChannelEntry
	markers  map[string]string
}

// New builds a registry from entries, layering markers over DefaultMarkers
func New(entries []ChannelEntry, markers map[string]string) (*Registry, error) {
	r := &Registry{
		channels: make(map[string]ChannelEntry, len(entries)),
		markers:  make(map[string]string, len(DefaultMarkers)+len(markers)),
	}
	for k, v := range DefaultMarkers {
		r.markers[k] = v
	}
	for k, v := range markers {
		r.markers[k] = v
	}

	for i, e := range entries {
		id := Canonical(e.ID)
		if id == "" {
			return nil, fmt.Errorf("channel %d: id is required", i)
		}
		if _, dup := r.channels[id]; dup {
			return nil, fmt.Errorf("channel %s: duplicate id", id)
		}
		if e.Name == "" {
			e.Name = defaultName(id)
		}
		if e.Category == "" {
			e.Category = UnknownCategory
		}
		e.ID = id
		r.channels[id] = e
	}
	return r, nil
}

// Load reads a YAML registry. A missing file yields an empty registry so
// every source resolves to its synthesized default.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(nil, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return New(f.Channels, f.Markers)
}

// Resolve never fails: unknown sources get a synthesized name and the
// unknown category.
func (r *Registry) Resolve(sourceID string) Channel {
	id := Canonical(sourceID)
	entry, ok := r.channels[id]
	if !ok {
		entry = ChannelEntry{ID: id, Name: defaultName(id), Category: UnknownCategory}
	}
	return Channel{
		ID:       entry.ID,
		Name:     entry.Name,
		Category: entry.Category,
		Marker:   r.Marker(entry.Category),
	}
}

// Marker returns the marker for a category, DefaultMarker when unmapped
func (r *Registry) Marker(category string) string {
	if m, ok := r.markers[category]; ok {
		return m
	}
	return DefaultMarker
}

// Len returns the number of configured channels
func (r *Registry) Len() int {
	return len(r.channels)
}

// Canonical normalizes a source id so the same channel is always counted
// once: surrounding space is trimmed and the -100 channel prefix removed.
func Canonical(sourceID string) string {
	id := strings.TrimSpace(sourceID)
	if strings.HasPrefix(id, channelPrefix) && len(id) > len(channelPrefix) {
		return id[len(channelPrefix):]
	}
	return id
}

func defaultName(id string) string {
	return "@channel_" + strings.TrimPrefix(id, "-")
}

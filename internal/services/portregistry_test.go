package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_RangesAreDisjoint(t *testing.T) {
	registry := DefaultRegistry()

	seen := make(map[int]string)
	for _, fr := range registry.ordered {
		require.LessOrEqual(t, fr.PortStart, fr.PortEnd)
		for port := fr.PortStart; port <= fr.PortEnd; port++ {
			if owner, ok := seen[port]; ok {
				t.Fatalf("port %d claimed by both %s and %s", port, owner, fr.Framework)
			}
			seen[port] = fr.Framework
		}
	}
}

func TestRegistryResolve_Precedence(t *testing.T) {
	registry := DefaultRegistry()

	tests := []struct {
		name        string
		saved       string
		detected    string
		projectType string
		runCommand  string
		expected    string
		usedSaved   bool
	}{
		{
			name:      "saved classification beats everything",
			saved:     "next",
			detected:  "vite",
			expected:  "next",
			usedSaved: true,
		},
		{
			name:     "detection hint beats keywords",
			detected: "astro",
			expected: "astro",
		},
		{
			name:        "project type keywords",
			projectType: "react-typescript",
			expected:    "vite",
		},
		{
			name:       "run command keywords",
			runCommand: "npx next dev",
			expected:   "next",
		},
		{
			name:     "fallback when nothing matches",
			expected: "default",
		},
		{
			name:     "unknown saved value falls through",
			saved:    "rails",
			detected: "node",
			expected: "node",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr, usedSaved := registry.Resolve(tt.saved, tt.detected, tt.projectType, tt.runCommand)
			assert.Equal(t, tt.expected, fr.Framework)
			assert.Equal(t, tt.usedSaved, usedSaved)
		})
	}
}

func TestRegistryRangeFor(t *testing.T) {
	registry := DefaultRegistry()

	fr, ok := registry.RangeFor(5200)
	require.True(t, ok)
	assert.Equal(t, "vite", fr.Framework)

	_, ok = registry.RangeFor(9999)
	assert.False(t, ok)
}

func TestFrameworkRangeContains(t *testing.T) {
	fr := FrameworkRange{PortStart: 3000, PortEnd: 3099}
	assert.True(t, fr.Contains(3000))
	assert.True(t, fr.Contains(3099))
	assert.False(t, fr.Contains(2999))
	assert.False(t, fr.Contains(3100))
	assert.Equal(t, 100, fr.Size())
}

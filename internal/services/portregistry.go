package services

import "strings"

// FrameworkRange maps one framework classification to its disjoint
// port range, the env var its dev server reads the port from, and the
// keywords used to detect it from project metadata.
type FrameworkRange struct {
	EnvVar    string
	Framework string
	Keywords  []string
	PortEnd   int
	PortStart int
}

// Contains reports whether port lies within the range (inclusive)
func (fr FrameworkRange) Contains(port int) bool {
	return port >= fr.PortStart && port <= fr.PortEnd
}

// Size returns the number of ports in the range
func (fr FrameworkRange) Size() int {
	return fr.PortEnd - fr.PortStart + 1
}

// PortRangeRegistry is the injectable framework→range table. New
// frameworks are additive configuration, not new allocator logic.
type PortRangeRegistry struct {
	fallback string
	ordered  []FrameworkRange
}

// NewPortRangeRegistry builds a registry. fallback names the range
// used when no classification matches; it must be present in ranges.
func NewPortRangeRegistry(ranges []FrameworkRange, fallback string) *PortRangeRegistry {
	return &PortRangeRegistry{fallback: fallback, ordered: ranges}
}

// DefaultRegistry returns the built-in framework table. Ranges are
// disjoint so two build kinds can never collide even under detection
// bugs.
func DefaultRegistry() *PortRangeRegistry {
	return NewPortRangeRegistry([]FrameworkRange{
		{
			EnvVar:    "PORT",
			Framework: "next",
			Keywords:  []string{"next"},
			PortStart: 3100,
			PortEnd:   3199,
		},
		{
			EnvVar:    "PORT",
			Framework: "vite",
			Keywords:  []string{"vite", "react", "vue", "svelte"},
			PortStart: 5170,
			PortEnd:   5269,
		},
		{
			EnvVar:    "PORT",
			Framework: "astro",
			Keywords:  []string{"astro"},
			PortStart: 4320,
			PortEnd:   4419,
		},
		{
			EnvVar:    "PORT",
			Framework: "node",
			Keywords:  []string{"express", "fastify", "node"},
			PortStart: 4000,
			PortEnd:   4099,
		},
		{
			EnvVar:    "PORT",
			Framework: "default",
			PortStart: 3000,
			PortEnd:   3099,
		},
	}, "default")
}

// Lookup returns the range for a framework name
func (r *PortRangeRegistry) Lookup(framework string) (FrameworkRange, bool) {
	for _, fr := range r.ordered {
		if fr.Framework == framework {
			return fr, true
		}
	}
	return FrameworkRange{}, false
}

// Fallback returns the catch-all range
func (r *PortRangeRegistry) Fallback() FrameworkRange {
	fr, _ := r.Lookup(r.fallback)
	return fr
}

// RangeFor returns the range containing port, if any
func (r *PortRangeRegistry) RangeFor(port int) (FrameworkRange, bool) {
	for _, fr := range r.ordered {
		if fr.Contains(port) {
			return fr, true
		}
	}
	return FrameworkRange{}, false
}

// Detect classifies from free-text metadata by keyword match
func (r *PortRangeRegistry) Detect(text string) (FrameworkRange, bool) {
	lowered := strings.ToLower(text)
	if lowered == "" {
		return FrameworkRange{}, false
	}
	for _, fr := range r.ordered {
		for _, kw := range fr.Keywords {
			if strings.Contains(lowered, kw) {
				return fr, true
			}
		}
	}
	return FrameworkRange{}, false
}

// Resolve picks the framework range using the fixed precedence: saved
// classification (authoritative once set, never re-derived), explicit
// detection hint, project-type keywords, run-command keywords, then
// the catch-all. It also reports whether the saved classification was
// used, so callers can warn on divergent hints.
func (r *PortRangeRegistry) Resolve(saved, detected, projectType, runCommand string) (FrameworkRange, bool) {
	if saved != "" {
		if fr, ok := r.Lookup(saved); ok {
			return fr, true
		}
	}
	if detected != "" {
		if fr, ok := r.Lookup(detected); ok {
			return fr, false
		}
	}
	if fr, ok := r.Detect(projectType); ok {
		return fr, false
	}
	if fr, ok := r.Detect(runCommand); ok {
		return fr, false
	}
	return r.Fallback(), false
}

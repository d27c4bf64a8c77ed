package backend

import (
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	dashboard "github.com/goliatone/go-metricsboard/components/dashboard"
)

// SeedVersion is the current seed document format version.
const SeedVersion = "1"

// Seed describes the initial content of a MemoryBackend.
type Seed struct {
	Version    string                                            `yaml:"version"`
	Metrics    []SeedMetric                                      `yaml:"metrics"`
	Dashboards []SeedDashboard                                   `yaml:"dashboards"`
	References map[dashboard.Dimension][]dashboard.ReferenceItem `yaml:"references,omitempty"`
	Source     string                                            `yaml:"-"`
}

// SeedMetric is a catalog entry plus the data it reports.
type SeedMetric struct {
	dashboard.MetricDefinition `yaml:",inline"`
	// EmbedCapabilities returns the capabilities inline with the definition
	// instead of only through FetchCapabilities.
	EmbedCapabilities bool                    `yaml:"embed_capabilities,omitempty"`
	Value             any                     `yaml:"value,omitempty"`
	Series            []dashboard.SeriesPoint `yaml:"series,omitempty"`
}

// SeedDashboard is a dashboard with its bindings.
type SeedDashboard struct {
	ID          int64         `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	IsDefault   bool          `yaml:"is_default,omitempty"`
	Metrics     []SeedBinding `yaml:"metrics"`
}

// SeedBinding places a catalog metric on a dashboard. Visible defaults to
// true and SortOrder to the binding's position.
type SeedBinding struct {
	ID        int64          `yaml:"id"`
	Visible   *bool          `yaml:"visible,omitempty"`
	SortOrder *int           `yaml:"sort_order,omitempty"`
	Filters   map[string]any `yaml:"filters,omitempty"`
}

// ReadSeed loads a seed file from disk.
func ReadSeed(path string) (*Seed, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("backend: open seed %s: %w", path, err)
	}
	defer f.Close()
	seed, err := DecodeSeed(f)
	if err != nil {
		return nil, fmt.Errorf("backend: decode seed %s: %w", path, err)
	}
	seed.Source = path
	return seed, nil
}

// DecodeSeed strictly decodes and validates a seed document.
func DecodeSeed(r io.Reader) (*Seed, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var seed Seed
	if err := decoder.Decode(&seed); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("backend: seed is empty")
		}
		return nil, fmt.Errorf("backend: parse seed: %w", err)
	}
	if seed.Version == "" {
		seed.Version = SeedVersion
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks ids, references between dashboards and the catalog, and
// capability terms.
func (s *Seed) Validate() error {
	if s.Version != SeedVersion {
		return fmt.Errorf("backend: unsupported seed version %q", s.Version)
	}
	catalog := make(map[int64]struct{}, len(s.Metrics))
	for idx, m := range s.Metrics {
		if m.ID <= 0 {
			return fmt.Errorf("backend: seed metric at index %d is missing id", idx)
		}
		if m.Name == "" {
			return fmt.Errorf("backend: seed metric %d missing name", m.ID)
		}
		if _, exists := catalog[m.ID]; exists {
			return fmt.Errorf("backend: seed duplicates metric %d", m.ID)
		}
		catalog[m.ID] = struct{}{}
		if m.Capabilities != nil {
			for _, term := range m.Capabilities.AvailableTerms {
				if !slices.Contains(dashboard.KnownTerms(), term) {
					return fmt.Errorf("backend: seed metric %d lists unknown term %q", m.ID, term)
				}
			}
		}
	}

	ids := make(map[int64]struct{}, len(s.Dashboards))
	defaults := 0
	for idx, d := range s.Dashboards {
		if d.ID <= 0 {
			return fmt.Errorf("backend: seed dashboard at index %d is missing id", idx)
		}
		if d.Name == "" {
			return fmt.Errorf("backend: seed dashboard %d missing name", d.ID)
		}
		if _, exists := ids[d.ID]; exists {
			return fmt.Errorf("backend: seed duplicates dashboard %d", d.ID)
		}
		ids[d.ID] = struct{}{}
		if d.IsDefault {
			defaults++
		}
		bound := make(map[int64]struct{}, len(d.Metrics))
		for _, b := range d.Metrics {
			if _, ok := catalog[b.ID]; !ok {
				return fmt.Errorf("backend: seed dashboard %d binds unknown metric %d", d.ID, b.ID)
			}
			if _, dup := bound[b.ID]; dup {
				return fmt.Errorf("backend: seed dashboard %d binds metric %d twice", d.ID, b.ID)
			}
			bound[b.ID] = struct{}{}
		}
	}
	if defaults > 1 {
		return fmt.Errorf("backend: seed marks %d dashboards as default", defaults)
	}

	for dim := range s.References {
		if !dim.IsEntity() {
			return fmt.Errorf("backend: seed references use non-entity dimension %q", dim)
		}
	}
	return nil
}

package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"sigs.k8s.io/yaml"

	"testforge/internal/model"
)

// IndexEntry is one row of the persisted case index: a case's id, names,
// parameters, keywords, status and dependency ids. It records no file or
// working-directory path.
type IndexEntry struct {
	ID           model.CaseID            `json:"id"`
	DisplayName  string                  `json:"display_name"`
	Family       string                  `json:"family"`
	Parameters   map[string]model.Scalar `json:"parameters,omitempty"`
	Keywords     []string                `json:"keywords,omitempty"`
	Status       string                  `json:"status"`
	Dependencies []model.CaseID          `json:"dependencies,omitempty"`
}

// Index is the serializable form of cases.index.
type Index struct {
	Entries []IndexEntry `json:"entries"`
}

// BuildIndex snapshots a Store into its serializable index form.
func (s *Store) BuildIndex() Index {
	cases := s.All()
	idx := Index{Entries: make([]IndexEntry, 0, len(cases))}
	for _, c := range cases {
		deps := make([]model.CaseID, 0, len(c.Dependencies))
		for _, d := range c.Dependencies {
			deps = append(deps, d.Upstream)
		}
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
		idx.Entries = append(idx.Entries, IndexEntry{
			ID:           c.ID,
			DisplayName:  c.DisplayName,
			Family:       c.Family,
			Parameters:   c.Parameters,
			Keywords:     c.Keywords,
			Status:       c.Status.String(),
			Dependencies: deps,
		})
	}
	return idx
}

// WriteIndex persists the index to <path>/cases.index as YAML (the same
// shape round-trips as JSON since sigs.k8s.io/yaml goes through
// encoding/json).
func WriteIndex(dir string, idx Index) error {
	data, err := yaml.Marshal(idx)
	if err != nil {
		return fmt.Errorf("catalog: marshal index: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("catalog: create index dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "cases.index"), data, 0o644)
}

// ReadIndex loads a previously written cases.index.
func ReadIndex(dir string) (Index, error) {
	data, err := os.ReadFile(filepath.Join(dir, "cases.index"))
	if err != nil {
		return Index{}, fmt.Errorf("catalog: read index: %w", err)
	}
	var idx Index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return Index{}, fmt.Errorf("catalog: unmarshal index: %w", err)
	}
	return idx, nil
}

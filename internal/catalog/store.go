// Package catalog is the engine's single source of truth for case state:
// it owns the in-memory case map, enforces the once-terminal status
// invariant through one write path, and persists/reloads the case index
// (ids, status and dependencies; no paths) used across runs.
package catalog

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"testforge/internal/depgraph"
	"testforge/internal/model"
	"testforge/pkg/logging"
)

// Store holds every case in a session and is the only component allowed
// to mutate a case's runtime fields.
type Store struct {
	mu    sync.RWMutex
	cases map[model.CaseID]*model.TestCase
	graph *depgraph.Graph
}

// New builds an empty Store.
func New() *Store {
	return &Store{cases: make(map[model.CaseID]*model.TestCase), graph: depgraph.New()}
}

// Add registers a case. Add is not safe to call concurrently with
// Transition on the same id; callers add the full catalog before
// starting the scheduler.
func (s *Store) Add(c *model.TestCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.ID]; exists {
		return fmt.Errorf("catalog: duplicate case id %s", c.ID)
	}
	s.cases[c.ID] = c
	s.graph.AddNode(c.ID)
	for _, dep := range c.Dependencies {
		if err := s.graph.AddEdge(c.ID, dep.Upstream); err != nil {
			return err
		}
	}
	return nil
}

// Graph exposes the dependency DAG built as cases were added.
func (s *Store) Graph() *depgraph.Graph { return s.graph }

// Get returns a defensive copy of a case, or nil if unknown.
func (s *Store) Get(id model.CaseID) *model.TestCase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil
	}
	return c.Clone()
}

// All returns a defensive copy of every case, sorted by id.
func (s *Store) All() []*model.TestCase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.TestCase, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Mutation describes the field changes a status transition carries; it's
// applied atomically with the status write.
type Mutation struct {
	Start      *time.Time
	Stop       *time.Time
	ReturnCode *int
	Reason     string
	Masked     *bool
}

// Transition is the only path by which a case's status changes. It
// rejects any attempt to move a case out of a terminal status, matching
// the engine-wide once-terminal invariant.
func (s *Store) Transition(id model.CaseID, next model.Status, m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[id]
	if !ok {
		return fmt.Errorf("catalog: unknown case id %s", id)
	}
	if c.Status.Terminal() {
		return fmt.Errorf("catalog: case %s is already terminal (%s), cannot transition to %s", id, c.Status, next)
	}
	if !c.Status.CanTransition(next) {
		return fmt.Errorf("catalog: illegal transition %s -> %s for case %s", c.Status, next, id)
	}

	prev := c.Status
	c.Status = next
	if m.Start != nil {
		c.Start = *m.Start
	}
	if m.Stop != nil {
		c.Stop = *m.Stop
	}
	if m.ReturnCode != nil {
		c.ReturnCode = *m.ReturnCode
	}
	if m.Reason != "" {
		c.Reason = m.Reason
	}
	if m.Masked != nil {
		c.Masked = *m.Masked
	}

	logging.Debug("catalog", "case %s: %s -> %s", id, prev, next)
	return nil
}

// Mask marks a case as excluded from selection. Unlike Transition, Mask
// does not move a case through the status state machine: a case can be
// masked the instant it's added, well before anything makes it READY.
func (s *Store) Mask(id model.CaseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return fmt.Errorf("catalog: unknown case id %s", id)
	}
	c.Masked = true
	return nil
}

// Dependents returns the ids of every case that directly depends on id.
func (s *Store) Dependents(id model.CaseID) []model.CaseID {
	return s.graph.Dependents(id)
}

// Dependencies returns the ids of every case id directly depends on.
func (s *Store) Dependencies(id model.CaseID) []model.CaseID {
	return s.graph.Dependencies(id)
}

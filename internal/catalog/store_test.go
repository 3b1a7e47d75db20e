package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testforge/internal/model"
)

func newCase(id model.CaseID, deps ...model.CaseID) *model.TestCase {
	var edges []model.DependencyEdge
	for _, d := range deps {
		edges = append(edges, model.DependencyEdge{Upstream: d})
	}
	return &model.TestCase{ID: id, Family: string(id), DisplayName: string(id), Dependencies: edges}
}

func TestAddRejectsDuplicate(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(newCase("a")))
	assert.Error(t, s.Add(newCase("a")))
}

func TestTransitionEnforcesOnceTerminal(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(newCase("a")))
	require.NoError(t, s.Transition("a", model.StatusReady, Mutation{}))
	require.NoError(t, s.Transition("a", model.StatusRunning, Mutation{}))
	now := time.Now()
	require.NoError(t, s.Transition("a", model.StatusSuccess, Mutation{Stop: &now}))

	err := s.Transition("a", model.StatusReady, Mutation{})
	assert.Error(t, err)
}

func TestTransitionRejectsIllegalJump(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(newCase("a")))
	err := s.Transition("a", model.StatusRunning, Mutation{})
	assert.Error(t, err)
}

func TestIndexRoundTrip(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(newCase("a")))
	require.NoError(t, s.Add(newCase("b", "a")))

	dir := t.TempDir()
	require.NoError(t, WriteIndex(dir, s.BuildIndex()))

	idx, err := ReadIndex(dir)
	require.NoError(t, err)
	require.Len(t, idx.Entries, 2)

	byID := map[model.CaseID]IndexEntry{}
	for _, e := range idx.Entries {
		byID[e.ID] = e
	}
	assert.Equal(t, []model.CaseID{"a"}, byID["b"].Dependencies)
}

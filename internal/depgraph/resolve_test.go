package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testforge/internal/model"
)

// TestWildcardDependency covers a case depending on `a.n=*` where `a` was
// parameterized over n in [1,2,3]; the resolver must produce exactly three
// edges.
func TestWildcardDependency(t *testing.T) {
	a1 := CaseRef{ID: "a1", Family: "a", Parameters: map[string]model.Scalar{"n": int64(1)}}
	a2 := CaseRef{ID: "a2", Family: "a", Parameters: map[string]model.Scalar{"n": int64(2)}}
	a3 := CaseRef{ID: "a3", Family: "a", Parameters: map[string]model.Scalar{"n": int64(3)}}
	b := CaseRef{ID: "b1", Family: "b", Patterns: []model.DependencyPattern{{Pattern: "a.n=*"}}}

	edges, diags, err := Resolve([]CaseRef{a1, a2, a3, b})
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Len(t, edges["b1"], 3)
}

func TestSelfMatchDropped(t *testing.T) {
	a := CaseRef{ID: "a1", Family: "a", Patterns: []model.DependencyPattern{{Pattern: "a"}}}
	edges, diags, err := Resolve([]CaseRef{a})
	require.NoError(t, err)
	assert.Empty(t, edges["a1"])
	assert.Len(t, diags, 1, "an unresolved self-only pattern should be diagnosed as NOT_RUN")
}

func TestCardinalityExpectExact(t *testing.T) {
	a1 := CaseRef{ID: "a1", Family: "a"}
	a2 := CaseRef{ID: "a2", Family: "a"}
	b := CaseRef{ID: "b1", Family: "b", Patterns: []model.DependencyPattern{{Pattern: "a", Expect: "1"}}}

	_, diags, err := Resolve([]CaseRef{a1, a2, b})
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Reason, "expected exactly 1")
}

func TestDirScopedPattern(t *testing.T) {
	a1 := CaseRef{ID: "a1", Family: "a", Dir: "foo"}
	a2 := CaseRef{ID: "a2", Family: "a", Dir: "bar"}
	b := CaseRef{ID: "b1", Family: "b", Patterns: []model.DependencyPattern{{Pattern: "foo/a"}}}

	edges, diags, err := Resolve([]CaseRef{a1, a2, b})
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, edges["b1"], 1)
	assert.Equal(t, model.CaseID("a1"), edges["b1"][0].Upstream)
}

func TestParamSubstitution(t *testing.T) {
	a1 := CaseRef{ID: "a1", Family: "a", Parameters: map[string]model.Scalar{"n": int64(2)}}
	b := CaseRef{
		ID:         "b1",
		Family:     "b",
		Parameters: map[string]model.Scalar{"n": int64(2)},
		Patterns:   []model.DependencyPattern{{Pattern: "a.n=${n}"}},
	}
	edges, diags, err := Resolve([]CaseRef{a1, b})
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, edges["b1"], 1)
}

func TestBuildGraphDetectsCycle(t *testing.T) {
	edges := map[model.CaseID][]model.DependencyEdge{
		"a": {{Upstream: "b"}},
		"b": {{Upstream: "a"}},
	}
	g := BuildGraph(edges)
	_, err := g.TopoOrder()
	require.Error(t, err)
	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestStrataOrdering(t *testing.T) {
	edges := map[model.CaseID][]model.DependencyEdge{
		"a": {},
		"b": {},
		"c": {{Upstream: "a"}, {Upstream: "b"}},
	}
	g := BuildGraph(edges)
	strata, err := g.Strata()
	require.NoError(t, err)
	require.Len(t, strata, 2)
	assert.ElementsMatch(t, []model.CaseID{"a", "b"}, strata[0])
	assert.Equal(t, []model.CaseID{"c"}, strata[1])
}

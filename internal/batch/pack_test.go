package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testforge/internal/depgraph"
	"testforge/internal/model"
)

func makeIndependentCase(i int) *model.TestCase {
	return &model.TestCase{
		ID:                model.CaseID("c" + string(rune('a'+i))),
		Family:            "c",
		RequiredResources: []model.ResourceGroup{{model.ResourceItem{Type: "cpus", Slots: 1}}},
		Timeout:           5 * time.Minute,
	}
}

func TestPackByDurationS6(t *testing.T) {
	var cases []*model.TestCase
	g := depgraph.New()
	for i := 0; i < 12; i++ {
		c := makeIndependentCase(i)
		cases = append(cases, c)
		g.AddNode(c.ID)
	}

	bins, err := Pack(cases, Target{Mode: ModeDuration, Value: 15 * 60}, g, 4)
	require.NoError(t, err)

	total := 0
	for _, b := range bins {
		total += len(b.Members)
	}
	assert.Equal(t, 12, total)
	require.Len(t, bins, 3, "a 4-cpu pool packing 12 five-minute/1-cpu blocks under a 15-minute target should produce exactly 3 bins")
	for _, b := range bins {
		assert.Len(t, b.Members, 4, "each bin should fill the pool's 4-cpu width exactly")
	}
}

func TestPackAtomicOnePerBin(t *testing.T) {
	var cases []*model.TestCase
	g := depgraph.New()
	for i := 0; i < 3; i++ {
		c := makeIndependentCase(i)
		cases = append(cases, c)
		g.AddNode(c.ID)
	}
	bins, err := Pack(cases, Target{Mode: ModeAtomic}, g, 0)
	require.NoError(t, err)
	require.Len(t, bins, 3)
	for _, b := range bins {
		assert.Len(t, b.Members, 1)
	}
}

func TestPackByCountRespectsK(t *testing.T) {
	var cases []*model.TestCase
	g := depgraph.New()
	for i := 0; i < 8; i++ {
		c := makeIndependentCase(i)
		cases = append(cases, c)
		g.AddNode(c.ID)
	}
	bins, err := Pack(cases, Target{Mode: ModeCount, Value: 2}, g, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(bins), 2)
}

func TestPackRespectsStrata(t *testing.T) {
	a := makeIndependentCase(0)
	b := makeIndependentCase(1)
	b.Dependencies = []model.DependencyEdge{{Upstream: a.ID}}

	g := depgraph.New()
	g.AddNode(a.ID)
	_ = g.AddEdge(b.ID, a.ID)

	bins, err := Pack([]*model.TestCase{a, b}, Target{Mode: ModeAtomic}, g, 0)
	require.NoError(t, err)
	require.Len(t, bins, 2)
	assert.Equal(t, a.ID, bins[0].Members[0])
	assert.Equal(t, b.ID, bins[1].Members[0])
}

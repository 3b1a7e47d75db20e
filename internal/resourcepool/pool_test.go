package resourcepool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testforge/internal/model"
)

func group(items ...model.ResourceItem) model.ResourceGroup { return model.ResourceGroup(items) }

func TestAcquireReleaseBasic(t *testing.T) {
	p := New([]ItemSpec{{Type: "cpus", ID: "0", Slots: 4}, {Type: "gpus", ID: "0", Slots: 1}})

	a1, ok := p.Acquire([]model.ResourceGroup{group(model.ResourceItem{Type: "cpus", Slots: 4})})
	require.True(t, ok)

	// pool is now exhausted for cpus; a second 4-cpu request must fail.
	_, ok = p.Acquire([]model.ResourceGroup{group(model.ResourceItem{Type: "cpus", Slots: 4})})
	assert.False(t, ok)

	p.Release(a1)

	a2, ok := p.Acquire([]model.ResourceGroup{group(model.ResourceItem{Type: "cpus", Slots: 2}, model.ResourceItem{Type: "gpus", Slots: 1})})
	require.True(t, ok)
	a3, ok := p.Acquire([]model.ResourceGroup{group(model.ResourceItem{Type: "cpus", Slots: 1})})
	require.True(t, ok)

	p.Release(a2)
	p.Release(a3)
}

func TestAcquirePrefersEarlierGroup(t *testing.T) {
	p := New([]ItemSpec{{Type: "cpus", ID: "0", Slots: 1}})
	a, ok := p.Acquire([]model.ResourceGroup{
		group(model.ResourceItem{Type: "cpus", Slots: 1}),
		group(model.ResourceItem{Type: "cpus", Slots: 1}),
	})
	require.True(t, ok)
	assert.Equal(t, 0, a.GroupIndex)
}

func TestAccommodatesInfeasible(t *testing.T) {
	p := New([]ItemSpec{{Type: "gpus", ID: "0", Slots: 1}})
	req := []model.ResourceGroup{group(model.ResourceItem{Type: "gpus", Slots: 2})}
	assert.False(t, p.Accommodates(req))
}

func TestAccommodatesFeasible(t *testing.T) {
	p := New([]ItemSpec{{Type: "gpus", ID: "0", Slots: 1}, {Type: "gpus", ID: "1", Slots: 1}})
	req := []model.ResourceGroup{group(model.ResourceItem{Type: "gpus", Slots: 2})}
	assert.True(t, p.Accommodates(req))
}

func TestEnvProjection(t *testing.T) {
	p := New([]ItemSpec{{Type: "cpus", ID: "0", Slots: 4}})
	a, ok := p.Acquire([]model.ResourceGroup{group(model.ResourceItem{Type: "cpus", Slots: 2})})
	require.True(t, ok)

	env := Env("TEST", a)
	assert.Equal(t, "1", env["TEST_RESOURCE_GROUP_COUNT"])
	assert.Equal(t, "cpus", env["TEST_RESOURCE_GROUP_0"])
	assert.Equal(t, "id:0,slots:2", env["TEST_RESOURCE_GROUP_0_cpus"])
}

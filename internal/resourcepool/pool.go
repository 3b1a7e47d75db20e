// Package resourcepool implements the typed, slot-based resource pool and
// its admission control: acquire/release of resource groups under a
// single mutex, plus a non-mutating feasibility check used to fail
// unsatisfiable cases before they ever reach the scheduler.
package resourcepool

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"testforge/internal/model"
)

// item is one mutable slot bucket of a given type.
type item struct {
	id    string
	total int
	free  int
}

// Pool holds the typed slot inventory for one session.
type Pool struct {
	mu    sync.Mutex
	items map[string][]*item // type -> ordered items (authoring order)
}

// ItemSpec describes one resource item at construction time.
type ItemSpec struct {
	Type  string
	ID    string
	Slots int
}

// New builds a Pool from a flat list of typed items, preserving the order
// given (authoring order matters for least-fragmented packing).
func New(specs []ItemSpec) *Pool {
	p := &Pool{items: make(map[string][]*item)}
	for _, s := range specs {
		p.items[s.Type] = append(p.items[s.Type], &item{id: s.ID, total: s.Slots, free: s.Slots})
	}
	return p
}

// Capacity returns the total configured slots of a type across all items.
func (p *Pool) Capacity(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, it := range p.items[typ] {
		total += it.total
	}
	return total
}

// Reservation records how many slots were taken from one item.
type Reservation struct {
	Type  string
	ID    string
	Slots int
}

// Assignment is the outcome of a successful acquire: which group (by
// index into the request) was satisfied, and exactly what was reserved.
type Assignment struct {
	GroupIndex   int
	Reservations []Reservation
}

// Acquire tries each group in order (authoring order is preference
// order); the first group whose items can all be satisfied is reserved
// atomically and returned. Returns (nil, false) if no group fits right
// now.
func (p *Pool) Acquire(req []model.ResourceGroup) (*Assignment, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(req) == 0 {
		return &Assignment{GroupIndex: -1}, true
	}

	for gi, group := range req {
		reservations, ok := p.tryReserveGroup(group)
		if !ok {
			continue
		}
		for _, r := range reservations {
			p.applyDelta(r.Type, r.ID, -r.Slots)
		}
		return &Assignment{GroupIndex: gi, Reservations: reservations}, true
	}
	return nil, false
}

// tryReserveGroup computes (without mutating state) the set of
// reservations that would satisfy every item in the group: the
// lowest-indexed bucket with sufficient free capacity when one exists,
// otherwise the fullest buckets first so as few buckets as possible are
// split.
func (p *Pool) tryReserveGroup(group model.ResourceGroup) ([]Reservation, bool) {
	var out []Reservation
	for _, need := range group {
		buckets := p.items[need.Type]
		remaining := need.Slots
		if remaining > 0 {
			for _, b := range buckets {
				if b.free >= remaining {
					out = append(out, Reservation{Type: need.Type, ID: b.id, Slots: remaining})
					remaining = 0
					break
				}
			}
		}
		// no single bucket suffices: draw from the fullest buckets first so
		// the request spans as few buckets as possible.
		buckets = append([]*item(nil), buckets...)
		sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].free > buckets[j].free })
		for _, b := range buckets {
			if remaining <= 0 {
				break
			}
			if b.free <= 0 {
				continue
			}
			take := b.free
			if take > remaining {
				take = remaining
			}
			out = append(out, Reservation{Type: need.Type, ID: b.id, Slots: take})
			remaining -= take
		}
		if remaining > 0 {
			return nil, false
		}
	}
	return out, true
}

func (p *Pool) applyDelta(typ, id string, delta int) {
	for _, it := range p.items[typ] {
		if it.id == id {
			it.free += delta
			return
		}
	}
}

// Release restores exactly the slots an Assignment reserved.
func (p *Pool) Release(a *Assignment) {
	if a == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range a.Reservations {
		p.applyDelta(r.Type, r.ID, r.Slots)
	}
}

// Accommodates is a non-mutating feasibility check: the case is feasible
// if at least one of its groups has, for every item type it needs, total
// pool capacity (across all buckets) of that type >= the item's slots.
func (p *Pool) Accommodates(req []model.ResourceGroup) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, group := range req {
		ok := true
		for _, need := range group {
			total := 0
			for _, b := range p.items[need.Type] {
				total += b.total
			}
			if total < need.Slots {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return len(req) == 0
}

// Env projects an Assignment into the case environment variable shape
// fixed by the session's external interface: `<prefix>_RESOURCE_GROUP_COUNT`,
// per-group type lists, and per-group-per-type `id:N,slots:M;...` values.
func Env(prefix string, a *Assignment) map[string]string {
	out := map[string]string{fmt.Sprintf("%s_RESOURCE_GROUP_COUNT", prefix): "1"}
	if a == nil {
		out[fmt.Sprintf("%s_RESOURCE_GROUP_COUNT", prefix)] = "0"
		return out
	}

	byType := make(map[string][]Reservation)
	var types []string
	for _, r := range a.Reservations {
		if _, ok := byType[r.Type]; !ok {
			types = append(types, r.Type)
		}
		byType[r.Type] = append(byType[r.Type], r)
	}
	sort.Strings(types)

	out[fmt.Sprintf("%s_RESOURCE_GROUP_0", prefix)] = strings.Join(types, ",")
	for _, t := range types {
		var parts []string
		for _, r := range byType[t] {
			parts = append(parts, fmt.Sprintf("id:%s,slots:%d", r.ID, r.Slots))
		}
		out[fmt.Sprintf("%s_RESOURCE_GROUP_0_%s", prefix, t)] = strings.Join(parts, ";")
	}
	return out
}

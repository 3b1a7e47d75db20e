// Package selection applies keyword, parameter, owner, regex and
// id-prefix filters to a catalog of test cases, masking the ones that
// match none of the active filters and pulling in their dependencies.
package selection

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"testforge/internal/depgraph"
	"testforge/internal/model"
	"testforge/internal/predicate"
)

// Filter is one filter spec applied across the whole candidate set. A case
// is kept if it matches ANY of the active Filters; within one Filter every
// non-empty field must match (fields are ANDed, Filters are ORed).
type Filter struct {
	Keyword   string // boolean expression over keywords; "" = not applied
	Parameter string // boolean expression over parameters; "" = not applied
	Owner     []string
	Regex     string // matched against DisplayName
	IDPrefix  string
}

func (f Filter) empty() bool {
	return f.Keyword == "" && f.Parameter == "" && len(f.Owner) == 0 && f.Regex == "" && f.IDPrefix == ""
}

// Result is the outcome of applying a set of Filters to a candidate set.
type Result struct {
	Selected map[model.CaseID]bool
	PulledIn map[model.CaseID]bool // selected only because a dependent needed them
	Warnings []string
}

func keywordSet(c *model.TestCase) map[string]bool {
	set := make(map[string]bool, len(c.Keywords)+1)
	set[c.Family] = true
	for _, k := range c.Keywords {
		set[k] = true
	}
	return set
}

func matchesOwner(c *model.TestCase, owners []string) bool {
	if len(owners) == 0 {
		return false
	}
	want := make(map[string]bool, len(owners))
	for _, o := range owners {
		want[o] = true
	}
	for _, o := range c.Owners {
		if want[o] {
			return true
		}
	}
	return false
}

func matchesFilter(f Filter, c *model.TestCase) (bool, error) {
	if f.empty() {
		return false, nil
	}
	if f.Keyword != "" {
		ok, err := predicate.EvalKeywordExpr(f.Keyword, keywordSet(c))
		if err != nil {
			return false, fmt.Errorf("select: keyword expression: %w", err)
		}
		if !ok {
			return false, nil
		}
	}
	if f.Parameter != "" {
		ok, err := predicate.EvalParameterExpr(f.Parameter, c.Parameters)
		if err != nil {
			return false, fmt.Errorf("select: parameter expression: %w", err)
		}
		if !ok {
			return false, nil
		}
	}
	if len(f.Owner) > 0 && !matchesOwner(c, f.Owner) {
		return false, nil
	}
	if f.Regex != "" {
		re, err := regexp.Compile(f.Regex)
		if err != nil {
			return false, fmt.Errorf("select: regex: %w", err)
		}
		if !re.MatchString(c.DisplayName) {
			return false, nil
		}
	}
	if f.IDPrefix != "" && !strings.HasPrefix(string(c.ID), f.IDPrefix) {
		return false, nil
	}
	return true, nil
}

// Apply selects cases from the catalog that satisfy at least one of the
// given filters (an empty filter set selects everything), then pulls in
// every transitive dependency of a selected case, recording a warning for
// each dependency pulled in that wasn't already directly selected.
//
// Cases not in the final selected set are returned unmasked in the
// caller's store; it is the caller's responsibility to set Masked=true on
// everything outside Result.Selected.
func Apply(cases []*model.TestCase, filters []Filter, g *depgraph.Graph) (*Result, error) {
	res := &Result{Selected: make(map[model.CaseID]bool), PulledIn: make(map[model.CaseID]bool)}

	active := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if !f.empty() {
			active = append(active, f)
		}
	}

	if len(active) == 0 {
		for _, c := range cases {
			res.Selected[c.ID] = true
		}
		return res, nil
	}

	for _, c := range cases {
		for _, f := range active {
			ok, err := matchesFilter(f, c)
			if err != nil {
				return nil, err
			}
			if ok {
				res.Selected[c.ID] = true
				break
			}
		}
	}

	// Pull in transitive dependencies of every directly-selected case.
	var frontier []model.CaseID
	for id := range res.Selected {
		frontier = append(frontier, id)
	}
	sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })

	seen := make(map[model.CaseID]bool, len(res.Selected))
	for id := range res.Selected {
		seen[id] = true
	}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, dep := range g.Dependencies(id) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			res.Selected[dep] = true
			res.PulledIn[dep] = true
			res.Warnings = append(res.Warnings, fmt.Sprintf("case %s pulled in as a dependency of %s though it matched no filter", dep, id))
			frontier = append(frontier, dep)
		}
	}
	return res, nil
}

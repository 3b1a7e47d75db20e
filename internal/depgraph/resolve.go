package depgraph

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"testforge/internal/model"
)

// CaseRef is the minimal projection of a TestCase the resolver needs: its
// id, its family/scoping directory, its parameter bindings, and its own
// (still unresolved) dependency patterns.
type CaseRef struct {
	ID         model.CaseID
	Family     string
	Dir        string // FileRoot-relative directory FilePath lives in
	Parameters map[string]model.Scalar
	Patterns   []model.DependencyPattern
}

var paramTokenRE = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

func substitute(pattern string, params map[string]model.Scalar) string {
	return paramTokenRE.ReplaceAllStringFunc(pattern, func(tok string) string {
		name := tok[2 : len(tok)-1]
		if v, ok := params[name]; ok {
			return fmt.Sprintf("%v", v)
		}
		return tok
	})
}

// parsedPattern is one `name[.k=v...]` or `dir/name[.k=v...]` pattern.
type parsedPattern struct {
	dir      string // "" = unscoped
	name     string
	bindings [][2]string // k, v (v may be "*" or a glob)
}

func parsePattern(raw string) parsedPattern {
	dir := ""
	rest := raw
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		dir = raw[:idx]
		rest = raw[idx+1:]
	}
	parts := strings.Split(rest, ".")
	pp := parsedPattern{dir: dir, name: parts[0]}
	for _, kv := range parts[1:] {
		if kv == "" {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		pp.bindings = append(pp.bindings, [2]string{kv[:eq], kv[eq+1:]})
	}
	return pp
}

func globMatch(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, value)
	return err == nil && ok
}

func (pp parsedPattern) matches(c CaseRef) bool {
	if c.Family != pp.name {
		return false
	}
	if pp.dir != "" && c.Dir != pp.dir {
		return false
	}
	for _, b := range pp.bindings {
		v, ok := c.Parameters[b[0]]
		if !ok {
			return false
		}
		if !globMatch(b[1], fmt.Sprintf("%v", v)) {
			return false
		}
	}
	return true
}

// Diagnostic explains why a case's dependencies could not be fully
// resolved; the case becomes NOT_RUN as a result.
type Diagnostic struct {
	CaseID model.CaseID
	Reason string
}

// Resolve expands each case's dependency patterns into concrete edges
// (dropping self-matches, sorting by id for determinism), checks each
// pattern's cardinality filter, and returns a per-case list of edges plus
// any resolution diagnostics.
func Resolve(cases []CaseRef) (map[model.CaseID][]model.DependencyEdge, []Diagnostic, error) {
	byFamily := make(map[string][]CaseRef)
	for _, c := range cases {
		byFamily[c.Family] = append(byFamily[c.Family], c)
	}

	edges := make(map[model.CaseID][]model.DependencyEdge, len(cases))
	var diags []Diagnostic

	for _, c := range cases {
		var resolved []model.DependencyEdge
		for _, dp := range c.Patterns {
			pattern := substitute(dp.Pattern, c.Parameters)
			pp := parsePattern(pattern)
			candidates := byFamily[pp.name]
			var matchIDs []model.CaseID
			for _, cand := range candidates {
				if cand.ID == c.ID {
					continue
				}
				if pp.matches(cand) {
					matchIDs = append(matchIDs, cand.ID)
				}
			}
			sort.Slice(matchIDs, func(i, j int) bool { return matchIDs[i] < matchIDs[j] })

			if reason, ok := cardinalityViolation(dp.Expect, len(matchIDs)); !ok {
				diags = append(diags, Diagnostic{CaseID: c.ID, Reason: fmt.Sprintf("unresolved dependency %q: %s", dp.Pattern, reason)})
				continue
			}
			for _, id := range matchIDs {
				resolved = append(resolved, model.DependencyEdge{Upstream: id, Result: dp.Result, Expect: dp.Expect})
			}
		}
		sort.Slice(resolved, func(i, j int) bool { return resolved[i].Upstream < resolved[j].Upstream })
		edges[c.ID] = resolved
	}
	return edges, diags, nil
}

// cardinalityViolation checks a resolved match count against an `expect`
// specifier ("" defaults to "+": at least one match required so the
// pattern isn't silently a no-op; "+" >=1; "*" any count including zero;
// an integer requires an exact match).
func cardinalityViolation(expect string, n int) (reason string, ok bool) {
	switch expect {
	case "", "+":
		if n < 1 {
			return "expected at least one match, found none", false
		}
	case "*":
		// any count, including zero, is fine.
	default:
		want, err := strconv.Atoi(expect)
		if err != nil {
			return fmt.Sprintf("invalid expect specifier %q", expect), false
		}
		if n != want {
			return fmt.Sprintf("expected exactly %d match(es), found %d", want, n), false
		}
	}
	return "", true
}

// BuildGraph turns resolved edges into a depgraph.Graph for cycle
// detection and stratification.
func BuildGraph(edges map[model.CaseID][]model.DependencyEdge) *Graph {
	g := New()
	for v, deps := range edges {
		g.AddNode(v)
		for _, d := range deps {
			_ = g.AddEdge(v, d.Upstream)
		}
	}
	return g
}

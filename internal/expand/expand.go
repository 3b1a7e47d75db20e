// Package expand turns a model.DraftSpec into the concrete model.TestCases
// it describes: parameter-set combination, keyword/timeout/attribute
// resolution against activation predicates, resource-requirement
// derivation, and composite-base ("reduce node") synthesis.
package expand

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"testforge/internal/model"
	"testforge/internal/predicate"
)

var assetParamRE = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// resolveAssetPath renders an asset Src/Dst path against a case's bound
// parameters: `${name}` tokens become `{{.name}}` pipeline references, then
// the whole path is executed as a text/template with sprig's function map
// so a suite can write things like "${plat}/{{lower .compiler}}.inp".
func resolveAssetPath(raw string, params map[string]model.Scalar) (string, error) {
	tpl := assetParamRE.ReplaceAllString(raw, "{{.$1}}")
	t, err := template.New("asset").Funcs(sprig.TxtFuncMap()).Parse(tpl)
	if err != nil {
		return "", fmt.Errorf("expand: asset path template %q: %w", raw, err)
	}
	data := make(map[string]any, len(params))
	for k, v := range params {
		data[k] = v
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("expand: asset path template %q: %w", raw, err)
	}
	return buf.String(), nil
}

// Options carries the activation context that isn't part of the draft
// itself: which build/run options are enabled and which platform is
// active, both consulted by every `when` predicate.
type Options struct {
	Options   map[string]bool
	Platforms map[string]bool
}

// Expand implements the full test-case expansion pass for one draft. It
// returns every concrete TestCase the draft describes, including the
// synthesized composite-base node when the draft requests one.
func Expand(draft *model.DraftSpec, opt Options) ([]*model.TestCase, error) {
	testnames := draft.Testnames
	if len(testnames) == 0 {
		testnames = []string{draft.Family}
	}
	family := draft.Family
	if family == "" {
		family = testnames[0]
	}

	rowNames, rows, err := combine(draft.ParameterSets)
	if err != nil {
		return nil, err
	}
	if err := validateSpecialParams(rowNames, rows); err != nil {
		return nil, err
	}
	rows = dedupRows(rowNames, rows)

	var out []*model.TestCase
	seen := make(map[model.CaseID]bool)

	for _, testname := range testnames {
		var siblings []model.CaseID
		for _, row := range rows {
			params := zip(rowNames, row)
			tc, err := buildCase(draft, family, testname, params, opt)
			if err != nil {
				return nil, err
			}
			if seen[tc.ID] {
				return nil, fmt.Errorf("expand: duplicate case id %s for family %s", tc.ID, family)
			}
			seen[tc.ID] = true
			siblings = append(siblings, tc.ID)
			out = append(out, tc)
		}

		if draft.CompositeBase {
			base, err := buildCompositeBase(draft, family, testname, siblings)
			if err != nil {
				return nil, err
			}
			if seen[base.ID] {
				return nil, fmt.Errorf("expand: duplicate case id %s for composite base of %s", base.ID, family)
			}
			seen[base.ID] = true
			out = append(out, base)
		}
	}
	return out, nil
}

// paramGroup accumulates every ParameterSet declared under the same
// name-tuple; their rows are concatenated before combination with other
// groups.
type paramGroup struct {
	names []string
	rows  [][]model.Scalar
}

func combine(sets []model.ParameterSet) ([]string, [][]model.Scalar, error) {
	var order []string
	groups := make(map[string]*paramGroup)
	for _, ps := range sets {
		key := strings.Join(ps.Names, "\x00")
		g, ok := groups[key]
		if !ok {
			g = &paramGroup{names: append([]string(nil), ps.Names...)}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, ps.Rows...)
	}

	var names []string
	var rows [][]model.Scalar
	for i, key := range order {
		g := groups[key]
		if i == 0 {
			names = append([]string(nil), g.names...)
			rows = g.rows
			continue
		}
		names = append(names, g.names...)
		rows = cartesian(rows, g.rows)
	}
	if rows == nil {
		// no parameter sets at all: a single, parameterless row.
		rows = [][]model.Scalar{{}}
	}
	return names, rows, nil
}

func cartesian(left, right [][]model.Scalar) [][]model.Scalar {
	if len(left) == 0 {
		return right
	}
	if len(right) == 0 {
		return left
	}
	out := make([][]model.Scalar, 0, len(left)*len(right))
	for _, l := range left {
		for _, r := range right {
			row := make([]model.Scalar, 0, len(l)+len(r))
			row = append(row, l...)
			row = append(row, r...)
			out = append(out, row)
		}
	}
	return out
}

func zip(names []string, row []model.Scalar) map[string]model.Scalar {
	m := make(map[string]model.Scalar, len(names))
	for i, n := range names {
		if i < len(row) {
			m[n] = row[i]
		}
	}
	return m
}

func dedupRows(names []string, rows [][]model.Scalar) [][]model.Scalar {
	seen := make(map[string]bool, len(rows))
	var out [][]model.Scalar
	for _, row := range rows {
		sig := rowSignature(names, row)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, row)
	}
	return out
}

func rowSignature(names []string, row []model.Scalar) string {
	pairs := make([]string, len(names))
	for i, n := range names {
		var v model.Scalar
		if i < len(row) {
			v = row[i]
		}
		pairs[i] = fmt.Sprintf("%s=%v", n, v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "\x1f")
}

func validateSpecialParams(names []string, rows [][]model.Scalar) error {
	special := map[string]bool{"cpus": true, "gpus": true, "nodes": true}
	for _, row := range rows {
		for i, n := range names {
			if !special[n] || i >= len(row) {
				continue
			}
			n64, ok := toInt64(row[i])
			if !ok {
				return fmt.Errorf("expand: parameter %q must be an integer, got %v", n, row[i])
			}
			if n64 < 0 {
				return fmt.Errorf("expand: parameter %q must be non-negative, got %d", n, n64)
			}
		}
	}
	return nil
}

func toInt64(v model.Scalar) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func buildCase(draft *model.DraftSpec, family, testname string, params map[string]model.Scalar, opt Options) (*model.TestCase, error) {
	in := predicate.Input{Testname: testname, Options: opt.Options, Platforms: opt.Platforms, Parameters: params}

	keywordSet := make(map[string]bool)
	for _, kw := range draft.Keywords {
		ok, err := predicate.Evaluate(kw.When, in)
		if err != nil {
			return nil, fmt.Errorf("expand: keyword %q predicate: %w", kw.Name, err)
		}
		if ok {
			keywordSet[kw.Name] = true
		}
	}

	timeout := draft.DefaultTimeout
	for _, tr := range draft.TimeoutRules {
		ok, err := predicate.Evaluate(tr.When, in)
		if err != nil {
			return nil, fmt.Errorf("expand: timeout predicate: %w", err)
		}
		if ok {
			timeout = secondsToDuration(tr.Seconds)
			break
		}
	}

	attrs := make(map[string]model.Scalar)
	for _, ov := range draft.Overrides {
		ok, err := predicate.Evaluate(ov.When, in)
		if err != nil {
			return nil, fmt.Errorf("expand: attribute override %q predicate: %w", ov.Key, err)
		}
		if ok {
			attrs[ov.Key] = ov.Value
		}
	}

	var assets []model.AssetAction
	for _, a := range draft.Assets {
		ok, err := predicate.Evaluate(a.When, in)
		if err != nil {
			return nil, fmt.Errorf("expand: asset predicate: %w", err)
		}
		if !ok {
			continue
		}
		src, err := resolveAssetPath(a.Src, params)
		if err != nil {
			return nil, err
		}
		dst, err := resolveAssetPath(a.Dst, params)
		if err != nil {
			return nil, err
		}
		assets = append(assets, model.AssetAction{Kind: a.Kind, Src: src, Dst: dst, When: a.When})
	}

	for name, val := range params {
		keywordSet[fmt.Sprintf("%s=%v", name, val)] = true
	}
	keywordSet[family] = true
	keywordSet[testname] = true

	keywords := make([]string, 0, len(keywordSet))
	for k := range keywordSet {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)

	id := model.NewCaseID(draft.FileRoot, draft.FilePath, family, params)

	tc := &model.TestCase{
		ID:                id,
		Family:            family,
		FileRoot:          draft.FileRoot,
		FilePath:          draft.FilePath,
		Parameters:        params,
		DisplayName:       model.DisplayName(family, params),
		Keywords:          keywords,
		RequiredResources: deriveResources(params, draft.ResourceGroups),
		Timeout:           timeout,
		XStatus:           draft.XStatus,
		WillFail:          draft.WillFail,
		Exclusive:         draft.Exclusive,
		PassRegex:         append([]string(nil), draft.PassRegex...),
		FailRegex:         append([]string(nil), draft.FailRegex...),
		SkipReturnCode:    append([]int(nil), draft.SkipReturnCode...),
		Attributes:        attrs,
		Assets:            assets,
		Owners:            append([]string(nil), draft.Owners...),
	}
	return tc, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func deriveResources(params map[string]model.Scalar, explicit []model.ResourceGroup) []model.ResourceGroup {
	var derived model.ResourceGroup
	if v, ok := params["cpus"]; ok {
		if n, ok := toInt64(v); ok && n > 0 {
			derived = append(derived, model.ResourceItem{Type: "cpus", Slots: int(n)})
		}
	}
	if v, ok := params["gpus"]; ok {
		if n, ok := toInt64(v); ok && n > 0 {
			derived = append(derived, model.ResourceItem{Type: "gpus", Slots: int(n)})
		}
	}
	var groups []model.ResourceGroup
	if len(derived) > 0 {
		groups = append(groups, derived)
	}
	groups = append(groups, explicit...)
	return groups
}

func buildCompositeBase(draft *model.DraftSpec, family, testname string, siblings []model.CaseID) (*model.TestCase, error) {
	id := model.NewCaseID(draft.FileRoot, draft.FilePath, family+":analyze", nil)
	deps := make([]model.DependencyEdge, 0, len(siblings))
	for _, s := range siblings {
		deps = append(deps, model.DependencyEdge{Upstream: s, Result: "success|diff", Expect: "*"})
	}
	attrs := make(map[string]model.Scalar)
	if draft.BaseOverride != "" {
		attrs["override_script"] = draft.BaseOverride
	}
	return &model.TestCase{
		ID:              id,
		Family:          family,
		FileRoot:        draft.FileRoot,
		FilePath:        draft.FilePath,
		Parameters:      map[string]model.Scalar{},
		DisplayName:     family,
		Keywords:        []string{family, testname, "analyze"},
		IsCompositeBase: true,
		Dependencies:    deps,
		Attributes:      attrs,
		Owners:          append([]string(nil), draft.Owners...),
	}, nil
}

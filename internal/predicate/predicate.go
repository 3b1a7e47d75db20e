package predicate

import (
	"sync"

	"testforge/internal/model"
)

// Input is the evaluation environment for a model.Predicate: the testname
// under consideration, the set of enabled options/active platforms, and
// the parameter bindings of the case being built.
type Input struct {
	Testname   string
	Options    map[string]bool
	Platforms  map[string]bool
	Parameters map[string]model.Scalar
}

type setResolver map[string]bool

func (s setResolver) Member(name string) bool { return s[name] }
func (setResolver) Value(string) (any, bool)   { return nil, false }

type paramResolver map[string]model.Scalar

func (p paramResolver) Member(name string) bool { _, ok := p[name]; return ok }
func (p paramResolver) Value(name string) (any, bool) {
	v, ok := p[name]
	return v, ok
}

// compiled caches the parsed boolean expressions for a model.Predicate so
// repeated evaluation (once per candidate test case) doesn't re-tokenize.
type compiled struct {
	options    *Expr
	platforms  *Expr
	parameters *Expr
}

var cache sync.Map // map[*model.Predicate]*compiled

func compile(p *model.Predicate) (*compiled, error) {
	if v, ok := cache.Load(p); ok {
		return v.(*compiled), nil
	}
	opts, err := Parse(p.Options)
	if err != nil {
		return nil, err
	}
	plats, err := Parse(p.Platforms)
	if err != nil {
		return nil, err
	}
	params, err := Parse(p.Parameters)
	if err != nil {
		return nil, err
	}
	c := &compiled{options: opts, platforms: plats, parameters: params}
	cache.Store(p, c)
	return c, nil
}

// Evaluate implements the `when` conjunction: testname equality AND the
// options/platforms/parameters boolean sub-expressions, each defaulting to
// true when absent.
func Evaluate(p *model.Predicate, in Input) (bool, error) {
	if p == nil || p.IsZero() {
		return true, nil
	}
	if p.Testname != "" && p.Testname != in.Testname {
		return false, nil
	}
	c, err := compile(p)
	if err != nil {
		return false, err
	}
	if !c.options.Eval(setResolver(in.Options)) {
		return false, nil
	}
	if !c.platforms.Eval(setResolver(in.Platforms)) {
		return false, nil
	}
	if !c.parameters.Eval(paramResolver(in.Parameters)) {
		return false, nil
	}
	return true, nil
}

// EvalKeywordExpr evaluates a keyword-selection boolean expression against
// the set of keywords/family name implied by a case.
func EvalKeywordExpr(expr string, keywords map[string]bool) (bool, error) {
	e, err := Parse(expr)
	if err != nil {
		return false, err
	}
	return e.Eval(setResolver(keywords)), nil
}

// EvalParameterExpr evaluates a parameter-selection boolean expression
// against a case's parameter bindings.
func EvalParameterExpr(expr string, params map[string]model.Scalar) (bool, error) {
	e, err := Parse(expr)
	if err != nil {
		return false, err
	}
	return e.Eval(paramResolver(params)), nil
}

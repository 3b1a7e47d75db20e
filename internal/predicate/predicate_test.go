package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testforge/internal/model"
)

func TestParseAndEvalBasic(t *testing.T) {
	e, err := Parse("a and not b")
	require.NoError(t, err)
	assert.True(t, e.Eval(setResolver{"a": true}))
	assert.False(t, e.Eval(setResolver{"a": true, "b": true}))
}

func TestParseOrParens(t *testing.T) {
	e, err := Parse("(a or b) and not c")
	require.NoError(t, err)
	assert.True(t, e.Eval(setResolver{"b": true}))
	assert.False(t, e.Eval(setResolver{"b": true, "c": true}))
}

func TestParameterComparison(t *testing.T) {
	ok, err := EvalParameterExpr(`cpus>2 and a!="baz"`, map[string]model.Scalar{
		"cpus": int64(4),
		"a":    "qux",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalParameterExpr(`cpus>2 and a!="baz"`, map[string]model.Scalar{
		"cpus": int64(4),
		"a":    "baz",
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParameterUnbound(t *testing.T) {
	ok, err := EvalParameterExpr(`!missing`, map[string]model.Scalar{"present": int64(1)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalParameterExpr(`!present`, map[string]model.Scalar{"present": int64(1)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluatePredicateConjunction(t *testing.T) {
	p := &model.Predicate{Testname: "foo", Options: "dbg or opt", Parameters: "n>=2"}

	ok, err := Evaluate(p, Input{
		Testname:   "foo",
		Options:    map[string]bool{"opt": true},
		Parameters: map[string]model.Scalar{"n": int64(3)},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate(p, Input{
		Testname:   "bar",
		Options:    map[string]bool{"opt": true},
		Parameters: map[string]model.Scalar{"n": int64(3)},
	})
	require.NoError(t, err)
	assert.False(t, ok, "wrong testname must fail the predicate")
}

func TestEvaluateNilOrZeroPredicate(t *testing.T) {
	ok, err := Evaluate(nil, Input{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate(&model.Predicate{}, Input{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeywordExpr(t *testing.T) {
	ok, err := EvalKeywordExpr("fast and not flaky", map[string]bool{"fast": true})
	require.NoError(t, err)
	assert.True(t, ok)
}

package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"testforge/internal/model"
)

func TestSummaryLineOmitsZeroCounts(t *testing.T) {
	counts := map[model.Status]int{model.StatusSuccess: 3, model.StatusFail: 1}
	line := SummaryLine(counts)
	assert.Contains(t, line, "3 SUCCESS")
	assert.Contains(t, line, "1 FAIL")
	assert.NotContains(t, line, "DIFF")
}

func TestExitCodeBitfield(t *testing.T) {
	cases := []*model.TestCase{
		{Status: model.StatusDiff},
		{Status: model.StatusFail},
		{Status: model.StatusSuccess},
	}
	assert.Equal(t, 3, ExitCode(cases))
}

func TestExitCodeZeroWhenAllSuccess(t *testing.T) {
	cases := []*model.TestCase{{Status: model.StatusSuccess}, {Status: model.StatusSuccess}}
	assert.Equal(t, 0, ExitCode(cases))
}

func TestExitCodeIgnoresMasked(t *testing.T) {
	cases := []*model.TestCase{{Status: model.StatusFail, Masked: true}}
	assert.Equal(t, 0, ExitCode(cases))
}

func TestStatusTableRenders(t *testing.T) {
	var buf bytes.Buffer
	StatusTable(&buf, []*model.TestCase{{ID: "a", DisplayName: "a", Status: model.StatusSuccess}})
	assert.Contains(t, buf.String(), "a")
}

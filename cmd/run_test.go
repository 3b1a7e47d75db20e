package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testforge/internal/model"
	"testforge/internal/plugin"
)

type echoParser struct{}

func (echoParser) Matches(path string) bool { return filepath.Base(path) == "case.echo" }

func (echoParser) Parse(root, relative string) ([]model.DraftSpec, error) {
	return []model.DraftSpec{{
		FileRoot: root,
		FilePath: relative,
		Family:   "echo",
		ParameterSets: []model.ParameterSet{
			{Names: []string{"n"}, Rows: [][]model.Scalar{{int64(1)}, {int64(2)}}},
		},
		Overrides: []model.AttributeOverride{{Key: "override_script", Value: "true"}},
	}}, nil
}

func TestRunEngineSchedulesDiscoveredCasesToSuccess(t *testing.T) {
	plugin.RegisterParser(echoParser{})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "case.echo"), []byte("placeholder"), 0o644))

	var out bytes.Buffer
	code, err := runEngine(runOptions{WorkTree: dir, Quiet: true, Workers: 2}, &out)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "SUCCESS")
}

func TestRunEngineBatchModeSubmitsAndReportsSuccess(t *testing.T) {
	plugin.RegisterParser(echoParser{})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "case.echo"), []byte("placeholder"), 0o644))

	var out bytes.Buffer
	code, err := runEngine(runOptions{WorkTree: dir, Quiet: true, Batch: "atomic"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "SUCCESS")
}

func TestRunEngineKeywordFilterMasksNonMatching(t *testing.T) {
	plugin.RegisterParser(echoParser{})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "case.echo"), []byte("placeholder"), 0o644))

	var out bytes.Buffer
	code, err := runEngine(runOptions{WorkTree: dir, Quiet: true, Keyword: "n=1"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

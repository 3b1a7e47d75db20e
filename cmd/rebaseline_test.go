package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testforge/internal/catalog"
	"testforge/internal/model"
)

func TestRunRebaselineListsOnlyDiffCases(t *testing.T) {
	dir := t.TempDir()
	idx := catalog.Index{Entries: []catalog.IndexEntry{
		{ID: "a", DisplayName: "case-a", Status: model.StatusSuccess.String()},
		{ID: "b", DisplayName: "case-b", Status: model.StatusDiff.String()},
	}}
	require.NoError(t, catalog.WriteIndex(dir, idx))

	var out bytes.Buffer
	require.NoError(t, runRebaseline(dir, &out))
	assert.Contains(t, out.String(), "case-b")
	assert.NotContains(t, out.String(), "case-a")
}

func TestRunRebaselineReportsNoneWhenClean(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, catalog.WriteIndex(dir, catalog.Index{Entries: []catalog.IndexEntry{
		{ID: "a", DisplayName: "case-a", Status: model.StatusSuccess.String()},
	}}))

	var out bytes.Buffer
	require.NoError(t, runRebaseline(dir, &out))
	assert.Contains(t, out.String(), "no DIFF cases")
}

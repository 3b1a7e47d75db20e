package plugin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testforge/internal/model"
)

type fakeParser struct{ suffix string }

func (f fakeParser) Matches(path string) bool { return len(path) > len(f.suffix) && path[len(path)-len(f.suffix):] == f.suffix }
func (f fakeParser) Parse(root, relative string) ([]model.DraftSpec, error) {
	return []model.DraftSpec{{FileRoot: root, FilePath: relative}}, nil
}

func TestParserForMatchesRegisteredParser(t *testing.T) {
	RegisterParser(fakeParser{suffix: ".vvt"})
	p := ParserFor("suite/test_foo.vvt")
	require.NotNil(t, p)
	specs, err := p.Parse("suite", "test_foo.vvt")
	require.NoError(t, err)
	assert.Len(t, specs, 1)
}

func TestBackendLookupUnknown(t *testing.T) {
	_, err := Backend("does-not-exist")
	assert.Error(t, err)
}

func TestLocalBackendSubmitAndPoll(t *testing.T) {
	b := NewLocalBackend()
	job, err := b.Submit(SubmitRequest{Name: "x", Commands: []string{"true"}})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, done, _ := job.Poll()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	rc, done, _ := job.Poll()
	assert.True(t, done)
	assert.Equal(t, 0, rc)
}

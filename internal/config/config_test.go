package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	ctx, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, ctx.MaxWorkers)
	assert.Equal(t, 64, ctx.DiffExitCode)
}

func TestLoadFlagOverridesWinOverDefaults(t *testing.T) {
	ctx, err := Load("", map[string]any{"max_workers": 16})
	require.NoError(t, err)
	assert.Equal(t, 16, ctx.MaxWorkers)
}

func TestLoadUniformResourcePoolShorthand(t *testing.T) {
	path := writeConfigFile(t, "nodes: 2\ncpus_per_node: 4\ngpus_per_node: 1\n")
	ctx, err := Load(path, nil)
	require.NoError(t, err)
	assert.Len(t, ctx.ResourcePool.Items["cpus"], 2)
	assert.Equal(t, 4, ctx.ResourcePool.Items["cpus"][0].Slots)
}

func TestLoadExplicitResourcePool(t *testing.T) {
	path := writeConfigFile(t, `
resource_pool:
  cpus:
    - id: "0"
      slots: 8
`)
	ctx, err := Load(path, nil)
	require.NoError(t, err)
	require.Len(t, ctx.ResourcePool.Items["cpus"], 1)
	assert.Equal(t, 8, ctx.ResourcePool.Items["cpus"][0].Slots)
}

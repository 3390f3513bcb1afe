package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/flume/pkg/api"
)

const sampleProfile = `
defaults:
  errorStrategy: ignore
processes:
  align:
    executor: sge
    cache: deep
    storeDir: /data/store
    validExitStatus: [0, 2]
  summarize:
    cache: false
    echo: true
`

func TestParse_Overrides(t *testing.T) {
	p, err := Parse([]byte(sampleProfile))
	require.NoError(t, err)

	def := &api.ProcessDefinition{Name: "align", Script: "x"}
	p.Apply(def)

	require.Equal(t, api.CacheDeep, def.Directives.Cache)
	require.Equal(t, "sge", def.Directives.Executor)
	require.Equal(t, "/data/store", def.Directives.StoreDir)
	require.Equal(t, []int{0, 2}, def.Directives.ValidExitStatus)
	// From the defaults section.
	require.Equal(t, api.StrategyIgnore, def.Directives.ErrorStrategy)
}

func TestParse_BooleanCache(t *testing.T) {
	p, err := Parse([]byte(sampleProfile))
	require.NoError(t, err)

	def := &api.ProcessDefinition{Name: "summarize", Script: "x"}
	p.Apply(def)

	require.Equal(t, api.CacheOff, def.Directives.Cache)
	require.True(t, def.Directives.Echo)
}

func TestApply_UntouchedProcessKeepsDirectives(t *testing.T) {
	p, err := Parse([]byte(sampleProfile))
	require.NoError(t, err)

	def := &api.ProcessDefinition{
		Name:       "other",
		Script:     "x",
		Directives: api.Directives{Executor: "aws-batch"},
	}
	p.Apply(def)

	// Only the defaults section applies.
	require.Equal(t, "aws-batch", def.Directives.Executor)
	require.Equal(t, api.StrategyIgnore, def.Directives.ErrorStrategy)
	require.Equal(t, api.CacheMode(""), def.Directives.Cache)
}

func TestParse_InvalidCacheValue(t *testing.T) {
	_, err := Parse([]byte("processes:\n  p:\n    cache: sometimes\n"))
	require.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleProfile), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, p.Processes, "align")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "revq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
plain: false
aliases:
  unstable: "draft() and not obsolete()"
  byauthor($1): "author($1)"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Plain)
	assert.Equal(t, "author($1)", cfg.Aliases["byauthor($1)"])
	assert.Len(t, cfg.Aliases, 2)
}

func TestLoad_Missing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.False(t, cfg.Plain)
	assert.Empty(t, cfg.Aliases)
	assert.Nil(t, cfg.AliasTable(false))
}

func TestLoad_Malformed(t *testing.T) {
	path := writeConfig(t, "aliases: [not, a, map]")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestAliasTable_PlainMode(t *testing.T) {
	path := writeConfig(t, `
plain: true
aliases:
  unstable: "draft() and not obsolete()"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Nil(t, cfg.AliasTable(false), "plain mode suppresses aliases")

	table := cfg.AliasTable(true)
	require.NotNil(t, table, "forceAliases re-enables aliases")
	require.NotNil(t, table.Get("unstable"))
	assert.Empty(t, table.Warnings)
}

func TestAliasTable_BadDeclaration(t *testing.T) {
	path := writeConfig(t, `
aliases:
  "bad name!": "0:1"
  good: "0:1"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	table := cfg.AliasTable(false)
	require.NotNil(t, table)
	require.NotNil(t, table.Get("good"))
	assert.Nil(t, table.Get("bad name!"))
	assert.NotEmpty(t, table.Warnings)
}

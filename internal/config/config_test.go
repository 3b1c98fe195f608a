package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultPageSize, cfg.Storage.PageSize)
	require.Equal(t, DefaultPageCount, cfg.Storage.PageCount)
	require.Equal(t, DefaultPoolSize, cfg.Storage.PoolSize)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ivmdb.yaml")
	yaml := []byte("storage:\n  page_size: 4096\n  pool_size: 32\nquery:\n  kind: equijoin\n  tables:\n    - name: R\n      order1: 0\n      order2: 1\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4096, cfg.Storage.PageSize)
	require.Equal(t, 32, cfg.Storage.PoolSize)
	require.Equal(t, DefaultPageCount, cfg.Storage.PageCount, "fields absent from the file keep their default")
	require.Equal(t, "equijoin", cfg.Query.Kind)
	require.Equal(t, []TableSpec{{Name: "R", Order1: 0, Order2: 1}}, cfg.Query.Tables)
}

func TestDefault_HasNoTables(t *testing.T) {
	cfg := Default()
	require.Empty(t, cfg.Query.Tables)
}

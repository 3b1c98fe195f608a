// Package config loads the three constants that govern the engine's
// storage layout: page size, page count, and buffer pool size. They are
// exposed as an overridable-with-defaults YAML document rather than true
// compile-time constants, using the same mapstructure-tagged struct plus
// viper.New()/SetConfigType("yaml") idiom this codebase uses elsewhere.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Defaults match a typical production deployment's values.
const (
	DefaultPageSize  = 8192
	DefaultPageCount = 300000
	DefaultPoolSize  = 1000
)

// Config is the engine's storage configuration.
type Config struct {
	Storage struct {
		PageSize  int    `mapstructure:"page_size"`
		PageCount int    `mapstructure:"page_count"`
		PoolSize  int    `mapstructure:"pool_size"`
		File      string `mapstructure:"file"`
	} `mapstructure:"storage"`
	Query struct {
		Kind   string      `mapstructure:"kind"` // "count" or "equijoin"
		Tables []TableSpec `mapstructure:"tables"`
	} `mapstructure:"query"`
}

// TableSpec names one relation and the two global columns it occupies.
type TableSpec struct {
	Name   string `mapstructure:"name"`
	Order1 int    `mapstructure:"order1"`
	Order2 int    `mapstructure:"order2"`
}

// Default returns a Config populated entirely from the built-in defaults, with no
// tables registered.
func Default() *Config {
	cfg := &Config{}
	cfg.Storage.PageSize = DefaultPageSize
	cfg.Storage.PageCount = DefaultPageCount
	cfg.Storage.PoolSize = DefaultPoolSize
	cfg.Storage.File = "ivmdb.pages"
	cfg.Query.Kind = "count"
	return cfg
}

// Load reads a YAML document at path over top of Default()'s values. A
// missing path returns the defaults unchanged, since the three governing
// constants are meant to be overridable, not mandatory.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("storage.page_size", cfg.Storage.PageSize)
	v.SetDefault("storage.page_count", cfg.Storage.PageCount)
	v.SetDefault("storage.pool_size", cfg.Storage.PoolSize)
	v.SetDefault("storage.file", cfg.Storage.File)
	v.SetDefault("query.kind", cfg.Query.Kind)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return cfg, nil
}

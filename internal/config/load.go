package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// SetDefaults registers the default value of every run setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("run.name", "recon")
	v.SetDefault("run.category", "default")
	v.SetDefault("run.stage1_file", "stage1_meta.json")
	v.SetDefault("run.stage1_left_file", "stage1_meta_left.json")
	v.SetDefault("run.stage1_right_file", "stage1_meta_right.json")
	v.SetDefault("run.stage2_file", "stage2_column.json")
	v.SetDefault("run.stage3_file", "stage3_hash.json")
	v.SetDefault("run.left_workers", 3)
	v.SetDefault("run.right_workers", 5)
	v.SetDefault("run.atol", 1e-6)
	v.SetDefault("run.rtol", 1e-6)
	v.SetDefault("run.key_columns", 3)
	v.SetDefault("run.top_k", 10)
	v.SetDefault("run.sample_size", 100)
	v.SetDefault("run.digest", "sha256")
	v.SetDefault("run.number_decimals", 3)
	v.SetDefault("run.debug_rows", 0)
	v.SetDefault("run.exclude_mismatched_dates", false)

	v.SetDefault("left.dialect", string(Postgres))
	v.SetDefault("left.port", 5432)
	v.SetDefault("left.sslmode", "disable")
	v.SetDefault("left.max_open_conns", 4)
	v.SetDefault("right.dialect", string(Doris))
	v.SetDefault("right.port", 9030)
	v.SetDefault("right.max_open_conns", 4)

	v.SetDefault("store.base_url", "file:///tmp/recond")
}

// New returns a viper instance with defaults and RECOND_ environment overrides.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("RECOND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// LoadFromFile reads and validates a TOML configuration file.
func LoadFromFile(path string) (*Config, error) {
	v := New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	return LoadWithViper(v)
}

// LoadWithViper decodes and validates the configuration held by v.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

package config

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dialect"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// Side identifies one of the two reconciled backends.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// Dialect re-exports dialect.Dialect so configuration callers need one import.
type Dialect = dialect.Dialect

const (
	Postgres = dialect.Postgres
	Doris    = dialect.Doris
)

// Config is the on-disk configuration.
type Config struct {
	Run           RunConfig     `mapstructure:"run"`
	Left          Backend       `mapstructure:"left"`
	Right         Backend       `mapstructure:"right"`
	Store         StoreConfig   `mapstructure:"store"`
	CrosswalkFile string        `mapstructure:"crosswalk_file"`
	Tables        []TableConfig `mapstructure:"tables"`
}

type RunConfig struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	Category string `mapstructure:"category"`

	Stage1File      string `mapstructure:"stage1_file"`
	Stage1LeftFile  string `mapstructure:"stage1_left_file"`
	Stage1RightFile string `mapstructure:"stage1_right_file"`
	Stage2File      string `mapstructure:"stage2_file"`
	Stage3File      string `mapstructure:"stage3_file"`

	LeftWorkers  int `mapstructure:"left_workers"`
	RightWorkers int `mapstructure:"right_workers"`

	Atol       float64 `mapstructure:"atol"`
	Rtol       float64 `mapstructure:"rtol"`
	KeyColumns int     `mapstructure:"key_columns"`
	TopK       int     `mapstructure:"top_k"`
	SampleSize int     `mapstructure:"sample_size"`

	Digest            string `mapstructure:"digest"`
	NumberDecimals    int    `mapstructure:"number_decimals"`
	DebugRows         int    `mapstructure:"debug_rows"`
	ExcludeMismatched bool   `mapstructure:"exclude_mismatched_dates"`
}

// Backend describes how to reach one side.
type Backend struct {
	Dialect  Dialect `mapstructure:"dialect"`
	Host     string  `mapstructure:"host"`
	Port     int     `mapstructure:"port"`
	User     string  `mapstructure:"user"`
	Password string  `mapstructure:"password"`
	Database string  `mapstructure:"database"`
	SSLMode  string  `mapstructure:"sslmode"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
}

type StoreConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// TableConfig is one reconciled table pair.
type TableConfig struct {
	Name      string    `mapstructure:"name"`
	Enabled   *bool     `mapstructure:"enabled"`
	Partition string    `mapstructure:"partition"`
	Crosswalk string    `mapstructure:"crosswalk"`
	StartDate string    `mapstructure:"start_date"`
	EndDate   string    `mapstructure:"end_date"`
	Left      TableSide `mapstructure:"left"`
	Right     TableSide `mapstructure:"right"`
}

type TableSide struct {
	Schema     string `mapstructure:"schema"`
	Table      string `mapstructure:"table"`
	DateColumn string `mapstructure:"date_column"`
	DateKind   string `mapstructure:"date_kind"`
	DateFormat string `mapstructure:"date_format"`
	Where      string `mapstructure:"where"`
}

// IsEnabled reports whether the table takes part in the run. Tables are
// enabled unless they say otherwise.
func (t TableConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Side returns the per-side settings of the table.
func (t TableConfig) Side(s Side) TableSide {
	if s == Right {
		return t.Right
	}
	return t.Left
}

// CrosswalkName is the column map the table uses, defaulting to its name.
func (t TableConfig) CrosswalkName() string {
	if name := strings.TrimSpace(t.Crosswalk); name != "" {
		return strings.ToLower(name)
	}
	return strings.ToLower(t.Name)
}

// Backend returns the backend settings of a side.
func (c *Config) Backend(s Side) Backend {
	if s == Right {
		return c.Right
	}
	return c.Left
}

// EnabledTables returns the enabled tables in configuration order.
func (c *Config) EnabledTables() []TableConfig {
	out := make([]TableConfig, 0, len(c.Tables))
	for _, t := range c.Tables {
		if t.IsEnabled() {
			out = append(out, t)
		}
	}
	return out
}

// Run is the immutable per-run value threaded through every stage.
type Run struct {
	ID       string
	Name     string
	Category string

	Files StageFiles

	LeftWorkers  int
	RightWorkers int

	Atol       float64
	Rtol       float64
	KeyColumns int
	TopK       int
	SampleSize int

	Digest            string
	NumberDecimals    int
	DebugRows         int
	ExcludeMismatched bool

	LeftDialect  Dialect
	RightDialect Dialect

	Tables []TableConfig
}

type StageFiles struct {
	Stage1      string
	Stage1Left  string
	Stage1Right string
	Stage2      string
	Stage3      string
}

// Dialect returns the dialect spoken by a side.
func (r Run) Dialect(s Side) Dialect {
	if s == Right {
		return r.RightDialect
	}
	return r.LeftDialect
}

// Table looks up a configured table by name.
func (r Run) Table(name string) (TableConfig, bool) {
	for _, t := range r.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return TableConfig{}, false
}

// NewRun freezes the configuration into a Run. An empty run id is replaced
// with a fresh UUID unless runID overrides it.
func (c *Config) NewRun(runID string) Run {
	id := strings.TrimSpace(runID)
	if id == "" {
		id = strings.TrimSpace(c.Run.ID)
	}
	if id == "" {
		id = uuid.NewString()
	}
	rc := c.Run
	return Run{
		ID:       id,
		Name:     rc.Name,
		Category: rc.Category,
		Files: StageFiles{
			Stage1:      rc.Stage1File,
			Stage1Left:  rc.Stage1LeftFile,
			Stage1Right: rc.Stage1RightFile,
			Stage2:      rc.Stage2File,
			Stage3:      rc.Stage3File,
		},
		LeftWorkers:       rc.LeftWorkers,
		RightWorkers:      rc.RightWorkers,
		Atol:              rc.Atol,
		Rtol:              rc.Rtol,
		KeyColumns:        rc.KeyColumns,
		TopK:              rc.TopK,
		SampleSize:        rc.SampleSize,
		Digest:            strings.ToLower(rc.Digest),
		NumberDecimals:    rc.NumberDecimals,
		DebugRows:         rc.DebugRows,
		ExcludeMismatched: rc.ExcludeMismatched,
		LeftDialect:       c.Left.Dialect,
		RightDialect:      c.Right.Dialect,
		Tables:            c.EnabledTables(),
	}
}

var partitions = map[string]bool{"day": true, "week": true, "month": true, "year": true, "whole": true}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	for _, b := range []struct {
		key string
		be  Backend
	}{{"left", c.Left}, {"right", c.Right}} {
		switch b.be.Dialect {
		case Postgres, Doris:
		default:
			return errors.WithHint(
				errors.Newf("%s.dialect %q is invalid", b.key, b.be.Dialect),
				"use \"postgres\" or \"doris\"",
			)
		}
	}
	if c.Left.Dialect == c.Right.Dialect {
		// Backends are keyed by dialect, so one would shadow the other.
		return errors.WithHint(
			errors.Newf("left.dialect and right.dialect are both %q", c.Left.Dialect),
			"reconcile one postgres backend against one doris backend",
		)
	}
	switch strings.ToLower(c.Run.Digest) {
	case "md5", "sha256":
	default:
		return errors.WithHint(errors.Newf("run.digest %q is invalid", c.Run.Digest), "use \"md5\" or \"sha256\"")
	}
	if c.Run.LeftWorkers <= 0 || c.Run.RightWorkers <= 0 {
		return errors.New("run.left_workers and run.right_workers must be positive")
	}
	if c.Run.KeyColumns <= 0 {
		return errors.New("run.key_columns must be positive")
	}
	if c.Run.NumberDecimals < 0 || c.Run.NumberDecimals > 18 {
		return errors.New("run.number_decimals must be in 0..18")
	}
	if strings.TrimSpace(c.Store.BaseURL) == "" {
		return errors.WithHint(errors.New("store.base_url is required"), "for example file:///var/lib/recond or s3://bucket/recond")
	}
	seen := make(map[string]bool, len(c.Tables))
	for i, t := range c.Tables {
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" {
			return errors.Newf("tables[%d].name is required", i)
		}
		if seen[name] {
			return errors.Newf("tables[%d].name %q is duplicated", i, t.Name)
		}
		seen[name] = true
		if !partitions[strings.ToLower(t.Partition)] {
			return errors.WithHint(
				errors.Newf("tables[%d].partition %q is invalid", i, t.Partition),
				"use day, week, month, year or whole",
			)
		}
		for _, side := range []struct {
			key string
			ts  TableSide
		}{{"left", t.Left}, {"right", t.Right}} {
			if strings.TrimSpace(side.ts.Table) == "" {
				return errors.Newf("tables[%d].%s.table is required", i, side.key)
			}
			switch strings.ToLower(side.ts.DateKind) {
			case "", "date", "string":
			default:
				return errors.Newf("tables[%d].%s.date_kind %q is invalid", i, side.key, side.ts.DateKind)
			}
		}
	}
	return nil
}

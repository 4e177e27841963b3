// Package config loads the lookupd configuration file.
//
// The file is a versioned JSON envelope:
//
//	{
//	  "version": 1,
//	  "config": {
//	    "tables": [{"name": "hosts", "file": "hosts.json"}],
//	    "reload": {"watch": true, "minInterval": "5s", "cron": "0 * * * *"},
//	    "rules":  [{"field": "ip", "table": "hosts", "target": "host"}],
//	    "workers": 4
//	  }
//	}
//
// Relative table paths are resolved against the directory of the
// configuration file. Config only validates shape and references; table
// contents are validated when the tables are loaded.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron/v2"

	"lookupd/internal/lookup"
)

// CurrentVersion is the envelope version this build reads.
const CurrentVersion = 1

// envelope is the versioned on-disk format.
type envelope struct {
	Version int     `json:"version"`
	Config  *Config `json:"config"`
}

// Config is the desired set of tables, reload triggers and enrichment rules.
type Config struct {
	Tables  []TableConfig `json:"tables"`
	Reload  ReloadConfig  `json:"reload"`
	Rules   []RuleConfig  `json:"rules,omitempty"`
	Workers int           `json:"workers,omitempty"`
}

// TableConfig declares one lookup table. Both fields are required.
type TableConfig struct {
	Name string `json:"name"`
	File string `json:"file"`
}

// ReloadConfig selects the triggers that reload tables in addition to
// SIGHUP, which is always honoured.
type ReloadConfig struct {
	// Watch reloads a table when its file changes.
	Watch bool `json:"watch,omitempty"`

	// MinInterval limits watch-triggered reloads per table.
	MinInterval Duration `json:"minInterval,omitempty"`

	// Cron reloads all tables on a schedule. 5- or 6-field syntax.
	Cron string `json:"cron,omitempty"`
}

// RuleConfig enriches a message: the value of Field is looked up in Table
// and the result stored in Target. Target defaults to "<field>_<table>".
type RuleConfig struct {
	Field  string `json:"field"`
	Table  string `json:"table"`
	Target string `json:"target,omitempty"`
}

// TargetField returns the attribute the rule writes.
func (r RuleConfig) TargetField() string {
	if r.Target != "" {
		return r.Target
	}
	return r.Field + "_" + r.Table
}

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Load reads, resolves and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration envelope. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if env.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (want %d)", env.Version, CurrentVersion)
	}
	if env.Config == nil {
		return nil, errors.New(`missing "config" object`)
	}
	return env.Config, nil
}

// resolve makes relative table paths relative to dir.
func (c *Config) resolve(dir string) {
	for i, t := range c.Tables {
		if t.File != "" && !filepath.IsAbs(t.File) {
			c.Tables[i].File = filepath.Join(dir, t.File)
		}
	}
}

// Validate reports every problem found, each wrapping lookup.ErrConfig.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{lookup.ErrConfig}, args...)...))
	}

	names := make(map[string]bool, len(c.Tables))
	for i, t := range c.Tables {
		if t.Name == "" {
			fail("table %d: missing required parameter %q", i, "name")
		}
		if t.File == "" {
			fail("table %d (%s): missing required parameter %q", i, t.Name, "file")
		}
		if t.Name != "" && names[t.Name] {
			fail("table %q defined more than once", t.Name)
		}
		names[t.Name] = true
	}

	targets := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r.Field == "" {
			fail("rule %d: missing field", i)
		}
		if !names[r.Table] || r.Table == "" {
			fail("rule %d: unknown table %q", i, r.Table)
		}
		if tf := r.TargetField(); targets[tf] {
			fail("rule %d: target %q written by more than one rule", i, tf)
		} else {
			targets[tf] = true
		}
	}

	if c.Reload.Cron != "" {
		cr := gocron.NewDefaultCron(true)
		if err := cr.IsValid(c.Reload.Cron, time.UTC, time.Now()); err != nil {
			fail("reload: invalid cron expression %q: %v", c.Reload.Cron, err)
		}
	}
	if c.Reload.MinInterval < 0 {
		fail("reload: minInterval must not be negative")
	}
	if c.Workers < 0 {
		fail("workers must not be negative")
	}
	return errors.Join(errs...)
}

// LookupTables returns the table declarations in registry form.
func (c *Config) LookupTables() []lookup.TableConfig {
	out := make([]lookup.TableConfig, len(c.Tables))
	for i, t := range c.Tables {
		out[i] = lookup.TableConfig{Name: t.Name, File: t.File}
	}
	return out
}

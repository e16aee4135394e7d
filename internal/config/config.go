// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config turns viper settings into an immutable, versioned
// configuration snapshot. Jobs receive a snapshot at start and never
// re-read configuration while running.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/batchblast/internal/secrets"
	"github.com/pdiddy/batchblast/pkg/types"
)

// Defaults mirror the settings the service was first run with.
const (
	DefaultBaseURL        = "https://blast.ncbi.nlm.nih.gov/Blast.cgi"
	DefaultProgram        = "blastn"
	DefaultDatabase       = "nt"
	DefaultFilter         = "mL"
	DefaultHitlistSize    = 1000
	DefaultPollInterval   = 4 * time.Second
	DefaultSubmitAttempts = 10
	DefaultTimeout        = 120 * time.Second
	DefaultUserAgent      = "batchblast/0.1"
	DefaultKeyword        = "bos taurus"
	DefaultSampleSize     = 5
	DefaultLabel          = "sus scrofa"
	DefaultRootDir        = "blast_res"
	DefaultMaxConcurrent  = 4
)

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("blast.base_url", DefaultBaseURL)
	v.SetDefault("blast.program", DefaultProgram)
	v.SetDefault("blast.database", DefaultDatabase)
	v.SetDefault("blast.filter", DefaultFilter)
	v.SetDefault("blast.hitlist_size", DefaultHitlistSize)
	v.SetDefault("blast.poll_interval", DefaultPollInterval)
	v.SetDefault("blast.submit_attempts", DefaultSubmitAttempts)
	v.SetDefault("blast.timeout", DefaultTimeout)
	v.SetDefault("blast.user_agent", DefaultUserAgent)
	v.SetDefault("blast.log_dir", "")
	v.SetDefault("blast.email", "")
	v.SetDefault("blast.tool", "")
	v.SetDefault("classify.non_anomaly_keywords", []string{DefaultKeyword})
	v.SetDefault("classify.normal_sample_size", DefaultSampleSize)
	v.SetDefault("report.label", DefaultLabel)
	v.SetDefault("jobs.root_dir", DefaultRootDir)
	v.SetDefault("jobs.max_concurrent", DefaultMaxConcurrent)
}

// Snapshot is one immutable reading of the configuration. Version grows
// by one on every explicit reload.
type Snapshot struct {
	Version int
	Config  types.Config
}

// FromViper reads every key from v into a Config and validates it.
func FromViper(v *viper.Viper) (types.Config, error) {
	cfg := types.Config{
		Blast: types.BlastConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   v.GetDuration("blast.timeout"),
				UserAgent: v.GetString("blast.user_agent"),
			},
			BaseURL:        v.GetString("blast.base_url"),
			Program:        v.GetString("blast.program"),
			Database:       v.GetString("blast.database"),
			Filter:         v.GetString("blast.filter"),
			HitlistSize:    v.GetInt("blast.hitlist_size"),
			PollInterval:   v.GetDuration("blast.poll_interval"),
			SubmitAttempts: v.GetInt("blast.submit_attempts"),
			LogDir:         v.GetString("blast.log_dir"),
			Email:          v.GetString("blast.email"),
			Tool:           v.GetString("blast.tool"),
		},
		Classify: types.ClassifyConfig{
			NonAnomalyKeywords: keywords(v.Get("classify.non_anomaly_keywords")),
			NormalSampleSize:   v.GetInt("classify.normal_sample_size"),
		},
		Report: types.ReportConfig{
			Label: v.GetString("report.label"),
		},
		Jobs: types.JobsConfig{
			RootDir:       v.GetString("jobs.root_dir"),
			MaxConcurrent: v.GetInt("jobs.max_concurrent"),
		},
	}
	if err := Validate(cfg); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

// keywords trims entries and drops blanks. Environment overrides arrive
// as one comma-separated string; list entries are kept whole.
func keywords(value any) []string {
	var raw []string
	switch v := value.(type) {
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []any:
		for _, e := range v {
			raw = append(raw, fmt.Sprint(e))
		}
	}

	var out []string
	for _, k := range raw {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Validate rejects configurations a job cannot run with.
func Validate(cfg types.Config) error {
	switch {
	case cfg.Blast.Program == "":
		return fmt.Errorf("blast.program is required")
	case cfg.Blast.Database == "":
		return fmt.Errorf("blast.database is required")
	case cfg.Blast.HitlistSize <= 0:
		return fmt.Errorf("blast.hitlist_size must be positive, got %d", cfg.Blast.HitlistSize)
	case cfg.Blast.PollInterval <= 0:
		return fmt.Errorf("blast.poll_interval must be positive, got %s", cfg.Blast.PollInterval)
	case cfg.Blast.SubmitAttempts <= 0:
		return fmt.Errorf("blast.submit_attempts must be positive, got %d", cfg.Blast.SubmitAttempts)
	case cfg.Classify.NormalSampleSize < 0:
		return fmt.Errorf("classify.normal_sample_size must not be negative")
	case cfg.Jobs.RootDir == "":
		return fmt.Errorf("jobs.root_dir is required")
	case cfg.Jobs.MaxConcurrent <= 0:
		return fmt.Errorf("jobs.max_concurrent must be positive, got %d", cfg.Jobs.MaxConcurrent)
	}
	return nil
}

// ApplyIdentity fills NCBI caller identification from secrets when the
// configuration leaves it empty.
func ApplyIdentity(cfg types.Config, id secrets.Identity) types.Config {
	if cfg.Blast.Email == "" {
		cfg.Blast.Email = id.Email
	}
	if cfg.Blast.Tool == "" {
		cfg.Blast.Tool = id.Tool
	}
	return cfg
}

// Loader hands out the current snapshot and reloads only when asked.
type Loader struct {
	v *viper.Viper

	mu      sync.RWMutex
	current Snapshot
}

// NewLoader reads the first snapshot (version 1) from v.
func NewLoader(v *viper.Viper) (*Loader, error) {
	cfg, err := FromViper(v)
	if err != nil {
		return nil, err
	}
	return &Loader{v: v, current: Snapshot{Version: 1, Config: cfg}}, nil
}

// Current returns the snapshot in effect.
func (l *Loader) Current() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Reload re-reads the config file (when one is in use) and publishes a new
// snapshot with the next version. On error the current snapshot is kept.
// Jobs already running keep the snapshot they started with.
func (l *Loader) Reload() (Snapshot, error) {
	if l.v.ConfigFileUsed() != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return l.Current(), fmt.Errorf("reading config: %w", err)
		}
	}
	cfg, err := FromViper(l.v)
	if err != nil {
		return l.Current(), err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = Snapshot{Version: l.current.Version + 1, Config: cfg}
	return l.current, nil
}

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "batchblast/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// BlastConfig holds settings for submitting and polling remote BLAST jobs.
type BlastConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the BLAST URL API endpoint (Blast.cgi).
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Program selects the search program (e.g. "blastn").
	Program string `json:"program" yaml:"program"`

	// Database selects the target database (e.g. "nt").
	Database string `json:"database" yaml:"database"`

	// Filter is the low-complexity/content filter string (e.g. "mL").
	Filter string `json:"filter" yaml:"filter"`

	// HitlistSize bounds the hits, descriptions, and alignments returned per query (default 1000).
	HitlistSize int `json:"hitlist_size" yaml:"hitlist_size"`

	// PollInterval is the fixed wait between status checks (default 4s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// SubmitAttempts is how many times a non-200 submission is tried (default 10).
	SubmitAttempts int `json:"submit_attempts" yaml:"submit_attempts"`

	// LogDir receives the raw body of failed status checks, one file per request id.
	// Empty disables the side-channel log.
	LogDir string `json:"log_dir,omitempty" yaml:"log_dir,omitempty"`

	// Email and Tool identify the caller to NCBI. Both are optional.
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
	Tool  string `json:"tool,omitempty" yaml:"tool,omitempty"`
}

// ClassifyConfig holds settings for anomaly classification.
type ClassifyConfig struct {
	// NonAnomalyKeywords are matched case-insensitively against subject titles.
	// A record matching none of them is an anomaly.
	NonAnomalyKeywords []string `json:"non_anomaly_keywords" yaml:"non_anomaly_keywords"`

	// NormalSampleSize is how many normal records are sampled per dataset (default 5).
	NormalSampleSize int `json:"normal_sample_size" yaml:"normal_sample_size"`
}

// ReportConfig holds settings for generated reports.
type ReportConfig struct {
	// Label is the display label prefixed to report titles (e.g. "Sample").
	Label string `json:"label" yaml:"label"`
}

// JobsConfig holds settings for job bookkeeping.
type JobsConfig struct {
	// RootDir is the work root holding one directory per job and the job database.
	RootDir string `json:"root_dir" yaml:"root_dir"`

	// MaxConcurrent bounds the number of jobs running at once (default 4).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`
}

// Config groups all settings. A Config value is treated as immutable once
// a job starts.
type Config struct {
	Blast    BlastConfig    `json:"blast" yaml:"blast"`
	Classify ClassifyConfig `json:"classify" yaml:"classify"`
	Report   ReportConfig   `json:"report" yaml:"report"`
	Jobs     JobsConfig     `json:"jobs" yaml:"jobs"`
}

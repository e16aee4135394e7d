// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// JobState is the position of a job in the orchestration state machine.
type JobState string

const (
	StateSubmitting JobState = "submitting"
	StateWaiting    JobState = "waiting"
	StatePolling    JobState = "polling"
	StateParsing    JobState = "parsing"
	StateReporting  JobState = "reporting"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
)

// IsTerminal reports whether no further transitions can happen.
func (s JobState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job identifies one submission to the remote alignment service.
type Job struct {
	// ID is the local job identifier; it also names the work directory.
	ID string `json:"id" yaml:"id"`

	// RequestID is the remote request id (RID) assigned on submission.
	RequestID string `json:"request_id,omitempty" yaml:"request_id,omitempty"`

	// WorkDir is the job's private storage location.
	WorkDir string `json:"work_dir" yaml:"work_dir"`

	State JobState `json:"state" yaml:"state"`

	// RawInput is the original query text. It is persisted verbatim as
	// inputs.fasta, not in job metadata.
	RawInput string `json:"-" yaml:"-"`

	// Error is the failure kind for failed jobs. Internal detail lives in
	// the work directory's error.log.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// EventKind distinguishes regular progress from terminal failure events.
type EventKind string

const (
	EventInfo  EventKind = "info"
	EventError EventKind = "error"
)

// ProgressEvent is one human-readable status tuple: a headline followed by
// zero or more detail lines.
type ProgressEvent struct {
	JobID    string    `json:"job_id,omitempty"`
	Kind     EventKind `json:"kind"`
	Headline string    `json:"headline"`
	Details  []string  `json:"details,omitempty"`
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"errors"

	"github.com/pdiddy/batchblast/internal/blast"
	"github.com/pdiddy/batchblast/internal/normalize"
)

var (
	// ErrJobNotFound is returned for ids the registry or store never saw.
	ErrJobNotFound = errors.New("job not found")

	// ErrTooManyJobs is returned by TryStart when every slot is taken.
	ErrTooManyJobs = errors.New("too many concurrent jobs")
)

// FailureKind names the category of a failed job.
type FailureKind int

const (
	Unhandled FailureKind = iota
	SubmissionExhausted
	RemoteFailed
	ArchiveUnreadable
)

func (k FailureKind) String() string {
	switch k {
	case SubmissionExhausted:
		return "submission exhausted"
	case RemoteFailed:
		return "remote failed"
	case ArchiveUnreadable:
		return "archive unreadable"
	default:
		return "unhandled"
	}
}

// Failure is the error returned for a job that ended in the failed state.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// failureFor wraps err in a Failure whose kind follows the sentinel it
// carries.
func failureFor(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, blast.ErrSubmissionExhausted):
		return &Failure{Kind: SubmissionExhausted, Err: err}
	case errors.Is(err, blast.ErrRemoteFailed):
		return &Failure{Kind: RemoteFailed, Err: err}
	case errors.Is(err, normalize.ErrArchiveUnreadable):
		return &Failure{Kind: ArchiveUnreadable, Err: err}
	default:
		return &Failure{Kind: Unhandled, Err: err}
	}
}

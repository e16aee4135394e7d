// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jobs drives a query through submission, polling, normalization,
// classification, and reporting, one goroutine per job.
package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pdiddy/batchblast/internal/blast"
	"github.com/pdiddy/batchblast/internal/classify"
	"github.com/pdiddy/batchblast/internal/normalize"
	"github.com/pdiddy/batchblast/pkg/types"
)

// Client is the remote side of a job.
type Client interface {
	Submit(ctx context.Context, query string) (string, error)
	Poll(ctx context.Context, rid string) (blast.Status, []byte, error)
}

// Normalizer converts a ready payload into persisted datasets.
type Normalizer func(payload []byte, workDir string) (normalize.Result, error)

// Classifier labels every dataset of a job.
type Classifier interface {
	ClassifyAll(datasets []types.QueryDataset) []types.ClassifiedDataset
}

// Reporter renders a finished job.
type Reporter interface {
	Report(ctx context.Context, job *types.Job, datasets []types.QueryDataset, classified []types.ClassifiedDataset) error
}

// Recorder persists job state after every transition.
type Recorder interface {
	Save(ctx context.Context, job *types.Job) error
}

// Sink receives progress events. An error means the receiver is gone and
// the job should stop.
type Sink interface {
	Emit(ev types.ProgressEvent) error
}

// Progress headlines, in emission order.
const (
	HeadlineStarted    = "Job started"
	HeadlineRequestID  = "Request ID assigned"
	HeadlineWaiting    = "Waiting for BLAST result..."
	HeadlineRemoteDone = "Remote processing complete"
	HeadlineParsing    = "Parsing results..."
	HeadlineParsed     = "Parsing complete"
	HeadlineComplete   = "Job complete"
	HeadlineError      = "An error occurred"
)

// Runner executes jobs. Every field except Client, Normalize, and
// Classifier is optional.
type Runner struct {
	Client     Client
	Normalize  Normalizer
	Classifier Classifier
	Reporter   Reporter
	Recorder   Recorder

	// RootDir holds one work directory per job.
	RootDir string

	// PollInterval is the fixed sleep between status checks.
	PollInterval time.Duration

	// Warn receives non-fatal problems. Nil means os.Stderr.
	Warn io.Writer

	Now func() time.Time
}

// NewRunner wires a Runner from a configuration snapshot.
func NewRunner(cfg types.Config, recorder Recorder, reporter Reporter) *Runner {
	return &Runner{
		Client:       blast.NewClient(cfg.Blast),
		Normalize:    normalize.Normalize,
		Classifier:   classify.New(cfg.Classify),
		Reporter:     reporter,
		Recorder:     recorder,
		RootDir:      cfg.Jobs.RootDir,
		PollInterval: cfg.Blast.PollInterval,
	}
}

// Run carries one job from submission to a terminal state. The returned
// job is never nil. On failure the error is a *Failure, a single error
// event has been emitted, and the work directory holds error.log.
func (r *Runner) Run(ctx context.Context, jobID, rawInput string, sink Sink) (job *types.Job, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	now := r.now()
	j := &run{
		Runner: r,
		ctx:    ctx,
		cancel: cancel,
		sink:   sink,
		job: &types.Job{
			ID:        jobID,
			State:     types.StateSubmitting,
			RawInput:  rawInput,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	defer func() {
		if p := recover(); p != nil {
			job, err = j.job, j.fail(&Failure{Kind: Unhandled, Err: fmt.Errorf("panic: %v", p)}, nil)
		}
	}()

	if partial, err := j.execute(); err != nil {
		return j.job, j.fail(failureFor(err), partial)
	}
	return j.job, nil
}

// run is the state of one job execution.
type run struct {
	*Runner
	ctx    context.Context
	cancel context.CancelFunc
	sink   Sink

	job        *types.Job
	sinkClosed bool
}

// execute walks the state machine. On error it returns whatever remote
// payload was in hand so it can be logged.
func (j *run) execute() ([]byte, error) {
	j.emit(HeadlineStarted, "Job ID: "+j.job.ID)

	dir, err := Allocate(j.RootDir, j.job.ID)
	if err != nil {
		return nil, err
	}
	j.job.WorkDir = dir
	if err := WriteInput(dir, j.job.RawInput); err != nil {
		return nil, fmt.Errorf("writing %s: %w", InputFile, err)
	}
	j.record()

	rid, err := j.Client.Submit(j.ctx, j.job.RawInput)
	if err != nil {
		return nil, err
	}
	j.job.RequestID = rid
	j.transition(types.StateWaiting)
	j.emit(HeadlineRequestID,
		"Request ID: "+rid,
		"Job ID: "+j.job.ID,
		"Work directory: "+dir,
	)

	j.emit(HeadlineWaiting)
	j.transition(types.StatePolling)
	payload, err := j.poll(rid)
	if err != nil {
		return payload, err
	}

	j.emit(HeadlineRemoteDone)
	j.transition(types.StateParsing)
	j.emit(HeadlineParsing)

	result, err := j.Normalize(payload, dir)
	if err != nil {
		return payload, err
	}
	for _, s := range result.Skipped {
		j.warnf("job %s: skipped %s: %s", j.job.ID, s.Name, s.Reason)
	}
	classified := j.Classifier.ClassifyAll(result.Datasets)

	j.transition(types.StateReporting)
	j.emit(HeadlineParsed,
		fmt.Sprintf("Datasets: %d", len(result.Datasets)),
		fmt.Sprintf("Skipped entries: %d", len(result.Skipped)),
	)

	if j.Reporter != nil {
		if err := j.Reporter.Report(j.ctx, j.job, result.Datasets, classified); err != nil {
			return nil, fmt.Errorf("reporting: %w", err)
		}
	}

	j.transition(types.StateCompleted)
	j.emit(HeadlineComplete)
	return nil, nil
}

// poll checks status until the payload is ready, the remote side fails,
// or the context ends. A status check that cannot reach the service counts
// as a remote failure. There is no upper bound on the number of checks.
func (j *run) poll(rid string) ([]byte, error) {
	for {
		status, body, err := j.Client.Poll(j.ctx, rid)
		if err != nil {
			if j.ctx.Err() != nil {
				return body, err
			}
			return body, fmt.Errorf("%w: %w", blast.ErrRemoteFailed, err)
		}
		switch status {
		case blast.Ready:
			return body, nil
		case blast.Failed:
			return body, fmt.Errorf("%w: request %s", blast.ErrRemoteFailed, rid)
		}

		timer := time.NewTimer(j.PollInterval)
		select {
		case <-j.ctx.Done():
			timer.Stop()
			return nil, j.ctx.Err()
		case <-timer.C:
		}
	}
}

func (j *run) fail(f *Failure, partial []byte) *Failure {
	j.job.Error = f.Kind.String()
	j.transition(types.StateFailed)

	detail := "No work directory was created"
	if j.job.WorkDir != "" {
		if err := writeErrorLog(j.job.WorkDir, f, partial); err != nil {
			j.warnf("job %s: writing %s: %v", j.job.ID, ErrorLogFile, err)
		}
		detail = "See " + ErrorLogFile + " in " + j.job.WorkDir
	}
	j.emitKind(types.EventError, HeadlineError, detail)
	return f
}

func (j *run) transition(state types.JobState) {
	j.job.State = state
	j.record()
}

// record persists the job. Storage problems are reported but never fail
// the job.
func (j *run) record() {
	j.job.UpdatedAt = j.now()
	if j.job.WorkDir != "" {
		if err := WriteManifest(j.job); err != nil {
			j.warnf("job %s: %v", j.job.ID, err)
		}
	}
	if j.Recorder != nil {
		if err := j.Recorder.Save(context.WithoutCancel(j.ctx), j.job); err != nil {
			j.warnf("job %s: recording state: %v", j.job.ID, err)
		}
	}
}

func (j *run) emit(headline string, details ...string) {
	j.emitKind(types.EventInfo, headline, details...)
}

// emitKind delivers one event. After the first sink error no more events
// are sent and the job context is cancelled.
func (j *run) emitKind(kind types.EventKind, headline string, details ...string) {
	if j.sink == nil || j.sinkClosed {
		return
	}
	err := j.sink.Emit(types.ProgressEvent{
		JobID:    j.job.ID,
		Kind:     kind,
		Headline: headline,
		Details:  details,
	})
	if err != nil {
		j.sinkClosed = true
		j.cancel()
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Runner) warnf(format string, args ...any) {
	w := r.Warn
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "warning: "+format+"\n", args...)
}

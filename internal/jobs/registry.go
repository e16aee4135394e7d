// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"context"
	"sort"
	"sync"

	"github.com/pdiddy/batchblast/pkg/types"
)

// JobRunner executes a single job. *Runner implements it.
type JobRunner interface {
	Run(ctx context.Context, jobID, rawInput string, sink Sink) (*types.Job, error)
}

// Registry runs jobs concurrently, at most a fixed number at a time, and
// tracks them by id.
type Registry struct {
	runner JobRunner
	slots  chan struct{}

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	cancel context.CancelFunc
	done   chan struct{}

	// Set before done is closed.
	job *types.Job
	err error
}

// Status is a point-in-time view of a registered job.
type Status struct {
	ID      string
	Running bool

	// Job and Err are set once Running is false.
	Job *types.Job
	Err error
}

// NewRegistry returns a registry allowing maxConcurrent simultaneous jobs.
func NewRegistry(runner JobRunner, maxConcurrent int) *Registry {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Registry{
		runner:  runner,
		slots:   make(chan struct{}, maxConcurrent),
		entries: make(map[string]*entry),
	}
}

// Start waits for a free slot, then launches the job in its own goroutine
// and returns its id. ctx bounds only the wait: the job keeps ctx's values
// but not its cancellation, and is stopped with Cancel.
func (r *Registry) Start(ctx context.Context, rawInput string, sink Sink) (string, error) {
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return r.launch(ctx, rawInput, sink), nil
}

// TryStart is Start without waiting: it returns ErrTooManyJobs when no
// slot is free.
func (r *Registry) TryStart(ctx context.Context, rawInput string, sink Sink) (string, error) {
	select {
	case r.slots <- struct{}{}:
	default:
		return "", ErrTooManyJobs
	}
	return r.launch(ctx, rawInput, sink), nil
}

func (r *Registry) launch(ctx context.Context, rawInput string, sink Sink) string {
	id := NewID()
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e := &entry{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()

	go func() {
		defer func() { <-r.slots }()
		defer cancel()

		job, err := r.runner.Run(jobCtx, id, rawInput, sink)

		r.mu.Lock()
		e.job, e.err = job, err
		r.mu.Unlock()
		close(e.done)
	}()
	return id
}

// Lookup reports the status of job id.
func (r *Registry) Lookup(id string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Status{}, ErrJobNotFound
	}
	select {
	case <-e.done:
		return Status{ID: id, Job: e.job, Err: e.err}, nil
	default:
		return Status{ID: id, Running: true}, nil
	}
}

// Cancel signals job id to stop. Cancelling a finished job is a no-op.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	e.cancel()
	return nil
}

// Wait blocks until job id finishes and returns its outcome.
func (r *Registry) Wait(ctx context.Context, id string) (*types.Job, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrJobNotFound
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return e.job, e.err
}

// Active returns the ids of jobs still running, sorted.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, e := range r.entries {
		select {
		case <-e.done:
		default:
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

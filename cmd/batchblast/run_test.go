// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/batchblast/internal/jobs"
	"github.com/pdiddy/batchblast/internal/progress"
	"github.com/pdiddy/batchblast/pkg/types"
)

func TestReadInputs(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	bare := write("bare.txt", "ACGTACGTTTGA\n")
	accession := write("acc.txt", "NC_006853.1")
	records := write("lots.fasta", ">lot 1\nACGT\n")

	inputs, err := readInputs([]string{bare, accession, records})
	require.NoError(t, err)
	require.Len(t, inputs, 3)
	assert.Equal(t, "ACGTACGTTTGA\n", inputs[0].raw)
	assert.Equal(t, "acc.txt", inputs[1].label)

	_, err = readInputs([]string{records, write("blank.fasta", " \n\t\n")})
	assert.ErrorContains(t, err, "blank.fasta: empty input")
}

// gatedRunner holds every job until release is closed or the job is
// cancelled.
type gatedRunner struct {
	started chan string
	release chan struct{}

	mu       sync.Mutex
	finished []string
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{started: make(chan string, 8), release: make(chan struct{})}
}

func (g *gatedRunner) Run(ctx context.Context, id, _ string, _ jobs.Sink) (*types.Job, error) {
	g.started <- id
	defer func() {
		g.mu.Lock()
		g.finished = append(g.finished, id)
		g.mu.Unlock()
	}()
	select {
	case <-g.release:
		return &types.Job{ID: id, WorkDir: "/w/" + id, State: types.StateCompleted}, nil
	case <-ctx.Done():
		return &types.Job{ID: id, State: types.StateFailed}, &jobs.Failure{Kind: jobs.Unhandled, Err: ctx.Err()}
	}
}

func (g *gatedRunner) finishedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.finished)
}

func newTestBatch(registry *jobs.Registry) (*batch, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	plain := progress.NewWriterSink(io.Discard, "")
	return &batch{
		registry: registry,
		newSink:  func(label string) jobs.Sink { return plain.Share("[" + label + "] ") },
		out:      &out,
		errOut:   &errOut,
	}, &out, &errOut
}

var twoInputs = []queryInput{
	{path: "in/a.fasta", label: "a.fasta", raw: ">a\nACGT\n"},
	{path: "in/b.fasta", label: "b.fasta", raw: ">b\nACGT\n"},
}

func TestBatchWaitsForStartedJobsWhenStartFails(t *testing.T) {
	runner := newGatedRunner()
	registry := jobs.NewRegistry(runner, 1)
	b, out, _ := newTestBatch(registry)
	b.start = registry.TryStart

	go func() {
		<-runner.started
		time.Sleep(30 * time.Millisecond)
		close(runner.release)
	}()

	err := b.run(context.Background(), func() {}, twoInputs)
	assert.ErrorIs(t, err, jobs.ErrTooManyJobs)
	assert.ErrorContains(t, err, "starting job for in/b.fasta")

	assert.Equal(t, 1, runner.finishedCount(), "the started job finished before run returned")
	assert.Empty(t, registry.Active())
	assert.Contains(t, out.String(), "a.fasta: reports in /w/")
}

func TestBatchInterruptCancelsRunningJobs(t *testing.T) {
	runner := newGatedRunner()
	registry := jobs.NewRegistry(runner, 1)
	b, _, errOut := newTestBatch(registry)

	ctx, interrupt := context.WithCancel(context.Background())
	defer interrupt()
	go func() {
		<-runner.started
		// b.fasta is now queued behind a.fasta.
		time.Sleep(20 * time.Millisecond)
		interrupt()
	}()

	var released bool
	err := b.run(ctx, func() { released = true }, twoInputs)

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorContains(t, err, "starting job for in/b.fasta")
	assert.ErrorContains(t, err, "1 of 1 job(s) failed")
	assert.True(t, released)
	assert.Equal(t, 1, runner.finishedCount())
	assert.Empty(t, registry.Active())

	assert.Contains(t, errOut.String(), "Interrupted: cancelling 1 running job(s)")
	assert.Contains(t, errOut.String(), "  a.fasta (job ")
	assert.Contains(t, errOut.String(), "(unhandled)")
}

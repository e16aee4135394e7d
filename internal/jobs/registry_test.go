// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/batchblast/pkg/types"
)

type blockingRunner struct {
	started chan string
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan string, 8), release: make(chan struct{})}
}

func (b *blockingRunner) Run(ctx context.Context, id, _ string, _ Sink) (*types.Job, error) {
	b.started <- id
	select {
	case <-b.release:
		return &types.Job{ID: id, State: types.StateCompleted}, nil
	case <-ctx.Done():
		return &types.Job{ID: id, State: types.StateFailed}, &Failure{Kind: Unhandled, Err: ctx.Err()}
	}
}

func waitStarted(t *testing.T, b *blockingRunner) string {
	t.Helper()
	select {
	case id := <-b.started:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
		return ""
	}
}

func TestRegistry_BoundedConcurrency(t *testing.T) {
	runner := newBlockingRunner()
	r := NewRegistry(runner, 1)
	ctx := context.Background()

	id1, err := r.Start(ctx, ">a\nA\n", nil)
	require.NoError(t, err)
	assert.Equal(t, id1, waitStarted(t, runner))

	_, err = r.TryStart(ctx, ">b\nA\n", nil)
	assert.ErrorIs(t, err, ErrTooManyJobs)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = r.Start(short, ">b\nA\n", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, []string{id1}, r.Active())

	close(runner.release)
	job, err := r.Wait(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, job.State)
	assert.Empty(t, r.Active())

	id2, err := r.Start(ctx, ">c\nA\n", nil)
	require.NoError(t, err)
	_, err = r.Wait(ctx, id2)
	require.NoError(t, err)
}

func TestRegistry_CancelAndLookup(t *testing.T) {
	runner := newBlockingRunner()
	r := NewRegistry(runner, 2)
	ctx := context.Background()

	id, err := r.Start(ctx, ">a\nA\n", nil)
	require.NoError(t, err)
	waitStarted(t, runner)

	st, err := r.Lookup(id)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Nil(t, st.Job)

	require.NoError(t, r.Cancel(id))
	job, err := r.Wait(ctx, id)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.StateFailed, job.State)

	st, err = r.Lookup(id)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, types.StateFailed, st.Job.State)
	assert.ErrorIs(t, st.Err, context.Canceled)

	assert.NoError(t, r.Cancel(id), "cancelling a finished job is a no-op")
}

func TestRegistry_StartContextBoundsOnlyTheQueue(t *testing.T) {
	runner := newBlockingRunner()
	r := NewRegistry(runner, 1)
	ctx, cancel := context.WithCancel(context.Background())

	id, err := r.Start(ctx, ">a\nA\n", nil)
	require.NoError(t, err)
	waitStarted(t, runner)
	cancel()

	// A queued start gives up with ctx; the running job does not.
	_, err = r.Start(ctx, ">b\nA\n", nil)
	assert.ErrorIs(t, err, context.Canceled)
	st, err := r.Lookup(id)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, []string{id}, r.Active())

	require.NoError(t, r.Cancel(id))
	_, err = r.Wait(context.Background(), id)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.Active())
}

func TestRegistry_UnknownJob(t *testing.T) {
	r := NewRegistry(newBlockingRunner(), 1)

	_, err := r.Lookup("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, r.Cancel("nope"), ErrJobNotFound)
	_, err = r.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRegistry_JobsRunIndependently(t *testing.T) {
	runner := newBlockingRunner()
	r := NewRegistry(runner, 3)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := r.Start(ctx, ">q\nA\n", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for range ids {
		waitStarted(t, runner)
	}
	assert.Len(t, r.Active(), 3)

	require.NoError(t, r.Cancel(ids[1]))
	_, err := r.Wait(ctx, ids[1])
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, r.Active(), 2)

	close(runner.release)
	for _, id := range []string{ids[0], ids[2]} {
		_, err := r.Wait(ctx, id)
		assert.NoError(t, err)
	}
}

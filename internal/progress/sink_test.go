// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/batchblast/pkg/types"
)

var sampleEvent = types.ProgressEvent{
	Kind:     types.EventInfo,
	Headline: "Waiting for BLAST result...",
	Details:  []string{"Request ID: RID42", "Job ID: j1"},
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf, "[a] ")
	require.NoError(t, s.Emit(sampleEvent))
	require.NoError(t, s.Share("[b] ").Emit(types.ProgressEvent{Headline: "done"}))

	want := "[a] Waiting for BLAST result...\n[a]   Request ID: RID42\n[a]   Job ID: j1\n[b] done\n"
	assert.Equal(t, want, buf.String())
}

func TestChannelSinkDeliversInOrder(t *testing.T) {
	s := NewChannelSink(4)
	for _, h := range []string{"one", "two", "three"} {
		require.NoError(t, s.Emit(types.ProgressEvent{Headline: h}))
	}
	assert.Equal(t, "one", (<-s.Events()).Headline)
	assert.Equal(t, "two", (<-s.Events()).Headline)
	assert.Equal(t, "three", (<-s.Events()).Headline)
}

func TestChannelSinkClose(t *testing.T) {
	s := NewChannelSink(0)

	blocked := make(chan error, 1)
	go func() { blocked <- s.Emit(sampleEvent) }()

	time.Sleep(20 * time.Millisecond)
	s.Close()
	s.Close()

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked Emit was not released by Close")
	}
	assert.ErrorIs(t, s.Emit(sampleEvent), ErrClosed)
}

type collectingEmitter struct {
	mu   sync.Mutex
	seen []string
}

func (c *collectingEmitter) Emit(ev types.ProgressEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, ev.Headline)
	return nil
}

func TestChannelSinkPumpDeliversEverything(t *testing.T) {
	s := NewChannelSink(2)
	dst := &collectingEmitter{}
	stop := s.Pump(dst)

	var want []string
	for i := 0; i < 20; i++ {
		h := fmt.Sprintf("event %d", i)
		want = append(want, h)
		require.NoError(t, s.Emit(types.ProgressEvent{Headline: h}))
	}
	stop()
	stop()

	assert.Equal(t, want, dst.seen)
	assert.ErrorIs(t, s.Emit(sampleEvent), ErrClosed)
}

func TestChannelSinkPumpClosesOnDeliveryError(t *testing.T) {
	s := NewChannelSink(0)
	stop := s.Pump(failingEmitter{errors.New("gone")})
	defer stop()

	// The first event is accepted by the pump; it then closes the sink.
	require.NoError(t, s.Emit(sampleEvent))
	require.Eventually(t, func() bool {
		return errors.Is(s.Emit(sampleEvent), ErrClosed)
	}, time.Second, 5*time.Millisecond)
}

type failingEmitter struct{ err error }

func (f failingEmitter) Emit(types.ProgressEvent) error { return f.err }

func TestMultiStopsAtFirstError(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("boom")
	m := Multi{NewWriterSink(&buf, ""), failingEmitter{boom}, NewWriterSink(&buf, "never ")}

	assert.ErrorIs(t, m.Emit(types.ProgressEvent{Headline: "x"}), boom)
	assert.Equal(t, "x\n", buf.String())
}

func TestBestEffortSwallowsErrors(t *testing.T) {
	var warn bytes.Buffer
	b := BestEffort{Emitter: failingEmitter{errors.New("redis down")}, Warn: &warn}
	assert.NoError(t, b.Emit(sampleEvent))
	assert.Contains(t, warn.String(), "redis down")
}

func TestTerminalSinkMonoRendering(t *testing.T) {
	var buf bytes.Buffer
	s := NewTerminalSink(&buf, MonoTheme(), "in.fasta", "Job complete")

	require.NoError(t, s.Emit(sampleEvent))
	require.NoError(t, s.Emit(types.ProgressEvent{Headline: "Job complete"}))
	require.NoError(t, s.Emit(types.ProgressEvent{Kind: types.EventError, Headline: "Error"}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "* [in.fasta] Waiting for BLAST result...", lines[0])
	assert.Equal(t, "    Request ID: RID42", lines[1])
	assert.Equal(t, "+ [in.fasta] Job complete", lines[3])
	assert.Equal(t, "x [in.fasta] Error", lines[4])
}

func TestIsTerminalFalseForPipes(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	assert.False(t, IsTerminal(w))
}

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisSinkPublishes(t *testing.T) {
	pub := &fakePublisher{}
	s := NewRedisSink(context.Background(), pub, "job-1")

	require.NoError(t, s.Emit(sampleEvent))
	assert.Equal(t, "batchblast:job:job-1", pub.channel)

	var got types.ProgressEvent
	require.NoError(t, json.Unmarshal(pub.message, &got))
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, sampleEvent.Headline, got.Headline)
	assert.Equal(t, sampleEvent.Details, got.Details)
}

func TestRedisSinkError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	err := NewRedisSink(context.Background(), pub, "job-1").Emit(sampleEvent)
	assert.ErrorContains(t, err, "connection refused")
}

func TestRedisSinkRoutesByEventJob(t *testing.T) {
	pub := &fakePublisher{}
	s := NewRedisSink(context.Background(), pub, "")

	require.NoError(t, s.Emit(types.ProgressEvent{JobID: "job-2", Headline: "Job started"}))
	assert.Equal(t, "batchblast:job:job-2", pub.channel)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress delivers job progress events to terminals, writers,
// channels, and Redis subscribers.
package progress

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pdiddy/batchblast/pkg/types"
)

// ErrClosed is returned by Emit after the receiving side has gone away.
var ErrClosed = errors.New("progress sink closed")

// WriterSink writes each event as a headline line followed by indented
// detail lines. It is safe for concurrent use by several jobs; Prefix
// distinguishes them.
type WriterSink struct {
	W      io.Writer
	Prefix string

	mu *sync.Mutex
}

// NewWriterSink returns a WriterSink. Sinks created with Share hold the
// same lock so lines from different jobs never interleave.
func NewWriterSink(w io.Writer, prefix string) *WriterSink {
	return &WriterSink{W: w, Prefix: prefix, mu: &sync.Mutex{}}
}

// Share returns a sink writing to the same writer under a different prefix.
func (s *WriterSink) Share(prefix string) *WriterSink {
	return &WriterSink{W: s.W, Prefix: prefix, mu: s.mu}
}

// Emit writes ev.
func (s *WriterSink) Emit(ev types.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.W, "%s%s\n", s.Prefix, ev.Headline); err != nil {
		return err
	}
	for _, d := range ev.Details {
		if _, err := fmt.Fprintf(s.W, "%s  %s\n", s.Prefix, d); err != nil {
			return err
		}
	}
	return nil
}

// ChannelSink hands events to a reader goroutine. After Close every Emit
// fails with ErrClosed, including one blocked waiting for the reader.
type ChannelSink struct {
	events chan types.ProgressEvent
	done   chan struct{}
	once   sync.Once
}

// NewChannelSink returns a sink whose channel buffers up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{
		events: make(chan types.ProgressEvent, buffer),
		done:   make(chan struct{}),
	}
}

// Events is the receiving side. It is never closed; stop reading after Close.
func (s *ChannelSink) Events() <-chan types.ProgressEvent {
	return s.events
}

// Emit delivers ev or reports ErrClosed.
func (s *ChannelSink) Emit(ev types.ProgressEvent) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Close marks the receiver as gone. It is safe to call more than once.
func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Pump forwards every event to dst from its own goroutine, so a slow dst
// does not hold up the emitting job beyond the channel buffer. When dst
// fails the sink is closed. The returned stop function delivers whatever
// is still buffered, closes the sink, and waits for the goroutine; call it
// once no more events will be emitted.
func (s *ChannelSink) Pump(dst Emitter) (stop func()) {
	quit := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		for {
			select {
			case ev := <-s.events:
				if err := dst.Emit(ev); err != nil {
					s.Close()
					return
				}
			case <-s.done:
				return
			case <-quit:
				for {
					select {
					case ev := <-s.events:
						if dst.Emit(ev) != nil {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-exited
			s.Close()
		})
	}
}

// Emitter is anything that accepts progress events.
type Emitter interface {
	Emit(ev types.ProgressEvent) error
}

// Multi fans events out to every emitter in order and stops at the first
// error.
type Multi []Emitter

// Emit delivers ev to each emitter.
func (m Multi) Emit(ev types.ProgressEvent) error {
	for _, e := range m {
		if err := e.Emit(ev); err != nil {
			return err
		}
	}
	return nil
}

// BestEffort wraps an emitter whose failures must not stop the job, such
// as an optional Redis fan-out. Errors are reported to Warn and dropped.
type BestEffort struct {
	Emitter Emitter
	Warn    io.Writer
}

// Emit delivers ev and never fails.
func (b BestEffort) Emit(ev types.ProgressEvent) error {
	if err := b.Emitter.Emit(ev); err != nil && b.Warn != nil {
		fmt.Fprintf(b.Warn, "warning: progress delivery failed: %v\n", err)
	}
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/batchblast/pkg/types"
)

// Publisher is the subset of *redis.Client used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// ChannelName returns the pub/sub channel carrying a job's events.
func ChannelName(jobID string) string {
	return fmt.Sprintf("batchblast:job:%s", jobID)
}

// RedisSink publishes JSON-encoded events so other processes can follow a
// job. Each event goes to the channel of its own JobID; events without one
// use the sink's job id. One sink can therefore serve many jobs.
type RedisSink struct {
	ctx   context.Context
	pub   Publisher
	jobID string
}

// NewRedisSink returns a sink publishing to ChannelName(jobID).
func NewRedisSink(ctx context.Context, pub Publisher, jobID string) *RedisSink {
	return &RedisSink{ctx: ctx, pub: pub, jobID: jobID}
}

// Encode returns the published form of ev.
func (s *RedisSink) Encode(ev types.ProgressEvent) ([]byte, error) {
	if ev.JobID == "" {
		ev.JobID = s.jobID
	}
	return json.Marshal(ev)
}

// Emit publishes ev.
func (s *RedisSink) Emit(ev types.ProgressEvent) error {
	data, err := s.Encode(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	id := ev.JobID
	if id == "" {
		id = s.jobID
	}
	if err := s.pub.Publish(s.ctx, ChannelName(id), data).Err(); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// NewRedisClient connects to the Redis server at addr (host:port).
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

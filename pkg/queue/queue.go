package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotRunning  = errors.New("queue not running")
	ErrUnknownType = errors.New("no job registered for message type")
)

// Enqueuer accepts background work by message type.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// Job handles every message of one type. A returned error schedules a retry
// until the queue's RetryLimit is spent.
type Job interface {
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Keyed payloads are coalesced: while one message with a given key is
// queued or retrying, further enqueues with that key are dropped.
type Keyed interface {
	DedupeKey() string
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers    int           // number of workers
	RetryLimit int           // retries before dead-lettering
	RetryDelay time.Duration // first retry delay, doubled per attempt
	JobTimeout time.Duration // per-message deadline, zero for none
	DedupeTTL  time.Duration // lifetime of a Keyed claim, zero disables coalescing
}

func (c *QueueConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
}

// backoff returns the delay before the given (1-based) retry attempt.
func (c QueueConfig) backoff(attempt int) time.Duration {
	d := c.RetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

// Message is the JSON envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Key       string          `json:"key,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Stats are queue depths at a point in time.
type Stats struct {
	Pending  int64 `json:"pending"`
	Retrying int64 `json:"retrying"`
	Dead     int64 `json:"dead"`
}

// Decode unmarshals a dequeued payload into T.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, errors.New("empty payload")
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("unmarshal payload: %w", err)
	}
	return v, nil
}

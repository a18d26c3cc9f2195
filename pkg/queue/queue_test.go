package queue

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

type refreshPayload struct {
	Symbol string `json:"symbol"`
	Mode   string `json:"mode"`
}

func TestDecode(t *testing.T) {
	got, err := Decode[refreshPayload](json.RawMessage(`{"symbol":"AAPL","mode":"series"}`))
	if err != nil || got != (refreshPayload{Symbol: "AAPL", Mode: "series"}) {
		t.Fatalf("decode = %+v err=%v", got, err)
	}
	if _, err := Decode[refreshPayload](nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	if _, err := Decode[refreshPayload](json.RawMessage(`[1]`)); err == nil {
		t.Fatalf("expected error for mismatched payload")
	}
}

func TestMessageEnvelopeKeepsPayloadBytes(t *testing.T) {
	msg := Message{ID: "1", Type: "factors.refresh", Key: "AAPL", Payload: json.RawMessage(`{"symbol":"AAPL","mode":"series"}`)}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Message
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, err := Decode[refreshPayload](back.Payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Symbol != "AAPL" || back.Key != "AAPL" {
		t.Fatalf("unexpected round trip %+v %+v", back, got)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	c := QueueConfig{RetryDelay: time.Second}
	cases := map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 4: 8 * time.Second, 20: maxRetryDelay}
	for attempt, want := range cases {
		if got := c.backoff(attempt); got != want {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	q := NewRedisQueue(nil, &QueueConfig{RetryLimit: -1}, nil, ModeProducerConsumer)
	if q.config.Workers != 1 || q.config.RetryLimit != 0 || q.config.RetryDelay != 10*time.Second {
		t.Fatalf("unexpected defaults %+v", q.config)
	}
	if q.Running() {
		t.Fatalf("queue should not run before Start")
	}
}

func TestQueueKeys(t *testing.T) {
	q := &RedisQueue{keyPrefix: DefaultKeyPrefix}
	if q.getQueueKey() != "quantmini:queue:messages" ||
		q.getRetryKey() != "quantmini:queue:retry" ||
		q.getDeadLetterKey() != "quantmini:queue:dlq" ||
		q.pendingKey("AAPL|k") != "quantmini:queue:pending:AAPL|k" {
		t.Fatalf("unexpected keys %s %s %s", q.getQueueKey(), q.getRetryKey(), q.getDeadLetterKey())
	}
	WithKeyPrefix("x")(q)
	if q.getQueueKey() != "x:messages" {
		t.Fatalf("prefix option not applied")
	}
	if ModeProducerOnly.String() != "producer-only" {
		t.Fatalf("unexpected mode string %s", ModeProducerOnly)
	}
}

func TestRecordDepthSetsGauges(t *testing.T) {
	initQueueMetrics()
	recordDepth(Stats{Pending: 4, Retrying: 2, Dead: 1})
	for state, want := range map[string]float64{"pending": 4, "retrying": 2, "dead": 1} {
		if got := testutil.ToFloat64(queueDepth.WithLabelValues(state)); got != want {
			t.Fatalf("depth %s = %v, want %v", state, got, want)
		}
	}
}

func TestStatsUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	q := NewRedisQueue(nil, nil, client, ModeProducerConsumer)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := q.Stats(ctx); err == nil || !strings.Contains(err.Error(), "queue stats") {
		t.Fatalf("expected wrapped stats error, got %v", err)
	}
	q.sampleDepth(ctx)
}

package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "gzip")

	if err := p.Publish(context.Background(), "events", []byte("AAPL"), map[string]int{"rows": 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.PublishMessage(context.Background(), "logs", "raw"); err != nil {
		t.Fatalf("publish message: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Value) != `{"rows":3}` || string(w.msgs[0].Key) != "AAPL" || w.msgs[0].Topic != "events" {
		t.Fatalf("unexpected first message %+v", w.msgs[0])
	}
	if string(w.msgs[1].Value) != "raw" || w.msgs[1].Key != nil {
		t.Fatalf("unexpected second message %+v", w.msgs[1])
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducer(&fakeWriter{err: boom}, "gzip")
	if err := p.Publish(context.Background(), "events", nil, "x"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewProducerValidatesConfig(t *testing.T) {
	if _, err := NewProducer(Config{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewProducer(Config{Brokers: []string{"localhost:9092"}, Compression: "brotli"}); err == nil {
		t.Fatalf("expected error for unknown compression")
	}
	p, err := NewProducer(Config{Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	if p.comp != "gzip" {
		t.Fatalf("default compression = %q", p.comp)
	}
	_ = p.Close()
}

func TestPublishAfterClose(t *testing.T) {
	p := newProducer(&fakeWriter{}, "gzip")
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := p.Publish(context.Background(), "events", nil, "x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

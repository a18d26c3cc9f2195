package server

import (
	"context"
	"testing"
	"time"

	"QuantMini/internal/domain/models"
	domrepo "QuantMini/internal/domain/repository"
	"QuantMini/internal/service/ratelimit"
	"QuantMini/pkg/config"
	xhttp "QuantMini/pkg/http"
)

type closeRecorder struct {
	closed bool
}

func (c *closeRecorder) Init(context.Context) error { return nil }
func (c *closeRecorder) ReadFresh(context.Context, string, string, time.Duration) (*models.CacheEntry, error) {
	return nil, domrepo.ErrEntryNotFound
}
func (c *closeRecorder) Upsert(context.Context, string, string, string) error { return nil }
func (c *closeRecorder) Close() error { c.closed = true; return nil }

type publisherRecorder struct {
	closed bool
}

func (p *publisherRecorder) PublishFactorsComputed(context.Context, *models.FactorsComputed) error {
	return nil
}
func (p *publisherRecorder) Close() error { p.closed = true; return nil }

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.ShutdownTimeout = time.Second

	store := &closeRecorder{}
	events := &publisherRecorder{}
	srv := xhttp.NewServer(nil, nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetrics(false))
	app := New(cfg, nil, srv, store, events, WithRateLimiter(ratelimit.New(1, 1)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
	if !store.closed || !events.closed {
		t.Fatalf("expected store and publisher closed, got store=%v events=%v", store.closed, events.closed)
	}
}

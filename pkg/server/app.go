package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "QuantMini/internal/domain/repository"
	"QuantMini/internal/service/ratelimit"
	"QuantMini/internal/usecase"
	pkgch "QuantMini/pkg/clickhouse"
	"QuantMini/pkg/config"
	xhttp "QuantMini/pkg/http"
	applogger "QuantMini/pkg/logger"
	"QuantMini/pkg/queue"

	"github.com/redis/go-redis/v9"
)

const sweepInterval = time.Minute

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	store      domrepo.CacheStore
	events     domrepo.EventPublisher

	queue    *queue.RedisQueue
	warmer   *usecase.Warmer
	limiter  *ratelimit.Limiter
	redis    *redis.Client
	chClient *pkgch.Client
}

// Option attaches an optional component to App.
type Option func(*App)

func WithQueue(q *queue.RedisQueue) Option { return func(a *App) { a.queue = q } }
func WithWarmer(w *usecase.Warmer) Option { return func(a *App) { a.warmer = w } }
func WithRateLimiter(l *ratelimit.Limiter) Option { return func(a *App) { a.limiter = l } }
func WithRedis(rc *redis.Client) Option { return func(a *App) { a.redis = rc } }
func WithClickHouse(ch *pkgch.Client) Option { return func(a *App) { a.chClient = ch } }

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	store domrepo.CacheStore,
	events domrepo.EventPublisher,
	opts ...Option,
) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	a := &App{
		cfg:        cfg,
		l:          l,
		httpServer: httpServer,
		store:      store,
		events:     events,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.l.Error("refresh queue start error", applogger.Error(err))
			return err
		}
	} else {
		a.l.Warn("redis disabled; refresh queue and warmer are off")
	}

	if a.queue != nil && a.warmer != nil {
		a.warmer.Start(ctx)
		a.l.Info("warmer started",
			applogger.Strings("symbols", a.cfg.Refresh.Symbols),
			applogger.Duration("interval", a.cfg.Refresh.Interval))
	}

	if a.limiter != nil {
		go a.sweep(ctx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		_ = a.shutdown(context.Background())
		return err
	}
	a.l.Info("quantmini started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("cache_backend", a.cfg.Cache.Backend),
		applogger.String("upstream_client", a.cfg.Alpaca.Client))

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown(context.Background())
}

func (a *App) sweep(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.limiter.Sweep(); n > 0 {
				a.l.Debug("rate limiter swept", applogger.Int("dropped", n))
			}
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.warmer != nil {
		a.warmer.Stop()
	}
	if a.queue != nil && a.queue.Running() {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			a.l.Warn("refresh queue stop error", applogger.Error(err))
		}
	}

	// final collector flush goes through the producer the publisher closes
	a.l.RemoveCollector()
	if err := a.events.Close(); err != nil {
		a.l.Warn("event publisher close error", applogger.Error(err))
	}
	if err := a.store.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		a.l.Warn("cache store close error", applogger.Error(err))
	}

	// Close infrastructure clients
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			a.l.Warn("redis close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return a.l.Close()
}

package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	domrepo "QuantMini/internal/domain/repository"
	"QuantMini/internal/handler/api"
	"QuantMini/internal/handler/web"
	internalrepo "QuantMini/internal/repository"
	"QuantMini/internal/service/alpaca"
	svcmetrics "QuantMini/internal/service/metrics"
	"QuantMini/internal/service/ratelimit"
	"QuantMini/internal/usecase"
	"QuantMini/pkg/cache"
	pkgch "QuantMini/pkg/clickhouse"
	"QuantMini/pkg/config"
	xhttp "QuantMini/pkg/http"
	pkgkafka "QuantMini/pkg/kafka"
	applogger "QuantMini/pkg/logger"
	"QuantMini/pkg/metrics"
	"QuantMini/pkg/queue"
	"QuantMini/pkg/server"

	"github.com/redis/go-redis/v9"
)

const initTimeout = 10 * time.Second

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRedisClient connects to Redis. It returns nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rc, nil
}

// ProvideClickHouseClient creates a ClickHouse client for the clickhouse
// cache backend and nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Cache.Backend != "clickhouse" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	client, err := pkgch.NewClient(ctx, pkgch.Config{
		Host:        cfg.ClickHouse.Host,
		Port:        cfg.ClickHouse.Port,
		User:        cfg.ClickHouse.User,
		Password:    cfg.ClickHouse.Password,
		UseHTTP:     cfg.ClickHouse.UseHTTP,
		DialTimeout: cfg.ClickHouse.DialTimeout,
		ReadTimeout: cfg.ClickHouse.ReadTimeout,
		MaxExecTime: cfg.ClickHouse.MaxExecutionTime,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCacheStore opens the configured cache backend and ensures its schema.
func ProvideCacheStore(cfg *config.Config, l *applogger.Logger, ch *pkgch.Client, rc *redis.Client) (domrepo.CacheStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	l = l.With(applogger.String("component", "cache_store"), applogger.String("backend", cfg.Cache.Backend))

	switch cfg.Cache.Backend {
	case "sqlite", "postgres":
		d, err := internalrepo.DialectByName(cfg.Cache.Backend)
		if err != nil {
			return nil, err
		}
		dsn := cfg.Cache.SQLitePath
		if d.Name == internalrepo.Postgres.Name {
			dsn = cfg.Cache.PostgresDSN
		}
		s, err := internalrepo.OpenSQLCacheStore(ctx, d, dsn)
		if err != nil {
			return nil, err
		}
		s.SetLogger(l)
		return s, nil

	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("clickhouse backend selected without a client")
		}
		s := internalrepo.NewCHCacheStore(ch, cfg.ClickHouse.Database)
		if err := ch.InitSchema(ctx, s.SchemaStatements()); err != nil {
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		s.SetLogger(l)
		return s, nil

	case "redis", "layered":
		if rc == nil {
			return nil, fmt.Errorf("%s backend selected without redis", cfg.Cache.Backend)
		}
		redisCache := cache.NewRedisCache(rc, cfg.Redis.Prefix)
		var svc cache.Service = redisCache
		if cfg.Cache.Backend == "layered" {
			opts := []cache.LayeredOption{cache.WithLayeredMemoryTTL(cfg.Cache.Freshness)}
			if cfg.Cache.MemoryMaxSize > 0 {
				opts = append(opts, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize))
			}
			svc = cache.NewLayeredCache(redisCache, opts...)
		}
		s := internalrepo.NewKVCacheStore(svc, cfg.Cache.Retention)
		s.SetLogger(l)
		return s, nil

	case "memory":
		var opts []cache.MemoryOption
		if cfg.Cache.MemoryMaxSize > 0 {
			opts = append(opts, cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
		}
		s := internalrepo.NewKVCacheStore(cache.NewMemoryCache(opts...), cfg.Cache.Retention)
		s.SetLogger(l)
		return s, nil
	}
	return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
}

// ProvideMetrics creates the Prometheus recorder and registers the upstream
// client collectors.
func ProvideMetrics() domrepo.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.Config{
		Brokers:          cfg.Kafka.Brokers,
		RequiredAcks:     cfg.Kafka.RequiredAcks,
		Compression:      cfg.Kafka.Compression,
		HashByKey:        true,
		AutoCreateTopics: cfg.Kafka.AutoCreateTopics,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes factor events to Kafka when a producer is
// available and drops them otherwise.
func ProvideEventPublisher(cfg *config.Config, p *pkgkafka.Producer) domrepo.EventPublisher {
	if p == nil {
		return internalrepo.NoopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(p, cfg.Kafka.EventsTopic)
}

// ProvideMarketData picks the REST or SDK upstream client.
func ProvideMarketData(cfg *config.Config, l *applogger.Logger) domrepo.MarketData {
	ac := alpaca.Config{
		KeyID:           cfg.Alpaca.KeyID,
		SecretKey:       cfg.Alpaca.SecretKey,
		DataURL:         cfg.Alpaca.DataURL,
		Feed:            cfg.Alpaca.Feed,
		Adjustment:      cfg.Alpaca.Adjustment,
		Limit:           cfg.Alpaca.Limit,
		RateLimitPerMin: cfg.Alpaca.RateLimitPerMin,
		Timeout:         cfg.Alpaca.Timeout,
	}
	l = l.With(applogger.String("component", "alpaca"), applogger.String("client", cfg.Alpaca.Client))
	if cfg.Alpaca.Client == "sdk" {
		return alpaca.NewSDKClient(ac, l)
	}
	return alpaca.NewRESTClient(ac, nil, l)
}

// ProvideOrchestrator creates the cache orchestrator over store.
func ProvideOrchestrator(cfg *config.Config, store domrepo.CacheStore, mtr domrepo.Metrics, l *applogger.Logger) *usecase.CacheOrchestrator {
	return usecase.NewCacheOrchestrator(store,
		usecase.WithFreshness(cfg.Cache.Freshness),
		usecase.WithStoreAbsent(cfg.Cache.StoreAbsent),
		usecase.WithMetrics(mtr),
		usecase.WithLogger(l.With(applogger.String("component", "orchestrator"))),
	)
}

// ProvideFactorsUseCase creates the factors use case.
func ProvideFactorsUseCase(
	cfg *config.Config,
	md domrepo.MarketData,
	orch *usecase.CacheOrchestrator,
	events domrepo.EventPublisher,
	mtr domrepo.Metrics,
	l *applogger.Logger,
) *usecase.FactorsUseCase {
	return usecase.NewFactorsUseCase(md, orch, events, cache.NewMemoryCache(cache.WithMemoryMaxSize(1000)), mtr,
		usecase.FactorsOptions{
			LookbackDays: cfg.Alpaca.LookbackDays,
			DayFirst:     cfg.Alpaca.DayFirst,
			Limit:        cfg.Alpaca.Limit,
			PricesTTL:    cfg.Alpaca.PricesTTL,
		},
		l.With(applogger.String("component", "factors")),
	)
}

// ProvideQueue creates the Redis refresh queue with the refresh job
// registered. It returns nil without Redis. Zero workers makes this
// instance enqueue only and leaves consumption to other instances.
func ProvideQueue(cfg *config.Config, l *applogger.Logger, rc *redis.Client, uc *usecase.FactorsUseCase) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	mode := queue.ModeProducerConsumer
	if cfg.Refresh.Workers <= 0 {
		mode = queue.ModeProducerOnly
	}
	ql := l.With(applogger.String("component", "queue"))
	q := queue.NewRedisQueue(ql, &queue.QueueConfig{
		Workers:    cfg.Refresh.Workers,
		RetryLimit: cfg.Refresh.MaxRetries,
		RetryDelay: cfg.Refresh.RetryDelay,
		JobTimeout: cfg.Refresh.JobTimeout,
		DedupeTTL:  cfg.Refresh.DedupeTTL,
	}, rc, mode, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	q.RegisterJob(usecase.NewRefreshJob(uc, ql))
	return q
}

// ProvideWarmer schedules refreshes of the configured symbols.
func ProvideWarmer(cfg *config.Config, uc *usecase.FactorsUseCase, q *queue.RedisQueue, l *applogger.Logger) *usecase.Warmer {
	return usecase.NewWarmer(uc, enqueuer(q), cfg.Refresh.Symbols, cfg.Refresh.Interval,
		cfg.Refresh.Timeframe, cfg.Refresh.Mode, l.With(applogger.String("component", "warmer")))
}

// ProvideRateLimiter creates the per-client limiter, or nil when disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.Server.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec)
}

// ProvideHTTPServer builds the Echo server with the factors routes.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	uc *usecase.FactorsUseCase,
	q *queue.RedisQueue,
	rl *ratelimit.Limiter,
) *xhttp.Server {
	h := api.NewFactorsEchoHandler(l, uc, enqueuer(q), int(cfg.Cache.Freshness.Seconds()))

	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithCORS(true, cfg.Server.CORSOrigins...),
		xhttp.WithMetrics(cfg.Metrics.Enabled),
	}
	if rl != nil {
		opts = append(opts, xhttp.WithMiddleware(ratelimit.Middleware(rl)))
	}
	if cfg.Server.Dashboard {
		opts = append(opts, xhttp.WithRoutes(web.NewDashboard()))
	}
	return xhttp.NewServer(h, l.With(applogger.String("component", "http")), opts...)
}

// ProvideApp assembles the application and, when enabled, ships aggregated
// error logs through the Kafka producer.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	store domrepo.CacheStore,
	events domrepo.EventPublisher,
	q *queue.RedisQueue,
	w *usecase.Warmer,
	rl *ratelimit.Limiter,
	rc *redis.Client,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
) *server.App {
	if cfg.Kafka.LogCollector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Kafka.LogCollector.Interval,
			CountThreshold: cfg.Kafka.LogCollector.Threshold,
			Topic:          cfg.Kafka.LogCollector.Topic,
			Publisher:      producer,
		})
	}
	return server.New(cfg, l, srv, store, events,
		server.WithQueue(q),
		server.WithWarmer(w),
		server.WithRateLimiter(rl),
		server.WithRedis(rc),
		server.WithClickHouse(ch),
	)
}

// enqueuer avoids handing a typed nil to interface consumers.
func enqueuer(q *queue.RedisQueue) queue.Enqueuer {
	if q == nil {
		return nil
	}
	return q
}

// Factors bundles the use case with the resources it holds open, for
// one-shot tools that do not run the server.
type Factors struct {
	UseCase    *usecase.FactorsUseCase
	Store      domrepo.CacheStore
	Events     domrepo.EventPublisher
	Redis      *redis.Client
	ClickHouse *pkgch.Client
	Logger     *applogger.Logger
}

// Close releases the store, publisher and clients.
func (f *Factors) Close() error {
	var errs []error
	if err := f.Events.Close(); err != nil {
		errs = append(errs, fmt.Errorf("events: %w", err))
	}
	if err := f.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache store: %w", err))
	}
	if f.ClickHouse != nil {
		if err := f.ClickHouse.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if f.Redis != nil {
		if err := f.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	_ = f.Logger.Close()
	return errors.Join(errs...)
}

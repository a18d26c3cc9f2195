package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"QuantMini/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces the queue keys in Redis.
const DefaultKeyPrefix = "quantmini:queue"

const (
	popTimeout    = time.Second
	retryTick     = 2 * time.Second
	maxRetryDelay = 5 * time.Minute
)

// QueueMode defines the operation mode of the queue.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

// RedisQueue is a list-backed work queue with a delayed retry set and a
// dead-letter list.
type RedisQueue struct {
	logger    *logger.Logger
	config    QueueConfig
	client    *redis.Client
	mode      QueueMode
	keyPrefix string
	now       func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

// NewRedisQueue creates a queue. Call Start before enqueueing.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	cfg := QueueConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.applyDefaults()
	if lgr == nil {
		lgr = logger.NewNop()
	}

	rq := &RedisQueue{
		logger:    lgr,
		config:    cfg,
		client:    client,
		mode:      mode,
		keyPrefix: DefaultKeyPrefix,
		now:       time.Now,
		jobs:      make(map[string]Job),
	}
	for _, opt := range opts {
		opt(rq)
	}
	initQueueMetrics()
	return rq
}

// RegisterJob binds job to its message type; a later registration for the
// same type replaces the earlier one.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.logger.Warn("job replaced", logger.String("type", job.Type()))
	}
	r.jobs[job.Type()] = job
}

// Start pings Redis and, unless producer-only, launches the workers and
// the retry mover.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	if r.mode != ModeProducerOnly {
		for i := 0; i < r.config.Workers; i++ {
			r.wg.Add(1)
			go r.worker(ctx, i)
		}
		r.wg.Add(1)
		go r.retryLoop(ctx)
	}

	r.logger.Info("redis queue started",
		logger.String("mode", r.mode.String()),
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("prefix", r.keyPrefix))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs until ctx expires.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("stop queue: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

// Running reports whether Start succeeded and Stop has not been called.
func (r *RedisQueue) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Enqueue pushes a message. A payload implementing Keyed is dropped while
// an earlier message with the same key is still pending or retrying.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return ErrNotRunning
	}
	if r.mode != ModeProducerOnly && !known {
		return fmt.Errorf("%w: %s", ErrUnknownType, msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: r.now().UTC(),
	}

	if k, ok := payload.(Keyed); ok && r.config.DedupeTTL > 0 {
		msg.Key = k.DedupeKey()
		claimed, err := r.client.SetNX(ctx, r.pendingKey(msg.Key), msg.ID, r.config.DedupeTTL).Result()
		if err != nil {
			return fmt.Errorf("claim %s: %w", msg.Key, err)
		}
		if !claimed {
			jobsTotal.WithLabelValues(msgType, "deduplicated").Inc()
			r.logger.Debug("message coalesced",
				logger.String("type", msgType),
				logger.String("key", msg.Key))
			return nil
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.getQueueKey(), data).Err(); err != nil {
		if msg.Key != "" {
			_ = r.client.Del(ctx, r.pendingKey(msg.Key)).Err()
		}
		return fmt.Errorf("lpush: %w", err)
	}
	jobsTotal.WithLabelValues(msgType, "enqueued").Inc()
	return nil
}

// Stats returns the number of pending, retrying and dead-lettered messages.
func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, r.getQueueKey())
	retry := pipe.ZCard(ctx, r.getRetryKey())
	dead := pipe.LLen(ctx, r.getDeadLetterKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Pending: pending.Val(), Retrying: retry.Val(), Dead: dead.Val()}, nil
}

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	l := r.logger.With(logger.Int("worker_id", id))
	l.Debug("queue worker started")

	for ctx.Err() == nil {
		msg, ok := r.pop(ctx, l)
		if !ok {
			continue
		}
		r.process(ctx, msg)
	}
	l.Debug("queue worker stopped")
}

func (r *RedisQueue) pop(ctx context.Context, l *logger.Logger) (Message, bool) {
	res, err := r.client.BRPop(ctx, popTimeout, r.getQueueKey()).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			l.Error("brpop error", logger.Error(err))
			sleepCtx(ctx, popTimeout)
		}
		return Message{}, false
	}
	if len(res) < 2 {
		return Message{}, false
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		l.Error("dropping malformed message", logger.Error(err))
		return Message{}, false
	}
	return msg, true
}

func (r *RedisQueue) process(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job registered",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		msg.LastError = "no job registered"
		r.deadLetter(msg)
		return
	}

	jobCtx := ctx
	if r.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, r.config.JobTimeout)
		defer cancel()
	}

	start := r.now()
	err := job.Handle(jobCtx, msg.Payload)
	elapsed := r.now().Sub(start)
	jobDuration.WithLabelValues(msg.Type).Observe(elapsed.Seconds())

	switch {
	case err == nil:
		jobsTotal.WithLabelValues(msg.Type, "succeeded").Inc()
		r.release(msg)
	case ctx.Err() != nil:
		// Shutting down: put the message back for the next run.
		r.logger.Warn("job interrupted, requeueing",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type))
		r.schedule(msg, r.now())
	default:
		r.fail(msg, err, elapsed)
	}
}

func (r *RedisQueue) fail(msg Message, err error, elapsed time.Duration) {
	msg.Attempts++
	msg.LastError = err.Error()

	if msg.Attempts > r.config.RetryLimit {
		jobsTotal.WithLabelValues(msg.Type, "dead").Inc()
		r.logger.Error("job failed permanently",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		r.deadLetter(msg)
		return
	}

	delay := r.config.backoff(msg.Attempts)
	jobsTotal.WithLabelValues(msg.Type, "retried").Inc()
	r.logger.Warn("job failed, retry scheduled",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempt", msg.Attempts),
		logger.Duration("elapsed", elapsed),
		logger.Duration("retry_in", delay),
		logger.Error(err))
	r.schedule(msg, r.now().Add(delay))
}

func (r *RedisQueue) schedule(msg Message, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}
	if err := r.client.ZAdd(context.Background(), r.getRetryKey(), redis.Z{
		Score:  float64(at.Unix()),
		Member: data,
	}).Err(); err != nil {
		r.logger.Error("zadd retry", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) deadLetter(msg Message) {
	defer r.release(msg)
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.getDeadLetterKey(), data).Err(); err != nil {
		r.logger.Error("lpush dlq", logger.String("id", msg.ID), logger.Error(err))
	}
}

// release drops the dedupe claim so the key can be enqueued again.
func (r *RedisQueue) release(msg Message) {
	if msg.Key == "" {
		return
	}
	if err := r.client.Del(context.Background(), r.pendingKey(msg.Key)).Err(); err != nil {
		r.logger.Warn("release dedupe key", logger.String("key", msg.Key), logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(retryTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.promoteDue(ctx)
			r.sampleDepth(ctx)
		}
	}
}

func (r *RedisQueue) sampleDepth(ctx context.Context) {
	st, err := r.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Debug("sample queue depth", logger.Error(err))
		}
		return
	}
	recordDepth(st)
}

// promoteDue moves due retries back onto the main list. ZRem decides which
// consumer owns a member, so several processes can share one retry set.
func (r *RedisQueue) promoteDue(ctx context.Context) {
	due, err := r.client.ZRangeByScore(ctx, r.getRetryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(r.now().Unix(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("fetch due retries", logger.Error(err))
		}
		return
	}

	for _, member := range due {
		if ctx.Err() != nil {
			return
		}
		removed, err := r.client.ZRem(ctx, r.getRetryKey(), member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := r.client.LPush(ctx, r.getQueueKey(), member).Err(); err != nil {
			r.logger.Error("requeue retry", logger.Error(err))
			// keep it scheduled rather than lose it
			_ = r.client.ZAdd(context.Background(), r.getRetryKey(), redis.Z{Score: float64(r.now().Unix()), Member: member}).Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (r *RedisQueue) getQueueKey() string {
	return r.keyPrefix + ":messages"
}

func (r *RedisQueue) getRetryKey() string {
	return r.keyPrefix + ":retry"
}

func (r *RedisQueue) getDeadLetterKey() string {
	return r.keyPrefix + ":dlq"
}

func (r *RedisQueue) pendingKey(key string) string {
	return r.keyPrefix + ":pending:" + key
}

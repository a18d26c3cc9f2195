package usecase

import (
	"context"
	"sync"
	"time"

	applogger "QuantMini/pkg/logger"
	"QuantMini/pkg/queue"
)

// Warmer periodically enqueues refreshes for a fixed symbol list so hot
// symbols are recomputed before a client asks.
type Warmer struct {
	uc        *FactorsUseCase
	q         queue.Enqueuer
	symbols   []string
	interval  time.Duration
	timeframe string
	mode      string
	l         *applogger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewWarmer(uc *FactorsUseCase, q queue.Enqueuer, symbols []string, interval time.Duration, timeframe, mode string, l *applogger.Logger) *Warmer {
	if l == nil {
		l = applogger.NewNop()
	}
	return &Warmer{
		uc:        uc,
		q:         q,
		symbols:   symbols,
		interval:  interval,
		timeframe: timeframe,
		mode:      mode,
		l:         l,
		stopCh:    make(chan struct{}),
	}
}

// Start runs one pass immediately and then every interval. It is a no-op
// when there are no symbols or no interval.
func (w *Warmer) Start(ctx context.Context) {
	if len(w.symbols) == 0 || w.interval <= 0 || w.q == nil {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		w.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce enqueues one refresh per symbol and returns how many were queued.
func (w *Warmer) RunOnce(ctx context.Context) int {
	n := 0
	for _, sym := range w.symbols {
		err := w.uc.EnqueueRefresh(ctx, w.q, RefreshRequest{Symbol: sym, Timeframe: w.timeframe, Mode: w.mode})
		if err != nil {
			w.l.Warn("warm enqueue failed", applogger.String("symbol", sym), applogger.Error(err))
			continue
		}
		n++
	}
	w.l.Debug("warm pass", applogger.Int("queued", n), applogger.Int("symbols", len(w.symbols)))
	return n
}

func (w *Warmer) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

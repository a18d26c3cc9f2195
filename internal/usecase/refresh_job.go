package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	applogger "QuantMini/pkg/logger"
	"QuantMini/pkg/queue"
)

// RefreshMessageType is the queue message type handled by RefreshJob.
const RefreshMessageType = "factors.refresh"

// RefreshRequest is the queued payload for a background recomputation.
type RefreshRequest struct {
	Symbol    string `json:"symbol"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
	Timeframe string `json:"timeframe,omitempty"`
	Mode      string `json:"mode,omitempty"`
	// Kind is the resolved cache kind, set when the request is enqueued.
	Kind string `json:"kind,omitempty"`
}

var _ queue.Keyed = RefreshRequest{}

// DedupeKey coalesces queued refreshes of the same cache entry.
func (r RefreshRequest) DedupeKey() string {
	if r.Kind == "" {
		return r.Symbol
	}
	return r.Symbol + "|" + r.Kind
}

func (r RefreshRequest) params() FactorsParams {
	return FactorsParams{Symbol: r.Symbol, Start: r.Start, End: r.End, Timeframe: r.Timeframe, Mode: r.Mode}
}

// RefreshJob recomputes factors from queued RefreshRequests.
type RefreshJob struct {
	uc *FactorsUseCase
	l  *applogger.Logger
}

var _ queue.Job = (*RefreshJob)(nil)

func NewRefreshJob(uc *FactorsUseCase, l *applogger.Logger) *RefreshJob {
	if l == nil {
		l = applogger.NewNop()
	}
	return &RefreshJob{uc: uc, l: l}
}

func (j *RefreshJob) Type() string { return RefreshMessageType }

func (j *RefreshJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.Decode[RefreshRequest](payload)
	if err != nil {
		return fmt.Errorf("refresh job: %w", err)
	}
	res, err := j.uc.Refresh(ctx, req.params())
	if err != nil {
		return fmt.Errorf("refresh %s: %w", req.Symbol, err)
	}
	j.l.Info("factors refreshed",
		applogger.String("symbol", req.Symbol),
		applogger.Int("rows", res.Rows()),
		applogger.Bool("absent", res.IsAbsent()),
	)
	return nil
}

// EnqueueRefresh validates req and hands it to q. The queued request
// carries the resolved date range, so a job that runs later refreshes the
// entry it was deduplicated under.
func (uc *FactorsUseCase) EnqueueRefresh(ctx context.Context, q queue.Enqueuer, req RefreshRequest) error {
	p, err := uc.Resolve(req.params())
	if err != nil {
		return err
	}
	fixed := p.Params()
	req = RefreshRequest{
		Symbol:    fixed.Symbol,
		Start:     fixed.Start,
		End:       fixed.End,
		Timeframe: fixed.Timeframe,
		Mode:      fixed.Mode,
		Kind:      p.Kind(),
	}
	if err := q.Enqueue(ctx, RefreshMessageType, req); err != nil {
		return fmt.Errorf("enqueue refresh %s: %w", p.Symbol, err)
	}
	return nil
}

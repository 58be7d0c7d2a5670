package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rifaescolar/raffle-backend/internal/settlement"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
	"github.com/rifaescolar/raffle-backend/pkg/metrics"
)

// sweeper is the slice of the settlement service the job needs.
type sweeper interface {
	SweepExpired(ctx context.Context, holdTimeout time.Duration) (*settlement.SweepResult, error)
}

// SweepJobParams configure the hold expiry job.
type SweepJobParams struct {
	Logger      *logger.Logger
	Settlement  sweeper
	Metrics     *metrics.SweepMetrics
	HoldTimeout time.Duration
}

// NewSweepJob builds the job that cancels expired pending purchases and
// releases orphaned reservation holds.
func NewSweepJob(params SweepJobParams) (*SweepJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	if params.HoldTimeout <= 0 {
		return nil, fmt.Errorf("hold timeout must be positive")
	}
	return &SweepJob{
		logg:        params.Logger,
		settlement:  params.Settlement,
		metrics:     params.Metrics,
		holdTimeout: params.HoldTimeout,
	}, nil
}

// SweepJob runs one expiry pass and remembers its outcome, so an on-demand
// trigger can report the counts of the cycle it just ran.
type SweepJob struct {
	logg        *logger.Logger
	settlement  sweeper
	metrics     *metrics.SweepMetrics
	holdTimeout time.Duration

	mu      sync.Mutex
	lastRes *settlement.SweepResult
	lastErr error
}

func (j *SweepJob) Name() string { return "hold-expiry-sweep" }

// LastOutcome returns the result and error of the most recent run.
func (j *SweepJob) LastOutcome() (*settlement.SweepResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRes, j.lastErr
}

func (j *SweepJob) Run(ctx context.Context) error {
	result, err := j.settlement.SweepExpired(ctx, j.holdTimeout)
	j.mu.Lock()
	j.lastRes = result
	j.lastErr = err
	j.mu.Unlock()
	if result != nil {
		if j.metrics != nil {
			j.metrics.AddCancelled(result.CancelledPurchases)
			j.metrics.AddReleased(result.ReleasedNumbers)
		}
		if result.CancelledPurchases > 0 || result.ReleasedNumbers > 0 {
			swept := j.logg.WithFields(ctx, map[string]any{
				"cancelled_purchases": result.CancelledPurchases,
				"released_numbers":    result.ReleasedNumbers,
			})
			j.logg.Info(swept, "expired holds reclaimed")
		}
	}
	return err
}

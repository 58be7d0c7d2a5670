package cron

import (
	"context"
	"fmt"

	"github.com/rifaescolar/raffle-backend/internal/settlement"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
)

// Runner executes the sweep on demand under the same lock as the scheduled
// worker, so an HTTP trigger and a worker cycle never sweep concurrently.
type Runner struct {
	service *Service
	job     *SweepJob
}

// NewRunner builds an on-demand runner over the cron service and its sweep job.
func NewRunner(service *Service, job *SweepJob) (*Runner, error) {
	if service == nil {
		return nil, fmt.Errorf("cron service required")
	}
	if job == nil {
		return nil, fmt.Errorf("sweep job required")
	}
	return &Runner{service: service, job: job}, nil
}

// SweepNow runs one locked cycle and reports what the sweep reclaimed. A
// cycle skipped because another instance holds the lock surfaces as a state
// conflict rather than an empty result.
func (r *Runner) SweepNow(ctx context.Context) (*settlement.SweepResult, error) {
	ran, err := r.service.RunOnce(ctx)
	if err != nil {
		return nil, err
	}
	if !ran {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a sweep is already running")
	}
	return r.job.LastOutcome()
}

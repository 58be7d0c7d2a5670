package controllers

import (
	"context"
	"net/http"

	"github.com/rifaescolar/raffle-backend/api/responses"
	"github.com/rifaescolar/raffle-backend/internal/settlement"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
)

// SweepTrigger runs one locked expiry pass on demand.
type SweepTrigger interface {
	SweepNow(ctx context.Context) (*settlement.SweepResult, error)
}

// TriggerCleanup runs the hold expiry sweep once, under the same lock as the
// worker loop. It backs the external cron trigger for deployments without a
// resident worker.
func TriggerCleanup(svc SweepTrigger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sweep service unavailable"))
			return
		}
		result, err := svc.SweepNow(ctx)
		if err != nil {
			// Partial progress still counts; report it with the failure.
			if logg != nil && result != nil && (result.CancelledPurchases > 0 || result.ReleasedNumbers > 0) {
				ctx = logg.WithFields(ctx, map[string]any{
					"cancelled_purchases": result.CancelledPurchases,
					"released_numbers":    result.ReleasedNumbers,
				})
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

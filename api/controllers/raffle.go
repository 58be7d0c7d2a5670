package controllers

import (
	"context"
	"net/http"

	"github.com/rifaescolar/raffle-backend/api/responses"
	"github.com/rifaescolar/raffle-backend/internal/raffle"
	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
)

// RaffleService is the slice of internal/raffle the HTTP layer needs.
type RaffleService interface {
	Active(ctx context.Context) (*models.Raffle, error)
	Stats(ctx context.Context) (*raffle.StatsResponse, error)
	Numbers(ctx context.Context) ([]models.TicketNumber, error)
}

// GetRaffle returns the active campaign.
func GetRaffle(svc RaffleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "raffle service unavailable"))
			return
		}
		active, err := svc.Active(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, active)
	}
}

// GetRaffleStats returns the campaign with per-status number counts.
func GetRaffleStats(svc RaffleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "raffle service unavailable"))
			return
		}
		stats, err := svc.Stats(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

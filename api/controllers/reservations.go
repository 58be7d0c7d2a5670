package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/rifaescolar/raffle-backend/api/responses"
	"github.com/rifaescolar/raffle-backend/api/validators"
	"github.com/rifaescolar/raffle-backend/internal/reservation"
	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
)

// ReservationService places holds on numbers of the active raffle.
type ReservationService interface {
	Reserve(ctx context.Context, raffle *models.Raffle, numbers []int, holdTimeout time.Duration) (*reservation.Result, error)
}

type createReservationRequest struct {
	Numbers []int `json:"numbers" validate:"required,min=1,max=20"`
}

// CreateReservation holds the requested numbers for the configured window.
func CreateReservation(raffles RaffleService, svc ReservationService, holdTimeout time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if raffles == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		var body createReservationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		active, err := raffles.Active(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Reserve(ctx, active, body.Numbers, holdTimeout)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

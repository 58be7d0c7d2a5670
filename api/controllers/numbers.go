package controllers

import (
	"context"
	"net/http"

	"github.com/rifaescolar/raffle-backend/api/responses"
	"github.com/rifaescolar/raffle-backend/api/validators"
	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
)

// AvailabilityService verifies number availability against the active raffle.
type AvailabilityService interface {
	Verify(ctx context.Context, raffle *models.Raffle, numbers []int) ([]int, error)
}

// ListNumbers returns every number of the active raffle with its status.
func ListNumbers(svc RaffleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "raffle service unavailable"))
			return
		}
		numbers, err := svc.Numbers(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, numbers)
	}
}

type verifyNumbersRequest struct {
	Numbers []int `json:"numbers" validate:"required,min=1,max=20"`
}

type verifyNumbersResponse struct {
	Available          bool  `json:"available"`
	UnavailableNumbers []int `json:"unavailableNumbers"`
}

// VerifyNumbers reports whether the requested numbers are all still free.
// A positive answer is advisory only; reservation remains the step that
// actually claims anything.
func VerifyNumbers(raffles RaffleService, svc AvailabilityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if raffles == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "availability service unavailable"))
			return
		}

		var body verifyNumbersRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		active, err := raffles.Active(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		unavailable, err := svc.Verify(ctx, active, body.Numbers)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, verifyNumbersResponse{
			Available:          len(unavailable) == 0,
			UnavailableNumbers: unavailable,
		})
	}
}

package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rifaescolar/raffle-backend/api/responses"
	"github.com/rifaescolar/raffle-backend/api/validators"
	"github.com/rifaescolar/raffle-backend/internal/purchase"
	"github.com/rifaescolar/raffle-backend/internal/settlement"
	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	"github.com/rifaescolar/raffle-backend/pkg/enums"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
	"github.com/rifaescolar/raffle-backend/pkg/mercadopago"
)

// PurchaseService converts reservations into orders and reads them back.
type PurchaseService interface {
	Create(ctx context.Context, raffle *models.Raffle, input purchase.CreateInput) (*purchase.CreateResult, error)
	Get(ctx context.Context, id string) (*purchase.CreateResult, error)
}

// SettlementService drives purchases to a terminal payment status.
type SettlementService interface {
	Confirm(ctx context.Context, input settlement.ConfirmInput) (*models.Purchase, error)
	Cancel(ctx context.Context, purchaseID string, status enums.PaymentStatus, reason string) (*models.Purchase, int64, error)
}

// PreferenceClient creates hosted checkout sessions.
type PreferenceClient interface {
	CreatePreference(ctx context.Context, input mercadopago.CreatePreferenceInput) (*mercadopago.Preference, error)
}

// PreferenceRecorder persists the checkout session id on the purchase.
type PreferenceRecorder interface {
	SetPreferenceID(ctx context.Context, id, preferenceID string) error
}

type createPurchaseRequest struct {
	ReservationID string  `json:"reservationId" validate:"omitempty"`
	Numbers       []int   `json:"numbers" validate:"omitempty,min=1,max=20"`
	BuyerName     string  `json:"buyerName" validate:"required,min=2,max=120"`
	StudentName   string  `json:"studentName" validate:"required,min=2,max=120"`
	Division      string  `json:"division" validate:"required,max=10"`
	Course        string  `json:"course" validate:"required,max=40"`
	Email         string  `json:"email" validate:"required,email"`
	Phone         *string `json:"phone" validate:"omitempty,max=30"`
}

// CreatePurchase attaches buyer details to a live reservation. A request
// without a reservationId carries the numbers instead; the hold is placed
// here before the order is created, so picking and buying is one round trip.
func CreatePurchase(raffles RaffleService, reservations ReservationService, svc PurchaseService, holdTimeout time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if raffles == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}

		var body createPurchaseRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if body.ReservationID == "" && len(body.Numbers) == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "either reservationId or numbers is required"))
			return
		}

		active, err := raffles.Active(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		reservationID := body.ReservationID
		if reservationID == "" {
			if reservations == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
				return
			}
			held, err := reservations.Reserve(ctx, active, body.Numbers, holdTimeout)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			// If Create fails past this point the hold stands; the sweeper
			// reaps it once the window closes.
			reservationID = held.ReservationID
		}

		result, err := svc.Create(ctx, active, purchase.CreateInput{
			ReservationID: reservationID,
			BuyerName:     body.BuyerName,
			StudentName:   body.StudentName,
			Division:      body.Division,
			Course:        body.Course,
			Email:         body.Email,
			Phone:         body.Phone,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// GetPurchase returns a purchase and its numbers.
func GetPurchase(svc PurchaseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		result, err := svc.Get(ctx, chi.URLParam(r, "purchaseID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CancelPurchase settles a pending purchase as cancelled at the buyer's
// request. Already-settled purchases come back unchanged.
func CancelPurchase(svc SettlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		row, _, err := svc.Cancel(ctx, chi.URLParam(r, "purchaseID"), enums.PaymentStatusCancelled, "buyer request")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

type confirmPurchaseRequest struct {
	PaymentID     *string `json:"paymentId" validate:"omitempty,max=64"`
	PaymentMethod *string `json:"paymentMethod" validate:"omitempty,max=40"`
}

// ConfirmPurchase settles a pending purchase as approved without waiting for
// the provider webhook. It backs manual reconciliation and checkout flows
// that confirm from the success page; settlement stays idempotent, so a
// webhook landing later is a no-op.
func ConfirmPurchase(svc SettlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		var body confirmPurchaseRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		row, err := svc.Confirm(ctx, settlement.ConfirmInput{
			PurchaseID:    chi.URLParam(r, "purchaseID"),
			PaymentID:     body.PaymentID,
			PaymentMethod: body.PaymentMethod,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

// CreatePreference opens a hosted checkout session for a pending purchase.
// The session expires together with the remaining hold window.
func CreatePreference(purchases PurchaseService, client PreferenceClient, recorder PreferenceRecorder, holdTimeout time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if purchases == nil || recorder == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "payments are not configured"))
			return
		}

		result, err := purchases.Get(ctx, chi.URLParam(r, "purchaseID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		row := result.Purchase
		if row.PaymentStatus != enums.PaymentStatusPending {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "purchase is not pending"))
			return
		}

		remaining := holdTimeout - time.Since(row.CreatedAt)
		if remaining <= 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "payment window expired"))
			return
		}

		pref, err := client.CreatePreference(ctx, mercadopago.CreatePreferenceInput{
			PurchaseID:  row.ID,
			BuyerName:   row.BuyerName,
			Email:       row.Email,
			Numbers:     result.Numbers,
			TotalAmount: row.TotalAmount,
			ExpiresIn:   remaining,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := recorder.SetPreferenceID(ctx, row.ID, pref.ID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, pref)
	}
}

package webhooks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rifaescolar/raffle-backend/api/responses"
	mpwebhook "github.com/rifaescolar/raffle-backend/internal/webhooks/mercadopago"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
	"github.com/rifaescolar/raffle-backend/pkg/mercadopago"
)

type WebhookService interface {
	HandleNotification(ctx context.Context, notification *mpwebhook.Notification) error
}

type WebhookGuard interface {
	CheckAndMark(ctx context.Context, notificationID string) (bool, error)
	Delete(ctx context.Context, notificationID string) error
}

type SigningClient interface {
	SigningSecret() string
}

// MercadoPagoWebhook handles payment notifications. The signature covers the
// data id and the timestamp from the x-signature header; a guard drops
// repeated deliveries of the same payment event.
func MercadoPagoWebhook(svc WebhookService, client SigningClient, guard WebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		// Notification bodies carry provider fields beyond what we read, so
		// decode leniently instead of through the strict body validator.
		var notification mpwebhook.Notification
		if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification body"))
			return
		}

		dataID := notification.Data.ID
		if dataID == "" {
			dataID = r.URL.Query().Get("data.id")
		}
		signature := r.Header.Get("x-signature")
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature missing"))
			return
		}
		if !mercadopago.VerifySignature(dataID, signature, client.SigningSecret()) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature"))
			return
		}

		// The action distinguishes created from updated deliveries, so a
		// later state change of the same payment is not swallowed by the
		// mark of an earlier one.
		markID := notification.Type + ":" + notification.Action + ":" + dataID
		alreadyProcessed, err := guard.CheckAndMark(ctx, markID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleNotification(ctx, &notification); err != nil {
			_ = guard.Delete(ctx, markID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}

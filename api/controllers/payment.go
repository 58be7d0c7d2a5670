package controllers

import (
	"net/http"
	"net/url"

	"github.com/rifaescolar/raffle-backend/api/responses"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
)

// paymentReturn is what the buyer gets back when no storefront redirect is
// configured.
type paymentReturn struct {
	Outcome       string `json:"outcome"`
	PurchaseID    string `json:"purchaseId,omitempty"`
	PaymentID     string `json:"paymentId,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

// PaymentReturn receives the buyer coming back from the hosted checkout.
// Mercado Pago appends the outcome as query parameters. With a redirect base
// configured the buyer is forwarded to the storefront result page carrying
// those parameters; otherwise the outcome is answered directly. Settlement
// itself never happens here; the webhook owns that.
func PaymentReturn(outcome, redirectBase string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()

		result := paymentReturn{
			Outcome:       outcome,
			PurchaseID:    q.Get("external_reference"),
			PaymentID:     q.Get("payment_id"),
			PaymentStatus: q.Get("collection_status"),
		}
		if result.PaymentID == "" {
			result.PaymentID = q.Get("collection_id")
		}
		if result.PaymentStatus == "" {
			result.PaymentStatus = q.Get("status")
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"outcome":        outcome,
				"purchase_id":    result.PurchaseID,
				"payment_id":     result.PaymentID,
				"payment_status": result.PaymentStatus,
			})
			logg.Info(ctx, "buyer returned from checkout")
		}

		if target, ok := redirectTarget(redirectBase, result); ok {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func redirectTarget(base string, result paymentReturn) (string, bool) {
	if base == "" {
		return "", false
	}
	target, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	vals := target.Query()
	vals.Set("outcome", result.Outcome)
	if result.PurchaseID != "" {
		vals.Set("purchaseId", result.PurchaseID)
	}
	if result.PaymentID != "" {
		vals.Set("paymentId", result.PaymentID)
	}
	if result.PaymentStatus != "" {
		vals.Set("paymentStatus", result.PaymentStatus)
	}
	target.RawQuery = vals.Encode()
	return target.String(), true
}

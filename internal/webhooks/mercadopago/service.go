package mpwebhook

import (
	"context"
	"strconv"
	"strings"

	"github.com/rifaescolar/raffle-backend/internal/settlement"
	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	"github.com/rifaescolar/raffle-backend/pkg/enums"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
	"github.com/rifaescolar/raffle-backend/pkg/mercadopago"
)

// Notification is the body Mercado Pago posts for a payment event.
type Notification struct {
	ID     int64  `json:"id"`
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

type paymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*mercadopago.PaymentInfo, error)
}

type settler interface {
	Confirm(ctx context.Context, input settlement.ConfirmInput) (*models.Purchase, error)
	Cancel(ctx context.Context, purchaseID string, status enums.PaymentStatus, reason string) (*models.Purchase, int64, error)
	Refund(ctx context.Context, purchaseID, reason string) (*models.Purchase, int64, error)
}

type ServiceParams struct {
	Payments   paymentFetcher
	Settlement settler
	Logger     *logger.Logger
}

// Service resolves a payment notification against the payments API and
// settles the referenced purchase. Statuses not yet terminal on the provider
// side are left alone; the retry or the sweeper picks them up later.
type Service struct {
	payments   paymentFetcher
	settlement settler
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments client required")
	}
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments:   params.Payments,
		settlement: params.Settlement,
		logg:       params.Logger,
	}, nil
}

// HandleNotification processes one payment notification. Non-payment topics
// are acknowledged without action.
func (s *Service) HandleNotification(ctx context.Context, notification *Notification) error {
	if notification == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification required")
	}
	if notification.Type != "payment" {
		return nil
	}
	if notification.Data.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing from notification")
	}

	payment, err := s.payments.GetPayment(ctx, notification.Data.ID)
	if err != nil {
		return err
	}

	purchaseID := payment.ExternalReference
	if !strings.HasPrefix(purchaseID, "PUR-") {
		ctx := s.logg.WithField(ctx, "external_reference", purchaseID)
		s.logg.Warn(ctx, "payment does not reference a purchase")
		return nil
	}
	ctx = s.logg.WithPurchaseID(ctx, purchaseID)

	paymentID := strconv.FormatInt(payment.ID, 10)
	switch payment.Status {
	case "approved":
		method := payment.PaymentMethodID
		_, err := s.settlement.Confirm(ctx, settlement.ConfirmInput{
			PurchaseID:    purchaseID,
			PaymentID:     &paymentID,
			PaymentMethod: &method,
		})
		return err
	case "rejected":
		_, _, err := s.settlement.Cancel(ctx, purchaseID, enums.PaymentStatusRejected, payment.StatusDetail)
		return err
	case "cancelled":
		_, _, err := s.settlement.Cancel(ctx, purchaseID, enums.PaymentStatusCancelled, payment.StatusDetail)
		return err
	case "refunded", "charged_back":
		_, _, err := s.settlement.Refund(ctx, purchaseID, payment.StatusDetail)
		return err
	default:
		// pending, in_process, authorized: nothing to settle yet.
		ctx := s.logg.WithField(ctx, "payment_status", payment.Status)
		s.logg.Info(ctx, "payment not terminal, ignoring notification")
		return nil
	}
}

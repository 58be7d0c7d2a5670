package settlement

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rifaescolar/raffle-backend/internal/inventory"
	"github.com/rifaescolar/raffle-backend/internal/purchase"
	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	"github.com/rifaescolar/raffle-backend/pkg/enums"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
	"github.com/rifaescolar/raffle-backend/pkg/eventlog"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
)

// Service drives a purchase to its terminal payment status and keeps the
// ticket rows in step. All status writes are conditional on pending, so a
// purchase settles exactly once no matter how often a signal arrives.
type Service struct {
	db        *gorm.DB
	purchases *purchase.Repository
	inventory *inventory.Repository
	events    *eventlog.Service
	logg      *logger.Logger
}

func NewService(db *gorm.DB, purchases *purchase.Repository, inv *inventory.Repository, events *eventlog.Service, logg *logger.Logger) *Service {
	return &Service{db: db, purchases: purchases, inventory: inv, events: events, logg: logg}
}

// ConfirmInput carries what the payment provider told us about an approval.
type ConfirmInput struct {
	PurchaseID    string
	PaymentID     *string
	PaymentMethod *string
}

// Confirm settles a pending purchase as approved and marks its numbers sold.
// A purchase already settled, in any terminal status, is left untouched.
func (s *Service) Confirm(ctx context.Context, input ConfirmInput) (*models.Purchase, error) {
	ctx = s.logg.WithPurchaseID(ctx, input.PurchaseID)

	row, err := s.purchases.FindByID(ctx, input.PurchaseID)
	if err != nil {
		return nil, err
	}

	var settled bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		settled, err = s.purchases.WithTx(tx).SettleIfPending(ctx, input.PurchaseID, enums.PaymentStatusApproved, input.PaymentID, input.PaymentMethod)
		if err != nil || !settled {
			return err
		}
		sold, err := s.inventory.WithTx(tx).MarkSoldByHolder(ctx, input.PurchaseID, time.Now())
		if err != nil {
			return err
		}
		if sold != int64(row.NumbersCount) {
			// The sweeper may have reclaimed part of the hold before the
			// approval arrived. Record it; the sale stands for what is left.
			s.logg.Warn(ctx, "confirmed purchase sold fewer numbers than ordered")
		}
		return s.events.Emit(ctx, tx, eventlog.DomainEvent{
			EventType:     enums.EventPaymentConfirmed,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   input.PurchaseID,
			Version:       1,
			Data: map[string]any{
				"paymentId":   input.PaymentID,
				"soldNumbers": sold,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if !settled {
		s.logg.Info(ctx, "confirm ignored, purchase already settled")
		return s.purchases.FindByID(ctx, input.PurchaseID)
	}

	s.logg.Info(ctx, "purchase confirmed")
	return s.purchases.FindByID(ctx, input.PurchaseID)
}

// Cancel settles a pending purchase as cancelled or rejected and returns its
// numbers to the pool. Repeated cancellations are no-ops. The second return
// is the number of rows the release actually freed, which can be lower than
// the purchase's numbers count when some were reclaimed earlier.
func (s *Service) Cancel(ctx context.Context, purchaseID string, status enums.PaymentStatus, reason string) (*models.Purchase, int64, error) {
	if status != enums.PaymentStatusCancelled && status != enums.PaymentStatusRejected {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "cancel status must be cancelled or rejected")
	}
	ctx = s.logg.WithPurchaseID(ctx, purchaseID)

	if _, err := s.purchases.FindByID(ctx, purchaseID); err != nil {
		return nil, 0, err
	}

	var settled bool
	var released int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		settled, err = s.purchases.WithTx(tx).SettleIfPending(ctx, purchaseID, status, nil, nil)
		if err != nil || !settled {
			return err
		}
		released, err = s.inventory.WithTx(tx).ReleaseByHolder(ctx, purchaseID, false)
		if err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, eventlog.DomainEvent{
			EventType:     enums.EventPaymentCancelled,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchaseID,
			Version:       1,
			Data: map[string]any{
				"status":          status,
				"reason":          reason,
				"releasedNumbers": released,
			},
		})
	})
	if err != nil {
		return nil, 0, err
	}
	if !settled {
		s.logg.Info(ctx, "cancel ignored, purchase already settled")
		row, err := s.purchases.FindByID(ctx, purchaseID)
		return row, 0, err
	}

	s.logg.Info(ctx, "purchase cancelled")
	row, err := s.purchases.FindByID(ctx, purchaseID)
	return row, released, err
}

// Refund revokes an approved purchase after the provider reports a refund or
// chargeback, returning its sold numbers to the pool. Purchases not approved
// (or already refunded) are left untouched.
func (s *Service) Refund(ctx context.Context, purchaseID, reason string) (*models.Purchase, int64, error) {
	ctx = s.logg.WithPurchaseID(ctx, purchaseID)

	if _, err := s.purchases.FindByID(ctx, purchaseID); err != nil {
		return nil, 0, err
	}

	var revoked bool
	var released int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		revoked, err = s.purchases.WithTx(tx).RevokeIfApproved(ctx, purchaseID)
		if err != nil || !revoked {
			return err
		}
		released, err = s.inventory.WithTx(tx).ReleaseByHolder(ctx, purchaseID, true)
		if err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, eventlog.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchaseID,
			Version:       1,
			Data: map[string]any{
				"reason":          reason,
				"releasedNumbers": released,
			},
		})
	})
	if err != nil {
		return nil, 0, err
	}
	if !revoked {
		s.logg.Info(ctx, "refund ignored, purchase not approved")
		row, err := s.purchases.FindByID(ctx, purchaseID)
		return row, 0, err
	}

	s.logg.Info(ctx, "purchase refunded, numbers returned to the pool")
	row, err := s.purchases.FindByID(ctx, purchaseID)
	return row, released, err
}

// SweepResult counts what one expiry pass reclaimed.
type SweepResult struct {
	CancelledPurchases int `json:"cancelledPurchases"`
	ReleasedNumbers    int `json:"releasedNumbers"`
}

// SweepExpired cancels pending purchases older than the hold timeout and
// releases reserved numbers whose hold never became an order. Failures on
// individual purchases do not stop the pass; they are aggregated and
// returned alongside the partial result.
func (s *Service) SweepExpired(ctx context.Context, holdTimeout time.Duration) (*SweepResult, error) {
	cutoff := time.Now().Add(-holdTimeout)
	result := &SweepResult{}
	var errs error

	expired, err := s.purchases.FindExpiredPending(ctx, cutoff, 0)
	if err != nil {
		return result, err
	}
	for _, row := range expired {
		_, released, err := s.Cancel(ctx, row.ID, enums.PaymentStatusCancelled, "payment window expired")
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		result.CancelledPurchases++
		result.ReleasedNumbers += int(released)
	}

	orphans, err := s.inventory.FindExpiredOrphans(ctx, cutoff)
	if err != nil {
		return result, multierr.Append(errs, err)
	}
	if len(orphans) > 0 {
		released, err := s.inventory.ReleaseExpiredOrphans(ctx, cutoff)
		if err != nil {
			return result, multierr.Append(errs, err)
		}
		result.ReleasedNumbers += int(released)
		s.appendExpiryEvents(ctx, orphans)
	}

	return result, errs
}

// appendExpiryEvents writes one reservation_expired event per reaped hold.
// Event append failures are logged, never fatal to the sweep.
func (s *Service) appendExpiryEvents(ctx context.Context, orphans []models.TicketNumber) {
	byHolder := make(map[string][]int)
	for _, row := range orphans {
		if row.HolderRef == nil {
			continue
		}
		byHolder[*row.HolderRef] = append(byHolder[*row.HolderRef], row.Number)
	}
	for holder, numbers := range byHolder {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.events.Emit(ctx, tx, eventlog.DomainEvent{
				EventType:     enums.EventReservationExpired,
				AggregateType: enums.AggregateReservation,
				AggregateID:   holder,
				Version:       1,
				Data:          map[string]any{"numbers": numbers},
			})
		})
		if err != nil {
			s.logg.Error(s.logg.WithReservationID(ctx, holder), "expiry event append failed", err)
		}
	}
}

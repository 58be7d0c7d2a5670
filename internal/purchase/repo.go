package purchase

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	"github.com/rifaescolar/raffle-backend/pkg/enums"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
)

// Repository owns the purchases table. Status changes are conditional writes
// keyed on payment_status = pending, so a purchase settles exactly once.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx rebinds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Insert creates a new pending purchase row.
func (r *Repository) Insert(ctx context.Context, row *models.Purchase) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert purchase")
	}
	return nil
}

// FindByID loads a purchase by its PUR- id.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.Purchase, error) {
	var row models.Purchase
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
	}
	return &row, nil
}

// SettleIfPending moves a purchase from pending to the given terminal status.
// It returns false when the row was already settled, which is how repeated
// webhook deliveries and the sweeper stay idempotent.
func (r *Repository) SettleIfPending(ctx context.Context, id string, next enums.PaymentStatus, paymentID, paymentMethod *string) (bool, error) {
	if !next.IsTerminal() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "settlement status must be terminal")
	}
	updates := map[string]any{
		"payment_status": next,
		"updated_at":     time.Now(),
	}
	if paymentID != nil {
		updates["mp_payment_id"] = *paymentID
	}
	if paymentMethod != nil {
		updates["payment_method"] = *paymentMethod
	}
	result := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND payment_status = ?", id, enums.PaymentStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "settle purchase")
	}
	return result.RowsAffected == 1, nil
}

// RevokeIfApproved moves an approved purchase to cancelled, for refunds and
// chargebacks. The conditional write makes a repeated refund notification a
// no-op, same as SettleIfPending does for first settlement.
func (r *Repository) RevokeIfApproved(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND payment_status = ?", id, enums.PaymentStatusApproved).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusCancelled,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "revoke purchase")
	}
	return result.RowsAffected == 1, nil
}

// SetPreferenceID records the checkout preference created for the purchase.
func (r *Repository) SetPreferenceID(ctx context.Context, id, preferenceID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"mp_preference_id": preferenceID,
			"updated_at":       time.Now(),
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set preference id")
	}
	return nil
}

// FindExpiredPending lists pending purchases created before the cutoff.
func (r *Repository) FindExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error) {
	var rows []models.Purchase
	query := r.db.WithContext(ctx).
		Where("payment_status = ? AND created_at <= ?", enums.PaymentStatusPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired pending purchases")
	}
	return rows, nil
}

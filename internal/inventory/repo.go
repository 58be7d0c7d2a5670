package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	"github.com/rifaescolar/raffle-backend/pkg/enums"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
)

// HoldPrefix marks transient reservation ids in holder_ref. Purchase ids use
// PurchasePrefix once a hold has been re-homed to an order.
const (
	HoldPrefix     = "TEMP"
	PurchasePrefix = "PUR"
)

// Repository owns the ticket_numbers table. Every mutation goes through a
// conditional UPDATE keyed on the current status (and holder where relevant);
// RowsAffected is the success signal. Nothing here reads then writes.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
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

// ListByRaffle returns every number of the raffle ordered by number.
func (r *Repository) ListByRaffle(ctx context.Context, raffleID int64) ([]models.TicketNumber, error) {
	var rows []models.TicketNumber
	err := r.db.WithContext(ctx).
		Where("raffle_id = ?", raffleID).
		Order("number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ticket numbers")
	}
	return rows, nil
}

// GetByNumber loads a single ticket row.
func (r *Repository) GetByNumber(ctx context.Context, raffleID int64, number int) (*models.TicketNumber, error) {
	var row models.TicketNumber
	err := r.db.WithContext(ctx).
		Where("raffle_id = ? AND number = ?", raffleID, number).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket number not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket number")
	}
	return &row, nil
}

// FindByHolder returns every row whose holder_ref matches, ordered by number.
func (r *Repository) FindByHolder(ctx context.Context, holderRef string) ([]models.TicketNumber, error) {
	var rows []models.TicketNumber
	err := r.db.WithContext(ctx).
		Where("holder_ref = ?", holderRef).
		Order("number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list holder numbers")
	}
	return rows, nil
}

// CompareAndSetStatus transitions one number from expected to the new status
// in a single conditional UPDATE. It returns false, without side effect, when
// the row's status no longer matches expected at the moment of the write.
func (r *Repository) CompareAndSetStatus(ctx context.Context, raffleID int64, number int, expected, next enums.TicketStatus, holderRef *string, now time.Time) (bool, error) {
	updates := statusUpdates(next, holderRef, now)
	result := r.db.WithContext(ctx).
		Model(&models.TicketNumber{}).
		Where("raffle_id = ? AND number = ? AND status = ?", raffleID, number, expected).
		Updates(updates)
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "conditional status update")
	}
	return result.RowsAffected == 1, nil
}

// RehomeHolder re-points a reserved number from one holder to another without
// touching its status. The write is conditional on the previous holder, so a
// hold that expired (and was re-reserved by someone else) cannot be captured.
func (r *Repository) RehomeHolder(ctx context.Context, raffleID int64, number int, prevHolder, newHolder string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TicketNumber{}).
		Where("raffle_id = ? AND number = ? AND status = ? AND holder_ref = ?",
			raffleID, number, enums.TicketStatusReserved, prevHolder).
		Updates(map[string]any{
			"holder_ref": newHolder,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "re-home holder")
	}
	return result.RowsAffected == 1, nil
}

// MarkSoldByHolder flips every reserved number of the holder to sold. Rows
// already sold (or released) are skipped by the status condition, which is
// what makes settlement idempotent at the row level.
func (r *Repository) MarkSoldByHolder(ctx context.Context, holderRef string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TicketNumber{}).
		Where("holder_ref = ? AND status = ?", holderRef, enums.TicketStatusReserved).
		Updates(map[string]any{
			"status":      enums.TicketStatusSold,
			"sold_at":     now,
			"reserved_at": nil,
			"updated_at":  now,
		})
	if result.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "mark numbers sold")
	}
	return result.RowsAffected, nil
}

// ReleaseByHolder returns every reserved (and, for refund corrections, sold)
// number of the holder to the pool, clearing holder and timestamps.
func (r *Repository) ReleaseByHolder(ctx context.Context, holderRef string, includeSold bool) (int64, error) {
	statuses := []enums.TicketStatus{enums.TicketStatusReserved}
	if includeSold {
		statuses = append(statuses, enums.TicketStatusSold)
	}
	result := r.db.WithContext(ctx).
		Model(&models.TicketNumber{}).
		Where("holder_ref = ? AND status IN ?", holderRef, statuses).
		Updates(releaseUpdates())
	if result.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "release holder numbers")
	}
	return result.RowsAffected, nil
}

// FindExpiredOrphans lists reserved rows older than the cutoff that still
// carry a transient hold id.
func (r *Repository) FindExpiredOrphans(ctx context.Context, cutoff time.Time) ([]models.TicketNumber, error) {
	var rows []models.TicketNumber
	err := r.db.WithContext(ctx).
		Where("status = ? AND reserved_at <= ? AND holder_ref LIKE ?",
			enums.TicketStatusReserved, cutoff, HoldPrefix+"-%").
		Order("number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired orphans")
	}
	return rows, nil
}

// ReleaseExpiredOrphans frees reserved rows older than the cutoff that still
// carry a transient hold id, meaning order creation never happened for them.
func (r *Repository) ReleaseExpiredOrphans(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TicketNumber{}).
		Where("status = ? AND reserved_at <= ? AND holder_ref LIKE ?",
			enums.TicketStatusReserved, cutoff, HoldPrefix+"-%").
		Updates(releaseUpdates())
	if result.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "release expired orphans")
	}
	return result.RowsAffected, nil
}

// Seed inserts rows 1..total for a fresh raffle in batches. Existing numbers
// make the unique index fire, so seeding an already-seeded raffle fails fast.
func (r *Repository) Seed(ctx context.Context, raffleID int64, total int) error {
	if total <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "total numbers must be positive")
	}
	rows := make([]models.TicketNumber, 0, total)
	for n := 1; n <= total; n++ {
		rows = append(rows, models.TicketNumber{
			RaffleID: raffleID,
			Number:   n,
			Status:   enums.TicketStatusAvailable,
		})
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&rows, 500).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed ticket numbers")
	}
	return nil
}

// Stats reports counts per status for the raffle.
type Stats struct {
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
	Reserved  int64 `json:"reserved"`
	Sold      int64 `json:"sold"`
}

func (r *Repository) Stats(ctx context.Context, raffleID int64) (*Stats, error) {
	var rows []struct {
		Status enums.TicketStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.TicketNumber{}).
		Select("status, COUNT(*) AS count").
		Where("raffle_id = ?", raffleID).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count ticket numbers")
	}
	stats := &Stats{}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case enums.TicketStatusAvailable:
			stats.Available = row.Count
		case enums.TicketStatusReserved:
			stats.Reserved = row.Count
		case enums.TicketStatusSold:
			stats.Sold = row.Count
		}
	}
	return stats, nil
}

func statusUpdates(next enums.TicketStatus, holderRef *string, now time.Time) map[string]any {
	switch next {
	case enums.TicketStatusReserved:
		return map[string]any{
			"status":      enums.TicketStatusReserved,
			"reserved_at": now,
			"sold_at":     nil,
			"holder_ref":  holderRef,
			"updated_at":  now,
		}
	case enums.TicketStatusSold:
		return map[string]any{
			"status":      enums.TicketStatusSold,
			"sold_at":     now,
			"reserved_at": nil,
			"holder_ref":  holderRef,
			"updated_at":  now,
		}
	default:
		return releaseUpdates()
	}
}

func releaseUpdates() map[string]any {
	return map[string]any{
		"status":      enums.TicketStatusAvailable,
		"reserved_at": nil,
		"sold_at":     nil,
		"holder_ref":  nil,
		"updated_at":  time.Now(),
	}
}

// IsHoldRef reports whether the holder reference is a transient hold id.
func IsHoldRef(holderRef string) bool {
	return strings.HasPrefix(holderRef, HoldPrefix+"-")
}

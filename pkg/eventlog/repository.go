package eventlog

import (
	"errors"

	"gorm.io/gorm"

	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	"github.com/rifaescolar/raffle-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.EventLog) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// FindByAggregate lists the audit trail for one reservation or purchase in
// insertion order. Read path only; used for reconciliation.
func (r *Repository) FindByAggregate(aggregateType enums.AggregateType, aggregateID string) ([]models.EventLog, error) {
	var rows []models.EventLog
	err := r.db.
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

package raffle

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
)

// Repository reads raffle campaigns. Writes happen through migrations or an
// admin seed, so only lookups live here.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindActive returns the single active campaign. When several rows are
// flagged active the newest one wins.
func (r *Repository) FindActive(ctx context.Context) (*models.Raffle, error) {
	var row models.Raffle
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active raffle")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active raffle")
	}
	return &row, nil
}

// FindByID loads a raffle by primary key.
func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Raffle, error) {
	var row models.Raffle
	err := r.db.WithContext(ctx).First(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "raffle not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load raffle")
	}
	return &row, nil
}

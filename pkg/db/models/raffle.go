package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Raffle represents one sales campaign. At most one raffle is active at a time.
type Raffle struct {
	ID             int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Title          string          `gorm:"column:title;not null"`
	Description    *string         `gorm:"column:description"`
	TotalNumbers   int             `gorm:"column:total_numbers;not null;default:1500"`
	PricePerNumber decimal.Decimal `gorm:"column:price_per_number;type:numeric(12,2);not null"`
	StartDate      time.Time       `gorm:"column:start_date;not null"`
	EndDate        time.Time       `gorm:"column:end_date;not null"`
	IsActive       bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

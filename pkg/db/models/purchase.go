package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rifaescolar/raffle-backend/pkg/enums"
)

// Purchase is a buyer's attempt to buy a specific set of numbers. It is
// created pending and reaches exactly one terminal payment status. The ticket
// rows belonging to a purchase reference it through their holder_ref column.
type Purchase struct {
	ID            string              `gorm:"column:id;primaryKey"`
	RaffleID      int64               `gorm:"column:raffle_id;not null"`
	BuyerName     string              `gorm:"column:buyer_name;not null"`
	StudentName   string              `gorm:"column:student_name;not null"`
	Division      string              `gorm:"column:division;not null"`
	Course        string              `gorm:"column:course;not null"`
	Email         string              `gorm:"column:email;not null"`
	Phone         *string             `gorm:"column:phone"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	NumbersCount  int                 `gorm:"column:numbers_count;not null"`
	PreferenceID  *string             `gorm:"column:mp_preference_id"`
	PaymentID     *string             `gorm:"column:mp_payment_id"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentMethod *string             `gorm:"column:payment_method"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

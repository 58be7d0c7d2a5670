package models

import (
	"time"

	"github.com/rifaescolar/raffle-backend/pkg/enums"
)

// TicketNumber is one sellable number of a raffle. Status moves along
// available -> reserved -> sold, with reserved -> available on release and
// sold -> available on refund correction. HolderRef carries either a transient
// reservation id (TEMP-...) or a purchase id (PUR-...) and is set exactly when
// the row is reserved or sold.
type TicketNumber struct {
	ID         int64              `gorm:"column:id;primaryKey;autoIncrement"`
	RaffleID   int64              `gorm:"column:raffle_id;not null;uniqueIndex:ux_ticket_numbers_raffle_number"`
	Number     int                `gorm:"column:number;not null;uniqueIndex:ux_ticket_numbers_raffle_number"`
	Status     enums.TicketStatus `gorm:"column:status;type:text;not null;default:'available'"`
	ReservedAt *time.Time         `gorm:"column:reserved_at"`
	SoldAt     *time.Time         `gorm:"column:sold_at"`
	HolderRef  *string            `gorm:"column:holder_ref"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

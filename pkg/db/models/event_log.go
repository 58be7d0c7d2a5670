package models

import (
	"encoding/json"
	"time"

	"github.com/rifaescolar/raffle-backend/pkg/enums"
)

// EventLog is an append-only audit row. Rows are never updated or deleted;
// they exist for reconciliation, not for control flow.
type EventLog struct {
	ID            int64               `gorm:"column:id;primaryKey;autoIncrement"`
	EventType     enums.EventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.AggregateType `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   string              `gorm:"column:aggregate_id;not null"`
	Payload       json.RawMessage     `gorm:"column:payload;type:text;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookLog is the append-only record of every notification received
// from the payment gateway. A row is committed before any processing so
// a crash mid-reconciliation never loses the notification.
type WebhookLog struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Source            string          `gorm:"column:source;not null"`
	EventType         string          `gorm:"column:event_type;not null"`
	ExternalPaymentID *string         `gorm:"column:external_payment_id;index"`
	Payload           json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	Processed         bool            `gorm:"column:processed;not null;default:false"`
	ProcessingError   *string         `gorm:"column:processing_error"`
	ReceivedAt        time.Time       `gorm:"column:received_at;autoCreateTime"`
	ProcessedAt       *time.Time      `gorm:"column:processed_at"`
}

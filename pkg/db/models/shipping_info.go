package models

import (
	"time"

	"github.com/google/uuid"
)

// ShippingInfo holds the delivery address snapshot for an order.
type ShippingInfo struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	RecipientName  string    `gorm:"column:recipient_name;not null"`
	Phone          string    `gorm:"column:phone;not null"`
	AddressLine1   string    `gorm:"column:address_line1;not null"`
	AddressLine2   *string   `gorm:"column:address_line2"`
	City           string    `gorm:"column:city;not null"`
	State          string    `gorm:"column:state;not null"`
	PostalCode     string    `gorm:"column:postal_code;not null"`
	Country        string    `gorm:"column:country;not null"`
	TrackingNumber *string   `gorm:"column:tracking_number"`
	Carrier        *string   `gorm:"column:carrier"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// Order is a purchase or rental request for one product by one customer.
type Order struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID     uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	ProductID      uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	TerritoryID    uuid.UUID           `gorm:"column:territory_id;type:uuid;not null"`
	Kind           enums.OrderKind     `gorm:"column:kind;type:order_kind;not null"`
	Status         enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'created'"`
	PaymentStatus  enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	TotalPaise     int64               `gorm:"column:total_paise;not null"`
	TechnicianID   *uuid.UUID          `gorm:"column:technician_id;type:uuid"`
	InstallationAt *time.Time          `gorm:"column:installation_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// Payment is a single gateway transaction tied to one order or one rental
// renewal. A payment transitions from pending to a terminal status at most
// once and is never reused for a different amount.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	RentalID          *uuid.UUID          `gorm:"column:rental_id;type:uuid"`
	Kind              enums.PaymentKind   `gorm:"column:kind;type:payment_kind;not null"`
	Status            enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	AmountPaise       int64               `gorm:"column:amount_paise;not null"`
	GatewayOrderRef   *string             `gorm:"column:gateway_order_ref;type:text"`
	GatewayPaymentRef *string             `gorm:"column:gateway_payment_ref;type:text"`
	FailureReason     *string             `gorm:"column:failure_reason;type:text"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

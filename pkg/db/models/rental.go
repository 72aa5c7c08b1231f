package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// Rental is the recurring-billing entity spawned exactly once when a
// rental-kind order reaches installed. order_id carries a unique constraint
// so a duplicate spawn fails at the store.
type Rental struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_rentals_order_id"`
	CustomerID         uuid.UUID          `gorm:"column:customer_id;type:uuid;not null"`
	ProductID          uuid.UUID          `gorm:"column:product_id;type:uuid;not null"`
	TerritoryID        uuid.UUID          `gorm:"column:territory_id;type:uuid;not null"`
	Status             enums.RentalStatus `gorm:"column:status;type:rental_status;not null;default:'active'"`
	StartDate          time.Time          `gorm:"column:start_date;not null"`
	PausedAt           *time.Time         `gorm:"column:paused_at"`
	EndDate            *time.Time         `gorm:"column:end_date"`
	CurrentPeriodStart time.Time          `gorm:"column:current_period_start;not null"`
	CurrentPeriodEnd   time.Time          `gorm:"column:current_period_end;not null"`
	MonthlyAmountPaise int64              `gorm:"column:monthly_amount_paise;not null"`
	DepositPaise       int64              `gorm:"column:deposit_paise;not null"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

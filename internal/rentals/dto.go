package rentals

import (
	"time"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// Summary is the list-row shape returned by paginated rental queries.
type Summary struct {
	ID                 uuid.UUID          `json:"id"`
	OrderID            uuid.UUID          `json:"order_id"`
	CustomerID         uuid.UUID          `json:"customer_id"`
	ProductID          uuid.UUID          `json:"product_id"`
	TerritoryID        uuid.UUID          `json:"territory_id"`
	Status             enums.RentalStatus `json:"status"`
	StartDate          time.Time          `json:"start_date"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	MonthlyAmountPaise int64              `json:"monthly_amount_paise"`
	DepositPaise       int64              `json:"deposit_paise"`
	CreatedAt          time.Time          `json:"created_at"`
}

// ToSummary converts a rental row into its list shape.
func ToSummary(rental models.Rental) Summary {
	return Summary{
		ID:                 rental.ID,
		OrderID:            rental.OrderID,
		CustomerID:         rental.CustomerID,
		ProductID:          rental.ProductID,
		TerritoryID:        rental.TerritoryID,
		Status:             rental.Status,
		StartDate:          rental.StartDate,
		CurrentPeriodStart: rental.CurrentPeriodStart,
		CurrentPeriodEnd:   rental.CurrentPeriodEnd,
		MonthlyAmountPaise: rental.MonthlyAmountPaise,
		DepositPaise:       rental.DepositPaise,
		CreatedAt:          rental.CreatedAt,
	}
}

// RentalList wraps the paginated rentals plus the next page cursor.
type RentalList struct {
	Rentals    []Summary `json:"rentals"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// RenewalSession is returned by InitiateRenewal; the client completes the
// gateway checkout against GatewayOrderRef.
type RenewalSession struct {
	PaymentID       uuid.UUID `json:"payment_id"`
	RentalID        uuid.UUID `json:"rental_id"`
	GatewayOrderRef string    `json:"gateway_order_ref"`
	AmountPaise     int64     `json:"amount_paise"`
	Currency        string    `json:"currency"`
}

// ConfirmRenewalInput carries the gateway callback fields for a renewal.
type ConfirmRenewalInput struct {
	GatewayOrderRef   string
	GatewayPaymentRef string
	Signature         string
}

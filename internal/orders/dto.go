package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// Filters describe the optional list filters for territory-scoped queries.
type Filters struct {
	Status *enums.OrderStatus
	Kind   *enums.OrderKind
}

// Summary is the list-row shape returned by paginated order queries.
type Summary struct {
	ID             uuid.UUID           `json:"id"`
	CustomerID     uuid.UUID           `json:"customer_id"`
	ProductID      uuid.UUID           `json:"product_id"`
	TerritoryID    uuid.UUID           `json:"territory_id"`
	Kind           enums.OrderKind     `json:"kind"`
	Status         enums.OrderStatus   `json:"status"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	TotalPaise     int64               `json:"total_paise"`
	TechnicianID   *uuid.UUID          `json:"technician_id,omitempty"`
	InstallationAt *time.Time          `json:"installation_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// ToSummary converts an order row into its list shape.
func ToSummary(order models.Order) Summary {
	return Summary{
		ID:             order.ID,
		CustomerID:     order.CustomerID,
		ProductID:      order.ProductID,
		TerritoryID:    order.TerritoryID,
		Kind:           order.Kind,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		TotalPaise:     order.TotalPaise,
		TechnicianID:   order.TechnicianID,
		InstallationAt: order.InstallationAt,
		CreatedAt:      order.CreatedAt,
	}
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []Summary `json:"orders"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// CreateInput carries the fields needed to open an order. InstallationAt is
// the optional preferred installation date and must not be in the past.
type CreateInput struct {
	CustomerID     uuid.UUID
	ProductID      uuid.UUID
	Kind           enums.OrderKind
	InstallationAt *time.Time
}

// PaymentSession is returned by InitiatePayment; the client completes the
// gateway checkout against GatewayOrderRef.
type PaymentSession struct {
	PaymentID       uuid.UUID `json:"payment_id"`
	OrderID         uuid.UUID `json:"order_id"`
	GatewayOrderRef string    `json:"gateway_order_ref"`
	AmountPaise     int64     `json:"amount_paise"`
	Currency        string    `json:"currency"`
}

// ConfirmInput carries the gateway callback fields for payment verification.
type ConfirmInput struct {
	GatewayOrderRef   string
	GatewayPaymentRef string
	Signature         string
}

// AssignInput carries a technician assignment.
type AssignInput struct {
	OrderID      uuid.UUID
	TechnicianID uuid.UUID
}

// CancelInput carries an order cancellation.
type CancelInput struct {
	OrderID uuid.UUID
	Reason  string
}

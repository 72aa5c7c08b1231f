package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// OrderCreatedEvent signals a new order entering the lifecycle.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	TerritoryID uuid.UUID       `json:"territory_id"`
	Kind        enums.OrderKind `json:"kind"`
	TotalPaise  int64           `json:"total_paise"`
}

// OrderPaymentCompletedEvent is emitted when a verified payment settles an order.
type OrderPaymentCompletedEvent struct {
	OrderID           uuid.UUID `json:"order_id"`
	PaymentID         uuid.UUID `json:"payment_id"`
	CustomerID        uuid.UUID `json:"customer_id"`
	AmountPaise       int64     `json:"amount_paise"`
	GatewayPaymentRef string    `json:"gateway_payment_ref"`
}

// OrderAssignedEvent tells the assigned technician about new work.
type OrderAssignedEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	TechnicianID uuid.UUID `json:"technician_id"`
	TerritoryID  uuid.UUID `json:"territory_id"`
}

// OrderStatusChangedEvent records a lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	From       enums.OrderStatus `json:"from"`
	To         enums.OrderStatus `json:"to"`
}

// OrderCancelledEvent is emitted when an order is cancelled pre-terminal.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// PaymentFailedEvent surfaces a gateway rejection.
type PaymentFailedEvent struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Reason     string    `json:"reason,omitempty"`
}

// RentalCreatedEvent signals a rental spawned from an installed order.
type RentalCreatedEvent struct {
	RentalID   uuid.UUID `json:"rental_id"`
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	ProductID  uuid.UUID `json:"product_id"`
	StartDate  time.Time `json:"start_date"`
}

// RentalStatusEvent covers pause, resume, and terminate transitions.
type RentalStatusEvent struct {
	RentalID   uuid.UUID          `json:"rental_id"`
	CustomerID uuid.UUID          `json:"customer_id"`
	Status     enums.RentalStatus `json:"status"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// RentalRenewedEvent is emitted when a verified renewal payment extends the period.
type RentalRenewedEvent struct {
	RentalID         uuid.UUID `json:"rental_id"`
	CustomerID       uuid.UUID `json:"customer_id"`
	PaymentID        uuid.UUID `json:"payment_id"`
	CurrentPeriodEnd time.Time `json:"current_period_end"`
}

// NotificationRequestedEvent tells the worker to materialize an in-app notification.
type NotificationRequestedEvent struct {
	UserID        uuid.UUID              `json:"user_id"`
	Type          enums.NotificationType `json:"type"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	ReferenceID   *uuid.UUID             `json:"reference_id,omitempty"`
	ReferenceType string                 `json:"reference_type,omitempty"`
}

// TerritoryReassignRequestedEvent triggers the batched customer re-resolution
// sweep after a territory boundary changes.
type TerritoryReassignRequestedEvent struct {
	TerritoryID uuid.UUID `json:"territory_id"`
	RequestedAt time.Time `json:"requested_at"`
}

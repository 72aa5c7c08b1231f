package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
	"github.com/aquarent/aquarent-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListTerritoryOrders(ctx context.Context, territoryID uuid.UUID, params pagination.Params, filters Filters) (*OrderList, error)
	ListTechnicianOrders(ctx context.Context, technicianID uuid.UUID, params pagination.Params) (*OrderList, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	// UpdateOrderStatusGuarded moves the order to the target status only when
	// its current status is one of the allowed sources. Returns rows affected;
	// zero means a concurrent writer got there first.
	UpdateOrderStatusGuarded(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus, extra map[string]any) (int64, error)
	// FindStalePaymentPending lists orders still awaiting payment that were
	// created before the cutoff, oldest first.
	FindStalePaymentPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)

	CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindPaymentByGatewayOrderRef(ctx context.Context, gatewayOrderRef string) (*models.Payment, error)
	FindLatestPendingPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	// AttachGatewayOrderRefGuarded stamps the gateway order ref on a pending
	// payment that has none yet. Returns rows affected; zero means the payment
	// settled or another initiation won.
	AttachGatewayOrderRefGuarded(ctx context.Context, id uuid.UUID, gatewayOrderRef string) (int64, error)
	// CompletePaymentGuarded settles a pending payment exactly once.
	CompletePaymentGuarded(ctx context.Context, id uuid.UUID, gatewayPaymentRef string) (int64, error)
	// FailPaymentGuarded marks a pending payment failed exactly once.
	FailPaymentGuarded(ctx context.Context, id uuid.UUID, reason string) (int64, error)
}

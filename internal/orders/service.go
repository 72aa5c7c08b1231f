package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/internal/permissions"
	"github.com/aquarent/aquarent-backend/internal/products"
	"github.com/aquarent/aquarent-backend/internal/users"
	dbpkg "github.com/aquarent/aquarent-backend/pkg/db"
	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
	pkgerrors "github.com/aquarent/aquarent-backend/pkg/errors"
	"github.com/aquarent/aquarent-backend/pkg/geo"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/outbox"
	"github.com/aquarent/aquarent-backend/pkg/outbox/payloads"
	"github.com/aquarent/aquarent-backend/pkg/pagination"
	"github.com/aquarent/aquarent-backend/pkg/razorpay"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// TerritoryResolver maps a coordinate to its covering territory.
type TerritoryResolver interface {
	Resolve(ctx context.Context, point geo.Point) (*models.Territory, error)
}

// Gateway is the payment-provider surface the order lifecycle needs.
type Gateway interface {
	CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.GatewayOrder, error)
	VerifyPaymentSignature(orderRef, paymentRef, signature string) bool
	Currency() string
}

// RentalSpawner creates the rental row when a rental-kind order is installed.
// It runs inside the order transition transaction.
type RentalSpawner interface {
	CreateFromOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Rental, error)
}

// Service drives the order lifecycle: creation, payment, assignment,
// installation, and cancellation.
type Service interface {
	Create(ctx context.Context, principal permissions.Principal, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, principal permissions.Principal, orderID uuid.UUID) (*models.Order, error)
	ListMine(ctx context.Context, principal permissions.Principal, params pagination.Params, filters Filters) (*OrderList, error)
	InitiatePayment(ctx context.Context, principal permissions.Principal, orderID uuid.UUID) (*PaymentSession, error)
	ConfirmPayment(ctx context.Context, input ConfirmInput) error
	AssignTechnician(ctx context.Context, principal permissions.Principal, input AssignInput) error
	UpdateStatus(ctx context.Context, principal permissions.Principal, orderID uuid.UUID, target enums.OrderStatus) error
	Cancel(ctx context.Context, principal permissions.Principal, input CancelInput) error
}

type service struct {
	repo        Repository
	userRepo    users.Repository
	productRepo products.Repository
	territories TerritoryResolver
	gateway     Gateway
	rentals     RentalSpawner
	tx          txRunner
	outbox      outboxPublisher
	logg        *logger.Logger
}

// ServiceParams names the dependencies for the order service.
type ServiceParams struct {
	Repo        Repository
	UserRepo    users.Repository
	ProductRepo products.Repository
	Territories TerritoryResolver
	Gateway     Gateway
	Rentals     RentalSpawner
	Tx          txRunner
	Outbox      outboxPublisher
	Logger      *logger.Logger
}

// NewService builds the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.ProductRepo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Territories == nil {
		return nil, fmt.Errorf("territory resolver required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Rentals == nil {
		return nil, fmt.Errorf("rental spawner required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:        params.Repo,
		userRepo:    params.UserRepo,
		productRepo: params.ProductRepo,
		territories: params.Territories,
		gateway:     params.Gateway,
		rentals:     params.Rentals,
		tx:          params.Tx,
		outbox:      params.Outbox,
		logg:        params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, principal permissions.Principal, input CreateInput) (*models.Order, error) {
	if !permissions.CanPerform(principal, permissions.ActionOrderCreate, permissions.Resource{}) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only customers create orders")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order kind must be purchase or rental")
	}
	if input.InstallationAt != nil && input.InstallationAt.Before(time.Now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "installation date cannot be in the past")
	}
	customerID := input.CustomerID
	if customerID == uuid.Nil {
		customerID = principal.UserID
	}
	if principal.Role != enums.RoleAdmin && customerID != principal.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot order on behalf of another customer")
	}

	customer, err := s.userRepo.FindByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	if customer.LocationLat == nil || customer.LocationLng == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer location not set")
	}

	territory, err := s.territories.Resolve(ctx, geo.Point{Lat: *customer.LocationLat, Lng: *customer.LocationLng})
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.FindByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}

	var total int64
	switch input.Kind {
	case enums.OrderKindPurchase:
		if !product.Purchasable {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not purchasable")
		}
		total = product.BuyPricePaise + product.InstallFeePaise
	case enums.OrderKindRental:
		if !product.Rentable {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not rentable")
		}
		total = product.MonthlyRentPaise + product.DepositPaise + product.InstallFeePaise
	}

	order := &models.Order{
		CustomerID:     customer.ID,
		ProductID:      product.ID,
		TerritoryID:    territory.ID,
		Kind:           input.Kind,
		Status:         enums.OrderStatusCreated,
		PaymentStatus:  enums.PaymentStatusPending,
		TotalPaise:     total,
		InstallationAt: input.InstallationAt,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		created, err := repo.CreateOrder(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		order = created

		// The pending payment is born with the order; InitiatePayment later
		// attaches the gateway session to it.
		kind := enums.PaymentKindPurchase
		if order.Kind == enums.OrderKindRental {
			kind = enums.PaymentKindDeposit
		}
		payment := &models.Payment{
			OrderID:     order.ID,
			Kind:        kind,
			Status:      enums.PaymentStatusPending,
			AmountPaise: order.TotalPaise,
		}
		if _, err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create pending payment")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(principal),
			Version:       1,
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				CustomerID:  order.CustomerID,
				ProductID:   order.ProductID,
				TerritoryID: order.TerritoryID,
				Kind:        order.Kind,
				TotalPaise:  order.TotalPaise,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order created event")
		}
		return s.queueNotification(ctx, tx, payloads.NotificationRequestedEvent{
			UserID:        order.CustomerID,
			Type:          enums.NotificationTypeOrderUpdate,
			Title:         "Order received",
			Message:       fmt.Sprintf("Your %s order for %s has been created.", order.Kind, product.Name),
			ReferenceID:   &order.ID,
			ReferenceType: "order",
		}, order.ID)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, principal permissions.Principal, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !permissions.CanPerform(principal, permissions.ActionOrderView, orderResource(order)) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "access denied")
	}
	return order, nil
}

func (s *service) ListMine(ctx context.Context, principal permissions.Principal, params pagination.Params, filters Filters) (*OrderList, error) {
	switch principal.Role {
	case enums.RoleCustomer:
		list, err := s.repo.ListCustomerOrders(ctx, principal.UserID, params)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customer orders")
		}
		return list, nil
	case enums.RoleTechnician:
		list, err := s.repo.ListTechnicianOrders(ctx, principal.UserID, params)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list technician orders")
		}
		return list, nil
	case enums.RoleFranchiseOwner:
		if principal.TerritoryID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "franchise owner has no territory")
		}
		list, err := s.repo.ListTerritoryOrders(ctx, *principal.TerritoryID, params, filters)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list territory orders")
		}
		return list, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders")
}

func (s *service) InitiatePayment(ctx context.Context, principal permissions.Principal, orderID uuid.UUID) (*PaymentSession, error) {
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if principal.Role != enums.RoleAdmin && order.CustomerID != principal.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
	}
	if order.Status != enums.OrderStatusCreated && order.Status != enums.OrderStatusPaymentPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment")
	}

	// The payment row was created with the order; this call only attaches a
	// gateway session to it.
	payment, err := s.repo.FindLatestPendingPayment(ctx, order.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no pending payment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending payment")
	}

	// Re-initiation reuses the open gateway session instead of opening a
	// second one for the same payment.
	if payment.GatewayOrderRef != nil {
		return &PaymentSession{
			PaymentID:       payment.ID,
			OrderID:         order.ID,
			GatewayOrderRef: *payment.GatewayOrderRef,
			AmountPaise:     payment.AmountPaise,
			Currency:        s.gateway.Currency(),
		}, nil
	}

	// The gateway call happens before any local transition so a gateway
	// failure leaves the order and its payment untouched.
	gatewayOrder, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderRequest{
		AmountPaise: payment.AmountPaise,
		Receipt:     order.ID.String(),
		Notes:       map[string]string{"order_id": order.ID.String()},
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.AttachGatewayOrderRefGuarded(ctx, payment.ID, gatewayOrder.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach gateway order ref")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment state changed concurrently")
		}

		rows, err = repo.UpdateOrderStatusGuarded(ctx, order.ID,
			[]enums.OrderStatus{enums.OrderStatusCreated, enums.OrderStatusPaymentPending},
			enums.OrderStatusPaymentPending, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move order to payment pending")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order state changed concurrently")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &PaymentSession{
		PaymentID:       payment.ID,
		OrderID:         order.ID,
		GatewayOrderRef: gatewayOrder.ID,
		AmountPaise:     payment.AmountPaise,
		Currency:        s.gateway.Currency(),
	}, nil
}

func (s *service) ConfirmPayment(ctx context.Context, input ConfirmInput) error {
	if input.GatewayOrderRef == "" || input.GatewayPaymentRef == "" || input.Signature == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway order ref, payment ref, and signature are required")
	}

	payment, err := s.repo.FindPaymentByGatewayOrderRef(ctx, input.GatewayOrderRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	if !s.gateway.VerifyPaymentSignature(input.GatewayOrderRef, input.GatewayPaymentRef, input.Signature) {
		failErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			rows, err := repo.FailPaymentGuarded(ctx, payment.ID, "signature verification failed")
			if err != nil {
				return err
			}
			if rows == 0 {
				return nil
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentFailed,
				AggregateType: enums.AggregatePayment,
				AggregateID:   payment.ID,
				Version:       1,
				Data: payloads.PaymentFailedEvent{
					PaymentID:  payment.ID,
					OrderID:    payment.OrderID,
					CustomerID: s.customerOf(ctx, payment.OrderID),
					Reason:     "signature verification failed",
				},
			})
		})
		if failErr != nil && s.logg != nil {
			s.logg.Error(ctx, "record failed payment", failErr)
		}
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "payment signature verification failed")
	}

	// Already settled with the same payment ref: the confirmation was
	// retried, report success without touching anything.
	if payment.Status == enums.PaymentStatusCompleted {
		if payment.GatewayPaymentRef != nil && *payment.GatewayPaymentRef == input.GatewayPaymentRef {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "payment already settled with a different reference")
	}
	if payment.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is no longer pending")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.CompletePaymentGuarded(ctx, payment.ID, input.GatewayPaymentRef)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payment")
		}
		if rows == 0 {
			// Lost the race. Success only if the winner settled the same ref.
			current, err := repo.FindPaymentByID(ctx, payment.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
			}
			if current.Status == enums.PaymentStatusCompleted &&
				current.GatewayPaymentRef != nil && *current.GatewayPaymentRef == input.GatewayPaymentRef {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is no longer pending")
		}

		rows, err = repo.UpdateOrderStatusGuarded(ctx, payment.OrderID,
			[]enums.OrderStatus{enums.OrderStatusPaymentPending},
			enums.OrderStatusPaymentCompleted,
			map[string]any{"payment_status": enums.PaymentStatusCompleted})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move order to payment completed")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment")
		}

		order, err := repo.FindOrderByID(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.OrderPaymentCompletedEvent{
				OrderID:           order.ID,
				PaymentID:         payment.ID,
				CustomerID:        order.CustomerID,
				AmountPaise:       payment.AmountPaise,
				GatewayPaymentRef: input.GatewayPaymentRef,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue payment completed event")
		}
		if err := s.queueNotification(ctx, tx, payloads.NotificationRequestedEvent{
			UserID:        order.CustomerID,
			Type:          enums.NotificationTypePaymentUpdate,
			Title:         "Payment received",
			Message:       "Your payment was verified. We will assign a technician shortly.",
			ReferenceID:   &order.ID,
			ReferenceType: "order",
		}, order.ID); err != nil {
			return err
		}

		// Fan out to every technician who can pick up the install: those bound
		// to the order territory plus the unbound pool.
		technicians, err := s.userRepo.ListEligibleTechnicians(ctx, order.TerritoryID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible technicians")
		}
		for _, technician := range technicians {
			if err := s.queueNotification(ctx, tx, payloads.NotificationRequestedEvent{
				UserID:        technician.ID,
				Type:          enums.NotificationTypeAssignment,
				Title:         "Order ready for assignment",
				Message:       "A paid order in your area is waiting for a technician.",
				ReferenceID:   &order.ID,
				ReferenceType: "order",
			}, order.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) AssignTechnician(ctx context.Context, principal permissions.Principal, input AssignInput) error {
	if input.TechnicianID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "technician id required")
	}
	order, err := s.loadOrder(ctx, s.repo, input.OrderID)
	if err != nil {
		return err
	}
	if !permissions.CanPerform(principal, permissions.ActionOrderAssign, orderResource(order)) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot assign technicians for this order")
	}
	if order.Status != enums.OrderStatusPaymentCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not ready for assignment")
	}

	technician, err := s.userRepo.FindByID(ctx, input.TechnicianID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "technician not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load technician")
	}
	if technician.Role != enums.RoleTechnician || !technician.Active {
		return pkgerrors.New(pkgerrors.CodeValidation, "user is not an active technician")
	}
	switch {
	case technician.TerritoryID == nil:
		// Unbound technicians float across territories; only admins may
		// commit them.
		if principal.Role != enums.RoleAdmin {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only admins assign unbound technicians")
		}
	case *technician.TerritoryID != order.TerritoryID:
		return pkgerrors.New(pkgerrors.CodeValidation, "technician does not cover the order territory")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.UpdateOrderStatusGuarded(ctx, order.ID,
			[]enums.OrderStatus{enums.OrderStatusPaymentCompleted},
			enums.OrderStatusAssigned,
			map[string]any{"technician_id": technician.ID})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign technician")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order state changed concurrently")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderAssigned,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(principal),
			Version:       1,
			Data: payloads.OrderAssignedEvent{
				OrderID:      order.ID,
				CustomerID:   order.CustomerID,
				TechnicianID: technician.ID,
				TerritoryID:  order.TerritoryID,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue assignment event")
		}
		if err := s.queueNotification(ctx, tx, payloads.NotificationRequestedEvent{
			UserID:        technician.ID,
			Type:          enums.NotificationTypeAssignment,
			Title:         "New installation assigned",
			Message:       "An installation has been assigned to you.",
			ReferenceID:   &order.ID,
			ReferenceType: "order",
		}, order.ID); err != nil {
			return err
		}
		return s.queueNotification(ctx, tx, payloads.NotificationRequestedEvent{
			UserID:        order.CustomerID,
			Type:          enums.NotificationTypeOrderUpdate,
			Title:         "Technician assigned",
			Message:       "A technician has been assigned to your order.",
			ReferenceID:   &order.ID,
			ReferenceType: "order",
		}, order.ID)
	})
}

// updatableTargets are the statuses callers may request through UpdateStatus.
// Payment transitions have dedicated entry points; cancellation goes through
// Cancel. Setting assigned here rolls a pending installation back to an
// already-recorded technician; first-time assignment goes through
// AssignTechnician.
var updatableTargets = map[enums.OrderStatus]bool{
	enums.OrderStatusAssigned:            true,
	enums.OrderStatusInstallationPending: true,
	enums.OrderStatusInstalled:           true,
	enums.OrderStatusCompleted:           true,
}

func (s *service) UpdateStatus(ctx context.Context, principal permissions.Principal, orderID uuid.UUID, target enums.OrderStatus) error {
	if !target.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	if !updatableTargets[target] {
		return pkgerrors.New(pkgerrors.CodeValidation, "status cannot be set directly")
	}
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return err
	}
	if !permissions.CanPerform(principal, permissions.ActionOrderUpdateStatus, orderResource(order)) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot update this order")
	}
	if !CanTransition(order.Status, target) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, target))
	}
	if target == enums.OrderStatusAssigned && order.TechnicianID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no technician on record")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.UpdateOrderStatusGuarded(ctx, order.ID,
			sourcesFor(target), target, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order state changed concurrently")
		}

		// Installation of a rental order spawns the recurring rental in the
		// same transaction. The unique order_id index makes the spawn
		// idempotent under replays.
		if target == enums.OrderStatusInstalled && order.Kind == enums.OrderKindRental {
			if _, err := s.rentals.CreateFromOrder(ctx, tx, order); err != nil {
				if !dbpkg.IsUniqueViolation(err, "ux_rentals_order_id") {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "spawn rental")
				}
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(principal),
			Version:       1,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				From:       order.Status,
				To:         target,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue status change event")
		}
		return s.queueNotification(ctx, tx, payloads.NotificationRequestedEvent{
			UserID:        order.CustomerID,
			Type:          enums.NotificationTypeOrderUpdate,
			Title:         "Order update",
			Message:       fmt.Sprintf("Your order is now %s.", target),
			ReferenceID:   &order.ID,
			ReferenceType: "order",
		}, order.ID)
	})
}

func (s *service) Cancel(ctx context.Context, principal permissions.Principal, input CancelInput) error {
	order, err := s.loadOrder(ctx, s.repo, input.OrderID)
	if err != nil {
		return err
	}

	var sources []enums.OrderStatus
	switch {
	case principal.Role == enums.RoleAdmin:
		sources = cancellableStatuses()
	case permissions.CanPerform(principal, permissions.ActionOrderCancel, orderResource(order)):
		// Customers may only back out before payment settles.
		sources = []enums.OrderStatus{enums.OrderStatusCreated, enums.OrderStatusPaymentPending}
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot cancel this order")
	}

	if order.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order already finished")
	}
	allowed := false
	for _, status := range sources {
		if status == order.Status {
			allowed = true
			break
		}
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %s cannot be cancelled", order.Status))
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.UpdateOrderStatusGuarded(ctx, order.ID, sources, enums.OrderStatusCancelled, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order state changed concurrently")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(principal),
			Version:       1,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				CustomerID:  order.CustomerID,
				CancelledAt: time.Now().UTC(),
				Reason:      input.Reason,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue cancellation event")
		}
		return s.queueNotification(ctx, tx, payloads.NotificationRequestedEvent{
			UserID:        order.CustomerID,
			Type:          enums.NotificationTypeOrderUpdate,
			Title:         "Order cancelled",
			Message:       "Your order has been cancelled.",
			ReferenceID:   &order.ID,
			ReferenceType: "order",
		}, order.ID)
	})
}

func (s *service) loadOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) queueNotification(ctx context.Context, tx *gorm.DB, payload payloads.NotificationRequestedEvent, aggregateID uuid.UUID) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   aggregateID,
		Version:       1,
		Data:          payload,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue notification")
	}
	return nil
}

func (s *service) customerOf(ctx context.Context, orderID uuid.UUID) uuid.UUID {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return uuid.Nil
	}
	return order.CustomerID
}

func orderResource(order *models.Order) permissions.Resource {
	territoryID := order.TerritoryID
	return permissions.Resource{
		OwnerUserID:  order.CustomerID,
		TerritoryID:  &territoryID,
		TechnicianID: order.TechnicianID,
	}
}

func actorRef(principal permissions.Principal) *outbox.ActorRef {
	if principal.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{
		UserID:      principal.UserID,
		TerritoryID: principal.TerritoryID,
		Role:        principal.Role.String(),
	}
}

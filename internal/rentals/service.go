package rentals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/internal/orders"
	"github.com/aquarent/aquarent-backend/internal/permissions"
	"github.com/aquarent/aquarent-backend/internal/products"
	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
	pkgerrors "github.com/aquarent/aquarent-backend/pkg/errors"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/outbox"
	"github.com/aquarent/aquarent-backend/pkg/outbox/payloads"
	"github.com/aquarent/aquarent-backend/pkg/pagination"
	"github.com/aquarent/aquarent-backend/pkg/razorpay"
)

// renewalWindow is how far before the current period end a customer may open
// a renewal payment.
const renewalWindow = 7 * 24 * time.Hour

const expireBatchSize = 50

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives the rental lifecycle: spawn on installation, pause, resume,
// terminate, monthly renewal, and the overdue-expiry sweep.
type Service interface {
	// CreateFromOrder spawns the rental for an installed rental-kind order.
	// It runs inside the order transition transaction.
	CreateFromOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Rental, error)

	Get(ctx context.Context, principal permissions.Principal, rentalID uuid.UUID) (*models.Rental, error)
	ListMine(ctx context.Context, principal permissions.Principal, params pagination.Params) (*RentalList, error)
	Pause(ctx context.Context, principal permissions.Principal, rentalID uuid.UUID) error
	Resume(ctx context.Context, principal permissions.Principal, rentalID uuid.UUID) error
	Terminate(ctx context.Context, principal permissions.Principal, rentalID uuid.UUID) error
	InitiateRenewal(ctx context.Context, principal permissions.Principal, rentalID uuid.UUID) (*RenewalSession, error)
	ConfirmRenewal(ctx context.Context, input ConfirmRenewalInput) error
	// ExpireOverdue marks active rentals whose period lapsed as expired and
	// returns how many were moved.
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

type service struct {
	repo        Repository
	orderRepo   orders.Repository
	productRepo products.Repository
	gateway     orders.Gateway
	tx          txRunner
	outbox      outboxPublisher
	logg        *logger.Logger
	now         func() time.Time
}

// ServiceParams names the dependencies for the rental service.
type ServiceParams struct {
	Repo        Repository
	OrderRepo   orders.Repository
	ProductRepo products.Repository
	Gateway     orders.Gateway
	Tx          txRunner
	Outbox      outboxPublisher
	Logger      *logger.Logger
	Now         func() time.Time
}

// NewService builds the rental service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("rentals repository required")
	}
	if params.OrderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.ProductRepo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repo,
		orderRepo:   params.OrderRepo,
		productRepo: params.ProductRepo,
		gateway:     params.Gateway,
		tx:          params.Tx,
		outbox:      params.Outbox,
		logg:        params.Logger,
		now:         now,
	}, nil
}

func (s *service) CreateFromOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Rental, error) {
	if order.Kind != enums.OrderKindRental {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not a rental")
	}
	product, err := s.productRepo.FindByID(ctx, order.ProductID)
	if err != nil {
		return nil, err
	}

	start := s.now().UTC()
	rental := &models.Rental{
		OrderID:            order.ID,
		CustomerID:         order.CustomerID,
		ProductID:          order.ProductID,
		TerritoryID:        order.TerritoryID,
		Status:             enums.RentalStatusActive,
		StartDate:          start,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.AddDate(0, 1, 0),
		MonthlyAmountPaise: product.MonthlyRentPaise,
		DepositPaise:       product.DepositPaise,
	}
	created, err := s.repo.WithTx(tx).Create(ctx, rental)
	if err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventRentalCreated,
		AggregateType: enums.AggregateRental,
		AggregateID:   created.ID,
		Version:       1,
		Data: payloads.RentalCreatedEvent{
			RentalID:   created.ID,
			OrderID:    created.OrderID,
			CustomerID: created.CustomerID,
			ProductID:  created.ProductID,
			StartDate:  created.StartDate,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	if err := s.queueNotification(ctx, tx, payloads.NotificationRequestedEvent{
		UserID:        created.CustomerID,
		Type:          enums.NotificationTypeRentalUpdate,
		Title:         "Rental started",
		Message:       "Your purifier is installed and your rental is now active.",
		ReferenceID:   &created.ID,
		ReferenceType: "rental",
	}, created.ID); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, principal permissions.Principal, rentalID uuid.UUID) (*models.Rental, error) {
	rental, err := s.loadRental(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if !permissions.CanPerform(principal, permissions.ActionRentalView, rentalResource(rental)) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "access denied")
	}
	return rental, nil
}

func (s *service) ListMine(ctx context.Context, principal permissions.Principal, params pagination.Params) (*RentalList, error) {
	switch principal.Role {
	case enums.RoleCustomer:
		list, err := s.repo.ListCustomerRentals(ctx, principal.UserID, params)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customer rentals")
		}
		return list, nil
	case enums.RoleFranchiseOwner:
		if principal.TerritoryID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "franchise owner has no territory")
		}
		list, err := s.repo.ListTerritoryRentals(ctx, *principal.TerritoryID, params)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list territory rentals")
		}
		return list, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list rentals")
}

func (s *service) Pause(ctx context.Context, principal permissions.Principal, rentalID uuid.UUID) error {
	rental, err := s.loadRental(ctx, rentalID)
	if err != nil {
		return err
	}
	if !permissions.CanPerform(principal, permissions.ActionRentalPause, rentalResource(rental)) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot pause this rental")
	}
	if rental.Status != enums.RentalStatusActive {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only active rentals can be paused")
	}

	pausedAt := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateStatusGuarded(ctx, rental.ID,
			[]enums.RentalStatus{enums.RentalStatusActive},
			enums.RentalStatusPaused,
			map[string]any{"paused_at": pausedAt})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "pause rental")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "rental state changed concurrently")
		}
		return s.emitStatus(ctx, tx, rental, enums.RentalStatusPaused, pausedAt,
			"Rental paused", "Your rental has been paused. Billing stops until you resume.")
	})
}

func (s *service) Resume(ctx context.Context, principal permissions.Principal, rentalID uuid.UUID) error {
	rental, err := s.loadRental(ctx, rentalID)
	if err != nil {
		return err
	}
	if !permissions.CanPerform(principal, permissions.ActionRentalResume, rentalResource(rental)) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot resume this rental")
	}
	if rental.Status != enums.RentalStatusPaused || rental.PausedAt == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only paused rentals can be resumed")
	}

	// The paused interval does not consume paid rental time: the current
	// period end shifts forward by the pause duration.
	resumedAt := s.now().UTC()
	shift := resumedAt.Sub(*rental.PausedAt)
	if shift < 0 {
		shift = 0
	}
	newEnd := rental.CurrentPeriodEnd.Add(shift)

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateStatusGuarded(ctx, rental.ID,
			[]enums.RentalStatus{enums.RentalStatusPaused},
			enums.RentalStatusActive,
			map[string]any{
				"paused_at":          nil,
				"current_period_end": newEnd,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resume rental")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "rental state changed concurrently")
		}
		return s.emitStatus(ctx, tx, rental, enums.RentalStatusActive, resumedAt,
			"Rental resumed", "Your rental is active again.")
	})
}

func (s *service) Terminate(ctx context.Context, principal permissions.Principal, rentalID uuid.UUID) error {
	rental, err := s.loadRental(ctx, rentalID)
	if err != nil {
		return err
	}
	if !permissions.CanPerform(principal, permissions.ActionRentalTerminate, rentalResource(rental)) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot terminate this rental")
	}
	if rental.Status != enums.RentalStatusActive && rental.Status != enums.RentalStatusPaused {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "rental is already closed")
	}

	endedAt := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateStatusGuarded(ctx, rental.ID,
			[]enums.RentalStatus{enums.RentalStatusActive, enums.RentalStatusPaused},
			enums.RentalStatusTerminated,
			map[string]any{"end_date": endedAt})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "terminate rental")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "rental state changed concurrently")
		}
		return s.emitStatus(ctx, tx, rental, enums.RentalStatusTerminated, endedAt,
			"Rental terminated", "Your rental has ended. The deposit refund will be processed after equipment pickup.")
	})
}

func (s *service) InitiateRenewal(ctx context.Context, principal permissions.Principal, rentalID uuid.UUID) (*RenewalSession, error) {
	rental, err := s.loadRental(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if !permissions.CanPerform(principal, permissions.ActionRentalRenew, rentalResource(rental)) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot renew this rental")
	}
	if rental.Status != enums.RentalStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only active rentals can be renewed")
	}
	now := s.now().UTC()
	if rental.CurrentPeriodEnd.Sub(now) > renewalWindow {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "renewal window is not open yet")
	}

	if existing, err := s.orderRepo.FindLatestPendingPayment(ctx, rental.OrderID); err == nil &&
		existing.RentalID != nil && *existing.RentalID == rental.ID && existing.GatewayOrderRef != nil {
		return &RenewalSession{
			PaymentID:       existing.ID,
			RentalID:        rental.ID,
			GatewayOrderRef: *existing.GatewayOrderRef,
			AmountPaise:     existing.AmountPaise,
			Currency:        s.gateway.Currency(),
		}, nil
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending renewal")
	}

	gatewayOrder, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderRequest{
		AmountPaise: rental.MonthlyAmountPaise,
		Receipt:     rental.ID.String(),
		Notes: map[string]string{
			"rental_id": rental.ID.String(),
			"order_id":  rental.OrderID.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	rentalIDCopy := rental.ID
	payment := &models.Payment{
		OrderID:         rental.OrderID,
		RentalID:        &rentalIDCopy,
		Kind:            enums.PaymentKindRental,
		Status:          enums.PaymentStatusPending,
		AmountPaise:     rental.MonthlyAmountPaise,
		GatewayOrderRef: &gatewayOrder.ID,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.orderRepo.WithTx(tx).CreatePayment(ctx, payment)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create renewal payment")
		}
		payment = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &RenewalSession{
		PaymentID:       payment.ID,
		RentalID:        rental.ID,
		GatewayOrderRef: gatewayOrder.ID,
		AmountPaise:     payment.AmountPaise,
		Currency:        s.gateway.Currency(),
	}, nil
}

func (s *service) ConfirmRenewal(ctx context.Context, input ConfirmRenewalInput) error {
	if input.GatewayOrderRef == "" || input.GatewayPaymentRef == "" || input.Signature == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway order ref, payment ref, and signature are required")
	}

	payment, err := s.orderRepo.FindPaymentByGatewayOrderRef(ctx, input.GatewayOrderRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "renewal payment not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load renewal payment")
	}
	if payment.RentalID == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment is not a rental renewal")
	}

	if !s.gateway.VerifyPaymentSignature(input.GatewayOrderRef, input.GatewayPaymentRef, input.Signature) {
		failErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.orderRepo.WithTx(tx)
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
					PaymentID: payment.ID,
					OrderID:   payment.OrderID,
					Reason:    "signature verification failed",
				},
			})
		})
		if failErr != nil && s.logg != nil {
			s.logg.Error(ctx, "record failed renewal payment", failErr)
		}
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "payment signature verification failed")
	}

	if payment.Status == enums.PaymentStatusCompleted {
		if payment.GatewayPaymentRef != nil && *payment.GatewayPaymentRef == input.GatewayPaymentRef {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "payment already settled with a different reference")
	}
	if payment.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is no longer pending")
	}

	rental, err := s.loadRental(ctx, *payment.RentalID)
	if err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		rows, err := orderRepo.CompletePaymentGuarded(ctx, payment.ID, input.GatewayPaymentRef)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete renewal payment")
		}
		if rows == 0 {
			current, err := orderRepo.FindPaymentByID(ctx, payment.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload renewal payment")
			}
			if current.Status == enums.PaymentStatusCompleted &&
				current.GatewayPaymentRef != nil && *current.GatewayPaymentRef == input.GatewayPaymentRef {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is no longer pending")
		}

		// The new period is anchored at the prior period end, never at the
		// confirmation time, so early renewals do not shorten paid time.
		newStart := rental.CurrentPeriodEnd
		newEnd := rental.CurrentPeriodEnd.AddDate(0, 1, 0)
		rows, err = s.repo.WithTx(tx).ExtendPeriodGuarded(ctx, rental.ID, rental.CurrentPeriodEnd, newStart, newEnd)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend rental period")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "rental period changed concurrently")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventRentalRenewed,
			AggregateType: enums.AggregateRental,
			AggregateID:   rental.ID,
			Version:       1,
			Data: payloads.RentalRenewedEvent{
				RentalID:         rental.ID,
				CustomerID:       rental.CustomerID,
				PaymentID:        payment.ID,
				CurrentPeriodEnd: newEnd,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue renewal event")
		}
		return s.queueNotification(ctx, tx, payloads.NotificationRequestedEvent{
			UserID:        rental.CustomerID,
			Type:          enums.NotificationTypeRentalUpdate,
			Title:         "Rental renewed",
			Message:       fmt.Sprintf("Your rental is paid through %s.", newEnd.Format("02 Jan 2006")),
			ReferenceID:   &rental.ID,
			ReferenceType: "rental",
		}, rental.ID)
	})
}

func (s *service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	for {
		batch, err := s.repo.ListOverdue(ctx, now, expireBatchSize)
		if err != nil {
			return expired, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue rentals")
		}
		if len(batch) == 0 {
			break
		}
		for _, rental := range batch {
			rental := rental
			err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				rows, err := s.repo.WithTx(tx).UpdateStatusGuarded(ctx, rental.ID,
					[]enums.RentalStatus{enums.RentalStatusActive},
					enums.RentalStatusExpired, nil)
				if err != nil {
					return err
				}
				if rows == 0 {
					return nil
				}
				expired++
				return s.emitStatus(ctx, tx, &rental, enums.RentalStatusExpired, now,
					"Rental expired", "Your rental period has lapsed. Renew to keep your purifier active.")
			})
			if err != nil {
				return expired, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire rental")
			}
		}
		if len(batch) < expireBatchSize {
			break
		}
	}
	if s.logg != nil && expired > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"expired": expired}), "rental expiry sweep finished")
	}
	return expired, nil
}

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, rental *models.Rental, status enums.RentalStatus, at time.Time, title, message string) error {
	eventType := enums.EventRentalPaused
	switch status {
	case enums.RentalStatusActive:
		eventType = enums.EventRentalResumed
	case enums.RentalStatusTerminated:
		eventType = enums.EventRentalTerminated
	case enums.RentalStatusExpired:
		eventType = enums.EventRentalExpired
	}
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateRental,
		AggregateID:   rental.ID,
		Version:       1,
		Data: payloads.RentalStatusEvent{
			RentalID:   rental.ID,
			CustomerID: rental.CustomerID,
			Status:     status,
			OccurredAt: at,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue rental status event")
	}
	return s.queueNotification(ctx, tx, payloads.NotificationRequestedEvent{
		UserID:        rental.CustomerID,
		Type:          enums.NotificationTypeRentalUpdate,
		Title:         title,
		Message:       message,
		ReferenceID:   &rental.ID,
		ReferenceType: "rental",
	}, rental.ID)
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

func (s *service) loadRental(ctx context.Context, rentalID uuid.UUID) (*models.Rental, error) {
	if rentalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rental id required")
	}
	rental, err := s.repo.FindByID(ctx, rentalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rental not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rental")
	}
	return rental, nil
}

func rentalResource(rental *models.Rental) permissions.Resource {
	territoryID := rental.TerritoryID
	return permissions.Resource{
		OwnerUserID: rental.CustomerID,
		TerritoryID: &territoryID,
	}
}

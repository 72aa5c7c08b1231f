package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/internal/orders"
	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/outbox"
	"github.com/aquarent/aquarent-backend/pkg/outbox/payloads"
)

const (
	defaultPaymentTimeout   = 24 * time.Hour
	defaultPaymentBatchSize = 50

	paymentTimeoutReason = "payment window elapsed"
)

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PaymentTimeoutJobParams configure the stale-order cancellation job.
type PaymentTimeoutJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Repo      orders.Repository
	Outbox    outboxEmitter
	Timeout   time.Duration
	BatchSize int
}

// NewPaymentTimeoutJob builds the job that cancels orders whose payment was
// never completed within the timeout window.
func NewPaymentTimeoutJob(params PaymentTimeoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultPaymentTimeout
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultPaymentBatchSize
	}
	return &paymentTimeoutJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repo,
		outbox:    params.Outbox,
		timeout:   timeout,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type paymentTimeoutJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      orders.Repository
	outbox    outboxEmitter
	timeout   time.Duration
	batchSize int
	now       func() time.Time
}

func (j *paymentTimeoutJob) Name() string { return "payment-timeout" }

func (j *paymentTimeoutJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.timeout)
	stale, err := j.repo.FindStalePaymentPending(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query stale orders: %w", err)
	}
	cancelled := 0
	for i := range stale {
		ok, err := j.expireOrder(ctx, &stale[i])
		if err != nil {
			return err
		}
		if ok {
			cancelled++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"cancelled":  cancelled,
	})
	j.logg.Info(logCtx, "payment timeout sweep complete")
	return nil
}

func (j *paymentTimeoutJob) expireOrder(ctx context.Context, order *models.Order) (bool, error) {
	expired := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.repo.WithTx(tx)
		sources := []enums.OrderStatus{enums.OrderStatusCreated, enums.OrderStatusPaymentPending}
		rows, err := repo.UpdateOrderStatusGuarded(ctx, order.ID, sources, enums.OrderStatusCancelled, nil)
		if err != nil {
			return fmt.Errorf("cancel stale order: %w", err)
		}
		if rows == 0 {
			// A payment confirmation or explicit cancellation won the race.
			return nil
		}
		expired = true

		payment, err := repo.FindLatestPendingPayment(ctx, order.ID)
		switch {
		case err == nil:
			if _, err := repo.FailPaymentGuarded(ctx, payment.ID, paymentTimeoutReason); err != nil {
				return fmt.Errorf("fail stale payment: %w", err)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("load stale payment: %w", err)
		}

		now := j.now().UTC()
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				CustomerID:  order.CustomerID,
				CancelledAt: now,
				Reason:      paymentTimeoutReason,
			},
		}
		if err := j.outbox.Emit(ctx, tx, event); err != nil {
			return fmt.Errorf("queue cancellation event: %w", err)
		}
		notice := outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.NotificationRequestedEvent{
				UserID:        order.CustomerID,
				Type:          enums.NotificationTypeOrderUpdate,
				Title:         "Order cancelled",
				Message:       "Your order was cancelled because payment was not completed in time.",
				ReferenceID:   &order.ID,
				ReferenceType: "order",
			},
		}
		return j.outbox.Emit(ctx, tx, notice)
	})
	return expired, err
}

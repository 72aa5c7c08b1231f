package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	notifstore "github.com/aquarent/aquarent-backend/internal/notifications"
	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/outbox"
	"github.com/aquarent/aquarent-backend/pkg/outbox/payloads"
)

const consumerName = "notifications"

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer materializes notification.requested events into in-app
// notification rows while honoring Redis idempotency.
type Consumer struct {
	repo    notifstore.Repository
	manager idempotencyChecker
	logg    *logger.Logger
}

// NewConsumer builds the notification consumer.
func NewConsumer(repo notifstore.Repository, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{repo: repo, manager: manager, logg: logg}, nil
}

// Name identifies the consumer in logs and idempotency keys.
func (c *Consumer) Name() string { return consumerName }

// Handles reports whether the consumer wants the event type.
func (c *Consumer) Handles(eventType enums.OutboxEventType) bool {
	return eventType == enums.EventNotificationRequested
}

// Process writes the notification row for the envelope exactly once.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	if !c.Handles(eventType) {
		return nil
	}
	if envelope.EventID == "" {
		return fmt.Errorf("event id missing")
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}

	already, err := c.manager.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	var payload payloads.NotificationRequestedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		_ = c.manager.Delete(ctx, consumerName, eventID)
		return fmt.Errorf("decode notification payload: %w", err)
	}
	if payload.UserID == uuid.Nil {
		_ = c.manager.Delete(ctx, consumerName, eventID)
		return fmt.Errorf("notification payload missing user id")
	}
	if !payload.Type.IsValid() {
		_ = c.manager.Delete(ctx, consumerName, eventID)
		return fmt.Errorf("unknown notification type %q", payload.Type)
	}

	notification := &models.Notification{
		UserID:      payload.UserID,
		Type:        payload.Type,
		Title:       payload.Title,
		Message:     payload.Message,
		ReferenceID: payload.ReferenceID,
	}
	if payload.ReferenceType != "" {
		refType := payload.ReferenceType
		notification.ReferenceType = &refType
	}
	if _, err := c.repo.Create(ctx, notification); err != nil {
		c.logg.Error(logCtx, "failed to write notification", err)
		_ = c.manager.Delete(ctx, consumerName, eventID)
		return err
	}

	c.logg.Info(logCtx, "notification materialized")
	return nil
}

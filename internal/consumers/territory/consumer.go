package territory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/enums"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/outbox"
	"github.com/aquarent/aquarent-backend/pkg/outbox/payloads"
)

const consumerName = "territory_reassign"

type reassigner interface {
	ReassignCustomers(ctx context.Context, territoryID uuid.UUID) (int, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer runs the batched customer re-resolution sweep after a territory
// boundary change.
type Consumer struct {
	territories reassigner
	manager     idempotencyChecker
	logg        *logger.Logger
}

// NewConsumer builds the territory reassignment consumer.
func NewConsumer(territories reassigner, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if territories == nil {
		return nil, fmt.Errorf("territory service required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{territories: territories, manager: manager, logg: logg}, nil
}

// Name identifies the consumer in logs and idempotency keys.
func (c *Consumer) Name() string { return consumerName }

// Handles reports whether the consumer wants the event type.
func (c *Consumer) Handles(eventType enums.OutboxEventType) bool {
	return eventType == enums.EventTerritoryReassign
}

// Process runs the reassignment sweep for the envelope exactly once. The
// sweep itself is idempotent, so a crash between the Redis mark and the
// sweep completing loses nothing: the key is released and the retry re-runs.
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

	var payload payloads.TerritoryReassignRequestedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		_ = c.manager.Delete(ctx, consumerName, eventID)
		return fmt.Errorf("decode reassign payload: %w", err)
	}
	if payload.TerritoryID == uuid.Nil {
		_ = c.manager.Delete(ctx, consumerName, eventID)
		return fmt.Errorf("reassign payload missing territory id")
	}

	moved, err := c.territories.ReassignCustomers(ctx, payload.TerritoryID)
	if err != nil {
		c.logg.Error(logCtx, "reassignment sweep failed", err)
		_ = c.manager.Delete(ctx, consumerName, eventID)
		return err
	}

	c.logg.Info(c.logg.WithField(logCtx, "reassigned", moved), "reassignment sweep finished")
	return nil
}

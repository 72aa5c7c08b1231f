package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/pkg/config"
	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/metrics"
	"github.com/aquarent/aquarent-backend/pkg/outbox"
)

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForDispatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeConsumer struct {
	name    string
	handles map[enums.OutboxEventType]bool
	errs    []error
	seen    []string
}

func (f *fakeConsumer) Name() string { return f.name }

func (f *fakeConsumer) Handles(eventType enums.OutboxEventType) bool {
	return f.handles[eventType]
}

func (f *fakeConsumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	f.seen = append(f.seen, envelope.EventID)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

type fakeExpirer struct {
	expired int
}

func (f *fakeExpirer) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	return f.expired, nil
}

func mustEnvelopePayload(t *testing.T, eventID string) []byte {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

func outboxEvent(t *testing.T, eventType enums.OutboxEventType, attempts int, payload []byte) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

func newTestService(t *testing.T, repo *fakeRepo, dlq *fakeDLQRepo, consumers ...eventConsumer) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.MaxAttempts = 3
	cfg.Outbox.PollIntervalMS = 10

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		DB:         fakeDB{},
		Repository: repo,
		DLQ:        dlq,
		Consumers:  consumers,
		Rentals:    &fakeExpirer{},
		Metrics:    metrics.NewWorkerMetrics(nil),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	eventOne := outboxEvent(t, enums.EventNotificationRequested, 0, mustEnvelopePayload(t, uuid.NewString()))
	eventTwo := outboxEvent(t, enums.EventNotificationRequested, 0, mustEnvelopePayload(t, uuid.NewString()))
	repo := &fakeRepo{events: []models.OutboxEvent{eventOne, eventTwo}}
	dlq := &fakeDLQRepo{}
	consumer := &fakeConsumer{
		name:    "notifications",
		handles: map[enums.OutboxEventType]bool{enums.EventNotificationRequested: true},
		errs:    []error{errors.New("transient")},
	}
	service := newTestService(t, repo, dlq, consumer)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != eventOne.ID {
		t.Fatalf("expected first event marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != eventTwo.ID {
		t.Fatalf("expected second event published, got %v", repo.published)
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("transient failure must not dead-letter")
	}
}

func TestProcessBatchDeadLettersAtMaxAttempts(t *testing.T) {
	event := outboxEvent(t, enums.EventNotificationRequested, 2, mustEnvelopePayload(t, uuid.NewString()))
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	consumer := &fakeConsumer{
		name:    "notifications",
		handles: map[enums.OutboxEventType]bool{enums.EventNotificationRequested: true},
		errs:    []error{errors.New("still failing")},
	}
	service := newTestService(t, repo, dlq, consumer)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(dlq.entries))
	}
	if dlq.entries[0].EventID != event.ID {
		t.Fatalf("dlq entry records wrong event")
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected event marked terminal, got %v", repo.terminal)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal event must not also be marked failed")
	}
}

func TestProcessBatchDeadLettersUndecodablePayload(t *testing.T) {
	event := outboxEvent(t, enums.EventNotificationRequested, 0, []byte("{broken"))
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	consumer := &fakeConsumer{
		name:    "notifications",
		handles: map[enums.OutboxEventType]bool{enums.EventNotificationRequested: true},
	}
	service := newTestService(t, repo, dlq, consumer)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry for undecodable payload")
	}
	if len(consumer.seen) != 0 {
		t.Fatalf("consumer must not see an undecodable event")
	}
}

func TestDispatchSkipsNonHandlingConsumers(t *testing.T) {
	event := outboxEvent(t, enums.EventTerritoryReassign, 0, mustEnvelopePayload(t, uuid.NewString()))
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	notifications := &fakeConsumer{
		name:    "notifications",
		handles: map[enums.OutboxEventType]bool{enums.EventNotificationRequested: true},
	}
	reassign := &fakeConsumer{
		name:    "territory_reassign",
		handles: map[enums.OutboxEventType]bool{enums.EventTerritoryReassign: true},
	}
	service := newTestService(t, repo, dlq, notifications, reassign)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(notifications.seen) != 0 {
		t.Fatalf("notification consumer must not see reassign events")
	}
	if len(reassign.seen) != 1 {
		t.Fatalf("expected reassign consumer to process the event")
	}
	if len(repo.published) != 1 {
		t.Fatalf("expected event published")
	}
}

func TestProcessBatchEmptyIsIdle(t *testing.T) {
	repo := &fakeRepo{}
	service := newTestService(t, repo, &fakeDLQRepo{}, &fakeConsumer{
		name:    "notifications",
		handles: map[enums.OutboxEventType]bool{enums.EventNotificationRequested: true},
	})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if processed {
		t.Fatalf("empty batch must report idle")
	}
}

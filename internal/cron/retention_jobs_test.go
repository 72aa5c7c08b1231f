package cron

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutboxRetentionRepo struct {
	cutoff      time.Time
	minAttempts int
	deleted     int64
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, minAttempts int) (int64, error) {
	f.cutoff = cutoff
	f.minAttempts = minAttempts
	return f.deleted, nil
}

func TestOutboxRetentionJobUsesConfiguredWindow(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{deleted: 7}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      testLogger(),
		DB:          fakeTxRunner{},
		Repository:  repo,
		Retention:   14,
		MinAttempts: 5,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	job.(*outboxRetentionJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantCutoff := now.Add(-14 * 24 * time.Hour)
	if !repo.cutoff.Equal(wantCutoff) {
		t.Fatalf("cutoff = %v, want %v", repo.cutoff, wantCutoff)
	}
	if repo.minAttempts != 5 {
		t.Fatalf("minAttempts = %d, want 5", repo.minAttempts)
	}
}

type fakeNotificationCleanupRepo struct {
	cutoff  time.Time
	deleted int64
}

func (f *fakeNotificationCleanupRepo) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, nil
}

func TestNotificationCleanupJobDefaultsRetention(t *testing.T) {
	repo := &fakeNotificationCleanupRepo{deleted: 3}
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger:     testLogger(),
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewNotificationCleanupJob: %v", err)
	}

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	job.(*notificationCleanupJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantCutoff := now.Add(-notificationRetentionDays * 24 * time.Hour)
	if !repo.cutoff.Equal(wantCutoff) {
		t.Fatalf("cutoff = %v, want %v", repo.cutoff, wantCutoff)
	}
}

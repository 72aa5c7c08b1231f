package notifications

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/internal/permissions"
	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
	pkgerrors "github.com/aquarent/aquarent-backend/pkg/errors"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/pagination"
)

type stubRepo struct {
	Repository

	list        *NotificationList
	unread      int64
	markRows    int64
	markAllRows int64
	found       *models.Notification
	findErr     error

	markedID     uuid.UUID
	markedUserID uuid.UUID
}

func (s *stubRepo) ListForUser(_ context.Context, _ uuid.UUID, _ pagination.Params, _ bool) (*NotificationList, error) {
	return s.list, nil
}

func (s *stubRepo) CountUnread(context.Context, uuid.UUID) (int64, error) {
	return s.unread, nil
}

func (s *stubRepo) MarkRead(_ context.Context, id, userID uuid.UUID) (int64, error) {
	s.markedID = id
	s.markedUserID = userID
	return s.markRows, nil
}

func (s *stubRepo) MarkAllRead(context.Context, uuid.UUID) (int64, error) {
	return s.markAllRows, nil
}

func (s *stubRepo) FindByID(context.Context, uuid.UUID) (*models.Notification, error) {
	return s.found, s.findErr
}

func newTestService(t *testing.T, repo *stubRepo) Service {
	t.Helper()
	svc, err := NewService(repo, logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func customerPrincipal() permissions.Principal {
	return permissions.Principal{UserID: uuid.New(), Role: enums.RoleCustomer}
}

func TestListAttachesUnreadCount(t *testing.T) {
	repo := &stubRepo{
		list:   &NotificationList{Notifications: []Summary{{ID: uuid.New(), Title: "Order update"}}},
		unread: 3,
	}
	svc := newTestService(t, repo)

	list, err := svc.List(context.Background(), customerPrincipal(), pagination.Params{}, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list.UnreadCount != 3 {
		t.Fatalf("expected unread count 3, got %d", list.UnreadCount)
	}
	if len(list.Notifications) != 1 {
		t.Fatalf("expected one row, got %d", len(list.Notifications))
	}
}

func TestListRequiresPrincipal(t *testing.T) {
	svc := newTestService(t, &stubRepo{list: &NotificationList{}})

	_, err := svc.List(context.Background(), permissions.Principal{}, pagination.Params{}, false)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestMarkReadScopesToOwner(t *testing.T) {
	repo := &stubRepo{markRows: 1}
	svc := newTestService(t, repo)
	principal := customerPrincipal()
	notificationID := uuid.New()

	if err := svc.MarkRead(context.Background(), principal, notificationID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if repo.markedID != notificationID || repo.markedUserID != principal.UserID {
		t.Fatalf("mark read not scoped to owner: %v / %v", repo.markedID, repo.markedUserID)
	}
}

func TestMarkReadAlreadyReadIsNoOp(t *testing.T) {
	principal := customerPrincipal()
	readAt := time.Now()
	repo := &stubRepo{
		markRows: 0,
		found:    &models.Notification{ID: uuid.New(), UserID: principal.UserID, ReadAt: &readAt},
	}
	svc := newTestService(t, repo)

	if err := svc.MarkRead(context.Background(), principal, repo.found.ID); err != nil {
		t.Fatalf("repeated acknowledgement must succeed, got %v", err)
	}
}

func TestMarkReadForeignNotificationIsNotFound(t *testing.T) {
	repo := &stubRepo{
		markRows: 0,
		findErr:  gorm.ErrRecordNotFound,
	}
	svc := newTestService(t, repo)

	err := svc.MarkRead(context.Background(), customerPrincipal(), uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestMarkAllReadReturnsCount(t *testing.T) {
	svc := newTestService(t, &stubRepo{markAllRows: 4})

	rows, err := svc.MarkAllRead(context.Background(), customerPrincipal())
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if rows != 4 {
		t.Fatalf("expected 4 rows, got %d", rows)
	}
}

func TestNewServiceRequiresRepository(t *testing.T) {
	if _, err := NewService(nil, nil); err == nil {
		t.Fatal("expected error for nil repository")
	}
}

package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/internal/permissions"
	pkgerrors "github.com/aquarent/aquarent-backend/pkg/errors"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/pagination"
)

// Service exposes the read and acknowledge surface for in-app notifications.
// Rows are written by the outbox consumer, never directly by the API.
type Service interface {
	List(ctx context.Context, principal permissions.Principal, params pagination.Params, unreadOnly bool) (*NotificationList, error)
	MarkRead(ctx context.Context, principal permissions.Principal, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, principal permissions.Principal) (int64, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds the notification service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) List(ctx context.Context, principal permissions.Principal, params pagination.Params, unreadOnly bool) (*NotificationList, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	list, err := s.repo.ListForUser(ctx, principal.UserID, params, unreadOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, principal.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	list.UnreadCount = unread
	return list, nil
}

func (s *service) MarkRead(ctx context.Context, principal permissions.Principal, notificationID uuid.UUID) error {
	if principal.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	rows, err := s.repo.MarkRead(ctx, notificationID, principal.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if rows == 0 {
		// Distinguish a missing row from an already-read one so repeated
		// acknowledgements stay harmless.
		notification, err := s.repo.FindByID(ctx, notificationID)
		if err != nil || notification.UserID != principal.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		}
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, principal permissions.Principal) (int64, error) {
	if principal.UserID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	rows, err := s.repo.MarkAllRead(ctx, principal.UserID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark all notifications read")
	}
	return rows, nil
}

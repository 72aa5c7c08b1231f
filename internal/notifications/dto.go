package notifications

import (
	"time"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// Summary is the list-row shape returned by paginated notification queries.
type Summary struct {
	ID            uuid.UUID              `json:"id"`
	Type          enums.NotificationType `json:"type"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	ReferenceID   *uuid.UUID             `json:"reference_id,omitempty"`
	ReferenceType *string                `json:"reference_type,omitempty"`
	ReadAt        *time.Time             `json:"read_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ToSummary converts a notification row into its list shape.
func ToSummary(notification models.Notification) Summary {
	return Summary{
		ID:            notification.ID,
		Type:          notification.Type,
		Title:         notification.Title,
		Message:       notification.Message,
		ReferenceID:   notification.ReferenceID,
		ReferenceType: notification.ReferenceType,
		ReadAt:        notification.ReadAt,
		CreatedAt:     notification.CreatedAt,
	}
}

// NotificationList wraps the paginated notifications plus the next page cursor.
type NotificationList struct {
	Notifications []Summary `json:"notifications"`
	NextCursor    string    `json:"next_cursor,omitempty"`
	UnreadCount   int64     `json:"unread_count"`
}

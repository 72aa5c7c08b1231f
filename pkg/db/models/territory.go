package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/geo"
)

// Territory is a franchise coverage polygon. The boundary ring is stored as a
// nested numeric array ([[lat,lng],...]) and is normalized to an explicitly
// closed ring before it is written.
type Territory struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string     `gorm:"column:name;type:text;not null"`
	City        string     `gorm:"column:city;type:text;not null"`
	Boundary    geo.Ring   `gorm:"column:boundary;type:jsonb;serializer:json;not null"`
	OwnerUserID *uuid.UUID `gorm:"column:owner_user_id;type:uuid"`
	Active      bool       `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

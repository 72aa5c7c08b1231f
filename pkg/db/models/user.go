package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// User is any acting principal: customers, technicians, franchise owners,
// and admins. Customers carry a resolved location once their address has been
// geocoded; technicians with a nil territory are globally available.
type User struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string     `gorm:"column:name;type:text;not null"`
	Email       string     `gorm:"column:email;type:text;not null;uniqueIndex"`
	Phone       *string    `gorm:"column:phone;type:text"`
	Role        enums.Role `gorm:"column:role;type:user_role;not null;default:'customer'"`
	TerritoryID *uuid.UUID `gorm:"column:territory_id;type:uuid"`
	LocationLat *float64   `gorm:"column:location_lat"`
	LocationLng *float64   `gorm:"column:location_lng"`
	Active      bool       `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

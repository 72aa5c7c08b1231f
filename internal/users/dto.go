package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// UserDTO is the public shape returned by the API.
type UserDTO struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       *string    `json:"phone,omitempty"`
	Role        enums.Role `json:"role"`
	TerritoryID *uuid.UUID `json:"territory_id,omitempty"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ToDTO maps the persistence model into the API shape.
func ToDTO(user *models.User) *UserDTO {
	if user == nil {
		return nil
	}
	return &UserDTO{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Phone:       user.Phone,
		Role:        user.Role,
		TerritoryID: user.TerritoryID,
		Active:      user.Active,
		CreatedAt:   user.CreatedAt,
	}
}

package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT. Tokens
// are issued by the identity service; minting here exists for tests and
// local tooling.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	Role        enums.Role
	TerritoryID *uuid.UUID
}

// AccessTokenClaims represents the typed JWT presented by clients.
type AccessTokenClaims struct {
	UserID      uuid.UUID  `json:"user_id"`
	Role        enums.Role `json:"role"`
	TerritoryID *uuid.UUID `json:"territory_id,omitempty"`
	jwt.RegisteredClaims
}

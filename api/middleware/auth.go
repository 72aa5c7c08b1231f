package middleware

import (
	"net/http"
	"strings"

	"github.com/aquarent/aquarent-backend/api/responses"
	"github.com/aquarent/aquarent-backend/internal/permissions"
	pkgauth "github.com/aquarent/aquarent-backend/pkg/auth"
	"github.com/aquarent/aquarent-backend/pkg/config"
	pkgerrors "github.com/aquarent/aquarent-backend/pkg/errors"
	"github.com/aquarent/aquarent-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// principal. Token issuance lives in the identity service; this only
// verifies.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			principal := permissions.Principal{
				UserID:      claims.UserID,
				Role:        claims.Role,
				TerritoryID: claims.TerritoryID,
			}
			ctx := WithPrincipal(r.Context(), principal)

			if logg != nil {
				fields := map[string]any{
					"user_id":    principal.UserID.String(),
					"actor_role": string(principal.Role),
				}
				if principal.TerritoryID != nil {
					fields["territory_id"] = principal.TerritoryID.String()
				}
				ctx = logg.WithFields(ctx, fields)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

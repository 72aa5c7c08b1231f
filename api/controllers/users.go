package controllers

import (
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/api/responses"
	"github.com/aquarent/aquarent-backend/internal/users"
	pkgerrors "github.com/aquarent/aquarent-backend/pkg/errors"
	"github.com/aquarent/aquarent-backend/pkg/logger"
)

// Me returns the authenticated caller's profile, including the territory
// they currently resolve to.
func Me(repo users.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		user, err := repo.FindByID(r.Context(), principal.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown user"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user"))
			return
		}

		responses.WriteSuccess(w, users.ToDTO(user))
	}
}

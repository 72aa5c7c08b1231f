package controllers

import (
	"net/http"

	"github.com/aquarent/aquarent-backend/api/middleware"
	"github.com/aquarent/aquarent-backend/api/responses"
	"github.com/aquarent/aquarent-backend/internal/permissions"
	pkgerrors "github.com/aquarent/aquarent-backend/pkg/errors"
	"github.com/aquarent/aquarent-backend/pkg/logger"
)

// requirePrincipal extracts the authenticated actor or writes a 401. Routes
// behind the auth middleware always carry one; this guards miswiring.
func requirePrincipal(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (permissions.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
		return permissions.Principal{}, false
	}
	return principal, true
}

package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/api/responses"
	"github.com/aquarent/aquarent-backend/api/validators"
	"github.com/aquarent/aquarent-backend/internal/permissions"
	"github.com/aquarent/aquarent-backend/internal/rentals"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/pagination"
)

type confirmRenewalRequest struct {
	GatewayOrderRef   string `json:"gateway_order_ref" validate:"required"`
	GatewayPaymentRef string `json:"gateway_payment_ref" validate:"required"`
	Signature         string `json:"signature" validate:"required"`
}

func ListRentals(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListMine(r.Context(), principal, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetRental(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		rentalID, err := validators.ParsePathUUID(chi.URLParam(r, "rentalId"), "rentalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rental, err := svc.Get(r.Context(), principal, rentalID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rentals.ToSummary(*rental))
	}
}

func PauseRental(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return rentalTransition(svc.Pause, "paused", logg)
}

func ResumeRental(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return rentalTransition(svc.Resume, "active", logg)
}

func TerminateRental(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return rentalTransition(svc.Terminate, "terminated", logg)
}

// InitiateRentalRenewal opens the renewal checkout session inside the
// renewal window.
func InitiateRentalRenewal(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		rentalID, err := validators.ParsePathUUID(chi.URLParam(r, "rentalId"), "rentalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.InitiateRenewal(r.Context(), principal, rentalID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

// ConfirmRentalRenewal is the unauthenticated gateway callback for renewal
// payments.
func ConfirmRentalRenewal(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmRenewalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err := svc.ConfirmRenewal(r.Context(), rentals.ConfirmRenewalInput{
			GatewayOrderRef:   req.GatewayOrderRef,
			GatewayPaymentRef: req.GatewayPaymentRef,
			Signature:         req.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "renewed"})
	}
}

func rentalTransition(op func(ctx context.Context, principal permissions.Principal, rentalID uuid.UUID) error, resulting string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		rentalID, err := validators.ParsePathUUID(chi.URLParam(r, "rentalId"), "rentalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := op(r.Context(), principal, rentalID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": resulting})
	}
}

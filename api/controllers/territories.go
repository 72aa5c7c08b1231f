package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/api/responses"
	"github.com/aquarent/aquarent-backend/api/validators"
	"github.com/aquarent/aquarent-backend/internal/territories"
	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/geo"
	"github.com/aquarent/aquarent-backend/pkg/logger"
)

type createTerritoryRequest struct {
	Name        string     `json:"name" validate:"required,max=200"`
	City        string     `json:"city" validate:"required,max=200"`
	Boundary    geo.Ring   `json:"boundary" validate:"required"`
	OwnerUserID *uuid.UUID `json:"owner_user_id,omitempty"`
}

type updateTerritoryRequest struct {
	Name        *string    `json:"name,omitempty" validate:"omitempty,max=200"`
	City        *string    `json:"city,omitempty" validate:"omitempty,max=200"`
	Boundary    geo.Ring   `json:"boundary,omitempty"`
	OwnerUserID *uuid.UUID `json:"owner_user_id,omitempty"`
	Active      *bool      `json:"active,omitempty"`
}

type resolveTerritoryRequest struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// TerritoryView is the API shape for a franchise territory.
type TerritoryView struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	City        string     `json:"city"`
	Boundary    geo.Ring   `json:"boundary"`
	OwnerUserID *uuid.UUID `json:"owner_user_id,omitempty"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toTerritoryView(territory models.Territory) TerritoryView {
	return TerritoryView{
		ID:          territory.ID,
		Name:        territory.Name,
		City:        territory.City,
		Boundary:    territory.Boundary,
		OwnerUserID: territory.OwnerUserID,
		Active:      territory.Active,
		CreatedAt:   territory.CreatedAt,
	}
}

func CreateTerritory(svc territories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTerritoryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		territory, err := svc.Create(r.Context(), territories.CreateInput{
			Name:        req.Name,
			City:        req.City,
			Boundary:    req.Boundary,
			OwnerUserID: req.OwnerUserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toTerritoryView(*territory))
	}
}

func UpdateTerritory(svc territories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		territoryID, err := validators.ParsePathUUID(chi.URLParam(r, "territoryId"), "territoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateTerritoryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		territory, err := svc.Update(r.Context(), territoryID, territories.UpdateInput{
			Name:        req.Name,
			City:        req.City,
			Boundary:    req.Boundary,
			OwnerUserID: req.OwnerUserID,
			Active:      req.Active,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTerritoryView(*territory))
	}
}

func ListTerritories(svc territories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]TerritoryView, 0, len(rows))
		for _, row := range rows {
			views = append(views, toTerritoryView(row))
		}
		responses.WriteSuccess(w, map[string]any{"territories": views})
	}
}

func GetTerritory(svc territories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		territoryID, err := validators.ParsePathUUID(chi.URLParam(r, "territoryId"), "territoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		territory, err := svc.Get(r.Context(), territoryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTerritoryView(*territory))
	}
}

// ResolveTerritory answers which active territory covers a coordinate. A
// miss surfaces as NOT_FOUND, which is a routine business outcome here.
func ResolveTerritory(svc territories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resolveTerritoryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		territory, err := svc.Resolve(r.Context(), geo.Point{Lat: req.Lat, Lng: req.Lng})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTerritoryView(*territory))
	}
}

package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/api/responses"
	"github.com/aquarent/aquarent-backend/api/validators"
	"github.com/aquarent/aquarent-backend/internal/products"
	"github.com/aquarent/aquarent-backend/pkg/db/models"
	pkgerrors "github.com/aquarent/aquarent-backend/pkg/errors"
	"github.com/aquarent/aquarent-backend/pkg/logger"
)

// ProductView is the public catalog shape. Prices stay integer paise.
type ProductView struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Description      *string   `json:"description,omitempty"`
	BuyPricePaise    int64     `json:"buy_price_paise"`
	MonthlyRentPaise int64     `json:"monthly_rent_paise"`
	DepositPaise     int64     `json:"deposit_paise"`
	InstallFeePaise  int64     `json:"install_fee_paise"`
	Purchasable      bool      `json:"purchasable"`
	Rentable         bool      `json:"rentable"`
	CreatedAt        time.Time `json:"created_at"`
}

func toProductView(product models.Product) ProductView {
	return ProductView{
		ID:               product.ID,
		Name:             product.Name,
		Description:      product.Description,
		BuyPricePaise:    product.BuyPricePaise,
		MonthlyRentPaise: product.MonthlyRentPaise,
		DepositPaise:     product.DepositPaise,
		InstallFeePaise:  product.InstallFeePaise,
		Purchasable:      product.Purchasable,
		Rentable:         product.Rentable,
		CreatedAt:        product.CreatedAt,
	}
}

func ListProducts(repo products.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := repo.ListActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products"))
			return
		}
		views := make([]ProductView, 0, len(rows))
		for _, row := range rows {
			views = append(views, toProductView(row))
		}
		responses.WriteSuccess(w, map[string]any{"products": views})
	}
}

func GetProduct(repo products.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParsePathUUID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := repo.FindByID(r.Context(), productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "product not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product"))
			return
		}
		if !product.Active {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "product not found"))
			return
		}
		responses.WriteSuccess(w, toProductView(*product))
	}
}

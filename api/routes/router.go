package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aquarent/aquarent-backend/api/controllers"
	"github.com/aquarent/aquarent-backend/api/middleware"
	"github.com/aquarent/aquarent-backend/internal/notifications"
	"github.com/aquarent/aquarent-backend/internal/orders"
	"github.com/aquarent/aquarent-backend/internal/products"
	"github.com/aquarent/aquarent-backend/internal/rentals"
	"github.com/aquarent/aquarent-backend/internal/territories"
	"github.com/aquarent/aquarent-backend/internal/users"
	"github.com/aquarent/aquarent-backend/pkg/config"
	"github.com/aquarent/aquarent-backend/pkg/db"
	"github.com/aquarent/aquarent-backend/pkg/enums"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	pkgredis "github.com/aquarent/aquarent-backend/pkg/redis"
)

// Confirmation callbacks are unauthenticated, so they get a tight per-IP
// window on top of the signature check.
const (
	confirmRateLimit  = 30
	confirmRateWindow = time.Minute
)

type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *pkgredis.Client
	ProductRepo   products.Repository
	UserRepo      users.Repository
	Orders        orders.Service
	Rentals       rentals.Service
	Territories   territories.Service
	Notifications notifications.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	// Explicit interface conversion so a nil client disables the guards
	// instead of panicking inside them.
	var idemStore pkgredis.IdempotencyStore
	var limiterStore middleware.RateLimiterStore
	var redisPinger pkgredis.Pinger
	if p.Redis != nil {
		idemStore = p.Redis
		limiterStore = p.Redis
		redisPinger = p.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, redisPinger))
	})

	// Gateway callbacks: no bearer token, identity comes from the payment
	// signature. Rate limited and replay-guarded instead.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit("confirm", limiterStore, confirmRateLimit, confirmRateWindow, logg))
		r.Use(middleware.Idempotency(idemStore, logg))
		r.Post("/api/v1/payments/confirm", controllers.ConfirmOrderPayment(p.Orders, logg))
		r.Post("/api/v1/rentals/renewals/confirm", controllers.ConfirmRentalRenewal(p.Rentals, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/me", controllers.Me(p.UserRepo, logg))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(p.ProductRepo, logg))
			r.Get("/{productId}", controllers.GetProduct(p.ProductRepo, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(p.Orders, logg))
			r.Get("/", controllers.ListOrders(p.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(p.Orders, logg))
			r.Post("/{orderId}/payment", controllers.InitiateOrderPayment(p.Orders, logg))
			r.Post("/{orderId}/assign", controllers.AssignTechnician(p.Orders, logg))
			r.Post("/{orderId}/status", controllers.UpdateOrderStatus(p.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(p.Orders, logg))
		})

		r.Route("/rentals", func(r chi.Router) {
			r.Get("/", controllers.ListRentals(p.Rentals, logg))
			r.Get("/{rentalId}", controllers.GetRental(p.Rentals, logg))
			r.Post("/{rentalId}/pause", controllers.PauseRental(p.Rentals, logg))
			r.Post("/{rentalId}/resume", controllers.ResumeRental(p.Rentals, logg))
			r.Post("/{rentalId}/terminate", controllers.TerminateRental(p.Rentals, logg))
			r.Post("/{rentalId}/renewal", controllers.InitiateRentalRenewal(p.Rentals, logg))
		})

		r.Route("/territories", func(r chi.Router) {
			r.Get("/", controllers.ListTerritories(p.Territories, logg))
			r.Get("/{territoryId}", controllers.GetTerritory(p.Territories, logg))
			r.Post("/resolve", controllers.ResolveTerritory(p.Territories, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
				r.Post("/", controllers.CreateTerritory(p.Territories, logg))
				r.Patch("/{territoryId}", controllers.UpdateTerritory(p.Territories, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
		})
	})

	return r
}

package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/internal/notifications"
	"github.com/aquarent/aquarent-backend/internal/orders"
	"github.com/aquarent/aquarent-backend/internal/permissions"
	"github.com/aquarent/aquarent-backend/internal/products"
	"github.com/aquarent/aquarent-backend/internal/rentals"
	"github.com/aquarent/aquarent-backend/internal/territories"
	"github.com/aquarent/aquarent-backend/internal/users"
	pkgauth "github.com/aquarent/aquarent-backend/pkg/auth"
	"github.com/aquarent/aquarent-backend/pkg/config"
	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
	"github.com/aquarent/aquarent-backend/pkg/geo"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubOrders struct {
	orders.Service
	confirmed []orders.ConfirmInput
}

func (s *stubOrders) ConfirmPayment(_ context.Context, input orders.ConfirmInput) error {
	s.confirmed = append(s.confirmed, input)
	return nil
}

func (s *stubOrders) ListMine(context.Context, permissions.Principal, pagination.Params, orders.Filters) (*orders.OrderList, error) {
	return &orders.OrderList{Orders: []orders.Summary{}}, nil
}

type stubRentals struct {
	rentals.Service
}

type stubTerritories struct {
	territories.Service
	resolved *models.Territory
}

func (s *stubTerritories) Resolve(context.Context, geo.Point) (*models.Territory, error) {
	return s.resolved, nil
}

type stubNotifications struct {
	notifications.Service
}

type stubProducts struct {
	products.Repository
}

func (stubProducts) ListActive(context.Context) ([]models.Product, error) {
	return []models.Product{}, nil
}

func (stubProducts) WithTx(*gorm.DB) products.Repository { return stubProducts{} }

type stubUsers struct {
	users.Repository
}

func (stubUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return &models.User{
		ID:     id,
		Name:   "Asha Rao",
		Email:  "asha@example.com",
		Role:   enums.RoleCustomer,
		Active: true,
	}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.JWT.Secret = "router-secret"
	cfg.JWT.Issuer = "aquarent-test"
	return cfg
}

func newTestRouter(t *testing.T, ordersSvc *stubOrders, territoriesSvc *stubTerritories) http.Handler {
	t.Helper()
	return NewRouter(RouterParams{
		Config:        testConfig(),
		Logger:        logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}),
		DB:            stubPinger{},
		Redis:         nil,
		ProductRepo:   stubProducts{},
		UserRepo:      stubUsers{},
		Orders:        ordersSvc,
		Rentals:       &stubRentals{},
		Territories:   territoriesSvc,
		Notifications: &stubNotifications{},
	})
}

func bearerToken(t *testing.T, role enums.Role) string {
	t.Helper()
	cfg := testConfig()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), time.Hour, pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, &stubOrders{}, &stubTerritories{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env := rec.Header().Get("X-AquaRent-Env"); env != "test" {
		t.Fatalf("expected env header, got %q", env)
	}
}

func TestHealthReadyPingsDependencies(t *testing.T) {
	router := newTestRouter(t, &stubOrders{}, &stubTerritories{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthedRoutesRejectMissingToken(t *testing.T) {
	router := newTestRouter(t, &stubOrders{}, &stubTerritories{})

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/orders"},
		{http.MethodGet, "/api/v1/rentals"},
		{http.MethodGet, "/api/v1/notifications"},
		{http.MethodGet, "/api/v1/territories"},
	}
	for _, tc := range paths {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestListOrdersWithToken(t *testing.T) {
	router := newTestRouter(t, &stubOrders{}, &stubTerritories{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", bearerToken(t, enums.RoleCustomer))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMeReturnsProfile(t *testing.T) {
	router := newTestRouter(t, &stubOrders{}, &stubTerritories{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", bearerToken(t, enums.RoleCustomer))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Data struct {
			Email string     `json:"email"`
			Role  enums.Role `json:"role"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Data.Email != "asha@example.com" || payload.Data.Role != enums.RoleCustomer {
		t.Fatalf("unexpected profile payload %s", rec.Body.String())
	}
}

func TestTerritoryManagementRequiresAdmin(t *testing.T) {
	router := newTestRouter(t, &stubOrders{}, &stubTerritories{})

	body := `{"name":"Indiranagar","city":"Bengaluru","boundary":[[12.95,77.58],[13.00,77.58],[13.00,77.66],[12.95,77.66]]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/territories", strings.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, enums.RoleCustomer))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", rec.Code)
	}
}

func TestResolveTerritoryWithToken(t *testing.T) {
	territorySvc := &stubTerritories{resolved: &models.Territory{
		ID:     uuid.New(),
		Name:   "Indiranagar",
		City:   "Bengaluru",
		Active: true,
	}}
	router := newTestRouter(t, &stubOrders{}, territorySvc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/territories/resolve", strings.NewReader(`{"lat":12.97,"lng":77.59}`))
	req.Header.Set("Authorization", bearerToken(t, enums.RoleCustomer))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Data struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Data.Name != "Indiranagar" {
		t.Fatalf("unexpected resolve payload %s", rec.Body.String())
	}
}

func TestConfirmPaymentIsPublic(t *testing.T) {
	ordersSvc := &stubOrders{}
	router := newTestRouter(t, ordersSvc, &stubTerritories{})

	body := `{"gateway_order_ref":"order_abc","gateway_payment_ref":"pay_abc","signature":"sig"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments/confirm", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(ordersSvc.confirmed) != 1 || ordersSvc.confirmed[0].GatewayOrderRef != "order_abc" {
		t.Fatalf("confirm input not forwarded: %+v", ordersSvc.confirmed)
	}
}

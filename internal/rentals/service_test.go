package rentals

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/internal/orders"
	"github.com/aquarent/aquarent-backend/internal/permissions"
	"github.com/aquarent/aquarent-backend/internal/products"
	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
	pkgerrors "github.com/aquarent/aquarent-backend/pkg/errors"
	"github.com/aquarent/aquarent-backend/pkg/outbox"
	"github.com/aquarent/aquarent-backend/pkg/pagination"
	"github.com/aquarent/aquarent-backend/pkg/razorpay"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutbox) countByType(eventType enums.OutboxEventType) int {
	count := 0
	for _, event := range s.events {
		if event.EventType == eventType {
			count++
		}
	}
	return count
}

type stubRentalRepo struct {
	rentals map[uuid.UUID]*models.Rental
}

func newStubRentalRepo() *stubRentalRepo {
	return &stubRentalRepo{rentals: map[uuid.UUID]*models.Rental{}}
}

func (s *stubRentalRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRentalRepo) Create(ctx context.Context, rental *models.Rental) (*models.Rental, error) {
	if rental.ID == uuid.Nil {
		rental.ID = uuid.New()
	}
	s.rentals[rental.ID] = rental
	return rental, nil
}

func (s *stubRentalRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Rental, error) {
	rental, ok := s.rentals[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *rental
	return &copied, nil
}

func (s *stubRentalRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Rental, error) {
	for _, rental := range s.rentals {
		if rental.OrderID == orderID {
			copied := *rental
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRentalRepo) ListCustomerRentals(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*RentalList, error) {
	list := &RentalList{}
	for _, rental := range s.rentals {
		if rental.CustomerID == customerID {
			list.Rentals = append(list.Rentals, ToSummary(*rental))
		}
	}
	return list, nil
}

func (s *stubRentalRepo) ListTerritoryRentals(ctx context.Context, territoryID uuid.UUID, params pagination.Params) (*RentalList, error) {
	return &RentalList{}, nil
}

func (s *stubRentalRepo) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]models.Rental, error) {
	var out []models.Rental
	for _, rental := range s.rentals {
		if rental.Status == enums.RentalStatusActive && rental.CurrentPeriodEnd.Before(cutoff) {
			out = append(out, *rental)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubRentalRepo) UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from []enums.RentalStatus, to enums.RentalStatus, extra map[string]any) (int64, error) {
	rental, ok := s.rentals[id]
	if !ok {
		return 0, nil
	}
	matched := false
	for _, status := range from {
		if rental.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return 0, nil
	}
	rental.Status = to
	if value, ok := extra["paused_at"]; ok {
		if value == nil {
			rental.PausedAt = nil
		} else {
			pausedAt := value.(time.Time)
			rental.PausedAt = &pausedAt
		}
	}
	if value, ok := extra["end_date"]; ok {
		endDate := value.(time.Time)
		rental.EndDate = &endDate
	}
	if value, ok := extra["current_period_end"]; ok {
		rental.CurrentPeriodEnd = value.(time.Time)
	}
	return 1, nil
}

func (s *stubRentalRepo) ExtendPeriodGuarded(ctx context.Context, id uuid.UUID, priorPeriodEnd, newStart, newEnd time.Time) (int64, error) {
	rental, ok := s.rentals[id]
	if !ok || rental.Status != enums.RentalStatusActive || !rental.CurrentPeriodEnd.Equal(priorPeriodEnd) {
		return 0, nil
	}
	rental.CurrentPeriodStart = newStart
	rental.CurrentPeriodEnd = newEnd
	return 1, nil
}

type stubPaymentStore struct {
	orders.Repository
	payments map[uuid.UUID]*models.Payment
}

func newStubPaymentStore() *stubPaymentStore {
	return &stubPaymentStore{payments: map[uuid.UUID]*models.Payment{}}
}

func (s *stubPaymentStore) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubPaymentStore) CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	s.payments[payment.ID] = payment
	return payment, nil
}

func (s *stubPaymentStore) FindPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, ok := s.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *payment
	return &copied, nil
}

func (s *stubPaymentStore) FindPaymentByGatewayOrderRef(ctx context.Context, gatewayOrderRef string) (*models.Payment, error) {
	for _, payment := range s.payments {
		if payment.GatewayOrderRef != nil && *payment.GatewayOrderRef == gatewayOrderRef {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPaymentStore) FindLatestPendingPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	for _, payment := range s.payments {
		if payment.OrderID == orderID && payment.Status == enums.PaymentStatusPending {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPaymentStore) CompletePaymentGuarded(ctx context.Context, id uuid.UUID, gatewayPaymentRef string) (int64, error) {
	payment, ok := s.payments[id]
	if !ok || payment.Status != enums.PaymentStatusPending {
		return 0, nil
	}
	payment.Status = enums.PaymentStatusCompleted
	payment.GatewayPaymentRef = &gatewayPaymentRef
	return 1, nil
}

func (s *stubPaymentStore) FailPaymentGuarded(ctx context.Context, id uuid.UUID, reason string) (int64, error) {
	payment, ok := s.payments[id]
	if !ok || payment.Status != enums.PaymentStatusPending {
		return 0, nil
	}
	payment.Status = enums.PaymentStatusFailed
	payment.FailureReason = &reason
	return 1, nil
}

type stubProductLookup struct {
	products.Repository
	byID map[uuid.UUID]*models.Product
}

func (s *stubProductLookup) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return product, nil
}

type stubGateway struct {
	createErr error
	verifyOK  bool
	created   int
}

func (s *stubGateway) CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.GatewayOrder, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created++
	return &razorpay.GatewayOrder{
		ID:          fmt.Sprintf("order_renewal_%d", s.created),
		AmountPaise: req.AmountPaise,
		Currency:    "INR",
		Status:      "created",
	}, nil
}

func (s *stubGateway) VerifyPaymentSignature(orderRef, paymentRef, signature string) bool {
	return s.verifyOK
}

func (s *stubGateway) Currency() string { return "INR" }

type rentalFixture struct {
	service  Service
	repo     *stubRentalRepo
	payments *stubPaymentStore
	outbox   *stubOutbox
	gateway  *stubGateway
	clock    *fakeClock
	customer uuid.UUID
	product  *models.Product
}

func newRentalFixture(t *testing.T) *rentalFixture {
	t.Helper()

	clock := &fakeClock{current: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	product := &models.Product{
		ID:               uuid.New(),
		Name:             "AquaPure 500",
		Active:           true,
		Rentable:         true,
		MonthlyRentPaise: 60_000,
		DepositPaise:     200_000,
	}
	repo := newStubRentalRepo()
	payments := newStubPaymentStore()
	box := &stubOutbox{}
	gateway := &stubGateway{verifyOK: true}

	svc, err := NewService(ServiceParams{
		Repo:        repo,
		OrderRepo:   payments,
		ProductRepo: &stubProductLookup{byID: map[uuid.UUID]*models.Product{product.ID: product}},
		Gateway:     gateway,
		Tx:          &stubTxRunner{},
		Outbox:      box,
		Now:         clock.now,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &rentalFixture{
		service:  svc,
		repo:     repo,
		payments: payments,
		outbox:   box,
		gateway:  gateway,
		clock:    clock,
		customer: uuid.New(),
		product:  product,
	}
}

func (f *rentalFixture) principal() permissions.Principal {
	return permissions.Principal{UserID: f.customer, Role: enums.RoleCustomer}
}

func (f *rentalFixture) seedRental(t *testing.T, status enums.RentalStatus) *models.Rental {
	t.Helper()
	start := f.clock.current
	rental := &models.Rental{
		ID:                 uuid.New(),
		OrderID:            uuid.New(),
		CustomerID:         f.customer,
		ProductID:          f.product.ID,
		TerritoryID:        uuid.New(),
		Status:             status,
		StartDate:          start,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.AddDate(0, 1, 0),
		MonthlyAmountPaise: f.product.MonthlyRentPaise,
		DepositPaise:       f.product.DepositPaise,
	}
	if status == enums.RentalStatusPaused {
		pausedAt := start
		rental.PausedAt = &pausedAt
	}
	f.repo.rentals[rental.ID] = rental
	return rental
}

func TestCreateFromOrderSpawnsActiveRental(t *testing.T) {
	f := newRentalFixture(t)
	order := &models.Order{
		ID:          uuid.New(),
		CustomerID:  f.customer,
		ProductID:   f.product.ID,
		TerritoryID: uuid.New(),
		Kind:        enums.OrderKindRental,
		Status:      enums.OrderStatusInstalled,
	}

	rental, err := f.service.CreateFromOrder(context.Background(), &gorm.DB{}, order)
	if err != nil {
		t.Fatalf("CreateFromOrder: %v", err)
	}
	if rental.Status != enums.RentalStatusActive {
		t.Fatalf("expected active rental, got %s", rental.Status)
	}
	wantEnd := f.clock.current.AddDate(0, 1, 0)
	if !rental.CurrentPeriodEnd.Equal(wantEnd) {
		t.Fatalf("expected period end %s, got %s", wantEnd, rental.CurrentPeriodEnd)
	}
	if rental.MonthlyAmountPaise != f.product.MonthlyRentPaise {
		t.Fatalf("expected monthly amount %d, got %d", f.product.MonthlyRentPaise, rental.MonthlyAmountPaise)
	}
	if rental.DepositPaise != f.product.DepositPaise {
		t.Fatalf("expected deposit %d, got %d", f.product.DepositPaise, rental.DepositPaise)
	}
	if got := f.outbox.countByType(enums.EventRentalCreated); got != 1 {
		t.Fatalf("expected one rental.created event, got %d", got)
	}
}

func TestCreateFromOrderRejectsPurchase(t *testing.T) {
	f := newRentalFixture(t)
	order := &models.Order{ID: uuid.New(), ProductID: f.product.ID, Kind: enums.OrderKindPurchase}

	_, err := f.service.CreateFromOrder(context.Background(), &gorm.DB{}, order)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPauseResumeShiftsPeriodEnd(t *testing.T) {
	f := newRentalFixture(t)
	rental := f.seedRental(t, enums.RentalStatusActive)
	originalEnd := rental.CurrentPeriodEnd

	if err := f.service.Pause(context.Background(), f.principal(), rental.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	stored := f.repo.rentals[rental.ID]
	if stored.Status != enums.RentalStatusPaused {
		t.Fatalf("expected paused, got %s", stored.Status)
	}
	if stored.PausedAt == nil {
		t.Fatalf("expected paused_at recorded")
	}

	pauseDuration := 72 * time.Hour
	f.clock.advance(pauseDuration)
	if err := f.service.Resume(context.Background(), f.principal(), rental.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	stored = f.repo.rentals[rental.ID]
	if stored.Status != enums.RentalStatusActive {
		t.Fatalf("expected active, got %s", stored.Status)
	}
	if stored.PausedAt != nil {
		t.Fatalf("expected paused_at cleared")
	}
	wantEnd := originalEnd.Add(pauseDuration)
	if !stored.CurrentPeriodEnd.Equal(wantEnd) {
		t.Fatalf("expected period end shifted to %s, got %s", wantEnd, stored.CurrentPeriodEnd)
	}
}

func TestPauseRequiresActive(t *testing.T) {
	f := newRentalFixture(t)
	rental := f.seedRental(t, enums.RentalStatusPaused)

	err := f.service.Pause(context.Background(), f.principal(), rental.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestPauseForeignRentalForbidden(t *testing.T) {
	f := newRentalFixture(t)
	rental := f.seedRental(t, enums.RentalStatusActive)
	stranger := permissions.Principal{UserID: uuid.New(), Role: enums.RoleCustomer}

	err := f.service.Pause(context.Background(), stranger, rental.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestTerminateFromPaused(t *testing.T) {
	f := newRentalFixture(t)
	rental := f.seedRental(t, enums.RentalStatusPaused)

	if err := f.service.Terminate(context.Background(), f.principal(), rental.ID); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	stored := f.repo.rentals[rental.ID]
	if stored.Status != enums.RentalStatusTerminated {
		t.Fatalf("expected terminated, got %s", stored.Status)
	}
	if stored.EndDate == nil {
		t.Fatalf("expected end date recorded")
	}

	err := f.service.Terminate(context.Background(), f.principal(), rental.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("terminated rental must not terminate again, got %v", err)
	}
}

func TestInitiateRenewalWindow(t *testing.T) {
	f := newRentalFixture(t)
	rental := f.seedRental(t, enums.RentalStatusActive)

	// A month-long period opens three weeks out; the window is one week.
	_, err := f.service.InitiateRenewal(context.Background(), f.principal(), rental.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected window-closed error, got %v", err)
	}

	f.clock.current = rental.CurrentPeriodEnd.Add(-3 * 24 * time.Hour)
	session, err := f.service.InitiateRenewal(context.Background(), f.principal(), rental.ID)
	if err != nil {
		t.Fatalf("InitiateRenewal inside window: %v", err)
	}
	if session.AmountPaise != rental.MonthlyAmountPaise {
		t.Fatalf("expected renewal amount %d, got %d", rental.MonthlyAmountPaise, session.AmountPaise)
	}

	// A second call reuses the open session.
	again, err := f.service.InitiateRenewal(context.Background(), f.principal(), rental.ID)
	if err != nil {
		t.Fatalf("repeat InitiateRenewal: %v", err)
	}
	if again.GatewayOrderRef != session.GatewayOrderRef {
		t.Fatalf("expected session reuse, got %s then %s", session.GatewayOrderRef, again.GatewayOrderRef)
	}
	if f.gateway.created != 1 {
		t.Fatalf("expected a single gateway order, got %d", f.gateway.created)
	}
}

func TestInitiateRenewalRequiresActive(t *testing.T) {
	f := newRentalFixture(t)
	rental := f.seedRental(t, enums.RentalStatusPaused)
	f.clock.current = rental.CurrentPeriodEnd.Add(-24 * time.Hour)

	_, err := f.service.InitiateRenewal(context.Background(), f.principal(), rental.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestConfirmRenewalAnchorsAtPeriodEnd(t *testing.T) {
	f := newRentalFixture(t)
	rental := f.seedRental(t, enums.RentalStatusActive)
	priorEnd := rental.CurrentPeriodEnd
	f.clock.current = priorEnd.Add(-5 * 24 * time.Hour)

	session, err := f.service.InitiateRenewal(context.Background(), f.principal(), rental.ID)
	if err != nil {
		t.Fatalf("InitiateRenewal: %v", err)
	}

	err = f.service.ConfirmRenewal(context.Background(), ConfirmRenewalInput{
		GatewayOrderRef:   session.GatewayOrderRef,
		GatewayPaymentRef: "pay_renew_1",
		Signature:         "sig",
	})
	if err != nil {
		t.Fatalf("ConfirmRenewal: %v", err)
	}

	stored := f.repo.rentals[rental.ID]
	if !stored.CurrentPeriodStart.Equal(priorEnd) {
		t.Fatalf("new period must start at the prior end %s, got %s", priorEnd, stored.CurrentPeriodStart)
	}
	wantEnd := priorEnd.AddDate(0, 1, 0)
	if !stored.CurrentPeriodEnd.Equal(wantEnd) {
		t.Fatalf("expected period end %s, got %s", wantEnd, stored.CurrentPeriodEnd)
	}
	if got := f.outbox.countByType(enums.EventRentalRenewed); got != 1 {
		t.Fatalf("expected one renewal event, got %d", got)
	}
}

func TestConfirmRenewalReplayIsIdempotent(t *testing.T) {
	f := newRentalFixture(t)
	rental := f.seedRental(t, enums.RentalStatusActive)
	f.clock.current = rental.CurrentPeriodEnd.Add(-24 * time.Hour)

	session, err := f.service.InitiateRenewal(context.Background(), f.principal(), rental.ID)
	if err != nil {
		t.Fatalf("InitiateRenewal: %v", err)
	}
	input := ConfirmRenewalInput{
		GatewayOrderRef:   session.GatewayOrderRef,
		GatewayPaymentRef: "pay_renew_1",
		Signature:         "sig",
	}
	if err := f.service.ConfirmRenewal(context.Background(), input); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	endAfterFirst := f.repo.rentals[rental.ID].CurrentPeriodEnd

	if err := f.service.ConfirmRenewal(context.Background(), input); err != nil {
		t.Fatalf("replayed confirm must succeed, got %v", err)
	}
	if !f.repo.rentals[rental.ID].CurrentPeriodEnd.Equal(endAfterFirst) {
		t.Fatalf("replay must not extend the period twice")
	}
}

func TestConfirmRenewalRejectsBadSignature(t *testing.T) {
	f := newRentalFixture(t)
	rental := f.seedRental(t, enums.RentalStatusActive)
	f.clock.current = rental.CurrentPeriodEnd.Add(-24 * time.Hour)

	session, err := f.service.InitiateRenewal(context.Background(), f.principal(), rental.ID)
	if err != nil {
		t.Fatalf("InitiateRenewal: %v", err)
	}
	f.gateway.verifyOK = false

	err = f.service.ConfirmRenewal(context.Background(), ConfirmRenewalInput{
		GatewayOrderRef:   session.GatewayOrderRef,
		GatewayPaymentRef: "pay_renew_1",
		Signature:         "forged",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	payment := f.payments.payments[session.PaymentID]
	if payment.Status != enums.PaymentStatusFailed {
		t.Fatalf("expected payment failed, got %s", payment.Status)
	}
	if !f.repo.rentals[rental.ID].CurrentPeriodEnd.Equal(rental.CurrentPeriodEnd) {
		t.Fatalf("failed renewal must not extend the period")
	}
}

func TestExpireOverdueSweep(t *testing.T) {
	f := newRentalFixture(t)
	overdueA := f.seedRental(t, enums.RentalStatusActive)
	overdueB := f.seedRental(t, enums.RentalStatusActive)
	paused := f.seedRental(t, enums.RentalStatusPaused)

	cutoff := overdueA.CurrentPeriodEnd.Add(24 * time.Hour)
	expired, err := f.service.ExpireOverdue(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expected two expired rentals, got %d", expired)
	}
	for _, id := range []uuid.UUID{overdueA.ID, overdueB.ID} {
		if f.repo.rentals[id].Status != enums.RentalStatusExpired {
			t.Fatalf("expected rental %s expired, got %s", id, f.repo.rentals[id].Status)
		}
	}
	if f.repo.rentals[paused.ID].Status != enums.RentalStatusPaused {
		t.Fatalf("paused rental must not expire")
	}
	if got := f.outbox.countByType(enums.EventRentalExpired); got != 2 {
		t.Fatalf("expected two expiry events, got %d", got)
	}
}

func TestExpireOverdueNothingDue(t *testing.T) {
	f := newRentalFixture(t)
	rental := f.seedRental(t, enums.RentalStatusActive)

	expired, err := f.service.ExpireOverdue(context.Background(), rental.CurrentPeriodEnd.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}
	if expired != 0 {
		t.Fatalf("expected no expiries, got %d", expired)
	}
}

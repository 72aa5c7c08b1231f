package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aquarent/aquarent-backend/pkg/config"
	pkgerrors "github.com/aquarent/aquarent-backend/pkg/errors"
)

func testConfig() config.GatewayConfig {
	return config.GatewayConfig{
		KeyID:     "rzp_test_key",
		KeySecret: "super-secret",
		Currency:  "INR",
	}
}

func TestNewClientRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.KeySecret = "   "
	_, err := NewClient(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("expected error for missing key secret")
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeConfig) {
		t.Fatalf("expected CONFIG_ERROR, got %v", err)
	}
}

func TestNewClientRequiresKeyID(t *testing.T) {
	cfg := testConfig()
	cfg.KeyID = ""
	_, err := NewClient(context.Background(), cfg, nil)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConfig) {
		t.Fatalf("expected CONFIG_ERROR, got %v", err)
	}
}

func TestCreateOrder(t *testing.T) {
	var gotAuthUser, gotAuthPass string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuthUser, gotAuthPass, _ = r.BasicAuth()
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "order_Nxyz123",
			"amount":   149900,
			"currency": "INR",
			"status":   "created",
		})
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), testConfig(), nil, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	order, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		AmountPaise: 149900,
		Receipt:     "ord_local_1",
		Notes:       map[string]string{"order_id": "abc"},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "order_Nxyz123" {
		t.Fatalf("unexpected gateway order id %q", order.ID)
	}
	if order.AmountPaise != 149900 {
		t.Fatalf("unexpected amount %d", order.AmountPaise)
	}
	if gotAuthUser != "rzp_test_key" || gotAuthPass != "super-secret" {
		t.Fatalf("unexpected basic auth %q/%q", gotAuthUser, gotAuthPass)
	}
	if gotBody["currency"] != "INR" {
		t.Fatalf("unexpected currency %v", gotBody["currency"])
	}
	if gotBody["receipt"] != "ord_local_1" {
		t.Fatalf("unexpected receipt %v", gotBody["receipt"])
	}
}

func TestCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	client, err := NewClient(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.CreateOrder(context.Background(), CreateOrderRequest{AmountPaise: 0}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"unavailable"}`))
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), testConfig(), nil, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.CreateOrder(context.Background(), CreateOrderRequest{AmountPaise: 100}); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected DEPENDENCY_ERROR, got %v", err)
	}
}

func TestVerifyPaymentSignature(t *testing.T) {
	client, err := NewClient(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	orderRef := "order_Nxyz123"
	paymentRef := "pay_Mabc456"
	mac := hmac.New(sha256.New, []byte("super-secret"))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	valid := hex.EncodeToString(mac.Sum(nil))

	if !client.VerifyPaymentSignature(orderRef, paymentRef, valid) {
		t.Fatal("expected valid signature to verify")
	}
	if client.VerifyPaymentSignature(orderRef, paymentRef, "deadbeef"+valid[8:]) {
		t.Fatal("expected tampered signature to fail")
	}
	if client.VerifyPaymentSignature(orderRef, "pay_other", valid) {
		t.Fatal("expected signature over different payment ref to fail")
	}
	if client.VerifyPaymentSignature("", paymentRef, valid) {
		t.Fatal("expected empty order ref to fail")
	}
}

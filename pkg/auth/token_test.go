package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/config"
	"github.com/aquarent/aquarent-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret: "test-secret",
		Issuer: "aquarent-test",
	}
}

func TestMintAndParseRoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	territoryID := uuid.New()
	payload := AccessTokenPayload{
		UserID:      uuid.New(),
		Role:        enums.RoleFranchiseOwner,
		TerritoryID: &territoryID,
	}

	token, err := MintAccessToken(cfg, time.Now(), time.Hour, payload)
	if err != nil {
		t.Fatalf("MintAccessToken() error: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseAccessToken() error: %v", err)
	}
	if claims.UserID != payload.UserID {
		t.Fatalf("expected user %s, got %s", payload.UserID, claims.UserID)
	}
	if claims.Role != enums.RoleFranchiseOwner {
		t.Fatalf("expected franchise_owner role, got %s", claims.Role)
	}
	if claims.TerritoryID == nil || *claims.TerritoryID != territoryID {
		t.Fatalf("territory claim lost in round trip")
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %q, got %q", cfg.Issuer, claims.Issuer)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleCustomer,
	})
	if err != nil {
		t.Fatalf("MintAccessToken() error: %v", err)
	}

	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleCustomer,
	})
	if err != nil {
		t.Fatalf("MintAccessToken() error: %v", err)
	}

	other := cfg
	other.Secret = "different-secret"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatalf("expected signature mismatch to be rejected")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("MintAccessToken() error: %v", err)
	}

	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatalf("expected issuer mismatch to be rejected")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleCustomer,
	})
	if err != nil {
		t.Fatalf("MintAccessToken() error: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := ParseAccessToken(cfg, tampered); err == nil {
		t.Fatalf("expected tampered signature to be rejected")
	}
}

func TestMintRejectsInvalidRole(t *testing.T) {
	if _, err := MintAccessToken(testJWTConfig(), time.Now(), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.Role("superuser"),
	}); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
}

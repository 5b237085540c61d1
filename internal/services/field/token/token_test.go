package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	apperrors "github.com/seamark/fieldops/internal/platform/errors"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return Config{
		Issuer:   "fieldops",
		Audience: "fieldops-agent",
		Key:      key,
		TTL:      time.Hour,
		Now:      time.Now,
	}
}

func TestMintAndVerifyRoundTrip(t *testing.T) {
	cfg := testConfig(t)

	bearer, err := cfg.Mint("identity-1", "tenant-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := cfg.Verify(bearer)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.IdentityID != "identity-1" || claims.TenantID != "tenant-1" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.ExpiresAt.IsZero() {
		t.Fatal("expected an expiry")
	}
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	cfg := testConfig(t)
	other := testConfig(t)

	bearer, err := other.Mint("identity-1", "tenant-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err = cfg.Verify(bearer)
	if apperrors.CodeOf(err) != apperrors.CodeCredentialInvalid {
		t.Fatalf("code = %v, want credential invalid", apperrors.CodeOf(err))
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	cfg := testConfig(t)
	past := time.Now().Add(-2 * time.Hour)
	cfg.Now = func() time.Time { return past }

	bearer, err := cfg.Mint("identity-1", "tenant-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	cfg.Now = time.Now
	_, err = cfg.Verify(bearer)
	if apperrors.CodeOf(err) != apperrors.CodeCredentialExpired {
		t.Fatalf("code = %v, want credential expired", apperrors.CodeOf(err))
	}
}

func TestVerifyRejectsEmptyBearer(t *testing.T) {
	cfg := testConfig(t)
	if _, err := cfg.Verify("  "); apperrors.CodeOf(err) != apperrors.CodeCredentialInvalid {
		t.Fatalf("code = %v, want credential invalid", apperrors.CodeOf(err))
	}
}

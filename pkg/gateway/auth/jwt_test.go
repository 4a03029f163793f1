package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carelens-ai/platform/pkg/common/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(testSecret, "carelens", "carelens-api", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func testUser() models.User {
	return models.User{
		ID:       uuid.New(),
		ClinicID: uuid.New(),
		Email:    "dr.reyes@clinic.example",
		Role:     "clinician",
	}
}

func TestNewJWTManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewJWTManager("short", "iss", "aud", time.Hour); err == nil {
		t.Fatal("expected error for a short secret")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := testManager(t)
	user := testUser()

	token, err := m.IssueToken(user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := m.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID != user.ID || claims.ClinicID != user.ClinicID {
		t.Fatalf("identity claims mangled: %+v", claims)
	}
	if claims.Role != "clinician" || claims.Email != user.Email {
		t.Fatalf("role or email mangled: %+v", claims)
	}
	if claims.Subject != user.ID.String() {
		t.Fatalf("subject must be the user id, got %q", claims.Subject)
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	m := testManager(t)
	token, err := m.IssueToken(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.ValidateToken(context.Background(), token+"x"); err == nil {
		t.Fatal("tampered signature must be rejected")
	}
	if _, err := m.ValidateToken(context.Background(), "not.a.token.at.all"); err == nil {
		t.Fatal("malformed token must be rejected")
	}
	if _, err := m.ValidateToken(context.Background(), ""); err == nil {
		t.Fatal("empty token must be rejected")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	m := testManager(t)
	token, err := m.IssueToken(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other, err := NewJWTManager("another-secret-another-secret", "carelens", "carelens-api", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := other.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("token signed with a different key must be rejected")
	}
}

func TestValidateTokenRejectsWrongIssuerOrAudience(t *testing.T) {
	m := testManager(t)
	token, err := m.IssueToken(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wrongIssuer, _ := NewJWTManager(testSecret, "someone-else", "carelens-api", time.Hour)
	if _, err := wrongIssuer.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("wrong issuer must be rejected")
	}

	wrongAudience, _ := NewJWTManager(testSecret, "carelens", "other-api", time.Hour)
	if _, err := wrongAudience.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("wrong audience must be rejected")
	}
}

func TestValidateTokenExpiry(t *testing.T) {
	m := testManager(t)
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return issued }

	token, err := m.IssueToken(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.nowFunc = func() time.Time { return issued.Add(30 * time.Minute) }
	if _, err := m.ValidateToken(context.Background(), token); err != nil {
		t.Fatalf("token must still be valid mid-lifetime: %v", err)
	}

	m.nowFunc = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := m.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("expired token must be rejected")
	}

	m.nowFunc = func() time.Time { return issued.Add(-time.Minute) }
	if _, err := m.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("token must not validate before its nbf")
	}
}

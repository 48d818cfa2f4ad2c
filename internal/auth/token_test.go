package auth

import (
	"testing"

	"github.com/spec-kit/license-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)

	token, exp, err := tm.GenerateToken("seller-123", "seller@example.com")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if exp.IsZero() {
		t.Fatal("expected non-zero expiry")
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.SubjectID != "seller-123" {
		t.Errorf("SubjectID = %q, want %q", claims.SubjectID, "seller-123")
	}
	if claims.Subject != domain.SubjectTypeSeller {
		t.Errorf("Subject = %q, want %q", claims.Subject, domain.SubjectTypeSeller)
	}
	if claims.Email != "seller@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "seller@example.com")
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	tm := NewTokenManager("secret-one", 60)
	token, _, err := tm.GenerateToken("seller-123", "seller@example.com")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	other := NewTokenManager("secret-two", 60)
	if _, err := other.ParseToken(token); err == nil {
		t.Fatal("expected parse failure with wrong secret")
	}
}

func TestParseTokenGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)
	if _, err := tm.ParseToken("not-a-token"); err == nil {
		t.Fatal("expected parse failure for malformed token")
	}
}

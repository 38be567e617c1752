package auth

import (
	"context"
	"testing"
	"time"
)

func TestAllowAllAlwaysSucceeds(t *testing.T) {
	claims, err := AllowAll{}.Validate("")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "" || claims.Role != "" {
		t.Errorf("expected zero claims, got %+v", claims)
	}
}

func TestJWTValidatorRoundTrip(t *testing.T) {
	v := NewJWTValidator("test-secret")

	token, err := v.GenerateTestToken("user-1", "admin", time.Minute)
	if err != nil {
		t.Fatalf("GenerateTestToken: %v", err)
	}

	claims, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != "admin" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestJWTValidatorRejectsEmptyToken(t *testing.T) {
	v := NewJWTValidator("test-secret")
	if _, err := v.Validate(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestJWTValidatorRejectsExpiredToken(t *testing.T) {
	v := NewJWTValidator("test-secret")
	token, err := v.GenerateTestToken("user-1", "admin", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateTestToken: %v", err)
	}
	if _, err := v.Validate(token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestJWTValidatorRejectsWrongSecret(t *testing.T) {
	signed := NewJWTValidator("secret-a")
	token, err := signed.GenerateTestToken("user-1", "admin", time.Minute)
	if err != nil {
		t.Fatalf("GenerateTestToken: %v", err)
	}

	verifier := NewJWTValidator("secret-b")
	if _, err := verifier.Validate(token); err == nil {
		t.Fatal("expected error for token signed with a different secret")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithClaims(context.Background(), Claims{Subject: "user-1"})
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		t.Fatal("expected claims to be present")
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", claims.Subject)
	}
}

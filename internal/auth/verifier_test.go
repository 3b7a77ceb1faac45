package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-0123456789"

func TestVerifyToken_RoundTrip(t *testing.T) {
	v := NewTokenVerifier(testSecret, "rolewatch")

	token, err := v.Issue("user_123", time.Hour)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	claims, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if claims.UserID() != "user_123" {
		t.Errorf("UserID = %q, want user_123", claims.UserID())
	}
	if claims.Issuer != "rolewatch" {
		t.Errorf("Issuer = %q, want rolewatch", claims.Issuer)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	issuer := NewTokenVerifier("right-secret", "")
	token, err := issuer.Issue("user_123", time.Hour)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	v := NewTokenVerifier("wrong-secret", "")
	if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyToken error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	v := NewTokenVerifier(testSecret, "")
	token, err := v.Issue("user_123", -time.Minute)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	if _, err := v.VerifyToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("VerifyToken error = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyToken_WrongIssuer(t *testing.T) {
	other := NewTokenVerifier(testSecret, "someone-else")
	token, err := other.Issue("user_123", time.Hour)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	v := NewTokenVerifier(testSecret, "rolewatch")
	if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyToken error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyToken_EmptyIssuerAcceptsAny(t *testing.T) {
	other := NewTokenVerifier(testSecret, "someone-else")
	token, err := other.Issue("user_123", time.Hour)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	v := NewTokenVerifier(testSecret, "")
	if _, err := v.VerifyToken(token); err != nil {
		t.Errorf("VerifyToken failed: %v", err)
	}
}

func TestVerifyToken_RejectsWrongAlgorithm(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	v := NewTokenVerifier(testSecret, "")
	if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyToken error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyToken_MissingSubject(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	v := NewTokenVerifier(testSecret, "")
	if _, err := v.VerifyToken(token); !errors.Is(err, ErrMissingClaims) {
		t.Errorf("VerifyToken error = %v, want ErrMissingClaims", err)
	}
}

func TestVerifyToken_MissingExpiry(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user_123"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	v := NewTokenVerifier(testSecret, "")
	if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyToken error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyToken_Garbage(t *testing.T) {
	v := NewTokenVerifier(testSecret, "")
	if _, err := v.VerifyToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyToken error = %v, want ErrInvalidToken", err)
	}
}

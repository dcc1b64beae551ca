package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifier(t *testing.T) {
	v := NewVerifier("test-secret")

	valid, err := v.Issue("a1", "Alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	expired, _ := v.Issue("a1", "Alice", -time.Minute)
	foreign, _ := NewVerifier("other-secret").Issue("a1", "Alice", time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   "a1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, Subject: "a1"},
	}).SignedString([]byte("test-secret"))
	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "a1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))

	tests := []struct {
		name     string
		token    string
		identity string
		want     error
	}{
		{"valid", valid, "a1", nil},
		{"other identity", valid, "b1", ErrIdentityMismatch},
		{"expired", expired, "a1", ErrInvalidToken},
		{"other secret", foreign, "a1", ErrInvalidToken},
		{"unsigned", none, "a1", ErrInvalidToken},
		{"no expiry", noExpiry, "a1", ErrInvalidToken},
		{"wrong issuer", wrongIssuer, "a1", ErrInvalidToken},
		{"garbage", "not.a.token", "a1", ErrInvalidToken},
		{"empty", "", "a1", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.token, tt.identity)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Verify: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify err = %v, want %v", err, tt.want)
			}
		})
	}
}

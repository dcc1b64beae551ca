// Package auth verifies the signed identity tokens a game server hands to
// its players. A token binds one chat identity, and the gateway grants
// command permissions only to connections that presented a valid one.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim every identity token carries.
const Issuer = "chatmod"

var (
	// ErrInvalidToken is returned for a token that fails signature, issuer
	// or expiry checks.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrIdentityMismatch is returned when the token's subject is not the
	// identity the client claimed.
	ErrIdentityMismatch = errors.New("auth: token issued for another identity")
)

// Claims are the JWT claims of an identity token. Subject is the identity.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// Verifier issues and checks HS256 identity tokens with a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Issue signs a token for identity that expires after ttl.
func (v *Verifier) Issue(identity, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign: %w", err)
	}
	return signed, nil
}

// Verify checks that token is valid and was issued for identity.
func (v *Verifier) Verify(token, identity string) error {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject != identity {
		return ErrIdentityMismatch
	}
	return nil
}

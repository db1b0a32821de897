// Package session issues and verifies stateless bearer tokens for
// authenticated identities. Tokens carry the entity type and record id, so
// any instance can reconstruct the caller without shared state.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/victorteokw/docmap/core/schema"
)

// Claims are the token claims for an authenticated caller.
type Claims struct {
	Entity string `json:"ent"`
	ID     string `json:"rid"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies session tokens.
// Thread-safe and suitable for concurrent use.
type TokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewTokenService creates a token service. If secret is empty, a random
// 32-byte secret is generated (tokens then die with the process).
func NewTokenService(secret string, expiration time.Duration) *TokenService {
	var secretBytes []byte
	if secret == "" {
		secretBytes = make([]byte, 32)
		rand.Read(secretBytes)
	} else {
		secretBytes = []byte(secret)
	}

	if expiration == 0 {
		expiration = 24 * time.Hour
	}

	return &TokenService{
		secret:     secretBytes,
		issuer:     "docmap",
		expiration: expiration,
	}
}

// Issue creates a token for the given identity.
func (s *TokenService) Issue(ident *schema.Identity) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		Entity: ident.Entity,
		ID:     ident.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   ident.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify validates a token and returns the identity it was issued for.
func (s *TokenService) Verify(tokenString string) (*schema.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Entity == "" || claims.ID == "" {
		return nil, errors.New("invalid token")
	}
	return &schema.Identity{Entity: claims.Entity, ID: claims.ID}, nil
}

// GenerateSecret generates a random secret suitable for token signing.
func GenerateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

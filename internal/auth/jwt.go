// Package auth mints and verifies the bearer tokens used for both the HTTP API
// and the socket.io handshake.
package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	// Issuer is stamped into every token this package mints.
	Issuer = "bazaar"

	keyDerivationInfo = "bazaar/jwt-signing-key/v1"
)

// ErrInvalidToken is returned for tokens that fail signature or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// TokenClaims is the JWT payload. The subject carries the user id.
type TokenClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *TokenClaims) UserID() string {
	return c.Subject
}

// JWTManager creates and verifies EdDSA-signed tokens from a master secret.
type JWTManager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	now        func() time.Time
}

// NewJWTManager derives the signing key from masterSecret.
func NewJWTManager(masterSecret string) (*JWTManager, error) {
	if strings.TrimSpace(masterSecret) == "" {
		return nil, fmt.Errorf("master secret is required")
	}

	seed := make([]byte, ed25519.SeedSize)
	kdf := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(keyDerivationInfo))
	if _, err := io.ReadFull(kdf, seed); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	privateKey := ed25519.NewKeyFromSeed(seed)

	return &JWTManager{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
		now:        time.Now,
	}, nil
}

// CreateToken mints a token for userID. A zero ttl produces a token without
// an expiry.
func (m *JWTManager) CreateToken(userID, name string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user id is required")
	}

	now := m.now()
	claims := TokenClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(m.privateKey)
}

// VerifyToken checks the signature and time claims and returns the claims.
func (m *JWTManager) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.publicKey, nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

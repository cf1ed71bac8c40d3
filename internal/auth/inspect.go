package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Inspection is what a client can learn from a token without the signing key.
type Inspection struct {
	Subject   string
	ExpiresAt time.Time
	// HasExpiry is false for tokens without an exp claim.
	HasExpiry bool
}

// Expired reports whether the token had expired at now.
func (i Inspection) Expired(now time.Time) bool {
	return i.HasExpiry && !now.Before(i.ExpiresAt)
}

// Inspect decodes token claims without verifying the signature. The server
// remains authoritative; clients only use this to learn their own user id and
// to skip tokens that have obviously expired. Opaque (non-JWT) tokens return
// ok=false.
func Inspect(token string) (Inspection, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Inspection{}, false
	}

	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Inspection{}, false
	}

	out := Inspection{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
		out.HasExpiry = true
	}
	return out, true
}

// SubjectOf returns the token subject, or "" when it cannot be decoded.
func SubjectOf(token string) string {
	info, _ := Inspect(token)
	return info.Subject
}

package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims extends JWT standard claims with the fields the fulfillment
// handler needs to authorise a request without a database hit.
type AccessClaims struct {
	jwt.RegisteredClaims
	ClientID string `json:"cid"`
	Scope    string `json:"scope"`
}

// HashToken computes the SHA-256 hash of a raw code or token for storage.
// Raw secrets are never stored, only their hashes. Hash lookup also keeps
// code comparisons out of string-equality territory: an attacker's guess
// is hashed before touching the database.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// GenerateAuthCode creates a cryptographically random authorization code
// (256-bit). The raw code is handed to the client via redirect; the hash
// is stored with the grant.
func GenerateAuthCode() (string, error) {
	return randomHex(32)
}

// GenerateRefreshToken creates a cryptographically random refresh token (256-bit).
func GenerateRefreshToken() (string, error) {
	return randomHex(32)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateAccessToken creates a signed JWT access token for a linked client.
// Access tokens are short-lived and validated by signature only plus a
// revocation check on the returned jti.
//
// Returns the signed token and its jti so the caller can bind the token
// to the refresh token issued alongside it.
func GenerateAccessToken(clientID, scope, secret string, ttl time.Duration) (signed, jti string, err error) {
	now := time.Now()
	jti = uuid.NewString()

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		ClientID: clientID,
		Scope:    scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err = token.SignedString([]byte(secret))
	if err != nil {
		return "", "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, jti, nil
}

// ParseAccessToken validates and parses a JWT access token.
// It checks the signature, expiry, and required fields; revocation is the
// Authority's concern.
func ParseAccessToken(tokenString, secret string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}

	if claims.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client id", ErrUnauthorized)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrUnauthorized)
	}

	return claims, nil
}

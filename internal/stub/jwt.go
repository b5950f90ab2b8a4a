package stub

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the stub's token claims: subject is the mobile number, and
// refresh tokens additionally carry the device id they were issued to.
type Claims struct {
	DeviceID string `json:"deviceId,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner mints and verifies the stub's HS256 tokens
type TokenSigner struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenSigner creates a signer with the given TTLs
func NewTokenSigner(secret string, accessTTL, refreshTTL time.Duration) *TokenSigner {
	return &TokenSigner{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// MintAccessToken creates an access token for the mobile number
func (s *TokenSigner) MintAccessToken(mobileNumber string) (string, time.Time, error) {
	return s.mint(mobileNumber, "", s.accessTTL)
}

// MintRefreshToken creates a refresh token bound to (mobile, device)
func (s *TokenSigner) MintRefreshToken(mobileNumber, deviceID string) (string, time.Time, error) {
	return s.mint(mobileNumber, deviceID, s.refreshTTL)
}

func (s *TokenSigner) mint(mobileNumber, deviceID string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			// Unique per token, so rotation always yields a new string.
			ID:        uuid.NewString(),
			Subject:   mobileNumber,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify parses and validates a token, returning its claims
func (s *TokenSigner) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

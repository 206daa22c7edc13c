package models

import (
	"time"

	"github.com/google/uuid"
)

// Server side record that makes refresh token redeemable
// Exists while the token is issued and not redeemed yet
type RefreshSession struct {
	TokenID  uuid.UUID
	UserID   uuid.UUID
	IssuedAt time.Time
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager, AuthService
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Decoded and verified access token payload
type AccessClaims struct {
	Subject   uuid.UUID
	Email     string
	Name      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Decoded and verified refresh token payload
type RefreshClaims struct {
	Subject   uuid.UUID
	TokenID   uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/blogaccount/internal/apperrors"
	"github.com/nkiryanov/blogaccount/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Value of 'typ' claim. Keeps access token from being accepted as refresh one and vice versa
const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Type  string `json:"typ"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type RefreshTokenClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// Token manager with sensible default
type Config struct {
	// Secret keys to sign access and refresh tokens
	// Both required and must differ
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Mints and verifies signed access and refresh tokens
// It is stateless: persisting refresh sessions is the caller's job
type TokenManager struct {
	accessKey  []byte
	refreshKey []byte

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	// Clock, replaced in tests
	now func() time.Time
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh secret keys must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secret keys must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing method %q is not supported, only HMAC ones are", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &TokenManager{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// Issue short living access token
func (m *TokenManager) IssueAccess(user models.User) (models.IssuedToken, error) {
	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(m.accessTTL)

	token := jwt.NewWithClaims(m.alg, AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type:  typeAccess,
		Email: user.Email,
		Name:  user.Name,
	})

	value, err := token.SignedString(m.accessKey)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

// Issue refresh token with a fresh token id
// Returned session has to be recorded before the token is handed out
func (m *TokenManager) IssueRefresh(user models.User) (models.IssuedToken, models.RefreshSession, error) {
	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(m.refreshTTL)
	session := models.RefreshSession{
		TokenID:  uuid.New(),
		UserID:   user.ID,
		IssuedAt: now,
	}

	token := jwt.NewWithClaims(m.alg, RefreshTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.TokenID.String(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type: typeRefresh,
	})

	value, err := token.SignedString(m.refreshKey)
	if err != nil {
		return models.IssuedToken{}, session, fmt.Errorf("error while signing refresh token. Err: %w", err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, session, nil
}

// Parse and validate access token: signature, algorithm, expiration and subject
func (m *TokenManager) ParseAccess(access string) (models.AccessClaims, error) {
	claims := &AccessTokenClaims{}

	err := m.parse(access, claims, m.accessKey)
	if err == nil && claims.Type != typeAccess {
		err = errors.New("not an access token")
	}
	if err != nil {
		return models.AccessClaims{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.AccessClaims{}, fmt.Errorf("%w: invalid subject", apperrors.ErrMalformedToken)
	}

	return models.AccessClaims{
		Subject:   userID,
		Email:     claims.Email,
		Name:      claims.Name,
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

// Parse and validate refresh token. Session liveness is not checked here
func (m *TokenManager) ParseRefresh(refresh string) (models.RefreshClaims, error) {
	claims := &RefreshTokenClaims{}

	err := m.parse(refresh, claims, m.refreshKey)
	if err == nil && claims.Type != typeRefresh {
		err = errors.New("not a refresh token")
	}
	if err != nil {
		return models.RefreshClaims{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.RefreshClaims{}, fmt.Errorf("%w: invalid subject", apperrors.ErrMalformedToken)
	}
	tokenID, err := uuid.Parse(claims.ID)
	if err != nil {
		return models.RefreshClaims{}, fmt.Errorf("%w: invalid token id", apperrors.ErrMalformedToken)
	}

	return models.RefreshClaims{
		Subject:   userID,
		TokenID:   tokenID,
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

func (m *TokenManager) parse(value string, claims jwt.Claims, key []byte) error {
	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(t *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	return err
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

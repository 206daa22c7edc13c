package auth

import (
	"context"
	"fmt"

	"github.com/nkiryanov/blogaccount/internal/apperrors"
	"github.com/nkiryanov/blogaccount/internal/models"
)

// How the caller proves who it is
type Strategy int

const (
	// Email and password, used at login
	StrategyPassword Strategy = iota + 1

	// Bearer access token, used on every protected request. No store lookup
	StrategyAccessToken

	// Bearer refresh token, used at refresh. Consumes the session
	StrategyRefreshToken
)

func (s Strategy) String() string {
	switch s {
	case StrategyPassword:
		return "password"
	case StrategyAccessToken:
		return "access_token"
	case StrategyRefreshToken:
		return "refresh_token"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Credential material. Which fields are used depends on Strategy
type Credentials struct {
	Strategy Strategy

	Email    string
	Password string

	Token string
}

// Resolve user from credentials
//
// Errors by strategy:
//   - password: apperrors.ErrUserNotFound, apperrors.ErrInvalidCredentials
//   - access token: apperrors.ErrUnauthenticated (wraps apperrors.ErrMalformedToken)
//   - refresh token: apperrors.ErrMalformedToken, apperrors.ErrTokenNotExists
//
// For access token only ID, Email and Name of the user are set
func (s *AuthService) Resolve(ctx context.Context, creds Credentials) (models.User, error) {
	switch creds.Strategy {
	case StrategyPassword:
		return s.VerifyIdentity(ctx, creds.Email, creds.Password)
	case StrategyAccessToken:
		return s.resolveAccess(creds.Token)
	case StrategyRefreshToken:
		return s.resolveRefresh(ctx, creds.Token)
	default:
		return models.User{}, fmt.Errorf("%w: unknown strategy %s", apperrors.ErrUnauthenticated, creds.Strategy)
	}
}

func (s *AuthService) resolveAccess(token string) (models.User, error) {
	claims, err := s.tokens.ParseAccess(token)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", apperrors.ErrUnauthenticated, err)
	}

	return models.User{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
	}, nil
}

// Token is live only if its session is deleted by this very call
// Of concurrent calls with the same token exactly one passes
func (s *AuthService) resolveRefresh(ctx context.Context, token string) (models.User, error) {
	claims, err := s.tokens.ParseRefresh(token)
	if err != nil {
		return models.User{}, err
	}

	deleted, err := s.sessions.Delete(context.WithoutCancel(ctx), claims.TokenID)
	if err != nil {
		return models.User{}, translate(err)
	}
	if !deleted {
		return models.User{}, apperrors.ErrTokenNotExists
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return models.User{}, translate(err)
	}

	return user, nil
}

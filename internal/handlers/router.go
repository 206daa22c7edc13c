package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/blogaccount/internal/handlers/middleware"
	"github.com/nkiryanov/blogaccount/internal/logger"
	"github.com/nkiryanov/blogaccount/internal/models"
	"github.com/nkiryanov/blogaccount/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// Metrics handler is optional: /metrics is not served if nil
func NewRouter(authService authService, metrics http.Handler, logger logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /register", handleRegister(authService, logger))
	apiauth.Handle("POST /login", handleLogin(authService, logger))
	apiauth.Handle("POST /refresh", handleTokenRefresh(authService, logger))
	apiauth.Handle("POST /logout", handleLogout(authService, logger))
	apiauth.Handle("POST /check", withAuth(handleCheck()))

	apiauth.Handle("GET /users/{id}", withAuth(handleGetUser(authService, logger)))
	apiauth.Handle("PATCH /users/{id}", withAuth(handleUpdateProfile(authService, logger)))
	apiauth.Handle("PATCH /users/{id}/password", withAuth(handleChangePassword(authService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	if metrics != nil {
		root.Handle("GET /metrics", metrics)
	}

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user
	// Has to return apperrors.ErrDuplicateEmail if email is taken
	Register(ctx context.Context, params auth.RegisterParams) (models.User, error)

	// Issue access and refresh token for the user
	IssueSessionPair(ctx context.Context, user models.User) (models.TokenPair, error)

	// Login user with email and password
	// Has to return apperrors.ErrUserNotFound or apperrors.ErrInvalidCredentials on failure
	Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error)

	// Redeem refresh token for a new pair
	// Has to return apperrors.ErrExpiredOrRevokedSession if token was used or revoked
	Refresh(ctx context.Context, refresh string) (models.User, models.TokenPair, error)

	// Revoke refresh token
	Logout(ctx context.Context, refresh string) error

	// Resolve user from credentials
	Resolve(ctx context.Context, creds auth.Credentials) (models.User, error)

	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) (models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, params auth.UpdateProfileParams) (models.User, error)
}

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/blogaccount/internal/apperrors"
	"github.com/nkiryanov/blogaccount/internal/handlers/middleware"
	"github.com/nkiryanov/blogaccount/internal/handlers/render"
	"github.com/nkiryanov/blogaccount/internal/handlers/userctx"
	"github.com/nkiryanov/blogaccount/internal/logger"
	"github.com/nkiryanov/blogaccount/internal/models"
	"github.com/nkiryanov/blogaccount/internal/service/auth"
)

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Avatar:    u.AvatarRef,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type authResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

func newAuthResponse(u models.User, pair models.TokenPair) authResponse {
	return authResponse{
		User:         newUserResponse(u),
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
	}
}

func handleRegister(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Name     string `json:"name" validate:"required,notblank,min=3,max=50"`
		Password string `json:"password" validate:"required,min=6,max=12"`
		Avatar   string `json:"avatar" validate:"omitempty,max=255"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := authService.Register(r.Context(), auth.RegisterParams{
			Email:     data.Email,
			Name:      data.Name,
			Password:  data.Password,
			AvatarRef: data.Avatar,
		})
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrDuplicateEmail):
				render.ServiceError(w, "User with this email already exists", http.StatusConflict)
			default:
				logger.Error("Failed to register user", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		pair, err := authService.IssueSessionPair(r.Context(), user)
		if err != nil {
			logger.Error("Failed to issue tokens for registered user", "user_id", user.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.Created(w, newAuthResponse(user, pair))
	})
}

func handleLogin(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, pair, err := authService.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			// Do not tell whether the email is registered
			case errors.Is(err, apperrors.ErrUserNotFound), errors.Is(err, apperrors.ErrInvalidCredentials):
				render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			default:
				logger.Error("Failed to login user", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, newAuthResponse(user, pair))
	})
}

func handleTokenRefresh(authService authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, ok := middleware.BearerToken(r)
		if !ok {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		user, pair, err := authService.Refresh(r.Context(), refresh)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrExpiredOrRevokedSession), errors.Is(err, apperrors.ErrMalformedToken):
				render.ServiceError(w, "Refresh token is invalid or expired", http.StatusUnauthorized)
			default:
				logger.Error("Failed to refresh tokens", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, newAuthResponse(user, pair))
	})
}

func handleLogout(authService authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, ok := middleware.BearerToken(r)
		if !ok {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		err := authService.Logout(r.Context(), refresh)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrMalformedToken):
				render.ServiceError(w, "Refresh token is invalid or expired", http.StatusUnauthorized)
			default:
				logger.Error("Failed to logout", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.NoContent(w)
	})
}

// Echo access token payload
func handleCheck() http.Handler {
	type response struct {
		ID    uuid.UUID `json:"id"`
		Email string    `json:"email"`
		Name  string    `json:"name"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{ID: user.ID, Email: user.Email, Name: user.Name})
	})
}

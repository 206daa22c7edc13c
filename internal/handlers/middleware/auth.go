package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/nkiryanov/blogaccount/internal/handlers/render"
	"github.com/nkiryanov/blogaccount/internal/handlers/userctx"
	"github.com/nkiryanov/blogaccount/internal/models"
	"github.com/nkiryanov/blogaccount/internal/service/auth"
)

const bearerScheme = "Bearer"

type resolver interface {
	Resolve(ctx context.Context, creds auth.Credentials) (models.User, error)
}

// Get token from 'Authorization: Bearer <token>' header
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

// Resolve user by bearer access token and put it into request context
// Requests without valid token are rejected with 401
func AuthMiddleware(r resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			token, ok := BearerToken(req)
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := r.Resolve(req.Context(), auth.Credentials{Strategy: auth.StrategyAccessToken, Token: token})
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(req.Context(), user)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

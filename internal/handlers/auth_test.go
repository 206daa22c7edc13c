package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/blogaccount/internal/logger"
	"github.com/nkiryanov/blogaccount/internal/metrics"
	"github.com/nkiryanov/blogaccount/internal/repository/postgres"
	"github.com/nkiryanov/blogaccount/internal/service/auth"
	"github.com/nkiryanov/blogaccount/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/blogaccount/internal/testutil"
)

type testClient struct {
	t   *testing.T
	url string
}

// Send request with optional JSON body and bearer token, return status and body
func (c testClient) do(method string, path string, body string, bearer string) (int, string) {
	c.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(c.t.Context(), method, c.url+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode, string(data)
}

type authBody struct {
	User struct {
		ID     string `json:"id"`
		Email  string `json:"email"`
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	} `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func decodeAuth(t *testing.T, body string) authBody {
	t.Helper()

	var got authBody
	require.NoError(t, json.Unmarshal([]byte(body), &got), "auth response expected, got: %s", body)
	return got
}

func Test_Router(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run http server with production AuthService inside transaction
	withTx := func(t *testing.T, fn func(c testClient)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			tokenManager, err := tokenmanager.New(tokenmanager.Config{
				AccessSecret:  "test-access-secret",
				RefreshSecret: "test-refresh-secret",
				AccessTTL:     time.Minute,
				RefreshTTL:    time.Hour,
			})
			require.NoError(t, err, "token manager should be created without errors")

			m := metrics.New()
			s, err := auth.NewService(
				auth.Config{Hasher: auth.BcryptHasher{Cost: bcrypt.MinCost}, Metrics: m},
				tokenManager,
				storage.User(),
				storage.Session(),
			)
			require.NoError(t, err, "auth service starting error")

			srv := httptest.NewServer(NewRouter(s, m.Handler(), logger.NewNoOpLogger()))
			defer srv.Close()

			fn(testClient{t: t, url: srv.URL})
		})
	}

	register := func(c testClient) authBody {
		code, body := c.do(http.MethodPost, "/api/auth/register",
			`{"email": "alice@example.com", "name": "alice", "password": "pwd123"}`, "")
		require.Equalf(t, http.StatusCreated, code, "not expected code. Body: %s", body)
		return decodeAuth(t, body)
	}

	t.Run("register ok", func(t *testing.T) {
		withTx(t, func(c testClient) {
			got := register(c)

			require.NotEmpty(t, got.User.ID)
			require.Equal(t, "alice@example.com", got.User.Email)
			require.Equal(t, "alice", got.User.Name)
			require.Equal(t, auth.DefaultAvatar, got.User.Avatar)
			require.NotEmpty(t, got.AccessToken)
			require.NotEmpty(t, got.RefreshToken)
		})
	})

	t.Run("register response has no password", func(t *testing.T) {
		withTx(t, func(c testClient) {
			code, body := c.do(http.MethodPost, "/api/auth/register",
				`{"email": "alice@example.com", "name": "alice", "password": "pwd123"}`, "")

			require.Equal(t, http.StatusCreated, code)
			require.NotContains(t, strings.ToLower(body), "password")
		})
	})

	t.Run("register duplicate", func(t *testing.T) {
		withTx(t, func(c testClient) {
			register(c)

			code, body := c.do(http.MethodPost, "/api/auth/register",
				`{"email": "ALICE@example.com", "name": "alice2", "password": "pwd123"}`, "")

			require.Equalf(t, http.StatusConflict, code, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "User with this email already exists"
				}`, body)
		})
	})

	t.Run("register validation", func(t *testing.T) {
		withTx(t, func(c testClient) {
			code, body := c.do(http.MethodPost, "/api/auth/register",
				`{"email": "not-email", "name": "al", "password": "toolongpassword"}`, "")

			require.Equalf(t, http.StatusBadRequest, code, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "validation_failed",
					"message": "Request validation failed",
					"fields": {
						"email": "Invalid email address",
						"name": "Value is too short (minimum 3)",
						"password": "Value is too long (maximum 12)"
					}
				}`, body)
		})
	})

	t.Run("login ok", func(t *testing.T) {
		withTx(t, func(c testClient) {
			registered := register(c)

			code, body := c.do(http.MethodPost, "/api/auth/login",
				`{"email": "alice@example.com", "password": "pwd123"}`, "")

			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
			got := decodeAuth(t, body)
			require.Equal(t, registered.User.ID, got.User.ID)
			require.NotEmpty(t, got.AccessToken)
			require.NotEmpty(t, got.RefreshToken)
		})
	})

	t.Run("login failures look the same", func(t *testing.T) {
		withTx(t, func(c testClient) {
			register(c)

			wrongPasswordCode, wrongPassword := c.do(http.MethodPost, "/api/auth/login",
				`{"email": "alice@example.com", "password": "wrong-pwd"}`, "")
			unknownCode, unknown := c.do(http.MethodPost, "/api/auth/login",
				`{"email": "bob@example.com", "password": "pwd123"}`, "")

			require.Equal(t, http.StatusUnauthorized, wrongPasswordCode)
			require.Equal(t, http.StatusUnauthorized, unknownCode)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid email or password"
				}`, wrongPassword)
			require.JSONEq(t, wrongPassword, unknown)
		})
	})

	t.Run("refresh rotates tokens", func(t *testing.T) {
		withTx(t, func(c testClient) {
			first := register(c)

			code, body := c.do(http.MethodPost, "/api/auth/refresh", "", first.RefreshToken)
			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
			second := decodeAuth(t, body)
			require.NotEqual(t, first.RefreshToken, second.RefreshToken)
			require.Equal(t, first.User.ID, second.User.ID)

			code, body = c.do(http.MethodPost, "/api/auth/refresh", "", first.RefreshToken)
			require.Equal(t, http.StatusUnauthorized, code, "refresh token is single use")
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Refresh token is invalid or expired"
				}`, body)

			code, _ = c.do(http.MethodPost, "/api/auth/refresh", "", second.RefreshToken)
			require.Equal(t, http.StatusOK, code)
		})
	})

	t.Run("refresh without token", func(t *testing.T) {
		withTx(t, func(c testClient) {
			code, _ := c.do(http.MethodPost, "/api/auth/refresh", "", "")
			require.Equal(t, http.StatusUnauthorized, code)
		})
	})

	t.Run("refresh with access token", func(t *testing.T) {
		withTx(t, func(c testClient) {
			registered := register(c)

			code, _ := c.do(http.MethodPost, "/api/auth/refresh", "", registered.AccessToken)
			require.Equal(t, http.StatusUnauthorized, code)
		})
	})

	t.Run("logout", func(t *testing.T) {
		withTx(t, func(c testClient) {
			registered := register(c)

			code, _ := c.do(http.MethodPost, "/api/auth/logout", "", registered.RefreshToken)
			require.Equal(t, http.StatusNoContent, code)

			code, _ = c.do(http.MethodPost, "/api/auth/refresh", "", registered.RefreshToken)
			require.Equal(t, http.StatusUnauthorized, code, "refresh must fail after logout")
		})
	})

	t.Run("check", func(t *testing.T) {
		withTx(t, func(c testClient) {
			registered := register(c)

			code, body := c.do(http.MethodPost, "/api/auth/check", "", registered.AccessToken)
			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
			require.JSONEq(t, `{"id": "`+registered.User.ID+`", "email": "alice@example.com", "name": "alice"}`, body)

			code, _ = c.do(http.MethodPost, "/api/auth/check", "", registered.RefreshToken)
			require.Equal(t, http.StatusUnauthorized, code, "refresh token is not access one")

			code, _ = c.do(http.MethodPost, "/api/auth/check", "", "")
			require.Equal(t, http.StatusUnauthorized, code)
		})
	})

	t.Run("get user", func(t *testing.T) {
		withTx(t, func(c testClient) {
			registered := register(c)

			code, body := c.do(http.MethodGet, "/api/auth/users/"+registered.User.ID, "", registered.AccessToken)
			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
			require.Contains(t, body, `"email":"alice@example.com"`)

			code, _ = c.do(http.MethodGet, "/api/auth/users/00000000-0000-0000-0000-000000000001", "", registered.AccessToken)
			require.Equal(t, http.StatusNotFound, code)

			code, _ = c.do(http.MethodGet, "/api/auth/users/not-uuid", "", registered.AccessToken)
			require.Equal(t, http.StatusBadRequest, code)

			code, _ = c.do(http.MethodGet, "/api/auth/users/"+registered.User.ID, "", "")
			require.Equal(t, http.StatusUnauthorized, code)
		})
	})

	t.Run("change password", func(t *testing.T) {
		withTx(t, func(c testClient) {
			registered := register(c)
			path := "/api/auth/users/" + registered.User.ID + "/password"

			code, _ := c.do(http.MethodPatch, path, `{"oldPassword": "wrong1", "newPassword": "new-pwd"}`, registered.AccessToken)
			require.Equal(t, http.StatusUnauthorized, code)

			code, body := c.do(http.MethodPatch, path, `{"oldPassword": "pwd123", "newPassword": "new-pwd"}`, registered.AccessToken)
			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)

			code, _ = c.do(http.MethodPost, "/api/auth/login", `{"email": "alice@example.com", "password": "new-pwd"}`, "")
			require.Equal(t, http.StatusOK, code)

			code, _ = c.do(http.MethodPost, "/api/auth/login", `{"email": "alice@example.com", "password": "pwd123"}`, "")
			require.Equal(t, http.StatusUnauthorized, code)
		})
	})

	t.Run("change password of other user forbidden", func(t *testing.T) {
		withTx(t, func(c testClient) {
			registered := register(c)

			code, _ := c.do(http.MethodPatch, "/api/auth/users/00000000-0000-0000-0000-000000000001/password",
				`{"oldPassword": "pwd123", "newPassword": "new-pwd"}`, registered.AccessToken)
			require.Equal(t, http.StatusForbidden, code)
		})
	})

	t.Run("update profile", func(t *testing.T) {
		withTx(t, func(c testClient) {
			registered := register(c)
			path := "/api/auth/users/" + registered.User.ID

			code, body := c.do(http.MethodPatch, path, `{"name": "Alice L"}`, registered.AccessToken)
			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
			require.Contains(t, body, `"name":"Alice L"`)
			require.Contains(t, body, `"avatar":"`+auth.DefaultAvatar+`"`)

			code, _ = c.do(http.MethodPatch, path, `{"name": "   "}`, registered.AccessToken)
			require.Equal(t, http.StatusBadRequest, code)
		})
	})

	t.Run("metrics", func(t *testing.T) {
		withTx(t, func(c testClient) {
			register(c)

			code, body := c.do(http.MethodGet, "/metrics", "", "")
			require.Equal(t, http.StatusOK, code)
			require.Contains(t, body, `account_auth_operations_total{operation="register",result="ok"} 1`)
		})
	})
}

package e2e

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/blogaccount/internal/handlers"
	"github.com/nkiryanov/blogaccount/internal/logger"
	"github.com/nkiryanov/blogaccount/internal/metrics"
	"github.com/nkiryanov/blogaccount/internal/repository/postgres"
	"github.com/nkiryanov/blogaccount/internal/service/auth"
	"github.com/nkiryanov/blogaccount/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/blogaccount/internal/testutil"
)

type Services struct {
	AuthService *auth.AuthService
}

// Run server on top of the db connection and return its URL
// Server is stopped when test ends
func Serve(db postgres.DBTX, t *testing.T) (string, Services) {
	t.Helper()

	storage := postgres.NewStorage(db)

	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	require.NoError(t, err, "token manager should be created without errors")

	m := metrics.New()
	as, err := auth.NewService(
		auth.Config{Hasher: auth.BcryptHasher{Cost: bcrypt.MinCost}, Metrics: m},
		tokenManager,
		storage.User(),
		storage.Session(),
	)
	require.NoError(t, err, "auth service starting error")

	srv := httptest.NewServer(handlers.NewRouter(as, m.Handler(), logger.NewNoOpLogger()))
	t.Cleanup(srv.Close)

	return srv.URL, Services{AuthService: as}
}

// Create db transaction and run server with that connection
// Requests must not be sent concurrently: transaction is not safe for concurrent use
func ServeWithTx(dbpool *pgxpool.Pool, t *testing.T, fn func(tx pgx.Tx, srvURL string, services Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		srvURL, services := Serve(tx, t)
		fn(tx, srvURL, services)
	})
}

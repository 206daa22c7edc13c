package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/blogaccount/internal/db"
	"github.com/nkiryanov/blogaccount/internal/handlers"
	"github.com/nkiryanov/blogaccount/internal/logger"
	"github.com/nkiryanov/blogaccount/internal/metrics"
	"github.com/nkiryanov/blogaccount/internal/repository"
	"github.com/nkiryanov/blogaccount/internal/repository/postgres"
	"github.com/nkiryanov/blogaccount/internal/repository/redis"
	"github.com/nkiryanov/blogaccount/internal/service/auth"
	"github.com/nkiryanov/blogaccount/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/blogaccount/internal/service/notify"
	"github.com/nkiryanov/blogaccount/internal/service/sweeper"
)

const (
	redisPingTimeout = 3 * time.Second
	shutdownTimeout  = 5 * time.Second
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	sweeper *sweeper.Sweeper

	pool  *pgxpool.Pool
	redis *goredis.Client
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	// Connect to the database and run migrations
	app.pool, err = db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Redis is optional, used for sessions and notifications when configured
	var notifier notify.Notifier = notify.Noop{}
	if c.RedisAddr != "" {
		app.redis = goredis.NewClient(&goredis.Options{Addr: c.RedisAddr, Password: c.RedisPassword})

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := app.redis.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}

		notifier = notify.NewRedisPublisher(app.redis, c.NotifyChannel)
	}

	// Initialize repositories
	storage := postgres.NewStorage(app.pool)
	var sessions repository.SessionRepo = storage.Session()
	if c.SessionStore == SessionStoreRedis {
		sessions = redis.NewSessionStore(app.redis, redis.Config{Retention: c.SessionRetention})
	}

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  c.AccessSecretKey,
		RefreshSecret: c.RefreshSecretKey,
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	m := metrics.New()
	authService, err := auth.NewService(
		auth.Config{
			Notifier:      notifier,
			Logger:        logger.With("component", "auth"),
			Metrics:       m,
			DefaultAvatar: c.DefaultAvatar,
		},
		tokenManager,
		storage.User(),
		sessions,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	app.sweeper = sweeper.New(
		sweeper.Config{Interval: c.SessionSweepInterval, Retention: c.SessionRetention},
		authService,
		logger.With("component", "sweeper"),
	)
	app.Handler = handlers.NewRouter(authService, m.Handler(), logger)

	logger.Info("App initialized", "session_store", c.SessionStore, "redis", c.RedisAddr != "")
	return app, nil
}

// Run starts http server and sweeper and stops them gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperStopped := s.sweeper.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-sweeperStopped

	return err
}

// Release db and redis connections
func (s *ServerApp) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

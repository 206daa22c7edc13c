package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/blogaccount/internal/logger"
	"github.com/nkiryanov/blogaccount/internal/service/auth"
)

// Refresh session backends
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProd
	defaultSessionStore  = SessionStorePostgres
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 30 * 24 * time.Hour
	defaultSweepInterval = time.Hour
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment: dev or prod
	Environment string

	// Address on which the account service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis to keep refresh sessions in and publish notifications to
	// Optional unless session store is redis
	RedisAddr     string
	RedisPassword string

	// Secret keys to sign access and refresh tokens. Required and must differ
	AccessSecretKey  string
	RefreshSecretKey string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Where refresh sessions are kept: postgres or redis
	SessionStore string

	// How often stale sessions are swept and how long they are kept
	// Zero retention means refresh token lifetime
	SessionSweepInterval time.Duration
	SessionRetention     time.Duration

	// Redis channel for "user registered" messages
	NotifyChannel string

	// Avatar for users registered without one
	DefaultAvatar string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:             defaultLoggingLevel,
		Environment:          defaultEnvironment,
		ListenAddr:           defaultListenAddr,
		AccessTokenTTL:       defaultAccessTTL,
		RefreshTokenTTL:      defaultRefreshTTL,
		SessionStore:         defaultSessionStore,
		SessionSweepInterval: defaultSweepInterval,
		DefaultAvatar:        auth.DefaultAvatar,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":            setString(&c.ListenAddr),
		"DATABASE_URI":           setString(&c.DatabaseDSN),
		"REDIS_ADDRESS":          setString(&c.RedisAddr),
		"REDIS_PASSWORD":         setString(&c.RedisPassword),
		"ACCESS_SECRET_KEY":      setString(&c.AccessSecretKey),
		"REFRESH_SECRET_KEY":     setString(&c.RefreshSecretKey),
		"ACCESS_TOKEN_TTL":       setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL":      setDuration(&c.RefreshTokenTTL),
		"SESSION_STORE":          setString(&c.SessionStore),
		"SESSION_SWEEP_INTERVAL": setDuration(&c.SessionSweepInterval),
		"SESSION_RETENTION":      setDuration(&c.SessionRetention),
		"NOTIFY_CHANNEL":         setString(&c.NotifyChannel),
		"DEFAULT_AVATAR":         setString(&c.DefaultAvatar),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"ENVIRONMENT":            setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("account", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address")
	fs.StringVarP(&c.AccessSecretKey, "access-secret-key", "s", c.AccessSecretKey, "Secret key to sign access tokens")
	fs.StringVarP(&c.RefreshSecretKey, "refresh-secret-key", "S", c.RefreshSecretKey, "Secret key to sign refresh tokens")
	fs.DurationVar(&c.AccessTokenTTL, "access-token-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-token-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.StringVar(&c.SessionStore, "session-store", c.SessionStore, "Refresh session store (postgres, redis)")
	fs.DurationVar(&c.SessionSweepInterval, "session-sweep-interval", c.SessionSweepInterval, "How often stale refresh sessions are swept")
	fs.DurationVar(&c.SessionRetention, "session-retention", c.SessionRetention, "How long refresh sessions are kept (default refresh token lifetime)")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

// Check options that can't have defaults and fill derived ones
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}
	if c.AccessSecretKey == "" || c.RefreshSecretKey == "" {
		errs = append(errs, errors.New("access and refresh secret keys are required"))
	} else if c.AccessSecretKey == c.RefreshSecretKey {
		errs = append(errs, errors.New("access and refresh secret keys must differ"))
	}

	switch c.SessionStore {
	case SessionStorePostgres:
	case SessionStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis address is required for redis session store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session store %q", c.SessionStore))
	}

	if c.SessionRetention == 0 {
		c.SessionRetention = c.RefreshTokenTTL
	}

	return errors.Join(errs...)
}

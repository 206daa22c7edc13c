package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/blogaccount/internal/apperrors"
	"github.com/nkiryanov/blogaccount/internal/logger"
	"github.com/nkiryanov/blogaccount/internal/metrics"
	"github.com/nkiryanov/blogaccount/internal/models"
	"github.com/nkiryanov/blogaccount/internal/repository"
	"github.com/nkiryanov/blogaccount/internal/service/notify"
)

const (
	DefaultAvatar = "/static/default-avatar.jpg"

	notifyTimeout = 3 * time.Second
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type tokenManager interface {
	IssueAccess(user models.User) (models.IssuedToken, error)
	IssueRefresh(user models.User) (models.IssuedToken, models.RefreshSession, error)
	ParseAccess(token string) (models.AccessClaims, error)
	ParseRefresh(token string) (models.RefreshClaims, error)
}

type Config struct {
	// Hasher to use during user registration or login process
	// BcryptHasher if not set
	Hasher PasswordHasher

	// Where to tell about new users. Nobody is told if not set
	Notifier notify.Notifier

	// Logger, discards everything if not set
	Logger logger.Logger

	// Operation counters, may be nil
	Metrics *metrics.Metrics

	// Avatar for users registered without one
	DefaultAvatar string
}

type RegisterParams struct {
	Email     string
	Name      string
	Password  string
	AvatarRef string
}

// Fields to change. Nil means keep as is
type UpdateProfileParams struct {
	Name      *string
	AvatarRef *string
}

// Auth service
// Orchestrates credential store, refresh sessions and token issuing
type AuthService struct {
	tokens   tokenManager
	users    repository.UserRepo
	sessions repository.SessionRepo

	hasher        PasswordHasher
	notifier      notify.Notifier
	logger        logger.Logger
	metrics       *metrics.Metrics
	defaultAvatar string

	// Hash compared against when user is not found, so both login failures take the same time
	dummyHash func() string
}

func NewService(cfg Config, tokens tokenManager, users repository.UserRepo, sessions repository.SessionRepo) (*AuthService, error) {
	if tokens == nil || users == nil || sessions == nil {
		return nil, errors.New("token manager and repos must not be nil")
	}

	if cfg.Hasher == nil {
		cfg.Hasher = DefaultHasher
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if cfg.DefaultAvatar == "" {
		cfg.DefaultAvatar = DefaultAvatar
	}

	hasher := cfg.Hasher
	return &AuthService{
		tokens:        tokens,
		users:         users,
		sessions:      sessions,
		hasher:        hasher,
		notifier:      cfg.Notifier,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		defaultAvatar: cfg.DefaultAvatar,
		dummyHash: sync.OnceValue(func() string {
			hash, _ := hasher.Hash(uuid.NewString())
			return hash
		}),
	}, nil
}

// Create user and tell others about it
// Notification failure is logged only, the user is created anyway
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (user models.User, err error) {
	defer func() { s.metrics.AuthOperation("register", err) }()

	ctx = context.WithoutCancel(ctx)

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return user, translate(fmt.Errorf("can't use this as password. Err: %w", err))
	}

	avatar := params.AvatarRef
	if avatar == "" {
		avatar = s.defaultAvatar
	}

	user, err = s.users.CreateUser(ctx, repository.CreateUserParams{
		Email:          models.NormalizeEmail(params.Email),
		Name:           params.Name,
		HashedPassword: hash,
		AvatarRef:      avatar,
	})
	if err != nil {
		return models.User{}, translate(err)
	}

	notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := s.notifier.UserRegistered(notifyCtx, user); err != nil {
		s.logger.Warn("user registered notification failed", "user_id", user.ID, "error", err)
	}

	return user, nil
}

// Check user password
// Returns apperrors.ErrUserNotFound or apperrors.ErrInvalidCredentials; callers should not show the difference
func (s *AuthService) VerifyIdentity(ctx context.Context, email string, password string) (models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, models.NormalizeEmail(email))
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = s.hasher.Compare(s.dummyHash(), password)
		return models.User{}, apperrors.ErrUserNotFound
	case err != nil:
		return models.User{}, translate(err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	return user, nil
}

// Issue access and refresh tokens
// Refresh session is recorded before the pair is returned, so every handed out refresh token is redeemable
func (s *AuthService) IssueSessionPair(ctx context.Context, user models.User) (models.TokenPair, error) {
	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return models.TokenPair{}, translate(err)
	}

	refresh, session, err := s.tokens.IssueRefresh(user)
	if err != nil {
		return models.TokenPair{}, translate(err)
	}

	if err := s.sessions.Record(context.WithoutCancel(ctx), session); err != nil {
		return models.TokenPair{}, translate(err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (user models.User, pair models.TokenPair, err error) {
	defer func() { s.metrics.AuthOperation("login", err) }()

	user, err = s.VerifyIdentity(ctx, email, password)
	if err != nil {
		return models.User{}, pair, err
	}

	pair, err = s.IssueSessionPair(ctx, user)
	if err != nil {
		return models.User{}, pair, err
	}

	return user, pair, nil
}

// Redeem refresh token and issue a new pair
// The token is single use: any later call with it fails with apperrors.ErrExpiredOrRevokedSession
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (user models.User, pair models.TokenPair, err error) {
	defer func() { s.metrics.AuthOperation("refresh", err) }()

	user, err = s.Resolve(ctx, Credentials{Strategy: StrategyRefreshToken, Token: refreshToken})
	if err != nil {
		return models.User{}, pair, err
	}

	pair, err = s.IssueSessionPair(ctx, user)
	if err != nil {
		return models.User{}, pair, err
	}

	return user, pair, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) (user models.User, err error) {
	defer func() { s.metrics.AuthOperation("change_password", err) }()

	ctx = context.WithoutCancel(ctx)

	user, err = s.users.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, translate(err)
	}

	if err := s.hasher.Compare(user.HashedPassword, oldPassword); err != nil {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return models.User{}, translate(fmt.Errorf("can't use this as password. Err: %w", err))
	}
	user.HashedPassword = hash

	user, err = s.users.UpdateUser(ctx, user)
	if err != nil {
		return models.User{}, translate(err)
	}

	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, params UpdateProfileParams) (user models.User, err error) {
	defer func() { s.metrics.AuthOperation("update_profile", err) }()

	ctx = context.WithoutCancel(ctx)

	user, err = s.users.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, translate(err)
	}

	if params.Name != nil {
		user.Name = *params.Name
	}
	if params.AvatarRef != nil {
		user.AvatarRef = *params.AvatarRef
		if user.AvatarRef == "" {
			user.AvatarRef = s.defaultAvatar
		}
	}

	user, err = s.users.UpdateUser(ctx, user)
	if err != nil {
		return models.User{}, translate(err)
	}

	return user, nil
}

func (s *AuthService) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, translate(err)
	}
	return user, nil
}

// Delete session of the refresh token
// Logging out twice is fine
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (err error) {
	defer func() { s.metrics.AuthOperation("logout", err) }()

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return err
	}

	if _, err := s.sessions.Delete(context.WithoutCancel(ctx), claims.TokenID); err != nil {
		return translate(err)
	}

	return nil
}

// Delete refresh sessions issued before the time
func (s *AuthService) SweepExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, before)
	if err != nil {
		return 0, translate(err)
	}

	s.metrics.SessionsSwept(n)
	return n, nil
}

// Errors callers are allowed to see
var knownErrors = []error{
	apperrors.ErrDuplicateEmail,
	apperrors.ErrUserNotFound,
	apperrors.ErrInvalidCredentials,
	apperrors.ErrMalformedToken,
	apperrors.ErrUnauthenticated,
	apperrors.ErrExpiredOrRevokedSession,
	apperrors.ErrSessionConflict,
	apperrors.ErrInternal,
}

// Keep known errors as is and hide any other behind apperrors.ErrInternal
// Storage error text is kept in the message, but it is not wrapped
func translate(err error) error {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
}

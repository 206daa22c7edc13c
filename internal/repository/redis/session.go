package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/blogaccount/internal/apperrors"
	"github.com/nkiryanov/blogaccount/internal/models"
)

const defaultKeyPrefix = "account:"

// Refresh session store backed by redis
//
// Every session is a plain key holding the owner id. Keys expire by themselves after
// retention, and a sorted set (score is issued-at in unix milliseconds) lets DeleteExpired
// find stale ids without SCAN.
type SessionStore struct {
	client    goredis.UniversalClient
	prefix    string
	retention time.Duration
}

type Config struct {
	// Prefix for every key. Default is 'account:'
	KeyPrefix string

	// How long session keys live. Zero means keys never expire by themselves
	Retention time.Duration
}

func NewSessionStore(client goredis.UniversalClient, cfg Config) *SessionStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}

	return &SessionStore{
		client:    client,
		prefix:    cfg.KeyPrefix,
		retention: cfg.Retention,
	}
}

func (s *SessionStore) sessionKey(tokenID uuid.UUID) string {
	return s.prefix + "session:" + tokenID.String()
}

func (s *SessionStore) indexKey() string {
	return s.prefix + "sessions:issued"
}

func (s *SessionStore) Record(ctx context.Context, session models.RefreshSession) error {
	ok, err := s.client.SetNX(ctx, s.sessionKey(session.TokenID), session.UserID.String(), s.retention).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if !ok {
		return fmt.Errorf("repo error: %w", apperrors.ErrSessionConflict)
	}

	// The index only serves the sweep; a session missing from it still works and expires by TTL
	err = s.client.ZAdd(ctx, s.indexKey(), goredis.Z{
		Score:  float64(session.IssuedAt.UnixMilli()),
		Member: session.TokenID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

func (s *SessionStore) Exists(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, s.sessionKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}

	return n == 1, nil
}

// DEL is atomic in redis, so of concurrent calls only one gets count 1
func (s *SessionStore) Delete(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	var del *goredis.IntCmd

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, s.sessionKey(tokenID))
		pipe.ZRem(ctx, s.indexKey(), tokenID.String())
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}

	return del.Val() == 1, nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	members, err := s.client.ZRangeByScore(ctx, s.indexKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(members))
	ids := make([]any, 0, len(members))
	for _, m := range members {
		keys = append(keys, s.prefix+"session:"+m)
		ids = append(ids, m)
	}

	var del *goredis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, s.indexKey(), ids...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}

	// Keys that already expired by TTL are not counted
	return del.Val(), nil
}

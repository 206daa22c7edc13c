package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/blogaccount/internal/apperrors"
	"github.com/nkiryanov/blogaccount/internal/models"
)

type SessionRepo struct {
	DB DBTX
}

const recordSession = `-- name: RecordSession
INSERT INTO refresh_sessions (token_id, user_id, issued_at)
VALUES ($1, $2, $3)
`

func (r *SessionRepo) Record(ctx context.Context, session models.RefreshSession) error {
	_, err := r.DB.Exec(ctx, recordSession, session.TokenID, session.UserID, session.IssuedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("repo error: %w", apperrors.ErrSessionConflict)
		}

		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const sessionExists = `-- name: SessionExists
SELECT EXISTS (SELECT 1 FROM refresh_sessions WHERE token_id = $1)
`

func (r *SessionRepo) Exists(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	rows, _ := r.DB.Query(ctx, sessionExists, tokenID)
	exists, err := pgx.CollectOneRow(rows, pgx.RowTo[bool])
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

const deleteSession = `-- name: DeleteSession
DELETE FROM refresh_sessions
WHERE token_id = $1
`

// Delete session if it exists
// Single statement, so the row lock makes concurrent deletes of the same id report 'true' once
func (r *SessionRepo) Delete(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	tag, err := r.DB.Exec(ctx, deleteSession, tokenID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

const deleteExpiredSessions = `-- name: DeleteExpiredSessions
DELETE FROM refresh_sessions
WHERE issued_at < $1
`

func (r *SessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredSessions, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

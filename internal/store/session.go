package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/orderledger/apiserver/types"
)

// SessionRepository persists the session-token to user-id mapping.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, userID int, token string, ttl time.Duration) (types.Session, error) {
	session := types.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	session.ExpiresAt = session.CreatedAt.Add(ttl)

	const query = `
		INSERT INTO sessions (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		session.Token,
		session.UserID,
		session.ExpiresAt,
		session.CreatedAt,
	); err != nil {
		return types.Session{}, err
	}
	return session, nil
}

// Get returns the session for a token. Expired sessions are reported as
// missing.
func (r *SessionRepository) Get(ctx context.Context, token string) (types.Session, error) {
	const query = `
		SELECT token, user_id, expires_at, created_at
		FROM sessions
		WHERE token = $1 AND expires_at > now()`
	var session types.Session
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&session.Token,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, err
	}
	return session, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	const query = `DELETE FROM sessions WHERE token = $1`
	result, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired sweeps expired sessions. Called opportunistically on login.
func (r *SessionRepository) DeleteExpired(ctx context.Context) error {
	const query = `DELETE FROM sessions WHERE expires_at <= now()`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

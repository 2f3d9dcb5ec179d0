package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo persists refresh tokens. Only SHA-256 hashes are stored; a raw
// token is seen exactly twice, at issue time and at refresh time.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash bound to a device session.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID, sessionID uint64, tokenHash string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, session_id, token_hash, expires_at) VALUES (?,?,?,?)",
		userID, sessionID, tokenHash, expiresAt.UTC())
	return err
}

// RefreshRecord is what a stored refresh token resolves to.
type RefreshRecord struct {
	ID        uint64
	UserID    uint64
	SessionID uint64
	ExpiresAt time.Time
}

// ValidateRefresh resolves a token hash to its record if the token is
// neither revoked nor expired. Returns sql.ErrNoRows otherwise.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (RefreshRecord, error) {
	var rec RefreshRecord
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, session_id, expires_at FROM refresh_tokens
		 WHERE token_hash=? AND revoked_at IS NULL AND expires_at > UTC_TIMESTAMP() LIMIT 1`,
		tokenHash).Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.ExpiresAt)
	if err != nil {
		return RefreshRecord{}, err
	}
	return rec, nil
}

// RevokeByHash revokes a single token. Used on rotation: the old token dies
// the moment its replacement is issued.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// RevokeAllForUser revokes every live token of a user. Used on logout,
// new-device login and revocation.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}

// DeleteExpired trims tokens whose lifetime ended more than the retention
// window ago. Run from the maintenance scheduler.
func (r *TokenRepo) DeleteExpired(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at < ?", time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

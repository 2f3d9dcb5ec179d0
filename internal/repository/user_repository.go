package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dhruvindave007/janmitra/internal/model"
	"github.com/dhruvindave007/janmitra/internal/utils"
)

const userColumns = `id, identifier, password_hash, role, status, is_anonymous,
	failed_login_attempts, last_failed_login, last_login_ip,
	revoked_at, revoked_by, revocation_reason, created_at, updated_at`

// UserRepo provides access to the 'users' table. Users are never hard
// deleted; every query filters on is_deleted=0.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// CreateAuthority inserts an authority account with a bcrypt-hashed
// password and ACTIVE status.
func (r *UserRepo) CreateAuthority(ctx context.Context, identifier, password string, role model.Role, cost int) (uint64, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (identifier, password_hash, role, status, is_anonymous) VALUES (?,?,?,?,0)",
		identifier, hash, string(role), string(model.StatusActive))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrIdentifierExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// CreateCitizenTx inserts an anonymous citizen account inside an existing
// transaction. Citizens have no password; their credential is the bound
// device fingerprint.
func (r *UserRepo) CreateCitizenTx(ctx context.Context, tx *sql.Tx, identifier string) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (identifier, password_hash, role, status, is_anonymous) VALUES (?,'',?,?,1)",
		identifier, string(model.RoleJanMitra), string(model.StatusActive))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrIdentifierExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByIdentifier fetches a user by normalized identifier.
func (r *UserRepo) GetByIdentifier(ctx context.Context, identifier string) (model.User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE identifier=? AND is_deleted=0 LIMIT 1", identifier)
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? AND is_deleted=0 LIMIT 1", id)
	return scanUser(row)
}

// RecordFailedLogin bumps the consecutive failure counter.
func (r *UserRepo) RecordFailedLogin(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET failed_login_attempts=failed_login_attempts+1, last_failed_login=UTC_TIMESTAMP() WHERE id=?",
		id)
	return err
}

// RecordSuccessfulLogin resets the failure counter and records the login IP.
func (r *UserRepo) RecordSuccessfulLogin(ctx context.Context, id uint64, ip string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET failed_login_attempts=0, last_failed_login=NULL, last_login_ip=? WHERE id=?",
		nullableString(ip), id)
	return err
}

// Revoke marks the target REVOKED and deactivates every active session and
// refresh token it holds, all in one transaction. Only Level-0 actors may
// revoke, and a Level-0 account can never be revoked by a peer: both
// violations yield ErrForbidden. A REVOKED user never transitions back to
// ACTIVE through this repository.
func (r *UserRepo) Revoke(ctx context.Context, targetID uint64, actor model.User, reason string) error {
	if actor.Role != model.RoleLevel0 {
		return ErrForbidden
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? AND is_deleted=0 LIMIT 1 FOR UPDATE", targetID)
	target, err := scanUser(row)
	if err != nil {
		return err
	}
	if target.Role == model.RoleLevel0 {
		return ErrForbidden // peer revocation forbidden
	}
	if target.Status == model.StatusRevoked {
		return ErrConflict
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET status=?, revoked_at=UTC_TIMESTAMP(), revoked_by=?, revocation_reason=? WHERE id=?`,
		string(model.StatusRevoked), actor.ID, reason, targetID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE device_sessions SET is_active=0, invalidated_at=UTC_TIMESTAMP(), invalidation_reason=?
		 WHERE user_id=? AND is_active=1`,
		string(model.InvalidationAccessRevoked), targetID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL",
		targetID); err != nil {
		return err
	}
	return tx.Commit()
}

// Archive soft-deletes a user row. There is no hard delete.
func (r *UserRepo) Archive(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_deleted=1, deleted_at=UTC_TIMESTAMP() WHERE id=? AND is_deleted=0", id)
	return err
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u          model.User
		roleStr    string
		statusStr  string
		lastFailed sql.NullTime
		lastIP     sql.NullString
		revokedAt  sql.NullTime
		revokedBy  sql.NullInt64
		revReason  sql.NullString
	)
	err := row.Scan(&u.ID, &u.Identifier, &u.PasswordHash, &roleStr, &statusStr,
		&u.IsAnonymous, &u.FailedLoginAttempts, &lastFailed, &lastIP,
		&revokedAt, &revokedBy, &revReason, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if revReason.Valid {
		u.RevocationReason = revReason.String
	}
	role, ok := model.ParseRole(roleStr)
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	u.Role = role
	u.Status = model.UserStatus(statusStr)
	if lastFailed.Valid {
		t := lastFailed.Time
		u.LastFailedLogin = &t
	}
	if lastIP.Valid {
		ip := lastIP.String
		u.LastLoginIP = &ip
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		u.RevokedAt = &t
	}
	if revokedBy.Valid {
		id := uint64(revokedBy.Int64)
		u.RevokedBy = &id
	}
	return u, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

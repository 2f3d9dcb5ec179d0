package repository

import (
	"context"
	"database/sql"

	"github.com/dhruvindave007/janmitra/internal/model"
)

const sessionColumns = `id, user_id, fingerprint_hash, device_name, os_name, os_version,
	app_version, is_active, refresh_token_hash, last_activity_at, last_activity_ip,
	invalidated_at, invalidation_reason, created_at`

// SessionRepo manages device_sessions. The table is the single source of
// truth for the one-device-per-identity rule: at any instant a user has at
// most one row with is_active=1.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create opens a new active session for the user, deactivating every prior
// active session (reason NEW_DEVICE) in the same transaction. Returns the
// new session id.
func (r *SessionRepo) Create(ctx context.Context, userID uint64, fingerprintHash string, info model.DeviceInfo) (uint64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	id, err := r.CreateTx(ctx, tx, userID, fingerprintHash, info)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// CreateTx is Create with a caller-managed transaction, for flows that must
// pair session creation with other writes (citizen registration).
func (r *SessionRepo) CreateTx(ctx context.Context, tx *sql.Tx, userID uint64, fingerprintHash string, info model.DeviceInfo) (uint64, error) {
	if _, err := tx.ExecContext(ctx,
		`UPDATE device_sessions SET is_active=0, invalidated_at=UTC_TIMESTAMP(), invalidation_reason=?
		 WHERE user_id=? AND is_active=1`,
		string(model.InvalidationNewDevice), userID); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO device_sessions
		 (user_id, fingerprint_hash, device_name, os_name, os_version, app_version,
		  is_active, last_activity_at, last_activity_ip)
		 VALUES (?,?,?,?,?,?,1,UTC_TIMESTAMP(),?)`,
		userID, fingerprintHash, info.DeviceName, info.OSName, info.OSVersion,
		info.AppVersion, nullableString(info.IPAddress))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// LatestByFingerprint resolves a device to the user who last logged in on
// it. Deactivated sessions count too: a citizen who logged out can still
// log back in from the same device.
func (r *SessionRepo) LatestByFingerprint(ctx context.Context, fingerprintHash string) (model.DeviceSession, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM device_sessions WHERE fingerprint_hash=? ORDER BY created_at DESC LIMIT 1",
		fingerprintHash)
	return scanSession(row)
}

// ActiveByUser returns the user's single active session, or sql.ErrNoRows.
func (r *SessionRepo) ActiveByUser(ctx context.Context, userID uint64) (model.DeviceSession, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM device_sessions WHERE user_id=? AND is_active=1 LIMIT 1",
		userID)
	return scanSession(row)
}

// BindRefreshToken attaches the hash of the currently issued refresh token
// to the session so refresh requests can be tied back to a live session.
func (r *SessionRepo) BindRefreshToken(ctx context.Context, sessionID uint64, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE device_sessions SET refresh_token_hash=? WHERE id=?", tokenHash, sessionID)
	return err
}

// Touch records request activity on the session.
func (r *SessionRepo) Touch(ctx context.Context, sessionID uint64, ip string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE device_sessions SET last_activity_at=UTC_TIMESTAMP(), last_activity_ip=? WHERE id=?",
		nullableString(ip), sessionID)
	return err
}

// InvalidateAll deactivates every active session of the user with the given
// reason. Used on logout, security events and revocation.
func (r *SessionRepo) InvalidateAll(ctx context.Context, userID uint64, reason model.InvalidationReason) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE device_sessions SET is_active=0, invalidated_at=UTC_TIMESTAMP(), invalidation_reason=?
		 WHERE user_id=? AND is_active=1`,
		string(reason), userID)
	return err
}

// InvalidateByID deactivates one specific session (admin operation).
func (r *SessionRepo) InvalidateByID(ctx context.Context, sessionID uint64, reason model.InvalidationReason) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE device_sessions SET is_active=0, invalidated_at=UTC_TIMESTAMP(), invalidation_reason=?
		 WHERE id=? AND is_active=1`,
		string(reason), sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByUser returns all sessions of a user, newest first, including
// deactivated ones. Admin visibility into device history.
func (r *SessionRepo) ListByUser(ctx context.Context, userID uint64) ([]model.DeviceSession, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM device_sessions WHERE user_id=? ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeviceSession
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...interface{}) error }

func scanSessionFrom(sc rowScanner) (model.DeviceSession, error) {
	var (
		s             model.DeviceSession
		refreshHash   sql.NullString
		activityIP    sql.NullString
		invalidatedAt sql.NullTime
		reason        sql.NullString
	)
	err := sc.Scan(&s.ID, &s.UserID, &s.FingerprintHash, &s.DeviceName, &s.OSName,
		&s.OSVersion, &s.AppVersion, &s.IsActive, &refreshHash, &s.LastActivityAt,
		&activityIP, &invalidatedAt, &reason, &s.CreatedAt)
	if err != nil {
		return model.DeviceSession{}, err
	}
	if refreshHash.Valid {
		s.RefreshTokenHash = refreshHash.String
	}
	if activityIP.Valid {
		ip := activityIP.String
		s.LastActivityIP = &ip
	}
	if invalidatedAt.Valid {
		t := invalidatedAt.Time
		s.InvalidatedAt = &t
	}
	if reason.Valid {
		s.InvalidationReason = model.InvalidationReason(reason.String)
	}
	return s, nil
}

func scanSession(row *sql.Row) (model.DeviceSession, error) { return scanSessionFrom(row) }

func scanSessionRows(rows *sql.Rows) (model.DeviceSession, error) { return scanSessionFrom(rows) }

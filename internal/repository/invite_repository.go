package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/dhruvindave007/janmitra/internal/model"
)

const inviteColumns = `id, code, issued_by, max_uses, use_count, is_used, used_at,
	expires_at, notes, is_deleted, created_at`

// InviteRepo manages invite_codes, the only gate in front of citizen
// registration.
type InviteRepo struct{ DB *sql.DB }

func NewInviteRepo(db *sql.DB) *InviteRepo { return &InviteRepo{DB: db} }

// Create stores a freshly generated code.
func (r *InviteRepo) Create(ctx context.Context, code string, issuedBy uint64, maxUses uint32, expiresAt time.Time, notes string) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO invite_codes (code, issued_by, max_uses, expires_at, notes) VALUES (?,?,?,?,?)",
		code, issuedBy, maxUses, expiresAt.UTC(), notes)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// UseTx consumes one use of the code inside the caller's transaction. The
// row is locked so two simultaneous registrations cannot both redeem the
// last use. Any invalid state (unknown, archived, exhausted, expired) maps
// to ErrInvalidInvite so the caller cannot tell a probing client which
// condition failed.
func (r *InviteRepo) UseTx(ctx context.Context, tx *sql.Tx, code string, now time.Time) (model.InviteCode, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT "+inviteColumns+" FROM invite_codes WHERE code=? LIMIT 1 FOR UPDATE", code)
	ic, err := scanInvite(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.InviteCode{}, ErrInvalidInvite
		}
		return model.InviteCode{}, err
	}
	if !ic.UsableAt(now) {
		return model.InviteCode{}, ErrInvalidInvite
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE invite_codes SET use_count=use_count+1,
		 is_used=(use_count+1 >= max_uses), used_at=UTC_TIMESTAMP() WHERE id=?`,
		ic.ID); err != nil {
		return model.InviteCode{}, err
	}
	ic.UseCount++
	return ic, nil
}

// List returns codes newest first, archived ones excluded.
func (r *InviteRepo) List(ctx context.Context, limit int) ([]model.InviteCode, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+inviteColumns+" FROM invite_codes WHERE is_deleted=0 ORDER BY created_at DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.InviteCode
	for rows.Next() {
		ic, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ic)
	}
	return out, rows.Err()
}

// Archive soft-deletes a code, making it unusable without losing the audit
// trail of registrations it gated.
func (r *InviteRepo) Archive(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE invite_codes SET is_deleted=1 WHERE id=? AND is_deleted=0", id)
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

func scanInvite(sc rowScanner) (model.InviteCode, error) {
	var (
		ic     model.InviteCode
		usedAt sql.NullTime
		notes  sql.NullString
	)
	err := sc.Scan(&ic.ID, &ic.Code, &ic.IssuedBy, &ic.MaxUses, &ic.UseCount,
		&ic.IsUsed, &usedAt, &ic.ExpiresAt, &notes, &ic.IsDeleted, &ic.CreatedAt)
	if err != nil {
		return model.InviteCode{}, err
	}
	if usedAt.Valid {
		t := usedAt.Time
		ic.UsedAt = &t
	}
	if notes.Valid {
		ic.Notes = notes.String
	}
	return ic, nil
}

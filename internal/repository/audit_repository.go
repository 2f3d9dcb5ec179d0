package repository

import (
	"context"
	"database/sql"
	"time"
)

// Audit event types. Dot-separated, grouped by subsystem.
const (
	AuditLoginSuccess   = "auth.login.success"
	AuditLoginFailed    = "auth.login.failed"
	AuditLogout         = "auth.logout"
	AuditTokenRefreshed = "auth.token.refreshed"
	AuditUserRegistered = "auth.user.registered"
	AuditUserRevoked    = "user.revoked"
	AuditSessionKilled  = "session.invalidated"
	AuditInviteCreated  = "invite.created"
	AuditInviteArchived = "invite.archived"
	AuditCaseCreated    = "case.created"
	AuditCaseSolved     = "case.solved"
	AuditCaseRejected   = "case.rejected"
	AuditCaseForwarded  = "case.forwarded"
	AuditCaseClosed     = "case.closed"
	AuditCaseEscalated  = "case.auto_escalated"
	AuditSecurityAlert  = "system.security.alert"
)

// Audit severities.
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeveritySecurity = "SECURITY"
)

// AuditEvent is one row of the append-only audit log.
type AuditEvent struct {
	ID        uint64
	EventType string
	Severity  string
	ActorID   *uint64 // nil for system or unauthenticated actors
	TargetID  *uint64 // user or case the event concerns, when applicable
	IPAddress string
	Detail    string
	CreatedAt time.Time
}

// AuditRepo is append-only: events are inserted and listed, never updated
// or deleted.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Insert writes one event. Audit failures must never break the operation
// being audited; callers log the returned error and move on.
func (r *AuditRepo) Insert(ctx context.Context, ev AuditEvent) error {
	var actor, target interface{}
	if ev.ActorID != nil {
		actor = *ev.ActorID
	}
	if ev.TargetID != nil {
		target = *ev.TargetID
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO audit_events (event_type, severity, actor_id, target_id, ip_address, detail)
		 VALUES (?,?,?,?,?,?)`,
		ev.EventType, ev.Severity, actor, target, nullableString(ev.IPAddress), ev.Detail)
	return err
}

// List returns events newest first, optionally narrowed to one event type.
func (r *AuditRepo) List(ctx context.Context, eventType string, limit int) ([]AuditEvent, error) {
	query := `SELECT id, event_type, severity, actor_id, target_id, ip_address, detail, created_at
		FROM audit_events`
	args := []interface{}{}
	if eventType != "" {
		query += " WHERE event_type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var (
			ev     AuditEvent
			actor  sql.NullInt64
			target sql.NullInt64
			ip     sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Severity, &actor, &target, &ip, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if actor.Valid {
			id := uint64(actor.Int64)
			ev.ActorID = &id
		}
		if target.Valid {
			id := uint64(target.Int64)
			ev.TargetID = &id
		}
		if ip.Valid {
			ev.IPAddress = ip.String
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

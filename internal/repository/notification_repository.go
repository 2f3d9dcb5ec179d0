package repository

import (
	"context"
	"database/sql"
	"time"
)

// Notification is one row of the per-citizen notification feed, produced by
// the case event consumer.
type Notification struct {
	ID        uint64
	UserID    uint64
	CaseID    uint64
	EventType string
	Message   string
	IsRead    bool
	CreatedAt time.Time
}

// NotificationRepo stores the notification feed. Rows are written by the
// broker consumer and read by the owning citizen.
type NotificationRepo struct{ DB *sql.DB }

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{DB: db} }

// Insert appends one notification.
func (r *NotificationRepo) Insert(ctx context.Context, userID, caseID uint64, eventType, message string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO notifications (user_id, case_id, event_type, message) VALUES (?,?,?,?)",
		userID, caseID, eventType, message)
	return err
}

// ListByUser returns the user's notifications, newest first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]Notification, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, case_id, event_type, message, is_read, created_at
		 FROM notifications WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.CaseID, &n.EventType, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags one notification as seen by its owner.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE notifications SET is_read=1 WHERE id=? AND user_id=?", id, userID)
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

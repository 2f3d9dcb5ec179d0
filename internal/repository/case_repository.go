package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/dhruvindave007/janmitra/internal/model"
)

const caseColumns = `id, incident_id, current_level, status, sla_deadline,
	solved_at, solved_by, solution_notes, rejected_at, rejected_by, rejection_reason,
	closed_at, closed_by, escalation_count, last_escalated_at, created_at, updated_at`

// CaseRepo owns the case lifecycle. Every state or level transition runs in
// a transaction that re-reads the row under lock, verifies the case is
// still OPEN, mutates it, and appends exactly one status history row. A
// terminal case rejects every further transition with ErrConflict.
type CaseRepo struct{ DB *sql.DB }

func NewCaseRepo(db *sql.DB) *CaseRepo { return &CaseRepo{DB: db} }

// GetByID fetches one case. Visibility is the caller's concern.
func (r *CaseRepo) GetByID(ctx context.Context, id uint64) (model.Case, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+caseColumns+" FROM cases WHERE id=? LIMIT 1", id)
	return scanCase(row)
}

// CaseWithIncident pairs a case with the incident it wraps, the shape the
// officer listing endpoints return.
type CaseWithIncident struct {
	Case     model.Case
	Incident model.Incident
}

// ListVisible returns the cases the given role may see, applying the level
// partition: plain Level-2 sees level 2 only, captains see every level,
// Level-1 and Level-0 see their own level. statusFilter narrows by status
// when non-empty. Citizens get an empty slice.
func (r *CaseRepo) ListVisible(ctx context.Context, role model.Role, statusFilter model.CaseStatus, limit int) ([]CaseWithIncident, error) {
	var levelClause string
	switch role {
	case model.RoleLevel2:
		levelClause = "c.current_level = 2"
	case model.RoleLevel2Captain:
		levelClause = "c.current_level <= 2"
	case model.RoleLevel1:
		levelClause = "c.current_level = 1"
	case model.RoleLevel0:
		levelClause = "c.current_level = 0"
	case model.RoleJanMitra:
		return nil, nil
	default:
		return nil, nil
	}

	query := `SELECT c.id, c.incident_id, c.current_level, c.status, c.sla_deadline,
		c.solved_at, c.solved_by, c.solution_notes, c.rejected_at, c.rejected_by, c.rejection_reason,
		c.closed_at, c.closed_by, c.escalation_count, c.last_escalated_at, c.created_at, c.updated_at,
		i.id, i.submitted_by, i.text_content, i.category, i.latitude, i.longitude,
		i.area_name, i.city, i.state, i.created_at
		FROM cases c JOIN incidents i ON i.id = c.incident_id
		WHERE ` + levelClause
	args := []interface{}{}
	if statusFilter != "" {
		query += " AND c.status = ?"
		args = append(args, string(statusFilter))
	}
	query += " ORDER BY c.sla_deadline ASC LIMIT ?"
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CaseWithIncident
	for rows.Next() {
		var cwi CaseWithIncident
		if err := scanCaseWithIncident(rows, &cwi); err != nil {
			return nil, err
		}
		out = append(out, cwi)
	}
	return out, rows.Err()
}

// Solve transitions OPEN -> SOLVED. The actor's level must match the case's
// current level (captains act at any level they can see); that check lives
// in the handler, which knows the actor's role. Here only the lifecycle
// invariant is enforced.
func (r *CaseRepo) Solve(ctx context.Context, caseID, actorID uint64, notes string, now time.Time) error {
	return r.transition(ctx, caseID, func(tx *sql.Tx, c model.Case) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE cases SET status=?, solved_at=?, solved_by=?, solution_notes=? WHERE id=?`,
			string(model.CaseSolved), now.UTC(), actorID, notes, caseID); err != nil {
			return err
		}
		return insertHistory(ctx, tx, historyRow{
			caseID: caseID, from: c.Status, to: model.CaseSolved,
			actor: &actorID, reason: notes,
		})
	})
}

// Reject transitions OPEN -> REJECTED. A reason is mandatory; the handler
// validates presence, the ledger stores it.
func (r *CaseRepo) Reject(ctx context.Context, caseID, actorID uint64, reason string, now time.Time) error {
	return r.transition(ctx, caseID, func(tx *sql.Tx, c model.Case) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE cases SET status=?, rejected_at=?, rejected_by=?, rejection_reason=? WHERE id=?`,
			string(model.CaseRejected), now.UTC(), actorID, reason, caseID); err != nil {
			return err
		}
		return insertHistory(ctx, tx, historyRow{
			caseID: caseID, from: c.Status, to: model.CaseRejected,
			actor: &actorID, reason: reason,
		})
	})
}

// Forward manually escalates an OPEN case one level up (toward level 0) and
// resets the SLA clock for the receiving level. At level 0 there is nowhere
// to forward to and the call fails with ErrConflict.
func (r *CaseRepo) Forward(ctx context.Context, caseID, actorID uint64, reason string, now time.Time) error {
	return r.transition(ctx, caseID, func(tx *sql.Tx, c model.Case) error {
		next, ok := model.NextLevel(c.CurrentLevel)
		if !ok {
			return ErrConflict
		}
		return escalateTx(ctx, tx, c, next, &actorID, reason, false, now)
	})
}

// ForceClose transitions OPEN -> CLOSED, the Level-0 administrative
// override for cases that will never be worked.
func (r *CaseRepo) ForceClose(ctx context.Context, caseID, actorID uint64, reason string, now time.Time) error {
	return r.transition(ctx, caseID, func(tx *sql.Tx, c model.Case) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE cases SET status=?, closed_at=?, closed_by=? WHERE id=?`,
			string(model.CaseClosed), now.UTC(), actorID, caseID); err != nil {
			return err
		}
		return insertHistory(ctx, tx, historyRow{
			caseID: caseID, from: c.Status, to: model.CaseClosed,
			actor: &actorID, reason: reason,
		})
	})
}

// ForceEscalate is the Level-0 override: escalate immediately regardless of
// the SLA deadline. The history row is marked manual, not auto.
func (r *CaseRepo) ForceEscalate(ctx context.Context, caseID, actorID uint64, reason string, now time.Time) error {
	return r.Forward(ctx, caseID, actorID, reason, now)
}

// ExpiredCandidates returns ids of OPEN cases above level 0 whose deadline
// has lapsed. A cheap unlocked scan; every id is re-verified under lock by
// EscalateExpired before anything changes.
func (r *CaseRepo) ExpiredCandidates(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id FROM cases WHERE status=? AND current_level > 0 AND sla_deadline < ?
		 ORDER BY sla_deadline ASC LIMIT ?`,
		string(model.CaseOpen), now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EscalateExpired advances one expired case a level, system-attributed.
// The row is taken with SKIP LOCKED so concurrent sweepers never block on
// each other; a row someone else holds is simply not ours this round. After
// locking, status, level and deadline are re-checked: an officer may have
// solved the case between the candidate scan and now. Returns escalated=false
// when the case was skipped for any of those reasons.
func (r *CaseRepo) EscalateExpired(ctx context.Context, caseID uint64, now time.Time) (escalated bool, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		"SELECT "+caseColumns+" FROM cases WHERE id=? LIMIT 1 FOR UPDATE SKIP LOCKED", caseID)
	c, err := scanCase(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil // locked elsewhere or gone
		}
		return false, err
	}
	if !c.CanEscalate() || !c.SLAExpired(now) {
		return false, nil
	}
	next, ok := model.NextLevel(c.CurrentLevel)
	if !ok {
		return false, nil
	}
	if err := escalateTx(ctx, tx, c, next, nil, "sla deadline exceeded", true, now); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// AddNote appends an officer annotation, capturing the author's role at
// write time. Notes can be added to terminal cases too.
func (r *CaseRepo) AddNote(ctx context.Context, caseID, authorID uint64, authorRole model.Role, text string) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO case_notes (case_id, author_id, author_role, note_text) VALUES (?,?,?,?)",
		caseID, authorID, string(authorRole), text)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Notes returns the annotations of a case, oldest first.
func (r *CaseRepo) Notes(ctx context.Context, caseID uint64) ([]model.CaseNote, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, case_id, author_id, author_role, note_text, created_at
		 FROM case_notes WHERE case_id=? ORDER BY created_at ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CaseNote
	for rows.Next() {
		var (
			n       model.CaseNote
			roleStr string
		)
		if err := rows.Scan(&n.ID, &n.CaseID, &n.AuthorID, &roleStr, &n.NoteText, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.AuthorRole = model.Role(roleStr)
		out = append(out, n)
	}
	return out, rows.Err()
}

// History returns the full transition ledger of a case, oldest first.
func (r *CaseRepo) History(ctx context.Context, caseID uint64) ([]model.CaseStatusHistory, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, case_id, from_status, to_status, from_level, to_level,
		 changed_by, reason, is_auto_escalation, created_at
		 FROM case_status_history WHERE case_id=? ORDER BY created_at ASC, id ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CaseStatusHistory
	for rows.Next() {
		var (
			h          model.CaseStatusHistory
			fromStatus sql.NullString
			toStatus   string
			fromLevel  sql.NullInt64
			toLevel    sql.NullInt64
			changedBy  sql.NullInt64
		)
		if err := rows.Scan(&h.ID, &h.CaseID, &fromStatus, &toStatus, &fromLevel,
			&toLevel, &changedBy, &h.Reason, &h.IsAutoEscalation, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.ToStatus = model.CaseStatus(toStatus)
		if fromStatus.Valid {
			s := model.CaseStatus(fromStatus.String)
			h.FromStatus = &s
		}
		if fromLevel.Valid {
			l := model.CaseLevel(fromLevel.Int64)
			h.FromLevel = &l
		}
		if toLevel.Valid {
			l := model.CaseLevel(toLevel.Int64)
			h.ToLevel = &l
		}
		if changedBy.Valid {
			id := uint64(changedBy.Int64)
			h.ChangedBy = &id
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// transition runs fn against the case re-read under lock, enforcing the
// OPEN precondition that every lifecycle mutation shares.
func (r *CaseRepo) transition(ctx context.Context, caseID uint64, fn func(tx *sql.Tx, c model.Case) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		"SELECT "+caseColumns+" FROM cases WHERE id=? LIMIT 1 FOR UPDATE", caseID)
	c, err := scanCase(row)
	if err != nil {
		return err
	}
	if c.Status.Terminal() {
		return ErrConflict
	}
	if err := fn(tx, c); err != nil {
		return err
	}
	return tx.Commit()
}

// escalateTx moves the case to the target level, resets the SLA clock and
// appends the level-change history row. Shared by manual Forward and the
// sweeper's EscalateExpired.
func escalateTx(ctx context.Context, tx *sql.Tx, c model.Case, next model.CaseLevel, actor *uint64, reason string, auto bool, now time.Time) error {
	deadline := model.SLADeadline(now)
	if _, err := tx.ExecContext(ctx,
		`UPDATE cases SET current_level=?, sla_deadline=?,
		 escalation_count=escalation_count+1, last_escalated_at=? WHERE id=?`,
		int(next), deadline, now.UTC(), c.ID); err != nil {
		return err
	}
	from := c.CurrentLevel
	return insertHistory(ctx, tx, historyRow{
		caseID: c.ID, from: c.Status, to: c.Status,
		fromLevel: &from, toLevel: &next,
		actor: actor, reason: reason, auto: auto,
	})
}

type historyRow struct {
	caseID    uint64
	from      model.CaseStatus
	to        model.CaseStatus
	fromLevel *model.CaseLevel
	toLevel   *model.CaseLevel
	actor     *uint64
	reason    string
	auto      bool
}

func insertHistory(ctx context.Context, tx *sql.Tx, h historyRow) error {
	var fromLevel, toLevel, actor interface{}
	if h.fromLevel != nil {
		fromLevel = int(*h.fromLevel)
	}
	if h.toLevel != nil {
		toLevel = int(*h.toLevel)
	}
	if h.actor != nil {
		actor = *h.actor
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO case_status_history
		 (case_id, from_status, to_status, from_level, to_level, changed_by, reason, is_auto_escalation)
		 VALUES (?,?,?,?,?,?,?,?)`,
		h.caseID, string(h.from), string(h.to), fromLevel, toLevel, actor, h.reason, h.auto)
	return err
}

// caseScanBuf holds the nullable intermediates for one case row. dest
// returns the scan targets in caseColumns order; into materializes them.
type caseScanBuf struct {
	c            model.Case
	level        int
	statusStr    string
	solvedAt     sql.NullTime
	solvedBy     sql.NullInt64
	solutionNote sql.NullString
	rejectedAt   sql.NullTime
	rejectedBy   sql.NullInt64
	rejectReason sql.NullString
	closedAt     sql.NullTime
	closedBy     sql.NullInt64
	lastEsc      sql.NullTime
}

func (b *caseScanBuf) dest() []interface{} {
	return []interface{}{&b.c.ID, &b.c.IncidentID, &b.level, &b.statusStr, &b.c.SLADeadline,
		&b.solvedAt, &b.solvedBy, &b.solutionNote, &b.rejectedAt, &b.rejectedBy, &b.rejectReason,
		&b.closedAt, &b.closedBy, &b.c.EscalationCount, &b.lastEsc, &b.c.CreatedAt, &b.c.UpdatedAt}
}

func (b *caseScanBuf) into() model.Case {
	c := b.c
	c.CurrentLevel = model.CaseLevel(b.level)
	c.Status = model.CaseStatus(b.statusStr)
	if b.solvedAt.Valid {
		t := b.solvedAt.Time
		c.SolvedAt = &t
	}
	if b.solvedBy.Valid {
		id := uint64(b.solvedBy.Int64)
		c.SolvedBy = &id
	}
	if b.solutionNote.Valid {
		c.SolutionNotes = b.solutionNote.String
	}
	if b.rejectedAt.Valid {
		t := b.rejectedAt.Time
		c.RejectedAt = &t
	}
	if b.rejectedBy.Valid {
		id := uint64(b.rejectedBy.Int64)
		c.RejectedBy = &id
	}
	if b.rejectReason.Valid {
		c.RejectionReason = b.rejectReason.String
	}
	if b.closedAt.Valid {
		t := b.closedAt.Time
		c.ClosedAt = &t
	}
	if b.closedBy.Valid {
		id := uint64(b.closedBy.Int64)
		c.ClosedBy = &id
	}
	if b.lastEsc.Valid {
		t := b.lastEsc.Time
		c.LastEscalatedAt = &t
	}
	return c
}

func scanCase(sc rowScanner) (model.Case, error) {
	var b caseScanBuf
	if err := sc.Scan(b.dest()...); err != nil {
		return model.Case{}, err
	}
	return b.into(), nil
}

func scanCaseWithIncident(rows *sql.Rows, out *CaseWithIncident) error {
	var (
		b        caseScanBuf
		inc      model.Incident
		catStr   string
		lat, lon sql.NullFloat64
		area     sql.NullString
		city     sql.NullString
		state    sql.NullString
	)
	dest := b.dest()
	dest = append(dest, &inc.ID, &inc.SubmittedBy, &inc.TextContent, &catStr, &lat, &lon,
		&area, &city, &state, &inc.CreatedAt)
	if err := rows.Scan(dest...); err != nil {
		return err
	}
	inc.Category = model.ParseCategory(catStr)
	if lat.Valid {
		v := lat.Float64
		inc.Latitude = &v
	}
	if lon.Valid {
		v := lon.Float64
		inc.Longitude = &v
	}
	if area.Valid {
		v := area.String
		inc.AreaName = &v
	}
	if city.Valid {
		v := city.String
		inc.City = &v
	}
	if state.Valid {
		v := state.String
		inc.State = &v
	}
	out.Case = b.into()
	out.Incident = inc
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/dhruvindave007/janmitra/internal/model"
)

// IncidentRepo manages the immutable citizen submissions. Incidents are
// written once; the only later mutation is the location enrichment backfill.
type IncidentRepo struct{ DB *sql.DB }

func NewIncidentRepo(db *sql.DB) *IncidentRepo { return &IncidentRepo{DB: db} }

// CreateWithCase atomically stores the incident, opens its case at level 2
// with a fresh SLA deadline, and writes the creation row into the status
// history ledger. Either all three rows exist or none.
func (r *IncidentRepo) CreateWithCase(ctx context.Context, inc model.Incident, now time.Time) (incidentID, caseID uint64, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO incidents (submitted_by, text_content, category, latitude, longitude, area_name, city, state)
		 VALUES (?,?,?,?,?,?,?,?)`,
		inc.SubmittedBy, inc.TextContent, string(inc.Category),
		nullableFloat(inc.Latitude), nullableFloat(inc.Longitude),
		nullableStringPtr(inc.AreaName), nullableStringPtr(inc.City), nullableStringPtr(inc.State))
	if err != nil {
		return 0, 0, err
	}
	incID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, err
	}

	deadline := model.SLADeadline(now)
	res, err = tx.ExecContext(ctx,
		"INSERT INTO cases (incident_id, current_level, status, sla_deadline) VALUES (?,?,?,?)",
		incID, int(model.CaseLevel2), string(model.CaseOpen), deadline)
	if err != nil {
		return 0, 0, err
	}
	cID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, err
	}

	// Creation row: from_status and from_level are NULL, the case is born
	// OPEN at level 2.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO case_status_history
		 (case_id, from_status, to_status, from_level, to_level, changed_by, reason, is_auto_escalation)
		 VALUES (?,NULL,?,NULL,?,?,?,0)`,
		cID, string(model.CaseOpen), int(model.CaseLevel2), inc.SubmittedBy, "case created"); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return uint64(incID), uint64(cID), nil
}

// GetByID fetches one incident.
func (r *IncidentRepo) GetByID(ctx context.Context, id uint64) (model.Incident, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, submitted_by, text_content, category, latitude, longitude,
		 area_name, city, state, created_at FROM incidents WHERE id=? LIMIT 1`, id)
	return scanIncident(row)
}

// SubmitterView is what a citizen sees of their own submissions: the
// incident plus the case lifecycle state, never the handling officers.
type SubmitterView struct {
	Incident model.Incident
	CaseID   uint64
	Status   model.CaseStatus
	SolvedAt *time.Time
}

// ListBySubmitter returns the citizen's own incidents, newest first.
func (r *IncidentRepo) ListBySubmitter(ctx context.Context, userID uint64, limit int) ([]SubmitterView, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT i.id, i.submitted_by, i.text_content, i.category, i.latitude, i.longitude,
		 i.area_name, i.city, i.state, i.created_at, c.id, c.status, c.solved_at
		 FROM incidents i JOIN cases c ON c.incident_id = i.id
		 WHERE i.submitted_by=? ORDER BY i.created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubmitterView
	for rows.Next() {
		var (
			v         SubmitterView
			statusStr string
			solvedAt  sql.NullTime
		)
		inc, err := scanIncidentInto(rows, &v.CaseID, &statusStr, &solvedAt)
		if err != nil {
			return nil, err
		}
		v.Incident = inc
		v.Status = model.CaseStatus(statusStr)
		if solvedAt.Valid {
			t := solvedAt.Time
			v.SolvedAt = &t
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateArea backfills the resolved location fields. Best effort: the
// resolver may call this seconds after submission, or never.
func (r *IncidentRepo) UpdateArea(ctx context.Context, id uint64, areaName, city, state string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE incidents SET area_name=?, city=?, state=? WHERE id=?",
		nullableString(areaName), nullableString(city), nullableString(state), id)
	return err
}

func scanIncident(sc rowScanner) (model.Incident, error) {
	return scanIncidentInto(sc)
}

// scanIncidentInto scans the incident column block plus any trailing extras.
func scanIncidentInto(sc rowScanner, extra ...interface{}) (model.Incident, error) {
	var (
		inc      model.Incident
		catStr   string
		lat, lon sql.NullFloat64
		area     sql.NullString
		city     sql.NullString
		state    sql.NullString
	)
	dest := []interface{}{&inc.ID, &inc.SubmittedBy, &inc.TextContent, &catStr,
		&lat, &lon, &area, &city, &state, &inc.CreatedAt}
	dest = append(dest, extra...)
	if err := sc.Scan(dest...); err != nil {
		return model.Incident{}, err
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
	return inc, nil
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullableStringPtr(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

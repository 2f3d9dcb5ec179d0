package model

import "time"

// IncidentCategory classifies a citizen submission. Generic categories,
// not tied to any particular department.
type IncidentCategory string

const (
	CategoryGeneral        IncidentCategory = "general"
	CategoryPublicSafety   IncidentCategory = "public_safety"
	CategoryInfrastructure IncidentCategory = "infrastructure"
	CategoryEnvironmental  IncidentCategory = "environmental"
	CategorySocial         IncidentCategory = "social"
	CategoryEconomic       IncidentCategory = "economic"
	CategoryGovernance     IncidentCategory = "governance"
	CategoryOther          IncidentCategory = "other"
)

// ParseCategory normalizes a client-supplied category, falling back to
// "general" for anything outside the closed set.
func ParseCategory(s string) IncidentCategory {
	switch IncidentCategory(s) {
	case CategoryGeneral, CategoryPublicSafety, CategoryInfrastructure,
		CategoryEnvironmental, CategorySocial, CategoryEconomic,
		CategoryGovernance, CategoryOther:
		return IncidentCategory(s)
	}
	return CategoryGeneral
}

// CaseStatus is the lifecycle state of a case. OPEN is the only
// non-terminal state; SOLVED, REJECTED and CLOSED are terminal and a case
// never leaves them.
type CaseStatus string

const (
	CaseOpen     CaseStatus = "OPEN"
	CaseSolved   CaseStatus = "SOLVED"
	CaseRejected CaseStatus = "REJECTED"
	CaseClosed   CaseStatus = "CLOSED"
)

// Terminal reports whether the status admits no further transitions.
func (s CaseStatus) Terminal() bool {
	switch s {
	case CaseOpen:
		return false
	case CaseSolved, CaseRejected, CaseClosed:
		return true
	}
	return false
}

// CaseLevel is the authority tier currently handling a case. Levels only
// ever decrease (2 -> 1 -> 0); level 0 is the highest authority.
type CaseLevel int

const (
	CaseLevel0 CaseLevel = 0 // highest authority
	CaseLevel1 CaseLevel = 1 // senior officers
	CaseLevel2 CaseLevel = 2 // field officers
)

// NextLevel returns the level a case escalates to. ok is false at level 0,
// where no further escalation exists.
func NextLevel(l CaseLevel) (next CaseLevel, ok bool) {
	switch l {
	case CaseLevel2:
		return CaseLevel1, true
	case CaseLevel1:
		return CaseLevel0, true
	case CaseLevel0:
		return CaseLevel0, false
	}
	return l, false
}

// SLAWindow is how long each level has to act before auto-escalation.
const SLAWindow = 24 * time.Hour

// SLADeadline computes the deadline granted to the level that takes over a
// case at the given instant.
func SLADeadline(now time.Time) time.Time {
	return now.UTC().Add(SLAWindow)
}

// Incident is the immutable citizen submission. After creation no field is
// ever mutated except the best-effort area/city/state enrichment backfill.
//
// Fields:
//  ID          – primary key identifier.
//  SubmittedBy – citizen account that broadcast the incident.
//  TextContent – free-text description (required).
//  Category    – incident category.
//  Latitude/Longitude – optional GPS coordinates.
//  AreaName/City/State – resolved location metadata (optional, may be
//                backfilled later by the location resolver).
type Incident struct {
	ID          uint64           // incidents.id
	SubmittedBy uint64           // incidents.submitted_by
	TextContent string           // incidents.text_content
	Category    IncidentCategory // incidents.category
	Latitude    *float64         // incidents.latitude (nullable)
	Longitude   *float64         // incidents.longitude (nullable)
	AreaName    *string          // incidents.area_name (nullable)
	City        *string          // incidents.city (nullable)
	State       *string          // incidents.state (nullable)
	CreatedAt   time.Time        // incidents.created_at
}

// HasLocation reports whether both coordinates were supplied.
func (i Incident) HasLocation() bool {
	return i.Latitude != nil && i.Longitude != nil
}

// Case is the mutable lifecycle wrapper around exactly one incident. Its
// current fields are a materialized view of the status history ledger.
//
// Fields:
//  ID              – primary key identifier.
//  IncidentID      – the wrapped incident (1:1).
//  CurrentLevel    – handling tier; monotonically decreasing while OPEN.
//  Status          – lifecycle state.
//  SLADeadline     – deadline for the current level before auto-escalation.
//  SolvedAt/SolvedBy/SolutionNotes    – resolution fields.
//  RejectedAt/RejectedBy/RejectionReason – rejection fields.
//  ClosedAt/ClosedBy – force-close fields.
//  EscalationCount – number of level advances so far.
//  LastEscalatedAt – when the case last advanced a level (nullable).
type Case struct {
	ID              uint64     // cases.id
	IncidentID      uint64     // cases.incident_id
	CurrentLevel    CaseLevel  // cases.current_level
	Status          CaseStatus // cases.status
	SLADeadline     time.Time  // cases.sla_deadline
	SolvedAt        *time.Time // cases.solved_at (nullable)
	SolvedBy        *uint64    // cases.solved_by (nullable)
	SolutionNotes   string     // cases.solution_notes
	RejectedAt      *time.Time // cases.rejected_at (nullable)
	RejectedBy      *uint64    // cases.rejected_by (nullable)
	RejectionReason string     // cases.rejection_reason
	ClosedAt        *time.Time // cases.closed_at (nullable)
	ClosedBy        *uint64    // cases.closed_by (nullable)
	EscalationCount uint32     // cases.escalation_count
	LastEscalatedAt *time.Time // cases.last_escalated_at (nullable)
	CreatedAt       time.Time  // cases.created_at
	UpdatedAt       time.Time  // cases.updated_at
}

// CanEscalate reports whether the case may advance a level, either manually
// or by the SLA sweeper.
func (c Case) CanEscalate() bool {
	return c.Status == CaseOpen && c.CurrentLevel > CaseLevel0
}

// SLAExpired reports whether the current level's deadline has lapsed.
func (c Case) SLAExpired(now time.Time) bool {
	return now.After(c.SLADeadline)
}

// CaseNote is an append-only officer annotation. The author's role is
// captured at write time so later role changes do not rewrite history.
type CaseNote struct {
	ID         uint64    // case_notes.id
	CaseID     uint64    // case_notes.case_id
	AuthorID   uint64    // case_notes.author_id
	AuthorRole Role      // case_notes.author_role
	NoteText   string    // case_notes.note_text
	CreatedAt  time.Time // case_notes.created_at
}

// CaseStatusHistory is one entry of the append-only transition ledger.
// Every status or level change of a case is paired with exactly one row
// here, written in the same transaction. Actor is nil for system-driven
// transitions (auto-escalation).
type CaseStatusHistory struct {
	ID               uint64      // case_status_history.id
	CaseID           uint64      // case_status_history.case_id
	FromStatus       *CaseStatus // case_status_history.from_status (null on creation)
	ToStatus         CaseStatus  // case_status_history.to_status
	FromLevel        *CaseLevel  // case_status_history.from_level (null on creation)
	ToLevel          *CaseLevel  // case_status_history.to_level (null when only status changed)
	ChangedBy        *uint64     // case_status_history.changed_by (null for system)
	Reason           string      // case_status_history.reason
	IsAutoEscalation bool        // case_status_history.is_auto_escalation
	CreatedAt        time.Time   // case_status_history.created_at
}

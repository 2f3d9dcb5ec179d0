package queue

import "time"

// Case event types carried on the broker.
const (
	EventCaseCreated   = "case.created"
	EventCaseSolved    = "case.solved"
	EventCaseRejected  = "case.rejected"
	EventCaseForwarded = "case.forwarded"
	EventCaseClosed    = "case.closed"
	EventCaseEscalated = "case.escalated"
)

// CaseEvent is the wire payload published whenever a case changes state.
// Consumers turn these into citizen notifications; the payload deliberately
// carries no officer identity.
type CaseEvent struct {
	Type        string    `json:"type"`
	CaseID      uint64    `json:"case_id"`
	IncidentID  uint64    `json:"incident_id"`
	SubmittedBy uint64    `json:"submitted_by"`
	Level       int       `json:"level"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

package handler

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dhruvindave007/janmitra/internal/model"
	"github.com/dhruvindave007/janmitra/internal/queue"
	"github.com/dhruvindave007/janmitra/internal/repository"
	queue_publisher "github.com/dhruvindave007/janmitra/internal/service"
)

// CaseHandler serves the authority surface: listing, inspecting and
// transitioning cases. Every endpoint applies the level visibility
// partition; a case outside the caller's slice answers 404, not 403, so
// probing ids reveals nothing about other levels.
type CaseHandler struct {
	Cases     *repository.CaseRepo
	Incidents *repository.IncidentRepo
	Audit     *repository.AuditRepo
}

func NewCaseHandler(cs *repository.CaseRepo, i *repository.IncidentRepo, a *repository.AuditRepo) *CaseHandler {
	return &CaseHandler{Cases: cs, Incidents: i, Audit: a}
}

// ----- DTOs -----

type solveReq struct {
	Notes string `json:"notes"`
}
type rejectReq struct {
	Reason string `json:"reason"`
}
type forwardReq struct {
	Reason string `json:"reason"`
}
type noteReq struct {
	NoteText string `json:"note_text"`
}

type caseResp struct {
	ID              uint64     `json:"id"`
	IncidentID      uint64     `json:"incident_id"`
	Level           int        `json:"level"`
	Status          string     `json:"status"`
	SLADeadline     time.Time  `json:"sla_deadline"`
	EscalationCount uint32     `json:"escalation_count"`
	LastEscalatedAt *time.Time `json:"last_escalated_at,omitempty"`
	SolvedAt        *time.Time `json:"solved_at,omitempty"`
	SolutionNotes   string     `json:"solution_notes,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type incidentResp struct {
	TextContent string   `json:"text_content"`
	Category    string   `json:"category"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	AreaName    *string  `json:"area_name,omitempty"`
	City        *string  `json:"city,omitempty"`
	State       *string  `json:"state,omitempty"`
}

func toCaseResp(c model.Case) caseResp {
	return caseResp{
		ID: c.ID, IncidentID: c.IncidentID, Level: int(c.CurrentLevel),
		Status: string(c.Status), SLADeadline: c.SLADeadline,
		EscalationCount: c.EscalationCount, LastEscalatedAt: c.LastEscalatedAt,
		SolvedAt: c.SolvedAt, SolutionNotes: c.SolutionNotes,
		RejectedAt: c.RejectedAt, RejectionReason: c.RejectionReason,
		ClosedAt: c.ClosedAt, CreatedAt: c.CreatedAt,
	}
}

// toIncidentResp deliberately omits the submitter: officers never learn who
// reported an incident.
func toIncidentResp(i model.Incident) incidentResp {
	return incidentResp{
		TextContent: i.TextContent, Category: string(i.Category),
		Latitude: i.Latitude, Longitude: i.Longitude,
		AreaName: i.AreaName, City: i.City, State: i.State,
	}
}

// List returns the cases visible to the caller's role, soonest deadline
// first, optionally filtered with ?status=.
func (h *CaseHandler) List(c echo.Context) error {
	role, _ := c.Get("role").(model.Role)

	var statusFilter model.CaseStatus
	if raw := strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))); raw != "" {
		statusFilter = model.CaseStatus(raw)
		switch statusFilter {
		case model.CaseOpen, model.CaseSolved, model.CaseRejected, model.CaseClosed:
		default:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status filter"})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Cases.ListVisible(ctx, role, statusFilter, listLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(items))
	for _, it := range items {
		out = append(out, echo.Map{
			"case":     toCaseResp(it.Case),
			"incident": toIncidentResp(it.Incident),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"cases": out})
}

// Get returns one case with its incident, if the caller may see it.
func (h *CaseHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cs, ok, err := h.visibleCase(ctx, c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "case not found"})
	}
	inc, err := h.Incidents.GetByID(ctx, cs.IncidentID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"case":     toCaseResp(cs),
		"incident": toIncidentResp(inc),
	})
}

// Solve marks a visible OPEN case solved.
func (h *CaseHandler) Solve(c echo.Context) error {
	var req solveReq
	_ = c.Bind(&req)
	return h.transition(c, repository.AuditCaseSolved, queue.EventCaseSolved,
		func(ctx context.Context, cs model.Case, actorID uint64, now time.Time) error {
			return h.Cases.Solve(ctx, cs.ID, actorID, strings.TrimSpace(req.Notes), now)
		})
}

// Reject marks a visible OPEN case rejected. A reason is mandatory.
func (h *CaseHandler) Reject(c echo.Context) error {
	var req rejectReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason required"})
	}
	return h.transition(c, repository.AuditCaseRejected, queue.EventCaseRejected,
		func(ctx context.Context, cs model.Case, actorID uint64, now time.Time) error {
			return h.Cases.Reject(ctx, cs.ID, actorID, strings.TrimSpace(req.Reason), now)
		})
}

// Forward escalates a visible OPEN case one level up ahead of its deadline.
func (h *CaseHandler) Forward(c echo.Context) error {
	var req forwardReq
	_ = c.Bind(&req)
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "forwarded to higher authority"
	}
	return h.transition(c, repository.AuditCaseForwarded, queue.EventCaseForwarded,
		func(ctx context.Context, cs model.Case, actorID uint64, now time.Time) error {
			return h.Cases.Forward(ctx, cs.ID, actorID, reason, now)
		})
}

// AddNote appends an annotation to a visible case. Works on terminal cases.
func (h *CaseHandler) AddNote(c echo.Context) error {
	var req noteReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.NoteText) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "note_text required"})
	}
	uid, _ := c.Get("user_id").(uint64)
	role, _ := c.Get("role").(model.Role)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cs, ok, err := h.visibleCase(ctx, c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "case not found"})
	}
	noteID, err := h.Cases.AddNote(ctx, cs.ID, uid, role, strings.TrimSpace(req.NoteText))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save note failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"note_id": noteID})
}

// Notes lists the annotations of a visible case.
func (h *CaseHandler) Notes(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cs, ok, err := h.visibleCase(ctx, c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "case not found"})
	}
	notes, err := h.Cases.Notes(ctx, cs.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"notes": notes})
}

// History returns the full transition ledger of a visible case.
func (h *CaseHandler) History(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cs, ok, err := h.visibleCase(ctx, c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "case not found"})
	}
	history, err := h.Cases.History(ctx, cs.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"history": history})
}

// visibleCase loads the case from the :id param and applies the caller's
// visibility slice. ok=false covers both a missing case and an invisible
// one, which answer identically.
func (h *CaseHandler) visibleCase(ctx context.Context, c echo.Context) (model.Case, bool, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return model.Case{}, false, nil
	}
	role, _ := c.Get("role").(model.Role)

	cs, err := h.Cases.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Case{}, false, nil
		}
		return model.Case{}, false, err
	}
	if !role.CanSeeLevel(cs.CurrentLevel) {
		return model.Case{}, false, nil
	}
	return cs, true, nil
}

// transition runs a lifecycle mutation behind the shared visibility check,
// then audits and publishes the outcome.
func (h *CaseHandler) transition(c echo.Context, auditType, eventType string,
	mutate func(ctx context.Context, cs model.Case, actorID uint64, now time.Time) error) error {
	uid, _ := c.Get("user_id").(uint64)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cs, ok, err := h.visibleCase(ctx, c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "case not found"})
	}

	now := time.Now().UTC()
	if err := mutate(ctx, cs, uid, now); err != nil {
		if err == repository.ErrConflict {
			return c.JSON(http.StatusConflict, echo.Map{"error": "case no longer accepts this transition"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transition failed"})
	}

	if aerr := h.Audit.Insert(ctx, repository.AuditEvent{
		EventType: auditType, Severity: repository.SeverityInfo,
		ActorID: &uid, TargetID: &cs.ID, IPAddress: c.RealIP(),
	}); aerr != nil {
		log.Printf("[audit] insert %s failed: %v", auditType, aerr)
	}

	go h.publishAfterTransition(cs.ID, eventType)

	updated, err := h.Cases.GetByID(ctx, cs.ID)
	if err != nil {
		return c.JSON(http.StatusOK, echo.Map{"case_id": cs.ID})
	}
	return c.JSON(http.StatusOK, echo.Map{"case": toCaseResp(updated)})
}

// publishAfterTransition re-reads the case to build the event payload and
// publishes it. Runs detached; broker failures only log.
func (h *CaseHandler) publishAfterTransition(caseID uint64, eventType string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cs, err := h.Cases.GetByID(ctx, caseID)
	if err != nil {
		log.Printf("[events] load case %d failed: %v", caseID, err)
		return
	}
	inc, err := h.Incidents.GetByID(ctx, cs.IncidentID)
	if err != nil {
		log.Printf("[events] load incident %d failed: %v", cs.IncidentID, err)
		return
	}
	_ = queue_publisher.PublishCaseEvent(ctx, queue.CaseEvent{
		Type: eventType, CaseID: cs.ID, IncidentID: inc.ID,
		SubmittedBy: inc.SubmittedBy, Level: int(cs.CurrentLevel),
		Status: string(cs.Status), OccurredAt: time.Now().UTC(),
	})
}

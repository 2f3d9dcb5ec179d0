package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dhruvindave007/janmitra/internal/location"
	"github.com/dhruvindave007/janmitra/internal/model"
	"github.com/dhruvindave007/janmitra/internal/queue"
	"github.com/dhruvindave007/janmitra/internal/repository"
	queue_publisher "github.com/dhruvindave007/janmitra/internal/service"
)

// CitizenHandler serves the anonymous citizen surface: submitting incidents
// and reading back their status. Citizens never see officer identities or
// case internals beyond the lifecycle state.
type CitizenHandler struct {
	Incidents     *repository.IncidentRepo
	Notifications *repository.NotificationRepo
	Audit         *repository.AuditRepo
	Resolver      *location.Resolver
}

func NewCitizenHandler(i *repository.IncidentRepo, n *repository.NotificationRepo,
	a *repository.AuditRepo, r *location.Resolver) *CitizenHandler {
	return &CitizenHandler{Incidents: i, Notifications: n, Audit: a, Resolver: r}
}

type submitIncidentReq struct {
	TextContent string   `json:"text_content"`
	Category    string   `json:"category"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// SubmitIncident broadcasts a new incident. The incident, its case (opened
// at level 2 with a fresh SLA deadline) and the first history row commit
// atomically; location enrichment and event publishing happen after the
// commit and never block or fail the submission.
func (h *CitizenHandler) SubmitIncident(c echo.Context) error {
	uid, _ := c.Get("user_id").(uint64)

	var req submitIncidentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.TextContent = strings.TrimSpace(req.TextContent)
	if req.TextContent == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "text_content required"})
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "latitude and longitude must be supplied together"})
	}

	inc := model.Incident{
		SubmittedBy: uid,
		TextContent: req.TextContent,
		Category:    model.ParseCategory(req.Category),
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	incidentID, caseID, err := h.Incidents.CreateWithCase(ctx, inc, now)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "submission failed"})
	}

	if err := h.Audit.Insert(ctx, repository.AuditEvent{
		EventType: repository.AuditCaseCreated, Severity: repository.SeverityInfo,
		ActorID: &uid, TargetID: &caseID, IPAddress: c.RealIP(),
	}); err != nil {
		log.Printf("[audit] insert %s failed: %v", repository.AuditCaseCreated, err)
	}

	// Post-commit side effects run detached from the request.
	if inc.HasLocation() {
		go h.backfillLocation(incidentID, *req.Latitude, *req.Longitude)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = queue_publisher.PublishCaseEvent(ctx, queue.CaseEvent{
			Type: queue.EventCaseCreated, CaseID: caseID, IncidentID: incidentID,
			SubmittedBy: uid, Level: int(model.CaseLevel2),
			Status: string(model.CaseOpen), OccurredAt: now,
		})
	}()

	return c.JSON(http.StatusCreated, echo.Map{
		"incident_id":  incidentID,
		"case_id":      caseID,
		"status":       model.CaseOpen,
		"level":        model.CaseLevel2,
		"sla_deadline": model.SLADeadline(now),
	})
}

// backfillLocation resolves coordinates to an area name and updates the
// incident. Strictly best effort.
func (h *CitizenHandler) backfillLocation(incidentID uint64, lat, lon float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	area, err := h.Resolver.Reverse(ctx, lat, lon)
	if err != nil {
		log.Printf("[location] reverse geocode for incident %d failed: %v", incidentID, err)
		return
	}
	if area.AreaName == "" && area.City == "" && area.State == "" {
		return
	}
	if err := h.Incidents.UpdateArea(ctx, incidentID, area.AreaName, area.City, area.State); err != nil {
		log.Printf("[location] backfill for incident %d failed: %v", incidentID, err)
	}
}

type myIncidentResp struct {
	IncidentID  uint64     `json:"incident_id"`
	CaseID      uint64     `json:"case_id"`
	TextContent string     `json:"text_content"`
	Category    string     `json:"category"`
	AreaName    *string    `json:"area_name,omitempty"`
	City        *string    `json:"city,omitempty"`
	State       *string    `json:"state,omitempty"`
	Status      string     `json:"status"`
	SolvedAt    *time.Time `json:"solved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// MyIncidents lists the caller's own submissions with their case status.
func (h *CitizenHandler) MyIncidents(c echo.Context) error {
	uid, _ := c.Get("user_id").(uint64)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	views, err := h.Incidents.ListBySubmitter(ctx, uid, listLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]myIncidentResp, 0, len(views))
	for _, v := range views {
		out = append(out, myIncidentResp{
			IncidentID:  v.Incident.ID,
			CaseID:      v.CaseID,
			TextContent: v.Incident.TextContent,
			Category:    string(v.Incident.Category),
			AreaName:    v.Incident.AreaName,
			City:        v.Incident.City,
			State:       v.Incident.State,
			Status:      string(v.Status),
			SolvedAt:    v.SolvedAt,
			CreatedAt:   v.Incident.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"incidents": out})
}

// MyNotifications returns the caller's notification feed.
func (h *CitizenHandler) MyNotifications(c echo.Context) error {
	uid, _ := c.Get("user_id").(uint64)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Notifications.ListByUser(ctx, uid, listLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": items})
}

// MarkNotificationRead flags one of the caller's notifications as read.
func (h *CitizenHandler) MarkNotificationRead(c echo.Context) error {
	uid, _ := c.Get("user_id").(uint64)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Notifications.MarkRead(ctx, id, uid); err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "notification not found"})
	}
	return c.NoContent(http.StatusNoContent)
}

// listLimit reads the ?limit= query param, bounded to keep responses sane.
func listLimit(c echo.Context) int {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	return limit
}

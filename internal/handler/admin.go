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
	"github.com/dhruvindave007/janmitra/internal/utils"
)

// AdminHandler serves the Level-0 administrative surface: invites, user
// revocation, session control and case overrides.
type AdminHandler struct {
	Cfg       adminConfig
	Users     *repository.UserRepo
	Sessions  *repository.SessionRepo
	Invites   *repository.InviteRepo
	Cases     *repository.CaseRepo
	Incidents *repository.IncidentRepo
	Audit     *repository.AuditRepo
}

// adminConfig is the slice of configuration the admin surface needs.
type adminConfig struct {
	BcryptCost int
}

func NewAdminHandler(bcryptCost int, u *repository.UserRepo, s *repository.SessionRepo,
	i *repository.InviteRepo, cs *repository.CaseRepo, inc *repository.IncidentRepo,
	a *repository.AuditRepo) *AdminHandler {
	return &AdminHandler{Cfg: adminConfig{BcryptCost: bcryptCost},
		Users: u, Sessions: s, Invites: i, Cases: cs, Incidents: inc, Audit: a}
}

// ----- DTOs -----

type createInviteReq struct {
	MaxUses    uint32 `json:"max_uses"`
	ExpiresInH int    `json:"expires_in_hours"`
	Notes      string `json:"notes"`
}
type createAuthorityReq struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Role       string `json:"role"`
}
type revokeReq struct {
	Reason string `json:"reason"`
}
type overrideReq struct {
	Reason string `json:"reason"`
}

// CreateInvite issues a fresh invite code for citizen registration.
func (h *AdminHandler) CreateInvite(c echo.Context) error {
	uid, _ := c.Get("user_id").(uint64)

	var req createInviteReq
	_ = c.Bind(&req)
	if req.MaxUses == 0 {
		req.MaxUses = 1
	}
	if req.ExpiresInH <= 0 {
		req.ExpiresInH = 72
	}

	code, err := utils.NewInviteCode()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "generate code failed"})
	}
	expiresAt := time.Now().UTC().Add(time.Duration(req.ExpiresInH) * time.Hour)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Invites.Create(ctx, code, uid, req.MaxUses, expiresAt, strings.TrimSpace(req.Notes))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save invite failed"})
	}
	h.audit(ctx, repository.AuditInviteCreated, repository.SeverityInfo, &uid, &id, c.RealIP(), code)
	return c.JSON(http.StatusCreated, echo.Map{
		"invite_id":  id,
		"code":       code,
		"max_uses":   req.MaxUses,
		"expires_at": expiresAt,
	})
}

// ListInvites returns issued codes, newest first.
func (h *AdminHandler) ListInvites(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Invites.List(ctx, listLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"invites": items})
}

// ArchiveInvite retires a code without deleting its redemption history.
func (h *AdminHandler) ArchiveInvite(c echo.Context) error {
	uid, _ := c.Get("user_id").(uint64)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Invites.Archive(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "invite not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "archive failed"})
	}
	h.audit(ctx, repository.AuditInviteArchived, repository.SeverityInfo, &uid, &id, c.RealIP(), "")
	return c.NoContent(http.StatusNoContent)
}

// CreateAuthority provisions an authority account at any non-citizen role.
func (h *AdminHandler) CreateAuthority(c echo.Context) error {
	uid, _ := c.Get("user_id").(uint64)

	var req createAuthorityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Identifier = strings.ToLower(strings.TrimSpace(req.Identifier))
	if req.Identifier == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identifier and password required"})
	}
	role, ok := model.ParseRole(strings.ToUpper(strings.TrimSpace(req.Role)))
	if !ok || !role.IsAuthority() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid authority role"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	newID, err := h.Users.CreateAuthority(ctx, req.Identifier, req.Password, role, h.Cfg.BcryptCost)
	if err != nil {
		if err == repository.ErrIdentifierExists {
			return c.JSON(http.StatusConflict, echo.Map{"error": "identifier already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	h.audit(ctx, repository.AuditUserRegistered, repository.SeverityInfo, &uid, &newID, c.RealIP(), string(role))
	return c.JSON(http.StatusCreated, echo.Map{"user_id": newID, "role": role})
}

// RevokeUser permanently cuts off a user: status REVOKED, sessions dead,
// tokens dead. A reason is mandatory and lands in the audit trail. Level-0
// accounts cannot be revoked.
func (h *AdminHandler) RevokeUser(c echo.Context) error {
	uid, _ := c.Get("user_id").(uint64)
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req revokeReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	actor, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load actor failed"})
	}
	if err := h.Users.Revoke(ctx, targetID, actor, strings.TrimSpace(req.Reason)); err != nil {
		switch err {
		case repository.ErrForbidden:
			return c.JSON(http.StatusForbidden, echo.Map{"error": "this account cannot be revoked"})
		case repository.ErrConflict:
			return c.JSON(http.StatusConflict, echo.Map{"error": "account already revoked"})
		case sql.ErrNoRows:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed"})
	}
	h.audit(ctx, repository.AuditUserRevoked, repository.SeveritySecurity, &uid, &targetID, c.RealIP(), strings.TrimSpace(req.Reason))
	return c.NoContent(http.StatusNoContent)
}

// ArchiveUser soft-deletes an account. The row stays in place so audit
// events and case history keep resolving; only revoked or suspended
// accounts should reach this point, which the administrator decides.
func (h *AdminHandler) ArchiveUser(c echo.Context) error {
	uid, _ := c.Get("user_id").(uint64)
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	if targetID == uid {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot archive own account"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	target, err := h.Users.GetByID(ctx, targetID)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if target.Role == model.RoleLevel0 {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "this account cannot be archived"})
	}
	if err := h.Users.Archive(ctx, targetID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "archive failed"})
	}
	h.audit(ctx, repository.AuditUserRevoked, repository.SeverityWarning, &uid, &targetID, c.RealIP(), "account archived")
	return c.NoContent(http.StatusNoContent)
}

// ListSessions shows a user's device session history.
func (h *AdminHandler) ListSessions(c echo.Context) error {
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sessions, err := h.Sessions.ListByUser(ctx, targetID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	type sessionResp struct {
		ID                 uint64     `json:"id"`
		DeviceName         string     `json:"device_name"`
		OSName             string     `json:"os_name"`
		OSVersion          string     `json:"os_version"`
		AppVersion         string     `json:"app_version"`
		IsActive           bool       `json:"is_active"`
		LastActivityAt     time.Time  `json:"last_activity_at"`
		InvalidatedAt      *time.Time `json:"invalidated_at,omitempty"`
		InvalidationReason string     `json:"invalidation_reason,omitempty"`
		CreatedAt          time.Time  `json:"created_at"`
	}
	out := make([]sessionResp, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResp{
			ID: s.ID, DeviceName: s.DeviceName, OSName: s.OSName,
			OSVersion: s.OSVersion, AppVersion: s.AppVersion, IsActive: s.IsActive,
			LastActivityAt: s.LastActivityAt, InvalidatedAt: s.InvalidatedAt,
			InvalidationReason: string(s.InvalidationReason), CreatedAt: s.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

// InvalidateSession force-kills one device session.
func (h *AdminHandler) InvalidateSession(c echo.Context) error {
	uid, _ := c.Get("user_id").(uint64)
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.InvalidateByID(ctx, sessionID, model.InvalidationSecurity); err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "active session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "invalidate failed"})
	}
	h.audit(ctx, repository.AuditSessionKilled, repository.SeveritySecurity, &uid, &sessionID, c.RealIP(), "")
	return c.NoContent(http.StatusNoContent)
}

// ForceEscalate advances an OPEN case one level immediately, ignoring the
// SLA deadline.
func (h *AdminHandler) ForceEscalate(c echo.Context) error {
	return h.caseOverride(c, repository.AuditCaseForwarded, queue.EventCaseForwarded, "escalated by administrator",
		func(ctx context.Context, caseID, actorID uint64, reason string, now time.Time) error {
			return h.Cases.ForceEscalate(ctx, caseID, actorID, reason, now)
		})
}

// ForceClose terminates an OPEN case without resolution.
func (h *AdminHandler) ForceClose(c echo.Context) error {
	return h.caseOverride(c, repository.AuditCaseClosed, queue.EventCaseClosed, "closed by administrator",
		func(ctx context.Context, caseID, actorID uint64, reason string, now time.Time) error {
			return h.Cases.ForceClose(ctx, caseID, actorID, reason, now)
		})
}

// ListAudit exposes the audit trail, optionally filtered with ?event_type=.
func (h *AdminHandler) ListAudit(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	events, err := h.Audit.List(ctx, strings.TrimSpace(c.QueryParam("event_type")), listLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}

func (h *AdminHandler) caseOverride(c echo.Context, auditType, eventType, defaultReason string,
	mutate func(ctx context.Context, caseID, actorID uint64, reason string, now time.Time) error) error {
	uid, _ := c.Get("user_id").(uint64)
	caseID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req overrideReq
	_ = c.Bind(&req)
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultReason
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := mutate(ctx, caseID, uid, reason, time.Now().UTC()); err != nil {
		switch err {
		case repository.ErrConflict:
			return c.JSON(http.StatusConflict, echo.Map{"error": "case no longer accepts this transition"})
		case sql.ErrNoRows:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "case not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "override failed"})
	}
	h.audit(ctx, auditType, repository.SeverityWarning, &uid, &caseID, c.RealIP(), reason)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		cs, err := h.Cases.GetByID(ctx, caseID)
		if err != nil {
			return
		}
		inc, err := h.Incidents.GetByID(ctx, cs.IncidentID)
		if err != nil {
			return
		}
		_ = queue_publisher.PublishCaseEvent(ctx, queue.CaseEvent{
			Type: eventType, CaseID: cs.ID, IncidentID: inc.ID,
			SubmittedBy: inc.SubmittedBy, Level: int(cs.CurrentLevel),
			Status: string(cs.Status), OccurredAt: time.Now().UTC(),
		})
	}()

	updated, err := h.Cases.GetByID(ctx, caseID)
	if err != nil {
		return c.JSON(http.StatusOK, echo.Map{"case_id": caseID})
	}
	return c.JSON(http.StatusOK, echo.Map{"case": toCaseResp(updated)})
}

func (h *AdminHandler) audit(ctx context.Context, eventType, severity string, actor, target *uint64, ip, detail string) {
	if err := h.Audit.Insert(ctx, repository.AuditEvent{
		EventType: eventType, Severity: severity, ActorID: actor, TargetID: target,
		IPAddress: ip, Detail: detail,
	}); err != nil {
		log.Printf("[audit] insert %s failed: %v", eventType, err)
	}
}

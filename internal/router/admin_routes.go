package router

import (
	"github.com/labstack/echo/v4"

	"github.com/dhruvindave007/janmitra/internal/handler"
	"github.com/dhruvindave007/janmitra/internal/middleware"
	"github.com/dhruvindave007/janmitra/internal/model"
)

// RegisterAdmin registers the Level-0 administrative surface under
// /v1/admin.  These are the only routes that can mint invites, provision
// authority accounts, revoke users and override case lifecycles.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, d Deps) {
	g := e.Group("/v1/admin", d.auth(), middleware.RequireRole(model.RoleLevel0))

	// Invite lifecycle: issue, inspect, retire.  Codes are archived rather
	// than deleted so the registration audit trail stays intact.
	g.POST("/invites", h.CreateInvite)
	g.GET("/invites", h.ListInvites)
	g.DELETE("/invites/:id", h.ArchiveInvite)

	// Account management.
	g.POST("/users", h.CreateAuthority)
	g.POST("/users/:id/revoke", h.RevokeUser)
	g.DELETE("/users/:id", h.ArchiveUser)
	g.GET("/users/:id/sessions", h.ListSessions)
	g.POST("/sessions/:id/invalidate", h.InvalidateSession)

	// Case overrides, bypassing the normal SLA flow.
	g.POST("/cases/:id/force-escalate", h.ForceEscalate)
	g.POST("/cases/:id/force-close", h.ForceClose)

	// Audit trail, newest first.
	g.GET("/audit", h.ListAudit)
}

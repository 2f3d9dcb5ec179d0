package router

import (
	"github.com/labstack/echo/v4"

	"github.com/dhruvindave007/janmitra/internal/handler"
	"github.com/dhruvindave007/janmitra/internal/middleware"
	"github.com/dhruvindave007/janmitra/internal/model"
)

// RegisterCitizen registers the anonymous citizen surface under
// /v1/citizen.  Every route requires a valid token AND the JANMITRA role;
// the JWT middleware additionally enforces the device fingerprint binding
// for this audience.
func RegisterCitizen(e *echo.Echo, h *handler.CitizenHandler, d Deps) {
	g := e.Group("/v1/citizen", d.auth(), middleware.RequireRole(model.RoleJanMitra))

	// Broadcast a new incident.  This is the single write endpoint a
	// citizen has; everything else is read-only.
	g.POST("/incidents", h.SubmitIncident)
	// List own submissions with their current case status.
	g.GET("/incidents", h.MyIncidents)
	// Notification feed produced by the case event consumer.
	g.GET("/notifications", h.MyNotifications)
	g.POST("/notifications/:id/read", h.MarkNotificationRead)
}

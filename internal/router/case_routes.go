package router

import (
	"github.com/labstack/echo/v4"

	"github.com/dhruvindave007/janmitra/internal/handler"
	"github.com/dhruvindave007/janmitra/internal/middleware"
)

// RegisterCases registers the authority case surface under /v1/cases.  All
// four authority roles share these routes; the handlers apply the level
// visibility partition per request, so a Level-1 officer asking for a
// level-2 case simply gets a 404.
func RegisterCases(e *echo.Echo, h *handler.CaseHandler, d Deps) {
	g := e.Group("/v1/cases", d.auth(), middleware.RequireAuthority())

	// Listing is scoped to the caller's visibility slice and sorted by
	// SLA deadline so the most urgent cases come first.
	g.GET("", h.List)
	g.GET("/:id", h.Get)

	// Lifecycle transitions.  Each one re-verifies the case is still OPEN
	// under a row lock and appends a status history entry atomically.
	g.POST("/:id/solve", h.Solve)
	g.POST("/:id/reject", h.Reject)
	g.POST("/:id/forward", h.Forward)

	// Annotations and the transition ledger.
	g.POST("/:id/notes", h.AddNote)
	g.GET("/:id/notes", h.Notes)
	g.GET("/:id/history", h.History)
}

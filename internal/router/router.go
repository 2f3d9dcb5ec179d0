package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // the Echo web framework handles routing

	"github.com/dhruvindave007/janmitra/internal/handler"    // the handlers implementing the business logic
	"github.com/dhruvindave007/janmitra/internal/middleware" // JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// Deps bundles what every protected route group needs: the shared signing
// secret plus the stores the JWT middleware consults on each request.
type Deps struct {
	JWTSecret string
	Users     middleware.UserSource
	Sessions  middleware.SessionSource
	Audit     middleware.AuditSink
}

// auth returns the JWT middleware configured from Deps.
func (d Deps) auth() echo.MiddlewareFunc {
	return middleware.JWTAuth(d.JWTSecret, d.Users, d.Sessions, d.Audit)
}

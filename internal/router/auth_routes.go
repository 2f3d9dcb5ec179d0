package router

import (
	"github.com/labstack/echo/v4"

	"github.com/dhruvindave007/janmitra/internal/handler"
)

// RegisterAuth registers the authentication surface.  Unauthenticated
// operations live under /v1/auth and carry the rate limiter so password and
// fingerprint guessing stays expensive; protected session endpoints live
// under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, d Deps, rateLimit echo.MiddlewareFunc) {
	// Group for operations that do not require an existing session.  Login
	// covers both audiences: authorities send identifier+password, citizens
	// send only their device fingerprint.
	g := e.Group("/v1/auth", rateLimit)
	g.POST("/login", a.Login)
	// Citizen registration, gated by an invite code.
	g.POST("/register", a.Register)
	// Refresh rotates the token pair; it also verifies the bound device
	// session is still the user's active one.
	g.POST("/refresh", a.Refresh)

	// Routes below require a valid access token.  Logout must know who is
	// calling, so it sits behind the JWT middleware.
	auth := e.Group("/v1", d.auth())
	auth.POST("/auth/logout", a.Logout)
	auth.GET("/me", a.Me)
}

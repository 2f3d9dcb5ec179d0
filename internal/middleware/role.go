package middleware

import (
    "net/http" // HTTP status codes

    "github.com/labstack/echo/v4" // HTTP framework

    "github.com/dhruvindave007/janmitra/internal/model"
)

// RequireRole allows the request through only when the authenticated role
// is one of the listed roles. Must run after JWTAuth, which stores the role
// in the context.
func RequireRole(allowed ...model.Role) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            role, ok := c.Get("role").(model.Role)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required", "code": "invalid_token"})
            }
            for _, r := range allowed {
                if role == r {
                    return next(c)
                }
            }
            return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient privileges", "code": "forbidden"})
        }
    }
}

// RequireAuthority admits any non-citizen role. Convenience wrapper for the
// case endpoints shared by the whole hierarchy.
func RequireAuthority() echo.MiddlewareFunc {
    return RequireRole(model.RoleLevel0, model.RoleLevel1, model.RoleLevel2, model.RoleLevel2Captain)
}

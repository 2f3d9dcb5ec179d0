package middleware // package middleware contains Echo middleware for authentication and access control

import (
    "context"  // request-scoped contexts for store lookups
    "log"      // security event logging
    "net/http" // HTTP status codes
    "strings"  // Authorization header parsing
    "time"     // store lookup timeouts

    "github.com/labstack/echo/v4" // HTTP framework

    "github.com/dhruvindave007/janmitra/internal/model"
    "github.com/dhruvindave007/janmitra/internal/repository"
    "github.com/dhruvindave007/janmitra/internal/utils"
)

// FingerprintHeader carries the raw device fingerprint on every citizen
// request. Authorities never send it.
const FingerprintHeader = "X-Device-Fingerprint"

// UserSource resolves the authenticated user on every request so account
// status changes (revocation, suspension) take effect immediately, not at
// token expiry.
type UserSource interface {
    GetByID(ctx context.Context, id uint64) (model.User, error)
}

// SessionSource resolves and touches the citizen's active device session.
type SessionSource interface {
    ActiveByUser(ctx context.Context, userID uint64) (model.DeviceSession, error)
    Touch(ctx context.Context, sessionID uint64, ip string) error
}

// AuditSink records security events raised during authentication.
type AuditSink interface {
    Insert(ctx context.Context, ev repository.AuditEvent) error
}

// JWTAuth validates the Bearer token, re-checks the account status against
// the store, and for citizens enforces the device binding. Checks run in a
// fixed order: token structure first, then account status, then device
// checks. A revoked account always answers access_revoked even when the
// request also lacks a fingerprint, so a blocked user learns nothing about
// the device layer.
//
// On success the Echo context carries "user_id" (uint64), "role"
// (model.Role), "is_anonymous" (bool) and, for citizens, "session_id"
// (uint64).
func JWTAuth(secret string, users UserSource, sessions SessionSource, audit AuditSink) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            // 1. Extract and verify the Bearer token.
            authz := c.Request().Header.Get(echo.HeaderAuthorization)
            if !strings.HasPrefix(authz, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": "invalid_token"})
            }
            claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(authz, "Bearer "))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token", "code": "invalid_token"})
            }

            ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
            defer cancel()

            // 2. Re-resolve the account. A token outliving its user must die here.
            u, err := users.GetByID(ctx, claims.UserID)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account not found", "code": "invalid_token"})
            }

            // 3. Account status gates, strictly before any device check.
            switch u.Status {
            case model.StatusRevoked:
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "access has been revoked", "code": "access_revoked"})
            case model.StatusSuspended:
                return c.JSON(http.StatusForbidden, echo.Map{"error": "account suspended", "code": "account_suspended"})
            case model.StatusPending:
                return c.JSON(http.StatusForbidden, echo.Map{"error": "account not active", "code": "account_inactive"})
            case model.StatusActive:
                // proceed
            default:
                return c.JSON(http.StatusForbidden, echo.Map{"error": "account not active", "code": "account_inactive"})
            }

            // 4. Device binding, citizens only.
            if u.IsAnonymous {
                fingerprint := c.Request().Header.Get(FingerprintHeader)
                if fingerprint == "" {
                    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "device fingerprint required", "code": "missing_device_fingerprint"})
                }
                sess, err := sessions.ActiveByUser(ctx, u.ID)
                if err != nil {
                    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "no active session for this account", "code": "no_active_session"})
                }
                if !utils.FingerprintMatches(sess.FingerprintHash, fingerprint) {
                    // A mismatched fingerprint with a valid token means the
                    // token leaked to another device. Record it loudly.
                    uid := u.ID
                    if aerr := audit.Insert(ctx, repository.AuditEvent{
                        EventType: repository.AuditSecurityAlert,
                        Severity:  repository.SeveritySecurity,
                        ActorID:   &uid,
                        IPAddress: c.RealIP(),
                        Detail:    "device fingerprint mismatch on authenticated request",
                    }); aerr != nil {
                        log.Printf("[auth] audit insert failed: %v", aerr)
                    }
                    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "device not recognized", "code": "device_mismatch"})
                }
                // Liveness bookkeeping. Failure here must not fail the request.
                if terr := sessions.Touch(ctx, sess.ID, c.RealIP()); terr != nil {
                    log.Printf("[auth] session touch failed: %v", terr)
                }
                c.Set("session_id", sess.ID)
            }

            c.Set("user_id", u.ID)
            c.Set("role", u.Role)
            c.Set("is_anonymous", u.IsAnonymous)
            return next(c)
        }
    }
}

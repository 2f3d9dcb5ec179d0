package handler

import (
    "context"      // context with cancellation for DB calls
    "database/sql" // sql.ErrNoRows checks
    "errors"       // sentinel errors for token issuance
    "log"          // audit failure logging
    "net/http"     // HTTP status codes
    "strings"      // input normalization
    "time"         // DB call timeouts

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/dhruvindave007/janmitra/internal/config"     // app configuration
    "github.com/dhruvindave007/janmitra/internal/middleware" // fingerprint header name
    "github.com/dhruvindave007/janmitra/internal/model"      // domain types
    "github.com/dhruvindave007/janmitra/internal/repository" // DB repositories
    "github.com/dhruvindave007/janmitra/internal/utils"      // hashing, token issuing
)

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	DB       *sql.DB
	Users    *repository.UserRepo
	Sessions *repository.SessionRepo
	Tokens   *repository.TokenRepo
	Invites  *repository.InviteRepo
	Audit    *repository.AuditRepo
}

func NewAuthHandler(cfg config.Config, db *sql.DB, u *repository.UserRepo, s *repository.SessionRepo,
	t *repository.TokenRepo, i *repository.InviteRepo, a *repository.AuditRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, DB: db, Users: u, Sessions: s, Tokens: t, Invites: i, Audit: a}
}

// ----- DTOs -----

type loginReq struct {
	Identifier        string `json:"identifier"`
	Password          string `json:"password"`
	DeviceFingerprint string `json:"device_fingerprint"`
	DeviceName        string `json:"device_name"`
	OSName            string `json:"os_name"`
	OSVersion         string `json:"os_version"`
	AppVersion        string `json:"app_version"`
}
type registerReq struct {
	InviteCode        string `json:"invite_code"`
	DeviceFingerprint string `json:"device_fingerprint"`
	DeviceName        string `json:"device_name"`
	OSName            string `json:"os_name"`
	OSVersion         string `json:"os_version"`
	AppVersion        string `json:"app_version"`
}
type refreshReq struct {
	RefreshToken      string `json:"refresh_token"`
	DeviceFingerprint string `json:"device_fingerprint"`
}
type logoutReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID          uint64 `json:"id"`
	Identifier  string `json:"identifier"`
	Role        string `json:"role"`
	IsAnonymous bool   `json:"is_anonymous"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func (r loginReq) deviceInfo(ip string) model.DeviceInfo {
	return model.DeviceInfo{
		DeviceName: r.DeviceName, OSName: r.OSName,
		OSVersion: r.OSVersion, AppVersion: r.AppVersion, IPAddress: ip,
	}
}

// Login is the single entry point for both audiences. The request shape
// decides the path: identifier+password means an authority login, a bare
// device fingerprint means a citizen login. Every successful login opens a
// fresh device session, which deactivates any session on another device.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Identifier = strings.ToLower(strings.TrimSpace(req.Identifier))
	req.DeviceFingerprint = strings.TrimSpace(req.DeviceFingerprint)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if req.Identifier != "" && req.Password != "" {
		return h.loginAuthority(c, ctx, req)
	}
	if req.DeviceFingerprint != "" {
		return h.loginCitizen(c, ctx, req)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "identifier/password or device_fingerprint required"})
}

func (h *AuthHandler) loginAuthority(c echo.Context, ctx context.Context, req loginReq) error {
	u, err := h.Users.GetByIdentifier(ctx, req.Identifier)
	if err != nil {
		if err == sql.ErrNoRows {
			h.auditEvent(ctx, repository.AuditLoginFailed, repository.SeverityWarning, nil, c.RealIP(), "unknown identifier")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if resp := h.statusGate(c, u); resp != nil {
		return resp()
	}
	if u.IsAnonymous || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		_ = h.Users.RecordFailedLogin(ctx, u.ID)
		h.auditEvent(ctx, repository.AuditLoginFailed, repository.SeverityWarning, &u.ID, c.RealIP(), "bad password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.openSession(c, ctx, u, req)
}

func (h *AuthHandler) loginCitizen(c echo.Context, ctx context.Context, req loginReq) error {
	// The fingerprint is the citizen's only credential: resolve the device
	// to the account that last used it.
	fpHash := utils.HashFingerprint(req.DeviceFingerprint)
	sess, err := h.Sessions.LatestByFingerprint(ctx, fpHash)
	if err != nil {
		if err == sql.ErrNoRows {
			h.auditEvent(ctx, repository.AuditLoginFailed, repository.SeverityWarning, nil, c.RealIP(), "unknown device")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "device not registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	u, err := h.Users.GetByID(ctx, sess.UserID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "device not registered"})
	}
	if resp := h.statusGate(c, u); resp != nil {
		return resp()
	}
	return h.openSession(c, ctx, u, req)
}

// statusGate maps a blocked account status to its response, or nil when the
// account may proceed.
func (h *AuthHandler) statusGate(c echo.Context, u model.User) func() error {
	switch u.Status {
	case model.StatusRevoked:
		return func() error {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "access has been revoked", "code": "access_revoked"})
		}
	case model.StatusSuspended:
		return func() error {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "account suspended", "code": "account_suspended"})
		}
	case model.StatusPending:
		return func() error {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "account not active", "code": "account_inactive"})
		}
	}
	return nil
}

// openSession finishes a successful login: session, token pair, audit.
func (h *AuthHandler) openSession(c echo.Context, ctx context.Context, u model.User, req loginReq) error {
	sessionID, err := h.Sessions.Create(ctx, u.ID, utils.HashFingerprint(req.DeviceFingerprint), req.deviceInfo(c.RealIP()))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "open session failed"})
	}
	// Tokens bound to a dead device are useless; kill the ones the new
	// session just displaced.
	_ = h.Tokens.RevokeAllForUser(ctx, u.ID)
	_ = h.Users.RecordSuccessfulLogin(ctx, u.ID, c.RealIP())

	resp, err := h.issuePair(ctx, u, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	h.auditEvent(ctx, repository.AuditLoginSuccess, repository.SeverityInfo, &u.ID, c.RealIP(), string(u.Role))
	return c.JSON(http.StatusOK, resp)
}

// Register creates an anonymous citizen account behind a valid invite code
// and immediately binds the registering device. The invite redemption, user
// row and session row commit atomically.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.InviteCode = strings.ToUpper(strings.TrimSpace(req.InviteCode))
	req.DeviceFingerprint = strings.TrimSpace(req.DeviceFingerprint)
	if req.InviteCode == "" || req.DeviceFingerprint == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invite_code and device_fingerprint required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := h.Invites.UseTx(ctx, tx, req.InviteCode, time.Now().UTC()); err != nil {
		if err == repository.ErrInvalidInvite {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired invite code"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	anonymousID, err := utils.NewAnonymousIdentifier()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	uid, err := h.Users.CreateCitizenTx(ctx, tx, anonymousID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	info := model.DeviceInfo{DeviceName: req.DeviceName, OSName: req.OSName,
		OSVersion: req.OSVersion, AppVersion: req.AppVersion, IPAddress: c.RealIP()}
	sessionID, err := h.Sessions.CreateTx(ctx, tx, uid, utils.HashFingerprint(req.DeviceFingerprint), info)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	u := model.User{ID: uid, Identifier: anonymousID, Role: model.RoleJanMitra, IsAnonymous: true}
	resp, err := h.issuePair(ctx, u, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	h.auditEvent(ctx, repository.AuditUserRegistered, repository.SeverityInfo, &uid, c.RealIP(), "citizen registered via invite")
	return c.JSON(http.StatusCreated, resp)
}

// Refresh rotates the token pair. The refresh token must resolve to a
// session that is still active: a token whose device session was displaced
// by a newer login is dead even before its expiry.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh", "code": "invalid_token"})
	}
	sess, err := h.Sessions.ActiveByUser(ctx, rec.UserID)
	if err != nil || sess.ID != rec.SessionID {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session no longer active", "code": "no_active_session"})
	}
	u, err := h.Users.GetByID(ctx, rec.UserID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh", "code": "invalid_token"})
	}
	if resp := h.statusGate(c, u); resp != nil {
		return resp()
	}
	// Citizens can prove the device the session is bound to, in the body or
	// the usual header. A fingerprint that does not match the session means
	// the raw refresh token leaked to another device. Record it loudly.
	if u.IsAnonymous {
		fp := strings.TrimSpace(req.DeviceFingerprint)
		if fp == "" {
			fp = strings.TrimSpace(c.Request().Header.Get(middleware.FingerprintHeader))
		}
		if fp != "" && !utils.FingerprintMatches(sess.FingerprintHash, fp) {
			h.auditEvent(ctx, repository.AuditSecurityAlert, repository.SeveritySecurity, &u.ID, c.RealIP(),
				"device fingerprint mismatch on token refresh")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "device not recognized", "code": "device_mismatch"})
		}
	}

	_ = h.Tokens.RevokeByHash(ctx, hash)
	resp, err := h.issuePair(ctx, u, sess.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	h.auditEvent(ctx, repository.AuditTokenRefreshed, repository.SeverityInfo, &u.ID, c.RealIP(), "")
	return c.JSON(http.StatusOK, resp)
}

// Logout ends the caller's session and revokes refresh tokens. Protected:
// requires a valid access token. A client that hands back its refresh token
// retires exactly that token's session; without one we close everything the
// user has open.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, ok := c.Get("user_id").(uint64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	var req logoutReq
	_ = c.Bind(&req) // body is optional

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		hash := utils.HashRefreshRaw(raw)
		if rec, err := h.Tokens.ValidateRefresh(ctx, hash); err == nil && rec.UserID == uid {
			if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
			}
			if err := h.Sessions.InvalidateByID(ctx, rec.SessionID, model.InvalidationLogout); err != nil && err != sql.ErrNoRows {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
			}
			h.auditEvent(ctx, repository.AuditLogout, repository.SeverityInfo, &uid, c.RealIP(), "")
			return c.NoContent(http.StatusNoContent)
		}
		// A token we cannot resolve to this user still logs the caller out,
		// just the wide way.
	}

	if err := h.Sessions.InvalidateAll(ctx, uid, model.InvalidationLogout); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	h.auditEvent(ctx, repository.AuditLogout, repository.SeverityInfo, &uid, c.RealIP(), "")
	return c.NoContent(http.StatusNoContent)
}

// Me: simple protected endpoint.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":      c.Get("user_id"),
		"role":         c.Get("role"),
		"is_anonymous": c.Get("is_anonymous"),
	})
}

var (
	errIssueAccess  = errors.New("issue access failed")
	errIssueRefresh = errors.New("issue refresh failed")
	errSaveRefresh  = errors.New("save refresh failed")
)

func (h *AuthHandler) issuePair(ctx context.Context, u model.User, sessionID uint64) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, errIssueAccess
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, errIssueRefresh
	}
	refreshHash := utils.HashRefreshRaw(refresh.Raw)
	if err := h.Tokens.StoreRefresh(ctx, u.ID, sessionID, refreshHash, refresh.Exp); err != nil {
		return authResp{}, errSaveRefresh
	}
	if err := h.Sessions.BindRefreshToken(ctx, sessionID, refreshHash); err != nil {
		return authResp{}, errSaveRefresh
	}
	return authResp{
		User:    userPart{ID: u.ID, Identifier: u.Identifier, Role: string(u.Role), IsAnonymous: u.IsAnonymous},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

// auditEvent records an auth event; failures are logged, never surfaced.
func (h *AuthHandler) auditEvent(ctx context.Context, eventType, severity string, actor *uint64, ip, detail string) {
	if err := h.Audit.Insert(ctx, repository.AuditEvent{
		EventType: eventType, Severity: severity, ActorID: actor, IPAddress: ip, Detail: detail,
	}); err != nil {
		log.Printf("[audit] insert %s failed: %v", eventType, err)
	}
}

package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/dhruvindave007/janmitra/internal/model"
	"github.com/dhruvindave007/janmitra/internal/repository"
	"github.com/dhruvindave007/janmitra/internal/utils"
)

const testSecret = "unit-test-secret"

type stubUsers struct {
	user model.User
	err  error
}

func (s *stubUsers) GetByID(ctx context.Context, id uint64) (model.User, error) {
	if s.err != nil {
		return model.User{}, s.err
	}
	return s.user, nil
}

type stubSessions struct {
	session model.DeviceSession
	err     error
	touched []uint64
}

func (s *stubSessions) ActiveByUser(ctx context.Context, userID uint64) (model.DeviceSession, error) {
	if s.err != nil {
		return model.DeviceSession{}, s.err
	}
	return s.session, nil
}

func (s *stubSessions) Touch(ctx context.Context, sessionID uint64, ip string) error {
	s.touched = append(s.touched, sessionID)
	return nil
}

type stubAudit struct {
	events []repository.AuditEvent
}

func (s *stubAudit) Insert(ctx context.Context, ev repository.AuditEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func authedRequest(t *testing.T, u model.User, fingerprint string) *http.Request {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, u, 15)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	if fingerprint != "" {
		req.Header.Set(FingerprintHeader, fingerprint)
	}
	return req
}

// run sends the request through JWTAuth into a capture handler and returns
// the recorder plus the final echo context.
func run(t *testing.T, req *http.Request, users UserSource, sessions SessionSource, audit AuditSink) (*httptest.ResponseRecorder, echo.Context, bool) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	h := JWTAuth(testSecret, users, sessions, audit)(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}
	return rec, c, reached
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	code, _ := body["code"].(string)
	return code
}

func TestMissingBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, _, reached := run(t, req, &stubUsers{}, &stubSessions{}, &stubAudit{})
	if reached {
		t.Fatalf("handler must not run without a token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGarbageToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer nonsense")
	rec, _, reached := run(t, req, &stubUsers{}, &stubSessions{}, &stubAudit{})
	if reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token must yield 401, got %d (reached=%v)", rec.Code, reached)
	}
}

func TestRevokedBeatsDeviceChecks(t *testing.T) {
	// A revoked citizen without a fingerprint header must learn about the
	// revocation, never about the missing fingerprint.
	u := model.User{ID: 9, Role: model.RoleJanMitra, Status: model.StatusRevoked, IsAnonymous: true}
	rec, _, reached := run(t, authedRequest(t, u, ""), &stubUsers{user: u}, &stubSessions{}, &stubAudit{})
	if reached {
		t.Fatalf("revoked account must be blocked")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := errorCode(t, rec); code != "access_revoked" {
		t.Fatalf("code = %q, want access_revoked", code)
	}
}

func TestSuspendedAccount(t *testing.T) {
	u := model.User{ID: 3, Role: model.RoleLevel2, Status: model.StatusSuspended}
	rec, _, reached := run(t, authedRequest(t, u, ""), &stubUsers{user: u}, &stubSessions{}, &stubAudit{})
	if reached || rec.Code != http.StatusForbidden {
		t.Fatalf("suspended account: status = %d, want 403", rec.Code)
	}
	if code := errorCode(t, rec); code != "account_suspended" {
		t.Fatalf("code = %q, want account_suspended", code)
	}
}

func TestCitizenMissingFingerprint(t *testing.T) {
	u := model.User{ID: 5, Role: model.RoleJanMitra, Status: model.StatusActive, IsAnonymous: true}
	rec, _, reached := run(t, authedRequest(t, u, ""), &stubUsers{user: u}, &stubSessions{}, &stubAudit{})
	if reached {
		t.Fatalf("citizen without fingerprint must be blocked")
	}
	if code := errorCode(t, rec); code != "missing_device_fingerprint" {
		t.Fatalf("code = %q, want missing_device_fingerprint", code)
	}
}

func TestCitizenNoActiveSession(t *testing.T) {
	u := model.User{ID: 5, Role: model.RoleJanMitra, Status: model.StatusActive, IsAnonymous: true}
	sessions := &stubSessions{err: sql.ErrNoRows}
	rec, _, reached := run(t, authedRequest(t, u, "device-abc"), &stubUsers{user: u}, sessions, &stubAudit{})
	if reached {
		t.Fatalf("citizen without an active session must be blocked")
	}
	if code := errorCode(t, rec); code != "no_active_session" {
		t.Fatalf("code = %q, want no_active_session", code)
	}
}

func TestCitizenDeviceMismatchRaisesSecurityEvent(t *testing.T) {
	u := model.User{ID: 5, Role: model.RoleJanMitra, Status: model.StatusActive, IsAnonymous: true}
	sessions := &stubSessions{session: model.DeviceSession{
		ID: 77, UserID: 5, FingerprintHash: utils.HashFingerprint("the-real-device"), IsActive: true,
	}}
	audit := &stubAudit{}

	rec, _, reached := run(t, authedRequest(t, u, "an-impostor-device"), &stubUsers{user: u}, sessions, audit)
	if reached {
		t.Fatalf("device mismatch must be blocked")
	}
	if code := errorCode(t, rec); code != "device_mismatch" {
		t.Fatalf("code = %q, want device_mismatch", code)
	}
	if len(audit.events) != 1 {
		t.Fatalf("mismatch must record exactly one audit event, got %d", len(audit.events))
	}
	if ev := audit.events[0]; ev.Severity != repository.SeveritySecurity || ev.EventType != repository.AuditSecurityAlert {
		t.Fatalf("audit event = %s/%s, want security alert", ev.EventType, ev.Severity)
	}
	if len(sessions.touched) != 0 {
		t.Fatalf("a rejected request must not touch the session")
	}
}

func TestCitizenHappyPath(t *testing.T) {
	u := model.User{ID: 5, Role: model.RoleJanMitra, Status: model.StatusActive, IsAnonymous: true}
	sessions := &stubSessions{session: model.DeviceSession{
		ID: 77, UserID: 5, FingerprintHash: utils.HashFingerprint("device-abc"), IsActive: true,
	}}

	rec, c, reached := run(t, authedRequest(t, u, "device-abc"), &stubUsers{user: u}, sessions, &stubAudit{})
	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("happy path blocked: status %d, reached=%v", rec.Code, reached)
	}
	if got, _ := c.Get("user_id").(uint64); got != 5 {
		t.Fatalf("user_id in context = %v, want 5", c.Get("user_id"))
	}
	if got, _ := c.Get("role").(model.Role); got != model.RoleJanMitra {
		t.Fatalf("role in context = %v", c.Get("role"))
	}
	if got, _ := c.Get("session_id").(uint64); got != 77 {
		t.Fatalf("session_id in context = %v, want 77", c.Get("session_id"))
	}
	if len(sessions.touched) != 1 || sessions.touched[0] != 77 {
		t.Fatalf("session must be touched exactly once, got %v", sessions.touched)
	}
}

func TestAuthoritySkipsDeviceChecks(t *testing.T) {
	// An authority never sends a fingerprint and has no device session.
	u := model.User{ID: 2, Role: model.RoleLevel1, Status: model.StatusActive}
	sessions := &stubSessions{err: sql.ErrNoRows}
	rec, _, reached := run(t, authedRequest(t, u, ""), &stubUsers{user: u}, sessions, &stubAudit{})
	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("authority request blocked: status %d, reached=%v", rec.Code, reached)
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()

	call := func(role interface{}, allowed ...model.Role) (*httptest.ResponseRecorder, bool) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if role != nil {
			c.Set("role", role)
		}
		reached := false
		h := RequireRole(allowed...)(func(c echo.Context) error {
			reached = true
			return c.NoContent(http.StatusOK)
		})
		if err := h(c); err != nil {
			t.Fatalf("middleware error: %v", err)
		}
		return rec, reached
	}

	if rec, reached := call(model.RoleLevel0, model.RoleLevel0); !reached || rec.Code != http.StatusOK {
		t.Fatalf("allowed role blocked")
	}
	if rec, reached := call(model.RoleLevel2, model.RoleLevel0); reached || rec.Code != http.StatusForbidden {
		t.Fatalf("disallowed role admitted: %d", rec.Code)
	}
	if rec, reached := call(nil, model.RoleLevel0); reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing role must yield 401, got %d", rec.Code)
	}
}

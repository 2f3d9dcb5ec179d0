package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/dhruvindave007/janmitra/internal/config"
	"github.com/dhruvindave007/janmitra/internal/middleware"
	"github.com/dhruvindave007/janmitra/internal/repository"
	"github.com/dhruvindave007/janmitra/internal/utils"
)

const (
	boundDevice = "bound-device"
	rawRefresh  = "raw-refresh-token"
)

func newAuthEnv(t *testing.T) (*AuthHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cfg := config.Config{JWTSecret: "unit-test-secret", AccessTTLMin: 15, RefreshTTLDays: 30}
	h := NewAuthHandler(cfg, db,
		repository.NewUserRepo(db), repository.NewSessionRepo(db), repository.NewTokenRepo(db),
		repository.NewInviteRepo(db), repository.NewAuditRepo(db))
	return h, mock
}

func postJSON(path, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	code, _ := body["code"].(string)
	return code
}

// expectRefreshLookup covers the load phase shared by every refresh: the
// token row, the user's single active session, then the user.
func expectRefreshLookup(mock sqlmock.Sqlmock, now time.Time) {
	mock.ExpectQuery("SELECT id, user_id, session_id, expires_at FROM refresh_tokens").
		WithArgs(utils.HashRefreshRaw(rawRefresh)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "session_id", "expires_at"}).
			AddRow(5, 7, 11, now.Add(24*time.Hour)))
	mock.ExpectQuery("FROM device_sessions WHERE user_id=").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "fingerprint_hash", "device_name", "os_name", "os_version",
			"app_version", "is_active", "refresh_token_hash", "last_activity_at",
			"last_activity_ip", "invalidated_at", "invalidation_reason", "created_at",
		}).AddRow(11, 7, utils.HashFingerprint(boundDevice), "pixel", "android", "14",
			"1.0", true, nil, now, nil, nil, nil, now))
	mock.ExpectQuery("FROM users WHERE id=").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "identifier", "password_hash", "role", "status", "is_anonymous",
			"failed_login_attempts", "last_failed_login", "last_login_ip",
			"revoked_at", "revoked_by", "revocation_reason", "created_at", "updated_at",
		}).AddRow(7, "JM-4F2A91C0B7D3", "", "JANMITRA", "ACTIVE", true, 0, nil, nil,
			nil, nil, nil, now, now))
}

func TestRefreshRejectsUnboundDevice(t *testing.T) {
	h, mock := newAuthEnv(t)
	now := time.Now().UTC()

	expectRefreshLookup(mock, now)
	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	c, rec := postJSON("/v1/auth/refresh", `{"refresh_token":"`+rawRefresh+`"}`)
	c.Request().Header.Set(middleware.FingerprintHeader, "someone-elses-device")
	if err := h.Refresh(c); err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := errorCodeOf(t, rec); code != "device_mismatch" {
		t.Fatalf("code = %q, want device_mismatch", code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRefreshAcceptsBoundDevice(t *testing.T) {
	h, mock := newAuthEnv(t)
	now := time.Now().UTC()

	expectRefreshLookup(mock, now)
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WithArgs(utils.HashRefreshRaw(rawRefresh)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(6, 1))
	mock.ExpectExec("UPDATE device_sessions SET refresh_token_hash=").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnResult(sqlmock.NewResult(2, 1))

	// The fingerprint may arrive in the body instead of the header.
	c, rec := postJSON("/v1/auth/refresh",
		`{"refresh_token":"`+rawRefresh+`","device_fingerprint":"`+boundDevice+`"}`)
	if err := h.Refresh(c); err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp authResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Access.Token == "" || resp.Refresh.Token == "" {
		t.Fatal("expected a fresh token pair")
	}
	if resp.Refresh.Token == rawRefresh {
		t.Fatal("refresh token was not rotated")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRefreshWithoutFingerprintStillRotates(t *testing.T) {
	h, mock := newAuthEnv(t)
	now := time.Now().UTC()

	expectRefreshLookup(mock, now)
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(6, 1))
	mock.ExpectExec("UPDATE device_sessions SET refresh_token_hash=").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnResult(sqlmock.NewResult(2, 1))

	c, rec := postJSON("/v1/auth/refresh", `{"refresh_token":"`+rawRefresh+`"}`)
	if err := h.Refresh(c); err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLogoutWithRefreshTokenRetiresItsSession(t *testing.T) {
	h, mock := newAuthEnv(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, user_id, session_id, expires_at FROM refresh_tokens").
		WithArgs(utils.HashRefreshRaw(rawRefresh)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "session_id", "expires_at"}).
			AddRow(5, 12, 33, now.Add(24*time.Hour)))
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WithArgs(utils.HashRefreshRaw(rawRefresh)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE device_sessions SET is_active=0").
		WithArgs("LOGOUT", uint64(33)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	c, rec := postJSON("/v1/auth/logout", `{"refresh_token":"`+rawRefresh+`"}`)
	c.Set("user_id", uint64(12))
	if err := h.Logout(c); err != nil {
		t.Fatalf("logout returned error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLogoutWithoutBodyClosesEverything(t *testing.T) {
	h, mock := newAuthEnv(t)

	mock.ExpectExec("UPDATE device_sessions SET is_active=0").
		WithArgs("LOGOUT", uint64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WithArgs(uint64(12)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	c, rec := postJSON("/v1/auth/logout", `{}`)
	c.Set("user_id", uint64(12))
	if err := h.Logout(c); err != nil {
		t.Fatalf("logout returned error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// A refresh token that belongs to someone else must not let the caller
// touch that user's session; logout falls back to the wide path.
func TestLogoutIgnoresForeignRefreshToken(t *testing.T) {
	h, mock := newAuthEnv(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, user_id, session_id, expires_at FROM refresh_tokens").
		WithArgs(utils.HashRefreshRaw(rawRefresh)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "session_id", "expires_at"}).
			AddRow(5, 99, 33, now.Add(24*time.Hour)))
	mock.ExpectExec("UPDATE device_sessions SET is_active=0").
		WithArgs("LOGOUT", uint64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WithArgs(uint64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	c, rec := postJSON("/v1/auth/logout", `{"refresh_token":"`+rawRefresh+`"}`)
	c.Set("user_id", uint64(12))
	if err := h.Logout(c); err != nil {
		t.Fatalf("logout returned error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

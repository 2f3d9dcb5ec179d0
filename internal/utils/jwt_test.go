package utils

import (
	"strings"
	"testing"

	"github.com/dhruvindave007/janmitra/internal/model"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	u := model.User{ID: 42, Role: model.RoleLevel2Captain, IsAnonymous: false}
	tok, err := NewAccessToken("test-secret", u, 15)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}

	claims, err := ParseAccessToken("test-secret", tok.Token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != 42 {
		t.Fatalf("UserID = %d, want 42", claims.UserID)
	}
	if claims.Role != model.RoleLevel2Captain {
		t.Fatalf("Role = %s, want %s", claims.Role, model.RoleLevel2Captain)
	}
	if claims.IsAnonymous {
		t.Fatalf("IsAnonymous must be false for an authority")
	}
}

func TestAccessTokenCitizenFlag(t *testing.T) {
	u := model.User{ID: 7, Role: model.RoleJanMitra, IsAnonymous: true}
	tok, err := NewAccessToken("s", u, 15)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	claims, err := ParseAccessToken("s", tok.Token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if !claims.IsAnonymous {
		t.Fatalf("citizen token must carry the anonymity flag")
	}
}

func TestAccessTokenWrongSecret(t *testing.T) {
	u := model.User{ID: 1, Role: model.RoleLevel1}
	tok, err := NewAccessToken("right", u, 15)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if _, err := ParseAccessToken("wrong", tok.Token); err != ErrInvalidToken {
		t.Fatalf("wrong secret must yield ErrInvalidToken, got %v", err)
	}
}

func TestAccessTokenGarbage(t *testing.T) {
	if _, err := ParseAccessToken("s", "not.a.jwt"); err != ErrInvalidToken {
		t.Fatalf("garbage token must yield ErrInvalidToken, got %v", err)
	}
}

func TestRefreshTokenHashing(t *testing.T) {
	a, err := NewRefreshToken(7)
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	b, err := NewRefreshToken(7)
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if a.Raw == b.Raw {
		t.Fatalf("two refresh tokens must never collide")
	}
	if len(a.Raw) != 96 {
		t.Fatalf("raw token length = %d, want 96 hex chars", len(a.Raw))
	}
	if HashRefreshRaw(a.Raw) != HashRefreshRaw(a.Raw) {
		t.Fatalf("hashing must be deterministic")
	}
	if HashRefreshRaw(a.Raw) == HashRefreshRaw(b.Raw) {
		t.Fatalf("distinct tokens must hash differently")
	}
	if HashRefreshRaw(a.Raw) == a.Raw {
		t.Fatalf("the stored hash must not equal the raw token")
	}
}

func TestFingerprintMatches(t *testing.T) {
	stored := HashFingerprint("device-abc")
	if !FingerprintMatches(stored, "device-abc") {
		t.Fatalf("matching fingerprint rejected")
	}
	if FingerprintMatches(stored, "device-xyz") {
		t.Fatalf("mismatching fingerprint accepted")
	}
}

func TestAnonymousIdentifierFormat(t *testing.T) {
	id, err := NewAnonymousIdentifier()
	if err != nil {
		t.Fatalf("NewAnonymousIdentifier: %v", err)
	}
	if !strings.HasPrefix(id, "JM-") {
		t.Fatalf("identifier %q must carry the JM- prefix", id)
	}
	suffix := strings.TrimPrefix(id, "JM-")
	if len(suffix) != 12 {
		t.Fatalf("identifier suffix length = %d, want 12", len(suffix))
	}
	for _, ch := range suffix {
		if !strings.ContainsRune("0123456789ABCDEF", ch) {
			t.Fatalf("identifier %q contains non-hex character %q", id, ch)
		}
	}

	other, err := NewAnonymousIdentifier()
	if err != nil {
		t.Fatalf("NewAnonymousIdentifier: %v", err)
	}
	if id == other {
		t.Fatalf("identifiers must be unique")
	}
}

func TestInviteCodeFormat(t *testing.T) {
	code, err := NewInviteCode()
	if err != nil {
		t.Fatalf("NewInviteCode: %v", err)
	}
	parts := strings.Split(code, "-")
	if len(parts) != 4 || parts[0] != "JM" {
		t.Fatalf("code %q must look like JM-XXXX-XXXX-XXXX", code)
	}
	for _, group := range parts[1:] {
		if len(group) != 4 {
			t.Fatalf("code group %q must be 4 characters", group)
		}
	}
}

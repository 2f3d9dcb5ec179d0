package model

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	for _, r := range []Role{RoleLevel0, RoleLevel1, RoleLevel2, RoleLevel2Captain, RoleJanMitra} {
		parsed, ok := ParseRole(string(r))
		if !ok || parsed != r {
			t.Fatalf("ParseRole(%q) = %q, %v", r, parsed, ok)
		}
	}
	if _, ok := ParseRole("ADMIN"); ok {
		t.Fatalf("unknown role string must not parse")
	}
	if _, ok := ParseRole(""); ok {
		t.Fatalf("empty role string must not parse")
	}
}

func TestIsAuthority(t *testing.T) {
	for _, r := range []Role{RoleLevel0, RoleLevel1, RoleLevel2, RoleLevel2Captain} {
		if !r.IsAuthority() {
			t.Fatalf("%s must be an authority", r)
		}
	}
	if RoleJanMitra.IsAuthority() {
		t.Fatalf("citizens are never authorities")
	}
}

func TestInviteUsableAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	base := InviteCode{MaxUses: 2, UseCount: 0, ExpiresAt: now.Add(time.Hour)}

	if !base.UsableAt(now) {
		t.Fatalf("fresh code must be usable")
	}

	exhausted := base
	exhausted.UseCount = 2
	if exhausted.UsableAt(now) {
		t.Fatalf("code at max uses must not be usable")
	}

	expired := base
	expired.ExpiresAt = now.Add(-time.Minute)
	if expired.UsableAt(now) {
		t.Fatalf("expired code must not be usable")
	}

	// Expiry is exclusive: at the exact expiry instant the code is dead.
	onTheDot := base
	onTheDot.ExpiresAt = now
	if onTheDot.UsableAt(now) {
		t.Fatalf("code must be unusable at its expiry instant")
	}

	archived := base
	archived.IsDeleted = true
	if archived.UsableAt(now) {
		t.Fatalf("archived code must not be usable")
	}
}

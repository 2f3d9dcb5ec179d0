package model

import (
	"testing"
	"time"
)

func TestNextLevelChain(t *testing.T) {
	next, ok := NextLevel(CaseLevel2)
	if !ok || next != CaseLevel1 {
		t.Fatalf("NextLevel(2) = %d, %v; want 1, true", next, ok)
	}
	next, ok = NextLevel(CaseLevel1)
	if !ok || next != CaseLevel0 {
		t.Fatalf("NextLevel(1) = %d, %v; want 0, true", next, ok)
	}
	if _, ok := NextLevel(CaseLevel0); ok {
		t.Fatalf("NextLevel(0) must report no further escalation")
	}
}

func TestStatusTerminal(t *testing.T) {
	if CaseOpen.Terminal() {
		t.Fatalf("OPEN must not be terminal")
	}
	for _, s := range []CaseStatus{CaseSolved, CaseRejected, CaseClosed} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}

func TestCanEscalate(t *testing.T) {
	cases := []struct {
		name   string
		status CaseStatus
		level  CaseLevel
		want   bool
	}{
		{"open level 2", CaseOpen, CaseLevel2, true},
		{"open level 1", CaseOpen, CaseLevel1, true},
		{"open level 0 has nowhere to go", CaseOpen, CaseLevel0, false},
		{"solved never escalates", CaseSolved, CaseLevel2, false},
		{"rejected never escalates", CaseRejected, CaseLevel2, false},
		{"closed never escalates", CaseClosed, CaseLevel1, false},
	}
	for _, tc := range cases {
		c := Case{Status: tc.status, CurrentLevel: tc.level}
		if got := c.CanEscalate(); got != tc.want {
			t.Fatalf("%s: CanEscalate() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSLADeadlineAndExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	deadline := SLADeadline(now)
	if want := now.Add(24 * time.Hour); !deadline.Equal(want) {
		t.Fatalf("SLADeadline = %v, want %v", deadline, want)
	}

	c := Case{Status: CaseOpen, CurrentLevel: CaseLevel2, SLADeadline: deadline}
	if c.SLAExpired(deadline) {
		t.Fatalf("deadline instant itself must not count as expired")
	}
	if !c.SLAExpired(deadline.Add(time.Second)) {
		t.Fatalf("one second past the deadline must count as expired")
	}
	if c.SLAExpired(now) {
		t.Fatalf("a fresh case must not be expired")
	}
}

func TestVisibilityPartition(t *testing.T) {
	cases := []struct {
		role  Role
		level CaseLevel
		want  bool
	}{
		{RoleLevel2, CaseLevel2, true},
		{RoleLevel2, CaseLevel1, false},
		{RoleLevel2, CaseLevel0, false},
		// Captains see every level, including cases escalated past them.
		{RoleLevel2Captain, CaseLevel2, true},
		{RoleLevel2Captain, CaseLevel1, true},
		{RoleLevel2Captain, CaseLevel0, true},
		{RoleLevel1, CaseLevel1, true},
		{RoleLevel1, CaseLevel2, false},
		{RoleLevel1, CaseLevel0, false},
		{RoleLevel0, CaseLevel0, true},
		{RoleLevel0, CaseLevel2, false},
		{RoleJanMitra, CaseLevel2, false},
		{RoleJanMitra, CaseLevel0, false},
	}
	for _, tc := range cases {
		if got := tc.role.CanSeeLevel(tc.level); got != tc.want {
			t.Fatalf("%s.CanSeeLevel(%d) = %v, want %v", tc.role, tc.level, got, tc.want)
		}
	}
}

func TestParseCategoryFallback(t *testing.T) {
	if got := ParseCategory("infrastructure"); got != CategoryInfrastructure {
		t.Fatalf("known category mangled: %s", got)
	}
	if got := ParseCategory("definitely-not-a-category"); got != CategoryGeneral {
		t.Fatalf("unknown category must fall back to general, got %s", got)
	}
	if got := ParseCategory(""); got != CategoryGeneral {
		t.Fatalf("empty category must fall back to general, got %s", got)
	}
}

func TestHasLocation(t *testing.T) {
	lat, lon := 23.03, 72.58
	if (Incident{Latitude: &lat}).HasLocation() {
		t.Fatalf("latitude alone must not count as a location")
	}
	if !(Incident{Latitude: &lat, Longitude: &lon}).HasLocation() {
		t.Fatalf("both coordinates must count as a location")
	}
}

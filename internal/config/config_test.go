package config

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", "value")
	if got := envStr("X_STR", "def"); got != "value" {
		t.Fatalf("envStr = %q", got)
	}
	if got := envStr("X_STR_MISSING", "def"); got != "def" {
		t.Fatalf("envStr default = %q", got)
	}

	t.Setenv("X_BOOL", "off")
	if envBool("X_BOOL", true) {
		t.Fatalf("envBool must parse 'off' as false")
	}
	t.Setenv("X_BOOL", "not-a-bool")
	if !envBool("X_BOOL", true) {
		t.Fatalf("envBool must fall back to the default on garbage")
	}

	t.Setenv("X_DUR", "90s")
	if got := envDur("X_DUR", time.Minute); got != 90*time.Second {
		t.Fatalf("envDur = %s", got)
	}
	t.Setenv("X_DUR", "soon")
	if got := envDur("X_DUR", time.Minute); got != time.Minute {
		t.Fatalf("envDur must fall back to the default on garbage, got %s", got)
	}

	t.Setenv("X_INT", "42")
	if got := envInt("X_INT", 7); got != 42 {
		t.Fatalf("envInt = %d", got)
	}
}

func TestRateLimitConfigSanityFloor(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_TOKENS", "-5")
	t.Setenv("RATE_LIMIT_TTL", "1ms")

	cfg := LoadRateLimitConfig()
	if cfg.Capacity < 1 {
		t.Fatalf("capacity floor violated: %d", cfg.Capacity)
	}
	if cfg.RefillTokens < 1 {
		t.Fatalf("refill floor violated: %d", cfg.RefillTokens)
	}
	if cfg.TTL < 5*cfg.RefillInterval {
		t.Fatalf("ttl %s must cover at least five refill intervals", cfg.TTL)
	}
}

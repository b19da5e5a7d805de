package idempotency

import (
	"testing"
	"time"
)

func TestRedisStoreRemainingTTLUsesInjectedClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewRedisStore(nil, 24*time.Hour).WithClock(func() time.Time { return now })

	rec := Record{ExpiresAt: now.Add(90 * time.Minute)}
	if got := store.remainingTTL(rec); got != 90*time.Minute {
		t.Fatalf("remaining TTL = %v, want 90m", got)
	}

	// Advancing the injected clock past the expiry must mark the record
	// expired without consulting the wall clock.
	now = now.Add(2 * time.Hour)
	if got := store.remainingTTL(rec); got > 0 {
		t.Fatalf("expired record must have non-positive remaining TTL, got %v", got)
	}
}

package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"
)

func testKey() Key {
	return Key{Tenant: "acme", Action: "issue.create", Key: "req-42"}
}

func newTestStore(t *testing.T, now func() time.Time) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore(16, time.Hour)
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	return store.WithClock(now)
}

func TestMemoryStoreReserveCommitReplay(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, time.Now)

	res, err := store.Reserve(ctx, testKey(), "fp-1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.State != StateReserved {
		t.Fatalf("first reserve state = %v, want StateReserved", res.State)
	}

	if err := store.Commit(ctx, testKey(), []byte(`{"id":"PROJ-1"}`)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	res, err = store.Reserve(ctx, testKey(), "fp-1")
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if res.State != StateReplayed {
		t.Fatalf("state after commit = %v, want StateReplayed", res.State)
	}
	if string(res.Result) != `{"id":"PROJ-1"}` {
		t.Fatalf("unexpected stored result: %s", res.Result)
	}
}

func TestMemoryStoreFingerprintConflict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, time.Now)

	if _, err := store.Reserve(ctx, testKey(), "fp-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Commit(ctx, testKey(), []byte(`{}`)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	res, err := store.Reserve(ctx, testKey(), "fp-2")
	if err != nil {
		t.Fatalf("reserve with other fingerprint: %v", err)
	}
	if res.State != StateConflict {
		t.Fatalf("state = %v, want StateConflict", res.State)
	}
}

func TestMemoryStorePendingBlocksDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, time.Now)

	if _, err := store.Reserve(ctx, testKey(), "fp-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	res, err := store.Reserve(ctx, testKey(), "fp-1")
	if err != nil {
		t.Fatalf("duplicate reserve: %v", err)
	}
	if res.State != StateInProgress {
		t.Fatalf("state while pending = %v, want StateInProgress", res.State)
	}

	if err := store.Release(ctx, testKey()); err != nil {
		t.Fatalf("release: %v", err)
	}
	res, err = store.Reserve(ctx, testKey(), "fp-1")
	if err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
	if res.State != StateReserved {
		t.Fatalf("state after release = %v, want StateReserved", res.State)
	}
}

func TestMemoryStoreReleaseKeepsCommittedRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, time.Now)

	if _, err := store.Reserve(ctx, testKey(), "fp-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Commit(ctx, testKey(), []byte(`{}`)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := store.Release(ctx, testKey()); err != nil {
		t.Fatalf("release: %v", err)
	}

	res, err := store.Reserve(ctx, testKey(), "fp-1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.State != StateReplayed {
		t.Fatalf("release must not drop a committed record, state = %v", res.State)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	store := newTestStore(t, func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	})

	if _, err := store.Reserve(ctx, testKey(), "fp-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Commit(ctx, testKey(), []byte(`{}`)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	mu.Lock()
	current = current.Add(2 * time.Hour)
	mu.Unlock()

	res, err := store.Reserve(ctx, testKey(), "fp-1")
	if err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
	if res.State != StateReserved {
		t.Fatalf("expired record must allow a fresh reservation, state = %v", res.State)
	}
}

func TestMemoryStoreConcurrentReserveSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, time.Now)

	const workers = 32
	var wg sync.WaitGroup
	results := make([]State, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := store.Reserve(ctx, testKey(), "fp-1")
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			results[i] = res.State
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, state := range results {
		switch state {
		case StateReserved:
			winners++
		case StateInProgress:
		default:
			t.Fatalf("unexpected state %v", state)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winning reservation, got %d", winners)
	}
}

func TestFingerprintStableAcrossKeyOrder(t *testing.T) {
	a, err := Fingerprint(map[string]any{"title": "Fix login", "project": "PROJ", "limit": 10})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	b, err := Fingerprint(map[string]any{"limit": 10, "project": "PROJ", "title": "Fix login"})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if a != b {
		t.Fatalf("identical parameter maps must fingerprint equally: %s vs %s", a, b)
	}

	c, err := Fingerprint(map[string]any{"title": "Fix logout", "project": "PROJ", "limit": 10})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if a == c {
		t.Fatal("different parameters must not share a fingerprint")
	}
}

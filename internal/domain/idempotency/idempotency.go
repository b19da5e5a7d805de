package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Key identifies an idempotency record. A caller-supplied key is only
// meaningful within one tenant and one action.
type Key struct {
	Tenant string
	Action string
	Key    string
}

func (k Key) String() string {
	return k.Tenant + ":" + k.Action + ":" + k.Key
}

// State is the outcome of a Reserve call.
type State int

const (
	// StateReserved means the caller holds the reservation and must execute
	// the action, then Commit or Release.
	StateReserved State = iota
	// StateReplayed means a committed record with a matching fingerprint
	// exists; the stored result must be returned without re-execution.
	StateReplayed
	// StateConflict means a record with the same key but a different
	// parameter fingerprint exists within its TTL.
	StateConflict
	// StateInProgress means another request holds an uncommitted
	// reservation for the same key.
	StateInProgress
)

// Record is a committed idempotency record.
type Record struct {
	Key         string    `json:"key"`
	Tenant      string    `json:"tenant"`
	Action      string    `json:"action"`
	Fingerprint string    `json:"fingerprint"`
	Pending     bool      `json:"pending"`
	Result      []byte    `json:"result,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Reservation is the result of Reserve. Result is populated only when
// State is StateReplayed.
type Reservation struct {
	State  State
	Result []byte
}

// Store is the atomic check-and-set surface preventing duplicate execution.
// Reserve must be atomic per key regardless of backend: two concurrent
// reservations for the same key must not both observe StateReserved.
// Duplicate concurrent requests fail fast with StateInProgress rather than
// blocking on the in-flight call.
type Store interface {
	Reserve(ctx context.Context, key Key, fingerprint string) (Reservation, error)
	Commit(ctx context.Context, key Key, result []byte) error
	Release(ctx context.Context, key Key) error
}

// Fingerprint hashes the normalized parameters. encoding/json writes map
// keys in sorted order, so semantically identical parameter maps produce
// identical fingerprints.
func Fingerprint(parameters map[string]any) (string, error) {
	raw, err := json.Marshal(parameters)
	if err != nil {
		return "", fmt.Errorf("fingerprint parameters: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Outcome records how the audited action ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry is one immutable audit record. Entries are append-only: never
// updated, never deleted. IDs are ULIDs, so lexical order is creation order
// within a tenant.
type Entry struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	Actor       string          `json:"actor"`
	Action      string          `json:"action"`
	EntityRef   string          `json:"entity_ref"`
	BeforeState json.RawMessage `json:"before_state,omitempty"`
	AfterState  json.RawMessage `json:"after_state,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Outcome     Outcome         `json:"outcome"`
}

// Recorder appends audit entries. Record returns the assigned entry ID.
// Implementations must be write-only: no read-modify-write paths.
type Recorder interface {
	Record(ctx context.Context, entry Entry) (string, error)
}

// NewID returns a fresh ULID string for an entry.
func NewID() string {
	return ulid.Make().String()
}

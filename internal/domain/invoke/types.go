package invoke

import (
	"encoding/json"
)

// Request is one governed invocation. Immutable once submitted.
type Request struct {
	TenantID       string         `json:"tenant_id" validate:"required,max=128"`
	Actor          string         `json:"actor" validate:"required,max=256"`
	Action         string         `json:"action" validate:"required,max=128"`
	Parameters     map[string]any `json:"parameters"`
	IdempotencyKey string         `json:"idempotency_key,omitempty" validate:"max=256"`
}

// Metadata describes how the result was produced.
type Metadata struct {
	LatencyMS    int64  `json:"latency_ms"`
	AuditEntryID string `json:"audit_entry_id,omitempty"`
	Replayed     bool   `json:"replayed,omitempty"`
	// Warning is set when the action succeeded but audit recording
	// failed; the side effect stands and cannot be rolled back.
	Warning string `json:"warning,omitempty"`
}

// Result is a successful invocation outcome. Data is the serialized action
// result, byte-identical across idempotent replays.
type Result struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata Metadata        `json:"metadata"`
}

// storedResult is the payload persisted in the idempotency store.
type storedResult struct {
	Data         json.RawMessage `json:"data,omitempty"`
	AuditEntryID string          `json:"audit_entry_id,omitempty"`
}

package connector

import (
	"context"
	"encoding/json"
	"time"
)

// Platform identifies an external project-tracking platform.
type Platform string

const (
	PlatformJira   Platform = "jira"
	PlatformGitHub Platform = "github"
	PlatformAsana  Platform = "asana"
	PlatformLinear Platform = "linear"
)

// Status is the normalized work-item status vocabulary. Adapters map their
// platform-native status names onto it; anything they cannot map becomes
// StatusUnknown with the native name preserved in RawStatus.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
	StatusUnknown    Status = "unknown"
)

// Entity is the platform-agnostic projection of a tracked work item. It is
// created fresh per adapter call and never mutated in place.
type Entity struct {
	ExternalID string          `json:"external_id"`
	Platform   Platform        `json:"platform"`
	Title      string          `json:"title"`
	Status     Status          `json:"status"`
	RawStatus  string          `json:"raw_status,omitempty"`
	Assignee   string          `json:"assignee,omitempty"`
	Labels     []string        `json:"labels,omitempty"`
	URL        string          `json:"url,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

// SearchQuery is the normalized search input shared by all adapters.
type SearchQuery struct {
	Project  string `json:"project,omitempty"`
	Text     string `json:"text,omitempty"`
	Status   Status `json:"status,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Fields carries the writable attributes for create and update calls.
// Zero values mean "leave unset" on create and "do not change" on update.
type Fields struct {
	Project     string   `json:"project,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// Adapter is the normalized capability surface every platform implements.
// Capabilities a platform lacks must return a NOT_SUPPORTED error rather
// than being omitted, so pipeline callers see a uniform failure.
type Adapter interface {
	Platform() Platform
	Search(ctx context.Context, q SearchQuery) ([]Entity, error)
	Get(ctx context.Context, id string) (*Entity, error)
	Create(ctx context.Context, fields Fields) (*Entity, error)
	Update(ctx context.Context, id string, fields Fields) (*Entity, error)
	Transition(ctx context.Context, id string, target Status) (*Entity, error)
	Comment(ctx context.Context, id, text string) error
	Link(ctx context.Context, id, otherID, relation string) error
}

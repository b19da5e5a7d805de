package linear

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"trackgate/internal/domain/connector"
	"trackgate/internal/infrastructure/metrics"
)

// Config carries the Linear connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Adapter talks to the Linear GraphQL API. All caller values travel as
// GraphQL variables, never interpolated into the query document.
type Adapter struct {
	httpClient *resty.Client
}

func New(cfg Config) *Adapter {
	return &Adapter{
		httpClient: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("Authorization", cfg.APIKey).
			SetTimeout(cfg.Timeout),
	}
}

func (a *Adapter) Platform() connector.Platform { return connector.PlatformLinear }

func (a *Adapter) observe(start time.Time, capability string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.AdapterCallsTotal.WithLabelValues(string(connector.PlatformLinear), capability, status).Inc()
	metrics.AdapterLatency.WithLabelValues(string(connector.PlatformLinear)).Observe(time.Since(start).Seconds())
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// run posts one GraphQL operation and unmarshals the data payload into out.
func (a *Adapter) run(ctx context.Context, operation string, variables map[string]any, out any) error {
	var resp graphQLResponse
	httpResp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{"query": operation, "variables": variables}).
		SetResult(&resp).
		Post("")
	if err != nil {
		return err
	}
	if httpResp.IsError() {
		return fmt.Errorf("linear api: %s: %s", httpResp.Status(), httpResp.String())
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("linear api: %s", resp.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decode linear response: %w", err)
		}
	}
	return nil
}

const issueFragment = `
fragment IssueFields on Issue {
  id
  identifier
  title
  url
  createdAt
  updatedAt
  assignee { displayName }
  labels { nodes { name } }
  state { name type }
}`

type issueNode struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Assignee   *struct {
		DisplayName string `json:"displayName"`
	} `json:"assignee"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
	State struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"state"`
}

// normalizeState maps Linear workflow state types (and a few conventional
// names) onto the shared vocabulary.
func normalizeState(name, stateType string) connector.Status {
	switch strings.ToLower(name) {
	case "in review":
		return connector.StatusInReview
	case "blocked":
		return connector.StatusBlocked
	}
	switch stateType {
	case "triage", "backlog", "unstarted":
		return connector.StatusOpen
	case "started":
		return connector.StatusInProgress
	case "completed":
		return connector.StatusDone
	case "canceled":
		return connector.StatusCancelled
	default:
		return connector.StatusUnknown
	}
}

func normalizeIssue(in issueNode) connector.Entity {
	assignee := ""
	if in.Assignee != nil {
		assignee = in.Assignee.DisplayName
	}
	labels := make([]string, 0, len(in.Labels.Nodes))
	for _, l := range in.Labels.Nodes {
		labels = append(labels, l.Name)
	}
	raw, _ := json.Marshal(in)

	return connector.Entity{
		ExternalID: in.Identifier,
		Platform:   connector.PlatformLinear,
		Title:      in.Title,
		Status:     normalizeState(in.State.Name, in.State.Type),
		RawStatus:  in.State.Name,
		Assignee:   assignee,
		Labels:     labels,
		URL:        in.URL,
		CreatedAt:  in.CreatedAt,
		UpdatedAt:  in.UpdatedAt,
		RawPayload: raw,
	}
}

func (a *Adapter) Search(ctx context.Context, q connector.SearchQuery) (entities []connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "search", err) }(time.Now())

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	filter := map[string]any{}
	if q.Project != "" {
		filter["team"] = map[string]any{"key": map[string]any{"eq": q.Project}}
	}
	if q.Text != "" {
		filter["title"] = map[string]any{"containsIgnoreCase": q.Text}
	}
	if q.Assignee != "" {
		filter["assignee"] = map[string]any{"displayName": map[string]any{"eq": q.Assignee}}
	}

	var out struct {
		Issues struct {
			Nodes []issueNode `json:"nodes"`
		} `json:"issues"`
	}
	err = a.run(ctx, issueFragment+`
query Issues($filter: IssueFilter, $first: Int!) {
  issues(filter: $filter, first: $first) {
    nodes { ...IssueFields }
  }
}`, map[string]any{"filter": filter, "first": limit}, &out)
	if err != nil {
		return nil, err
	}

	entities = make([]connector.Entity, 0, len(out.Issues.Nodes))
	for _, node := range out.Issues.Nodes {
		entity := normalizeIssue(node)
		if q.Status != "" && entity.Status != q.Status {
			continue
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (a *Adapter) Get(ctx context.Context, id string) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "get", err) }(time.Now())

	var out struct {
		Issue issueNode `json:"issue"`
	}
	err = a.run(ctx, issueFragment+`
query Issue($id: String!) {
  issue(id: $id) { ...IssueFields }
}`, map[string]any{"id": id}, &out)
	if err != nil {
		return nil, err
	}

	normalized := normalizeIssue(out.Issue)
	return &normalized, nil
}

func (a *Adapter) Create(ctx context.Context, fields connector.Fields) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "create", err) }(time.Now())

	input := map[string]any{
		"teamId": fields.Project,
		"title":  fields.Title,
	}
	if fields.Description != "" {
		input["description"] = fields.Description
	}

	var out struct {
		IssueCreate struct {
			Issue issueNode `json:"issue"`
		} `json:"issueCreate"`
	}
	err = a.run(ctx, issueFragment+`
mutation CreateIssue($input: IssueCreateInput!) {
  issueCreate(input: $input) {
    issue { ...IssueFields }
  }
}`, map[string]any{"input": input}, &out)
	if err != nil {
		return nil, err
	}

	normalized := normalizeIssue(out.IssueCreate.Issue)
	return &normalized, nil
}

func (a *Adapter) Update(ctx context.Context, id string, fields connector.Fields) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "update", err) }(time.Now())

	input := map[string]any{}
	if fields.Title != "" {
		input["title"] = fields.Title
	}
	if fields.Description != "" {
		input["description"] = fields.Description
	}

	var out struct {
		IssueUpdate struct {
			Issue issueNode `json:"issue"`
		} `json:"issueUpdate"`
	}
	err = a.run(ctx, issueFragment+`
mutation UpdateIssue($id: String!, $input: IssueUpdateInput!) {
  issueUpdate(id: $id, input: $input) {
    issue { ...IssueFields }
  }
}`, map[string]any{"id": id, "input": input}, &out)
	if err != nil {
		return nil, err
	}

	normalized := normalizeIssue(out.IssueUpdate.Issue)
	return &normalized, nil
}

func (a *Adapter) Transition(ctx context.Context, id string, target connector.Status) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "transition", err) }(time.Now())

	var wantType string
	switch target {
	case connector.StatusOpen:
		wantType = "unstarted"
	case connector.StatusInProgress, connector.StatusInReview, connector.StatusBlocked:
		wantType = "started"
	case connector.StatusDone:
		wantType = "completed"
	case connector.StatusCancelled:
		wantType = "canceled"
	default:
		return nil, connector.NotSupported(ctx, connector.PlatformLinear, "transition to "+string(target))
	}

	var states struct {
		Issue struct {
			Team struct {
				States struct {
					Nodes []struct {
						ID   string `json:"id"`
						Name string `json:"name"`
						Type string `json:"type"`
					} `json:"nodes"`
				} `json:"states"`
			} `json:"team"`
		} `json:"issue"`
	}
	err = a.run(ctx, `
query IssueStates($id: String!) {
  issue(id: $id) {
    team { states { nodes { id name type } } }
  }
}`, map[string]any{"id": id}, &states)
	if err != nil {
		return nil, err
	}

	stateID := ""
	for _, s := range states.Issue.Team.States.Nodes {
		if s.Type != wantType {
			continue
		}
		// Prefer an exact vocabulary match on name over the first state
		// of the right type.
		if normalizeState(s.Name, s.Type) == target {
			stateID = s.ID
			break
		}
		if stateID == "" {
			stateID = s.ID
		}
	}
	if stateID == "" {
		return nil, fmt.Errorf("linear issue %s has no workflow state for %q", id, target)
	}

	var out struct {
		IssueUpdate struct {
			Issue issueNode `json:"issue"`
		} `json:"issueUpdate"`
	}
	err = a.run(ctx, issueFragment+`
mutation TransitionIssue($id: String!, $input: IssueUpdateInput!) {
  issueUpdate(id: $id, input: $input) {
    issue { ...IssueFields }
  }
}`, map[string]any{"id": id, "input": map[string]any{"stateId": stateID}}, &out)
	if err != nil {
		return nil, err
	}

	normalized := normalizeIssue(out.IssueUpdate.Issue)
	return &normalized, nil
}

func (a *Adapter) Comment(ctx context.Context, id, text string) (err error) {
	defer func(start time.Time) { a.observe(start, "comment", err) }(time.Now())

	return a.run(ctx, `
mutation CreateComment($input: CommentCreateInput!) {
  commentCreate(input: $input) { success }
}`, map[string]any{"input": map[string]any{"issueId": id, "body": text}}, nil)
}

func (a *Adapter) Link(ctx context.Context, id, otherID, relation string) (err error) {
	defer func(start time.Time) { a.observe(start, "link", err) }(time.Now())

	if relation == "" {
		relation = "related"
	}
	return a.run(ctx, `
mutation LinkIssues($input: IssueRelationCreateInput!) {
  issueRelationCreate(input: $input) { success }
}`, map[string]any{"input": map[string]any{
		"issueId":        id,
		"relatedIssueId": otherID,
		"type":           relation,
	}}, nil)
}

var _ connector.Adapter = (*Adapter)(nil)

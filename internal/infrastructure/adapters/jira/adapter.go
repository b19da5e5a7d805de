package jira

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"trackgate/internal/domain/connector"
	"trackgate/internal/infrastructure/adapters/adapterretry"
	"trackgate/internal/infrastructure/metrics"
)

// Config carries the Jira connection settings. APIToken is an opaque
// credential reference resolved by the deployment environment.
type Config struct {
	BaseURL  string
	Email    string
	APIToken string
	Timeout  time.Duration
	Retry    adapterretry.Config
}

// Adapter talks to the Jira REST API v2 and normalizes issues into the
// shared entity shape.
type Adapter struct {
	httpClient *resty.Client
	retry      adapterretry.Config
}

func New(cfg Config) *Adapter {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	if cfg.Email != "" {
		client.SetBasicAuth(cfg.Email, cfg.APIToken)
	} else {
		client.SetAuthToken(cfg.APIToken)
	}
	return &Adapter{httpClient: client, retry: cfg.Retry}
}

func (a *Adapter) Platform() connector.Platform { return connector.PlatformJira }

func (a *Adapter) observe(start time.Time, capability string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.AdapterCallsTotal.WithLabelValues(string(connector.PlatformJira), capability, status).Inc()
	metrics.AdapterLatency.WithLabelValues(string(connector.PlatformJira)).Observe(time.Since(start).Seconds())
}

func (a *Adapter) Search(ctx context.Context, q connector.SearchQuery) (entities []connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "search", err) }(time.Now())

	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	result, err := adapterretry.Do(ctx, a.retry, "jira.search", func() (*searchResponse, error) {
		var out searchResponse
		resp, reqErr := a.httpClient.R().
			SetContext(ctx).
			SetQueryParam("jql", buildJQL(q)).
			SetQueryParam("maxResults", fmt.Sprintf("%d", limit)).
			SetResult(&out).
			Get("/rest/api/2/search")
		if reqErr != nil {
			return nil, reqErr
		}
		if resp.IsError() {
			return nil, fmt.Errorf("jira search: %s: %s", resp.Status(), resp.String())
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}

	entities = make([]connector.Entity, 0, len(result.Issues))
	for _, issue := range result.Issues {
		entities = append(entities, normalizeIssue(issue, nil))
	}
	return entities, nil
}

func (a *Adapter) Get(ctx context.Context, id string) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "get", err) }(time.Now())

	var out issue
	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/rest/api/2/issue/" + id)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("jira get %s: %s: %s", id, resp.Status(), resp.String())
	}

	normalized := normalizeIssue(out, resp.Body())
	return &normalized, nil
}

func (a *Adapter) Create(ctx context.Context, fields connector.Fields) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "create", err) }(time.Now())

	payload := map[string]any{
		"fields": createFields(fields),
	}

	var created struct {
		Key string `json:"key"`
	}
	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&created).
		Post("/rest/api/2/issue")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("jira create: %s: %s", resp.Status(), resp.String())
	}

	return a.Get(ctx, created.Key)
}

func (a *Adapter) Update(ctx context.Context, id string, fields connector.Fields) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "update", err) }(time.Now())

	payload := map[string]any{
		"fields": updateFields(fields),
	}
	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Put("/rest/api/2/issue/" + id)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("jira update %s: %s: %s", id, resp.Status(), resp.String())
	}

	return a.Get(ctx, id)
}

func (a *Adapter) Transition(ctx context.Context, id string, target connector.Status) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "transition", err) }(time.Now())

	var available struct {
		Transitions []transition `json:"transitions"`
	}
	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetResult(&available).
		Get("/rest/api/2/issue/" + id + "/transitions")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("jira transitions %s: %s: %s", id, resp.Status(), resp.String())
	}

	var chosen *transition
	for i := range available.Transitions {
		if normalizeStatus(available.Transitions[i].To.Name) == target {
			chosen = &available.Transitions[i]
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("jira issue %s has no transition to %q", id, target)
	}

	resp, err = a.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{"transition": map[string]string{"id": chosen.ID}}).
		Post("/rest/api/2/issue/" + id + "/transitions")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("jira transition %s: %s: %s", id, resp.Status(), resp.String())
	}

	return a.Get(ctx, id)
}

func (a *Adapter) Comment(ctx context.Context, id, text string) (err error) {
	defer func(start time.Time) { a.observe(start, "comment", err) }(time.Now())

	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{"body": text}).
		Post("/rest/api/2/issue/" + id + "/comment")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("jira comment %s: %s: %s", id, resp.Status(), resp.String())
	}
	return nil
}

func (a *Adapter) Link(ctx context.Context, id, otherID, relation string) (err error) {
	defer func(start time.Time) { a.observe(start, "link", err) }(time.Now())

	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"type":         map[string]string{"name": relation},
			"inwardIssue":  map[string]string{"key": id},
			"outwardIssue": map[string]string{"key": otherID},
		}).
		Post("/rest/api/2/issueLink")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("jira link %s->%s: %s: %s", id, otherID, resp.Status(), resp.String())
	}
	return nil
}

// buildJQL assembles the search clause. Values are quoted with embedded
// quotes escaped; JQL has no bind parameters.
func buildJQL(q connector.SearchQuery) string {
	var clauses []string
	if q.Project != "" {
		clauses = append(clauses, fmt.Sprintf("project = %s", quoteJQL(q.Project)))
	}
	if q.Text != "" {
		clauses = append(clauses, fmt.Sprintf("text ~ %s", quoteJQL(q.Text)))
	}
	if q.Status != "" && q.Status != connector.StatusUnknown {
		clauses = append(clauses, fmt.Sprintf("status = %s", quoteJQL(denormalizeStatus(q.Status))))
	}
	if q.Assignee != "" {
		clauses = append(clauses, fmt.Sprintf("assignee = %s", quoteJQL(q.Assignee)))
	}
	if len(clauses) == 0 {
		return "order by updated desc"
	}
	return strings.Join(clauses, " AND ") + " order by updated desc"
}

func quoteJQL(v string) string {
	// Backslashes first, so escaped quotes keep their own escape intact.
	v = strings.ReplaceAll(v, `\`, `\\`)
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}

var _ connector.Adapter = (*Adapter)(nil)

package asana

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"trackgate/internal/domain/connector"
	"trackgate/internal/infrastructure/adapters/adapterretry"
	"trackgate/internal/infrastructure/metrics"
)

// Config carries the Asana connection settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retry   adapterretry.Config
}

// Adapter maps Asana tasks onto the normalized entity surface. Tasks only
// carry a completed flag, so the status vocabulary collapses to open/done;
// richer transitions are not supported.
type Adapter struct {
	httpClient *resty.Client
	retry      adapterretry.Config
}

func New(cfg Config) *Adapter {
	return &Adapter{
		httpClient: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Content-Type", "application/json").
			SetAuthToken(cfg.Token).
			SetTimeout(cfg.Timeout),
		retry: cfg.Retry,
	}
}

func (a *Adapter) Platform() connector.Platform { return connector.PlatformAsana }

func (a *Adapter) observe(start time.Time, capability string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.AdapterCallsTotal.WithLabelValues(string(connector.PlatformAsana), capability, status).Inc()
	metrics.AdapterLatency.WithLabelValues(string(connector.PlatformAsana)).Observe(time.Since(start).Seconds())
}

const taskFields = "name,notes,completed,assignee.name,tags.name,created_at,modified_at,permalink_url"

type task struct {
	GID       string `json:"gid"`
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
	Assignee  *struct {
		Name string `json:"name"`
	} `json:"assignee"`
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
	PermalinkURL string    `json:"permalink_url"`
}

type taskList struct {
	Data []task `json:"data"`
}

func normalizeTask(in task, raw []byte) connector.Entity {
	assignee := ""
	if in.Assignee != nil {
		assignee = in.Assignee.Name
	}
	labels := make([]string, 0, len(in.Tags))
	for _, tag := range in.Tags {
		labels = append(labels, tag.Name)
	}

	status := connector.StatusOpen
	rawStatus := "incomplete"
	if in.Completed {
		status = connector.StatusDone
		rawStatus = "completed"
	}

	return connector.Entity{
		ExternalID: in.GID,
		Platform:   connector.PlatformAsana,
		Title:      in.Name,
		Status:     status,
		RawStatus:  rawStatus,
		Assignee:   assignee,
		Labels:     labels,
		URL:        in.PermalinkURL,
		CreatedAt:  in.CreatedAt,
		UpdatedAt:  in.ModifiedAt,
		RawPayload: json.RawMessage(raw),
	}
}

func (a *Adapter) Search(ctx context.Context, q connector.SearchQuery) (entities []connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "search", err) }(time.Now())

	if q.Project == "" {
		return nil, fmt.Errorf("asana search requires a project gid")
	}

	result, err := adapterretry.Do(ctx, a.retry, "asana.search", func() (*taskList, error) {
		var out taskList
		resp, reqErr := a.httpClient.R().
			SetContext(ctx).
			SetQueryParam("project", q.Project).
			SetQueryParam("opt_fields", taskFields).
			SetResult(&out).
			Get("/tasks")
		if reqErr != nil {
			return nil, reqErr
		}
		if resp.IsError() {
			return nil, fmt.Errorf("asana search: %s: %s", resp.Status(), resp.String())
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	entities = make([]connector.Entity, 0, limit)
	for _, t := range result.Data {
		entity := normalizeTask(t, nil)
		if q.Text != "" && !strings.Contains(strings.ToLower(entity.Title), strings.ToLower(q.Text)) {
			continue
		}
		if q.Status != "" && entity.Status != q.Status {
			continue
		}
		if q.Assignee != "" && entity.Assignee != q.Assignee {
			continue
		}
		entities = append(entities, entity)
		if len(entities) == limit {
			break
		}
	}
	return entities, nil
}

func (a *Adapter) Get(ctx context.Context, id string) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "get", err) }(time.Now())

	var out struct {
		Data task `json:"data"`
	}
	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetQueryParam("opt_fields", taskFields).
		SetResult(&out).
		Get("/tasks/" + id)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("asana get %s: %s: %s", id, resp.Status(), resp.String())
	}

	normalized := normalizeTask(out.Data, resp.Body())
	return &normalized, nil
}

func (a *Adapter) Create(ctx context.Context, fields connector.Fields) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "create", err) }(time.Now())

	data := map[string]any{
		"name":     fields.Title,
		"projects": []string{fields.Project},
	}
	if fields.Description != "" {
		data["notes"] = fields.Description
	}
	if fields.Assignee != "" {
		data["assignee"] = fields.Assignee
	}

	var out struct {
		Data task `json:"data"`
	}
	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetQueryParam("opt_fields", taskFields).
		SetBody(map[string]any{"data": data}).
		SetResult(&out).
		Post("/tasks")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("asana create: %s: %s", resp.Status(), resp.String())
	}

	normalized := normalizeTask(out.Data, resp.Body())
	return &normalized, nil
}

func (a *Adapter) Update(ctx context.Context, id string, fields connector.Fields) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "update", err) }(time.Now())

	data := map[string]any{}
	if fields.Title != "" {
		data["name"] = fields.Title
	}
	if fields.Description != "" {
		data["notes"] = fields.Description
	}
	if fields.Assignee != "" {
		data["assignee"] = fields.Assignee
	}

	var out struct {
		Data task `json:"data"`
	}
	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetQueryParam("opt_fields", taskFields).
		SetBody(map[string]any{"data": data}).
		SetResult(&out).
		Put("/tasks/" + id)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("asana update %s: %s: %s", id, resp.Status(), resp.String())
	}

	normalized := normalizeTask(out.Data, resp.Body())
	return &normalized, nil
}

func (a *Adapter) Transition(ctx context.Context, id string, target connector.Status) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "transition", err) }(time.Now())

	var completed bool
	switch target {
	case connector.StatusDone:
		completed = true
	case connector.StatusOpen:
		completed = false
	default:
		return nil, connector.NotSupported(ctx, connector.PlatformAsana, "transition to "+string(target))
	}

	var out struct {
		Data task `json:"data"`
	}
	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetQueryParam("opt_fields", taskFields).
		SetBody(map[string]any{"data": map[string]any{"completed": completed}}).
		SetResult(&out).
		Put("/tasks/" + id)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("asana transition %s: %s: %s", id, resp.Status(), resp.String())
	}

	normalized := normalizeTask(out.Data, resp.Body())
	return &normalized, nil
}

func (a *Adapter) Comment(ctx context.Context, id, text string) (err error) {
	defer func(start time.Time) { a.observe(start, "comment", err) }(time.Now())

	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{"data": map[string]string{"text": text}}).
		Post("/tasks/" + id + "/stories")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("asana comment %s: %s: %s", id, resp.Status(), resp.String())
	}
	return nil
}

// Link is not expressible through the Asana tasks API surface used here.
func (a *Adapter) Link(ctx context.Context, id, otherID, relation string) error {
	return connector.NotSupported(ctx, connector.PlatformAsana, "link")
}

var _ connector.Adapter = (*Adapter)(nil)

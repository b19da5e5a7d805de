package githubadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"

	"trackgate/internal/domain/connector"
	"trackgate/internal/infrastructure/metrics"
)

// Config carries the GitHub connection settings. Token is an opaque
// credential reference resolved by the deployment environment.
type Config struct {
	Token   string
	BaseURL string // set for GitHub Enterprise
	Timeout time.Duration
}

// Adapter maps GitHub issues onto the normalized entity surface. Entity
// IDs use the "owner/repo#number" form.
type Adapter struct {
	client *github.Client
}

func New(cfg Config) (*Adapter, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	client := github.NewClient(httpClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("configure enterprise github: %w", err)
		}
	}
	return &Adapter{client: client}, nil
}

// NewWithClient wires a prebuilt client. Test hook.
func NewWithClient(client *github.Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Platform() connector.Platform { return connector.PlatformGitHub }

func (a *Adapter) observe(start time.Time, capability string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.AdapterCallsTotal.WithLabelValues(string(connector.PlatformGitHub), capability, status).Inc()
	metrics.AdapterLatency.WithLabelValues(string(connector.PlatformGitHub)).Observe(time.Since(start).Seconds())
}

// parseRef splits an "owner/repo#number" entity reference.
func parseRef(id string) (owner, repo string, number int, err error) {
	slash := strings.Index(id, "/")
	hash := strings.LastIndex(id, "#")
	if slash < 1 || hash <= slash {
		return "", "", 0, fmt.Errorf("invalid github issue reference %q, want owner/repo#number", id)
	}
	number, err = strconv.Atoi(id[hash+1:])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid github issue number in %q", id)
	}
	return id[:slash], id[slash+1 : hash], number, nil
}

func (a *Adapter) Search(ctx context.Context, q connector.SearchQuery) (entities []connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "search", err) }(time.Now())

	var terms []string
	if q.Text != "" {
		terms = append(terms, q.Text)
	}
	terms = append(terms, "is:issue")
	if q.Project != "" {
		terms = append(terms, "repo:"+q.Project)
	}
	if q.Assignee != "" {
		terms = append(terms, "assignee:"+q.Assignee)
	}
	switch q.Status {
	case connector.StatusDone, connector.StatusCancelled:
		terms = append(terms, "state:closed")
	case "":
	default:
		terms = append(terms, "state:open")
	}

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	result, _, err := a.client.Search.Issues(ctx, strings.Join(terms, " "), &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("github search: %w", err)
	}

	entities = make([]connector.Entity, 0, len(result.Issues))
	for _, issue := range result.Issues {
		entities = append(entities, normalizeIssue(issue, refFromURL(issue)))
	}
	return entities, nil
}

func (a *Adapter) Get(ctx context.Context, id string) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "get", err) }(time.Now())

	owner, repo, number, err := parseRef(id)
	if err != nil {
		return nil, err
	}
	issue, _, err := a.client.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("github get %s: %w", id, err)
	}
	normalized := normalizeIssue(issue, id)
	return &normalized, nil
}

func (a *Adapter) Create(ctx context.Context, fields connector.Fields) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "create", err) }(time.Now())

	owner, repo, ok := strings.Cut(fields.Project, "/")
	if !ok {
		return nil, fmt.Errorf("github project must be owner/repo, got %q", fields.Project)
	}

	req := &github.IssueRequest{
		Title: github.Ptr(fields.Title),
	}
	if fields.Description != "" {
		req.Body = github.Ptr(fields.Description)
	}
	if fields.Assignee != "" {
		req.Assignee = github.Ptr(fields.Assignee)
	}
	if len(fields.Labels) > 0 {
		req.Labels = &fields.Labels
	}

	issue, _, err := a.client.Issues.Create(ctx, owner, repo, req)
	if err != nil {
		return nil, fmt.Errorf("github create: %w", err)
	}
	ref := fmt.Sprintf("%s/%s#%d", owner, repo, issue.GetNumber())
	normalized := normalizeIssue(issue, ref)
	return &normalized, nil
}

func (a *Adapter) Update(ctx context.Context, id string, fields connector.Fields) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "update", err) }(time.Now())

	owner, repo, number, err := parseRef(id)
	if err != nil {
		return nil, err
	}

	req := &github.IssueRequest{}
	if fields.Title != "" {
		req.Title = github.Ptr(fields.Title)
	}
	if fields.Description != "" {
		req.Body = github.Ptr(fields.Description)
	}
	if fields.Assignee != "" {
		req.Assignee = github.Ptr(fields.Assignee)
	}
	if fields.Labels != nil {
		req.Labels = &fields.Labels
	}

	issue, _, err := a.client.Issues.Edit(ctx, owner, repo, number, req)
	if err != nil {
		return nil, fmt.Errorf("github update %s: %w", id, err)
	}
	normalized := normalizeIssue(issue, id)
	return &normalized, nil
}

func (a *Adapter) Transition(ctx context.Context, id string, target connector.Status) (entity *connector.Entity, err error) {
	defer func(start time.Time) { a.observe(start, "transition", err) }(time.Now())

	owner, repo, number, err := parseRef(id)
	if err != nil {
		return nil, err
	}

	// GitHub issues only have open and closed; richer targets are not
	// expressible.
	var state, reason string
	switch target {
	case connector.StatusOpen, connector.StatusInProgress:
		state = "open"
	case connector.StatusDone:
		state, reason = "closed", "completed"
	case connector.StatusCancelled:
		state, reason = "closed", "not_planned"
	default:
		return nil, connector.NotSupported(ctx, connector.PlatformGitHub, "transition to "+string(target))
	}

	req := &github.IssueRequest{State: github.Ptr(state)}
	if reason != "" {
		req.StateReason = github.Ptr(reason)
	}

	issue, _, err := a.client.Issues.Edit(ctx, owner, repo, number, req)
	if err != nil {
		return nil, fmt.Errorf("github transition %s: %w", id, err)
	}
	normalized := normalizeIssue(issue, id)
	return &normalized, nil
}

func (a *Adapter) Comment(ctx context.Context, id, text string) (err error) {
	defer func(start time.Time) { a.observe(start, "comment", err) }(time.Now())

	owner, repo, number, err := parseRef(id)
	if err != nil {
		return err
	}
	_, _, err = a.client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.Ptr(text),
	})
	if err != nil {
		return fmt.Errorf("github comment %s: %w", id, err)
	}
	return nil
}

// Link is not expressible through the GitHub issues API.
func (a *Adapter) Link(ctx context.Context, id, otherID, relation string) error {
	return connector.NotSupported(ctx, connector.PlatformGitHub, "link")
}

func refFromURL(issue *github.Issue) string {
	// https://api.github.com/repos/{owner}/{repo}/issues/{n}
	url := issue.GetRepositoryURL()
	if idx := strings.Index(url, "/repos/"); idx >= 0 {
		return url[idx+len("/repos/"):] + "#" + strconv.Itoa(issue.GetNumber())
	}
	return strconv.Itoa(issue.GetNumber())
}

func normalizeIssue(issue *github.Issue, ref string) connector.Entity {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}

	status := connector.StatusUnknown
	switch issue.GetState() {
	case "open":
		status = connector.StatusOpen
	case "closed":
		if issue.GetStateReason() == "not_planned" {
			status = connector.StatusCancelled
		} else {
			status = connector.StatusDone
		}
	}

	raw, _ := json.Marshal(issue)

	return connector.Entity{
		ExternalID: ref,
		Platform:   connector.PlatformGitHub,
		Title:      issue.GetTitle(),
		Status:     status,
		RawStatus:  issue.GetState(),
		Assignee:   issue.GetAssignee().GetLogin(),
		Labels:     labels,
		URL:        issue.GetHTMLURL(),
		CreatedAt:  issue.GetCreatedAt().Time,
		UpdatedAt:  issue.GetUpdatedAt().Time,
		RawPayload: raw,
	}
}

var _ connector.Adapter = (*Adapter)(nil)

package jira

import (
	"encoding/json"
	"strings"
	"time"

	"trackgate/internal/domain/connector"
)

// jiraTimeLayout is the timestamp format Jira's REST API v2 emits.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

type issue struct {
	Key    string `json:"key"`
	Self   string `json:"self"`
	Fields struct {
		Summary string `json:"summary"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
		Assignee *struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Labels  []string `json:"labels"`
		Created string   `json:"created"`
		Updated string   `json:"updated"`
	} `json:"fields"`
}

type searchResponse struct {
	Issues []issue `json:"issues"`
}

type transition struct {
	ID string `json:"id"`
	To struct {
		Name string `json:"name"`
	} `json:"to"`
}

// normalizeStatus maps Jira status names onto the shared vocabulary.
// Unmapped names pass through as unknown rather than failing.
func normalizeStatus(name string) connector.Status {
	switch strings.ToLower(name) {
	case "to do", "open", "backlog", "reopened":
		return connector.StatusOpen
	case "in progress":
		return connector.StatusInProgress
	case "in review", "code review":
		return connector.StatusInReview
	case "blocked", "impediment":
		return connector.StatusBlocked
	case "done", "closed", "resolved":
		return connector.StatusDone
	case "cancelled", "won't do", "wont do":
		return connector.StatusCancelled
	default:
		return connector.StatusUnknown
	}
}

func denormalizeStatus(status connector.Status) string {
	switch status {
	case connector.StatusOpen:
		return "To Do"
	case connector.StatusInProgress:
		return "In Progress"
	case connector.StatusInReview:
		return "In Review"
	case connector.StatusBlocked:
		return "Blocked"
	case connector.StatusDone:
		return "Done"
	case connector.StatusCancelled:
		return "Cancelled"
	default:
		return string(status)
	}
}

func normalizeIssue(in issue, raw []byte) connector.Entity {
	assignee := ""
	if in.Fields.Assignee != nil {
		assignee = in.Fields.Assignee.DisplayName
		if assignee == "" {
			assignee = in.Fields.Assignee.Name
		}
	}

	created, _ := time.Parse(jiraTimeLayout, in.Fields.Created)
	updated, _ := time.Parse(jiraTimeLayout, in.Fields.Updated)

	return connector.Entity{
		ExternalID: in.Key,
		Platform:   connector.PlatformJira,
		Title:      in.Fields.Summary,
		Status:     normalizeStatus(in.Fields.Status.Name),
		RawStatus:  in.Fields.Status.Name,
		Assignee:   assignee,
		Labels:     in.Fields.Labels,
		URL:        in.Self,
		CreatedAt:  created,
		UpdatedAt:  updated,
		RawPayload: json.RawMessage(raw),
	}
}

func createFields(fields connector.Fields) map[string]any {
	out := map[string]any{
		"project":   map[string]string{"key": fields.Project},
		"summary":   fields.Title,
		"issuetype": map[string]string{"name": "Task"},
	}
	if fields.Description != "" {
		out["description"] = fields.Description
	}
	if fields.Assignee != "" {
		out["assignee"] = map[string]string{"name": fields.Assignee}
	}
	if len(fields.Labels) > 0 {
		out["labels"] = fields.Labels
	}
	return out
}

func updateFields(fields connector.Fields) map[string]any {
	out := map[string]any{}
	if fields.Title != "" {
		out["summary"] = fields.Title
	}
	if fields.Description != "" {
		out["description"] = fields.Description
	}
	if fields.Assignee != "" {
		out["assignee"] = map[string]string{"name": fields.Assignee}
	}
	if fields.Labels != nil {
		out["labels"] = fields.Labels
	}
	return out
}

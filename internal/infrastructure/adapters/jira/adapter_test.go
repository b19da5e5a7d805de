package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trackgate/internal/domain/connector"
)

func stubIssue(key, status string) map[string]any {
	return map[string]any{
		"key":  key,
		"self": "https://jira.example.com/browse/" + key,
		"fields": map[string]any{
			"summary": "Fix login flow",
			"status":  map[string]any{"name": status},
			"assignee": map[string]any{
				"name":        "mchen",
				"displayName": "M. Chen",
			},
			"labels":  []string{"auth"},
			"created": "2026-02-10T09:30:00.000+0000",
			"updated": "2026-02-11T14:00:00.000+0000",
		},
	}
}

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	return New(Config{
		BaseURL:  server.URL,
		Email:    "bot@example.com",
		APIToken: "token",
		Timeout:  5 * time.Second,
	})
}

func TestSearchBuildsJQLAndNormalizes(t *testing.T) {
	var gotJQL string
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/2/search", r.URL.Path)
		gotJQL = r.URL.Query().Get("jql")
		json.NewEncoder(w).Encode(map[string]any{
			"issues": []any{stubIssue("PROJ-1", "In Progress")},
		})
	}))

	entities, err := adapter.Search(context.Background(), connector.SearchQuery{
		Project:  "PROJ",
		Status:   connector.StatusInProgress,
		Assignee: "mchen",
	})
	require.NoError(t, err)

	require.Contains(t, gotJQL, `project = "PROJ"`)
	require.Contains(t, gotJQL, `status = "In Progress"`)
	require.Contains(t, gotJQL, `assignee = "mchen"`)

	require.Len(t, entities, 1)
	e := entities[0]
	require.Equal(t, "PROJ-1", e.ExternalID)
	require.Equal(t, connector.PlatformJira, e.Platform)
	require.Equal(t, connector.StatusInProgress, e.Status)
	require.Equal(t, "In Progress", e.RawStatus)
	require.Equal(t, "M. Chen", e.Assignee)
	require.Equal(t, 2026, e.CreatedAt.Year())
}

func TestSearchEscapesQuotesInJQL(t *testing.T) {
	var gotJQL string
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotJQL = r.URL.Query().Get("jql")
		json.NewEncoder(w).Encode(map[string]any{"issues": []any{}})
	}))

	_, err := adapter.Search(context.Background(), connector.SearchQuery{
		Text: `login" OR project != "SECRET`,
	})
	require.NoError(t, err)
	require.Contains(t, gotJQL, `\"`)
	require.NotContains(t, gotJQL, `"login" OR project`)
}

func TestSearchEscapesBackslashesInJQL(t *testing.T) {
	var gotJQL string
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotJQL = r.URL.Query().Get("jql")
		json.NewEncoder(w).Encode(map[string]any{"issues": []any{}})
	}))

	// A trailing backslash must not swallow the closing quote and merge
	// the following clause into the string literal.
	_, err := adapter.Search(context.Background(), connector.SearchQuery{
		Text:     `share\`,
		Assignee: "mchen",
	})
	require.NoError(t, err)
	require.Contains(t, gotJQL, `"share\\"`)
	require.Contains(t, gotJQL, `assignee = "mchen"`)
}

func TestGetNormalizesUnknownStatus(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/2/issue/PROJ-7", r.URL.Path)
		json.NewEncoder(w).Encode(stubIssue("PROJ-7", "Awaiting Vendor"))
	}))

	entity, err := adapter.Get(context.Background(), "PROJ-7")
	require.NoError(t, err)
	require.Equal(t, connector.StatusUnknown, entity.Status)
	require.Equal(t, "Awaiting Vendor", entity.RawStatus)
	require.NotEmpty(t, entity.RawPayload)
}

func TestTransitionPicksMatchingTarget(t *testing.T) {
	var posted struct {
		Transition struct {
			ID string `json:"id"`
		} `json:"transition"`
	}
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/transitions"):
			json.NewEncoder(w).Encode(map[string]any{
				"transitions": []any{
					map[string]any{"id": "11", "to": map[string]any{"name": "In Progress"}},
					map[string]any{"id": "31", "to": map[string]any{"name": "Done"}},
				},
			})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/transitions"):
			require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(stubIssue("PROJ-1", "Done"))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	entity, err := adapter.Transition(context.Background(), "PROJ-1", connector.StatusDone)
	require.NoError(t, err)
	require.Equal(t, "31", posted.Transition.ID)
	require.Equal(t, connector.StatusDone, entity.Status)
}

func TestTransitionWithoutMatchingTarget(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"transitions": []any{
				map[string]any{"id": "11", "to": map[string]any{"name": "In Progress"}},
			},
		})
	}))

	_, err := adapter.Transition(context.Background(), "PROJ-1", connector.StatusBlocked)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no transition")
}

func TestCreateFetchesCreatedIssue(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			fields := body["fields"].(map[string]any)
			require.Equal(t, "Fix login flow", fields["summary"])
			json.NewEncoder(w).Encode(map[string]any{"key": "PROJ-9"})
		default:
			require.Equal(t, "/rest/api/2/issue/PROJ-9", r.URL.Path)
			json.NewEncoder(w).Encode(stubIssue("PROJ-9", "To Do"))
		}
	}))

	entity, err := adapter.Create(context.Background(), connector.Fields{
		Project: "PROJ",
		Title:   "Fix login flow",
	})
	require.NoError(t, err)
	require.Equal(t, "PROJ-9", entity.ExternalID)
	require.Equal(t, connector.StatusOpen, entity.Status)
}

func TestGetSurfacesHTTPError(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessages":["Issue does not exist"]}`, http.StatusNotFound)
	}))

	_, err := adapter.Get(context.Background(), "PROJ-404")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

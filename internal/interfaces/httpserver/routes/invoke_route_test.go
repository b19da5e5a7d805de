package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackgate/internal/domain/audit"
	"trackgate/internal/domain/collector"
	"trackgate/internal/domain/connector"
	"trackgate/internal/domain/idempotency"
	"trackgate/internal/domain/invoke"
	"trackgate/internal/domain/ratelimit"
)

type routeStubAdapter struct{}

func (routeStubAdapter) Platform() connector.Platform { return connector.PlatformJira }

func (routeStubAdapter) Search(context.Context, connector.SearchQuery) ([]connector.Entity, error) {
	return []connector.Entity{{ExternalID: "PROJ-1", Platform: connector.PlatformJira}}, nil
}

func (routeStubAdapter) Get(_ context.Context, id string) (*connector.Entity, error) {
	return &connector.Entity{ExternalID: id, Platform: connector.PlatformJira, Status: connector.StatusOpen}, nil
}

func (routeStubAdapter) Create(context.Context, connector.Fields) (*connector.Entity, error) {
	return &connector.Entity{ExternalID: "PROJ-2", Platform: connector.PlatformJira}, nil
}

func (routeStubAdapter) Update(_ context.Context, id string, _ connector.Fields) (*connector.Entity, error) {
	return &connector.Entity{ExternalID: id, Platform: connector.PlatformJira}, nil
}

func (routeStubAdapter) Transition(_ context.Context, id string, target connector.Status) (*connector.Entity, error) {
	return &connector.Entity{ExternalID: id, Platform: connector.PlatformJira, Status: target}, nil
}

func (routeStubAdapter) Comment(context.Context, string, string) error      { return nil }
func (routeStubAdapter) Link(context.Context, string, string, string) error { return nil }

func newTestRouter(t *testing.T, writeLimit int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := idempotency.NewMemoryStore(64, time.Hour)
	require.NoError(t, err)
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{
		Default: ratelimit.Policy{Limit: 1000, Window: time.Minute},
		Classes: map[string]ratelimit.Policy{
			"write": {Limit: writeLimit, Window: time.Minute},
		},
	})
	pipeline := invoke.NewPipeline(
		invoke.DefaultCatalog(nil),
		store,
		limiter,
		connector.NewRegistry(routeStubAdapter{}),
		nil,
		audit.NewMemoryRecorder(),
		collector.New(64),
	)

	router := gin.New()
	NewInvokeRoute(pipeline).RegisterRouter(router.Group("/v1"))
	return router
}

func postInvoke(t *testing.T, router *gin.Engine, body map[string]any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/invoke", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestInvokeRouteSuccess(t *testing.T) {
	router := newTestRouter(t, 100)

	rec := postInvoke(t, router, map[string]any{
		"tenant_id": "acme",
		"actor":     "assistant:session-9",
		"action":    "issue.get",
		"parameters": map[string]any{
			"platform": "jira",
			"id":       "PROJ-1",
		},
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status   string          `json:"status"`
		Data     json.RawMessage `json:"data"`
		Metadata invoke.Metadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.False(t, body.Metadata.Replayed)
	assert.NotEmpty(t, body.Data)
}

func TestInvokeRouteIdempotencyKeyHeader(t *testing.T) {
	router := newTestRouter(t, 100)
	payload := map[string]any{
		"tenant_id": "acme",
		"actor":     "assistant:session-9",
		"action":    "issue.create",
		"parameters": map[string]any{
			"platform": "jira",
			"project":  "PROJ",
			"title":    "Fix login flow",
		},
	}
	headers := map[string]string{"Idempotency-Key": "req-1"}

	first := postInvoke(t, router, payload, headers)
	require.Equal(t, http.StatusOK, first.Code)

	second := postInvoke(t, router, payload, headers)
	require.Equal(t, http.StatusOK, second.Code)
	var body struct {
		Metadata invoke.Metadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.True(t, body.Metadata.Replayed)
}

func TestInvokeRouteRateLimited(t *testing.T) {
	router := newTestRouter(t, 1)
	payload := map[string]any{
		"tenant_id": "acme",
		"actor":     "assistant:session-9",
		"action":    "issue.comment",
		"parameters": map[string]any{
			"platform": "jira",
			"id":       "PROJ-1",
			"text":     "looking into this",
		},
	}

	require.Equal(t, http.StatusOK, postInvoke(t, router, payload, nil).Code)

	rec := postInvoke(t, router, payload, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body struct {
		Error struct {
			Type              string `json:"type"`
			Retryable         bool   `json:"retryable"`
			RetryAfterSeconds int64  `json:"retry_after_seconds"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body.Error.Type)
	assert.True(t, body.Error.Retryable)
	assert.GreaterOrEqual(t, body.Error.RetryAfterSeconds, int64(1))
}

func TestInvokeRouteValidationError(t *testing.T) {
	router := newTestRouter(t, 100)

	rec := postInvoke(t, router, map[string]any{
		"tenant_id":  "acme",
		"actor":      "assistant:session-9",
		"action":     "issue.destroy",
		"parameters": map[string]any{},
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActionsRoute(t *testing.T) {
	router := newTestRouter(t, 100)

	req := httptest.NewRequest(http.MethodGet, "/v1/actions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Actions []string `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Actions, "issue.create")
	assert.Contains(t, body.Actions, "issue.search")
}

func TestStatsRoute(t *testing.T) {
	router := newTestRouter(t, 100)

	// Generate one sample so the snapshot is non-empty.
	rec := postInvoke(t, router, map[string]any{
		"tenant_id": "acme",
		"actor":     "assistant:session-9",
		"action":    "issue.get",
		"parameters": map[string]any{
			"platform": "jira",
			"id":       "PROJ-1",
		},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats/issue.get", nil)
	statsRec := httptest.NewRecorder()
	router.ServeHTTP(statsRec, req)

	require.Equal(t, http.StatusOK, statsRec.Code)
	var body struct {
		Action string  `json:"action"`
		Count  int     `json:"count"`
		Error  float64 `json:"error_rate"`
	}
	require.NoError(t, json.Unmarshal(statsRec.Body.Bytes(), &body))
	assert.Equal(t, "issue.get", body.Action)
	assert.Equal(t, 1, body.Count)
	assert.Zero(t, body.Error)
}

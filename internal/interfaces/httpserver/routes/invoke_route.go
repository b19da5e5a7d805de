package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"trackgate/internal/domain/invoke"
	"trackgate/internal/utils/platformerrors"
)

// InvokeRoute exposes the governed invocation pipeline over HTTP. The
// transport layer is a thin shell: parse, call the pipeline, map the error
// taxonomy onto status codes.
type InvokeRoute struct {
	pipeline *invoke.Pipeline
}

func NewInvokeRoute(pipeline *invoke.Pipeline) *InvokeRoute {
	return &InvokeRoute{pipeline: pipeline}
}

func (r *InvokeRoute) RegisterRouter(router gin.IRouter) {
	router.POST("/invoke", r.handleInvoke)
	router.GET("/actions", r.handleActions)
	router.GET("/stats/:action", r.handleStats)
}

func (r *InvokeRoute) handleInvoke(c *gin.Context) {
	var req invoke.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  gin.H{"type": platformerrors.ErrorTypeValidation, "message": err.Error()},
		})
		return
	}

	// The Idempotency-Key header is an alternative to the body field.
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := r.pipeline.Execute(c.Request.Context(), req)
	if err != nil {
		r.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *InvokeRoute) renderError(c *gin.Context, err error) {
	var platformErr *platformerrors.PlatformError
	if !errors.As(err, &platformErr) {
		log.Error().Err(err).Msg("invocation failed with untyped error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  gin.H{"type": platformerrors.ErrorTypeInternal, "message": "internal error"},
		})
		return
	}

	platformerrors.LogError(log.Logger, platformErr)

	body := gin.H{
		"type":      platformErr.Type,
		"message":   platformErr.Message,
		"retryable": platformErr.Retryable(),
	}
	if platformErr.RetryAfter > 0 {
		seconds := int64(platformErr.RetryAfter / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		body["retry_after_seconds"] = seconds
		c.Header("Retry-After", time.Now().Add(platformErr.RetryAfter).UTC().Format(http.TimeFormat))
	}
	c.JSON(platformerrors.ErrorTypeToHTTPStatus(platformErr.Type), gin.H{
		"status": "error",
		"error":  body,
	})
}

func (r *InvokeRoute) handleActions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actions": r.pipeline.Catalog().Names()})
}

func (r *InvokeRoute) handleStats(c *gin.Context) {
	action := c.Param("action")
	snapshot := r.pipeline.Stats().Snapshot(action)
	c.JSON(http.StatusOK, gin.H{
		"action":        action,
		"p50_ms":        snapshot.P50.Milliseconds(),
		"p95_ms":        snapshot.P95.Milliseconds(),
		"p99_ms":        snapshot.P99.Milliseconds(),
		"count":         snapshot.Count,
		"error_rate":    snapshot.ErrorRate,
		"window_filled": snapshot.Count > 0,
	})
}

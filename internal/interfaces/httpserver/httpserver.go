package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"trackgate/internal/infrastructure/config"
	"trackgate/internal/infrastructure/metrics"
	"trackgate/internal/interfaces/httpserver/middlewares"
	"trackgate/internal/interfaces/httpserver/routes"
)

type HTTPServer struct {
	router      *gin.Engine
	config      *config.Config
	invokeRoute *routes.InvokeRoute
}

func NewHTTPServer(
	cfg *config.Config,
	invokeRoute *routes.InvokeRoute,
) *HTTPServer {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middlewares.RequestID())
	router.Use(middlewares.RequestLogger())
	router.Use(middlewares.CORS())
	router.Use(middlewares.Timeout(cfg.RequestTimeout))
	router.Use(middlewares.APIKeyAuth(cfg.APIKey))

	return &HTTPServer{
		router:      router,
		config:      cfg,
		invokeRoute: invokeRoute,
	}
}

func (s *HTTPServer) setupRoutes() {
	// Health check endpoints
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "trackgate"})
	})

	s.router.GET("/readyz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ready", "service": "trackgate"})
	})

	// Prometheus metrics endpoint
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.router.Group("/v1")
	s.invokeRoute.RegisterRouter(v1)
}

// Run serves until ctx is cancelled, then drains in-flight requests
// for up to the configured shutdown timeout.
func (s *HTTPServer) Run(ctx context.Context) error {
	s.setupRoutes()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.config.HTTPPort),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("trackgate listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}

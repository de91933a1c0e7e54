package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	api_utils "github.com/ethanbaker/api/pkg/utils"
	"github.com/ethanbaker/meetingroom/pkg/booking"
	"github.com/ethanbaker/meetingroom/pkg/logging"
	"github.com/ethanbaker/meetingroom/pkg/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	health_module "github.com/ethanbaker/meetingroom/internal/api/modules/health"
	meeting_module "github.com/ethanbaker/meetingroom/internal/api/modules/meeting"
	transcription_module "github.com/ethanbaker/meetingroom/internal/api/modules/transcription"
)

// Dependencies are the services exposed over HTTP
type Dependencies struct {
	Bookings      *booking.Service
	Transcription *transcription_module.Service
	Gatherer      prometheus.Gatherer // Source of /metrics, nil disables the endpoint
}

// NewEngine builds the gin engine with every module registered
func NewEngine(cfg *utils.Config, deps Dependencies) *gin.Engine {
	engine := gin.New()
	engine.Use(requestLogger(logging.For("API")), gin.Recovery())

	// Uploads above this size are buffered on disk while streaming to the provider
	engine.MaxMultipartMemory = int64(cfg.GetIntWithDefault("UPLOAD_MEMORY_MB", 32)) << 20
	engine.NoRoute(api_utils.NoRouteHandler)

	// Add trusted proxies
	engine.SetTrustedProxies(nil)

	// Add CORS using gin-contrib/cors (https://github.com/gin-contrib/cors for documentation)
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.GetWithDefault("CORS_ALLOWED_ORIGINS", "*"), ","),
		AllowMethods:     []string{"OPTIONS", "GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	if deps.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Base group '/api' for all API routes
	baseGroup := engine.Group("/api")

	// Adding custom modules
	health_module.RegisterRoutes(baseGroup)
	meeting_module.RegisterRoutes(baseGroup, deps.Bookings)
	transcription_module.RegisterRoutes(baseGroup, deps.Transcription)

	return engine
}

// Start serves the API until ctx is cancelled, then shuts down gracefully
func Start(ctx context.Context, cfg *utils.Config, deps Dependencies) error {
	return Serve(ctx, ":"+cfg.GetWithDefault("API_PORT", "3001"), NewEngine(cfg, deps), logging.For("API-MAIN"))
}

// Serve runs handler on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, handler http.Handler, log zerolog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	log.Info().Msg("shutting down server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// requestLogger logs one line per request
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

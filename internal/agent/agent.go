// Package agent serves the local recording agent: a small HTTP surface next to
// OBS Studio that the booking frontend calls to start and stop recordings.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/ethanbaker/api/pkg/api_key"
	api_utils "github.com/ethanbaker/api/pkg/utils"
	"github.com/ethanbaker/meetingroom/internal/api"
	"github.com/ethanbaker/meetingroom/pkg/logging"
	"github.com/ethanbaker/meetingroom/pkg/metrics"
	"github.com/ethanbaker/meetingroom/pkg/recording"
	"github.com/ethanbaker/meetingroom/pkg/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder drives the recording software
type Recorder interface {
	StartRecording(ctx context.Context, scene string) error
	StopRecording(ctx context.Context) error
	Status(ctx context.Context) recording.State
	Session() recording.Session
}

// Options configures the agent engine
type Options struct {
	Recorder       Recorder
	Scene          string   // Scene selected before recording starts
	APIKey         string   // When set, requests must carry it in X-API-KEY
	AllowedOrigins []string // CORS origins, defaults to all
	Gatherer       prometheus.Gatherer
}

// NewEngine builds the agent's gin engine
func NewEngine(opts Options) *gin.Engine {
	if opts.Scene == "" {
		opts.Scene = recording.DefaultScene
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.NoRoute(api_utils.NoRouteHandler)
	engine.SetTrustedProxies(nil)

	engine.Use(cors.New(cors.Config{
		AllowOrigins: opts.AllowedOrigins,
		AllowMethods: []string{"OPTIONS", "GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "X-API-KEY"},
		MaxAge:       12 * time.Hour,
	}))

	if opts.APIKey != "" {
		key := opts.APIKey
		engine.Use(api_key.APIKeyHeaderHandler(func(candidate string) bool {
			return candidate == key
		}))
	}

	if opts.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	RegisterRoutes(&engine.RouterGroup, &Controller{recorder: opts.Recorder, scene: opts.Scene})
	return engine
}

// Start connects to the recording software and serves the agent until ctx is cancelled
func Start(ctx context.Context, cfg *utils.Config) error {
	log := logging.For("AGENT")

	registry := prometheus.NewRegistry()

	client := recording.NewClient(recording.Options{
		URL:      cfg.GetWithDefault("OBS_WEBSOCKET_URL", recording.DefaultURL),
		Password: cfg.Get("OBS_WEBSOCKET_PASSWORD"),
		Timeout:  cfg.GetDurationWithDefault("OBS_TIMEOUT", recording.DefaultTimeout),
		Metrics:  metrics.New(registry),
	})
	defer client.Close()

	// The agent still serves when OBS is not running yet
	if err := client.EnsureConnected(ctx); err != nil {
		log.Warn().Err(err).Msg("recording software not reachable, will retry on demand")
	}

	engine := NewEngine(Options{
		Recorder:       client,
		Scene:          cfg.GetWithDefault("OBS_SCENE", recording.DefaultScene),
		APIKey:         cfg.Get("AGENT_API_KEY"),
		AllowedOrigins: strings.Split(cfg.GetWithDefault("CORS_ALLOWED_ORIGINS", "*"), ","),
		Gatherer:       registry,
	})

	return api.Serve(ctx, ":"+cfg.GetWithDefault("AGENT_PORT", "4456"), engine, log)
}

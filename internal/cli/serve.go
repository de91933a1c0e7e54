package cli

import (
	"github.com/ethanbaker/meetingroom/internal/agent"
	"github.com/ethanbaker/meetingroom/internal/api"
	"github.com/ethanbaker/meetingroom/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newAPICommand(config func() *utils.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the booking and transcription API",
		Long: `Serve the booking and transcription API.

Required configuration:
  NOTION_API_TOKEN, NOTION_DATABASE_ID, TRANSKRIPTOR_TOKEN, ADMIN_EMAIL

Meetings are stored in MySQL when MYSQL_DATABASE is set, otherwise in
MEETINGS_FILE (default data/meetings.json). REDIS_URL enables booking locks
shared between instances and S3_BUCKET an archive of uploaded recordings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config()
			setGinMode(cfg)

			deps, cleanup, err := buildAPI(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			return api.Start(cmd.Context(), cfg, *deps)
		},
	}
}

func newAgentCommand(config func() *utils.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Serve the local recording agent next to OBS Studio",
		Long: `Serve the local recording agent next to OBS Studio.

The agent talks to obs-websocket at OBS_WEBSOCKET_URL (default
ws://127.0.0.1:4455) and listens on AGENT_PORT (default 4456).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config()
			setGinMode(cfg)
			return agent.Start(cmd.Context(), cfg)
		},
	}
}

func setGinMode(cfg *utils.Config) {
	if cfg.GetWithDefault("LOG_LEVEL", "info") == "debug" {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}

// Package cli wires the meetingroom command tree.
package cli

import (
	"github.com/ethanbaker/meetingroom/pkg/logging"
	"github.com/ethanbaker/meetingroom/pkg/utils"
	"github.com/spf13/cobra"
)

// NewRootCommand creates the meetingroom command with every subcommand attached
func NewRootCommand() *cobra.Command {
	var (
		envFile string
		cfg     *utils.Config
	)

	root := &cobra.Command{
		Use:   "meetingroom",
		Short: "Meeting room booking, recording and transcription orchestrator",
		Long: `meetingroom books the shared meeting room, drives the local recording agent
and tracks transcription jobs until their transcript reaches the meeting page.

Run 'meetingroom api' on the server and 'meetingroom agent' on the machine
running OBS Studio. Configuration is read from a .env file and the environment.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				envFile = utils.EnvFile()
			}

			cfg = utils.NewConfigFromEnv(envFile)
			logging.Setup(cfg.GetWithDefault("LOG_LEVEL", "info"), cfg.Get("LOG_FORMAT"), cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to the .env file (default $ENV_FILE or .env)")

	getConfig := func() *utils.Config { return cfg }
	root.AddCommand(
		newAPICommand(getConfig),
		newAgentCommand(getConfig),
		newRecordCommand(),
		newMeetingsCommand(),
	)

	return root
}

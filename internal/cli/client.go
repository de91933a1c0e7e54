package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/booking"
	"github.com/ethanbaker/meetingroom/pkg/sdk"
	"github.com/spf13/cobra"
)

func newRecordCommand() *cobra.Command {
	var (
		agentURL string
		apiKey   string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Control the recording agent",
	}
	cmd.PersistentFlags().StringVar(&agentURL, "agent-url", "http://127.0.0.1:4456", "Recording agent base URL")
	cmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Recording agent API key")

	client := func() *sdk.Client { return sdk.NewClient(agentURL, apiKey) }

	cmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Switch to the meeting scene and start recording",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				msg, err := client().StartRecording(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop recording",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				msg, err := client().StopRecording(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the recording software is reachable",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				status, err := client().RecordingStatus(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), status)
				return nil
			},
		},
	)

	return cmd
}

func newMeetingsCommand() *cobra.Command {
	var (
		apiURL   string
		jsonOut  bool
		start    string
		duration int
	)

	cmd := &cobra.Command{
		Use:   "meetings",
		Short: "Query the booking API",
	}
	cmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://127.0.0.1:3001", "Booking API base URL")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active meetings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			meetings, err := sdk.NewClient(apiURL, "").ListMeetings(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(meetings)
			}
			return writeMeetingTable(cmd.OutOrStdout(), meetings)
		},
	}
	list.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	check := &cobra.Command{
		Use:   "check",
		Short: "Check whether a slot is free",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conflict, err := sdk.NewClient(apiURL, "").CheckConflict(cmd.Context(), start, duration)
			if err != nil {
				return err
			}

			if conflict {
				fmt.Fprintln(cmd.OutOrStdout(), "conflict")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "free")
			}
			return nil
		},
	}
	check.Flags().StringVar(&start, "start", "", "Start time (RFC3339 or 2006-01-02T15:04)")
	check.Flags().IntVar(&duration, "duration", 60, "Duration in minutes")
	_ = check.MarkFlagRequired("start")

	cmd.AddCommand(list, check)
	return cmd
}

func writeMeetingTable(out io.Writer, meetings []booking.Meeting) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tMINUTES\tTITLE\tRESPONSIBLE")
	for _, m := range meetings {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			m.ID,
			m.StartDateTime.Local().Format(time.DateTime),
			m.DurationMinutes,
			strings.TrimSpace(m.Title),
			m.ResponsibleEmail,
		)
	}
	return w.Flush()
}

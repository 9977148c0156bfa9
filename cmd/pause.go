package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/ipc"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the current recording",
	Long: `Pause the current recording session.

The recording can be resumed later with 'kartoza-capture resume'. Paused time is
left out of the recording's duration. Backends without pause support refuse.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := sendCommand(cmd.Context(), ipc.CmdPause, nil)
		if err != nil {
			return err
		}

		fmt.Printf("Recording paused at %s.\n", formatDuration(st.Duration))
		fmt.Println("Use 'kartoza-capture resume' to continue recording.")
		return nil
	},
}

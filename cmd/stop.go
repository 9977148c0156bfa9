package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/ipc"
)

var (
	stopWait    bool
	stopTimeout time.Duration
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the current recording",
	Long: `Stop the recording running in the daemon.

The daemon finalizes the recording in the background: audio tracks are merged and
the file is moved to the output directory. Use --wait to block until it is ready.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := sendCommand(cmd.Context(), ipc.CmdStop, nil)
		if err != nil {
			return err
		}

		if !stopWait {
			fmt.Printf("Stopping recording %s...\n", st.RecordingID)
			fmt.Println("Use 'kartoza-capture status' to see when the file is ready.")
			return nil
		}

		fmt.Println("Finalizing recording...")
		final, err := waitFinal(cmd.Context(), st.RecordingID, stopTimeout)
		if err != nil {
			return err
		}
		return printFinal(final)
	},
}

func init() {
	stopCmd.Flags().BoolVarP(&stopWait, "wait", "w", false, "Wait until the recording is finalized")
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 3*time.Minute, "How long --wait waits")
}

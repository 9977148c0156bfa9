package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/ipc"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

var toggleFlags optionFlags

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle recording on/off",
	Long: `Toggle recording in the daemon. If a recording is active it is stopped,
otherwise a new recording starts with the given options. Handy for a hotkey.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := recordingOptions(cfg, toggleFlags)
		st, err := sendCommand(cmd.Context(), ipc.CmdToggle, &opts)
		if err != nil {
			return err
		}

		if st.State == models.StateStopping || !st.State.IsActive() {
			fmt.Println("Recording stopped.")
			return nil
		}
		fmt.Println("Recording started.")
		printStarted(st)
		return nil
	},
}

func init() {
	toggleFlags.register(toggleCmd)
}

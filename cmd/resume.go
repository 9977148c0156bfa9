package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/ipc"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused recording",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := sendCommand(cmd.Context(), ipc.CmdResume, nil); err != nil {
			return err
		}
		fmt.Println("Recording resumed.")
		return nil
	},
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/device"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

var screensJSONOutput bool

var screensCmd = &cobra.Command{
	Use:     "screens",
	Aliases: []string{"monitors"},
	Short:   "List capture surfaces and audio devices",
	Long:    `List the displays that can be recorded and the audio devices that can supply microphone or system audio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := device.NewManager(device.NewPlatform(), cfg.DeviceQueryTimeout, logger)
		snap := mgr.Refresh(cmd.Context())

		if screensJSONOutput {
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Println("Screens:")
		for _, s := range snap.Screens {
			primary := ""
			if s.Primary {
				primary = " (primary)"
			}
			fmt.Printf("  %-12s %s: %dx%d at (%d,%d)%s\n",
				s.ID, s.Name, s.Width, s.Height, s.X, s.Y, primary)
		}
		if snap.Synthetic {
			fmt.Println("  Enumeration failed; the primary display will be used.")
		}

		fmt.Println("\nAudio devices:")
		if len(snap.AudioInputs) == 0 {
			fmt.Println("  none found")
		}
		for _, d := range snap.AudioInputs {
			kind := "input"
			if d.Kind == models.KindAudioMonitor {
				kind = "system audio"
			}
			fmt.Printf("  [%s] %s\n      id: %s\n", kind, d.Name, d.ID)
		}
		return nil
	},
}

func init() {
	screensCmd.Flags().BoolVar(&screensJSONOutput, "json", false, "Output devices as JSON")
}

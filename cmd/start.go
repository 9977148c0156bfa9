package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/ipc"
)

// optionFlags are the recording choices shared by start, toggle and record
type optionFlags struct {
	surface       string
	audioDevice   string
	systemAudio   string
	quality       string
	outputDir     string
	filename      string
	noSystemAudio bool
	noMicrophone  bool
}

func (f *optionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.surface, "surface", "s", "", "Surface to record, e.g. display:0 (default: primary display)")
	cmd.Flags().StringVar(&f.audioDevice, "audio-device", "", "Microphone device id (default: first input)")
	cmd.Flags().StringVar(&f.systemAudio, "system-audio-device", "", "Device that supplies system audio (default: auto-detect)")
	cmd.Flags().StringVarP(&f.quality, "quality", "q", "", "Quality tier: low, medium or high")
	cmd.Flags().StringVarP(&f.outputDir, "output", "o", "", "Output directory (default: ~/Videos/Screencasts)")
	cmd.Flags().StringVar(&f.filename, "filename", "", "Output file name (default: timestamped)")
	cmd.Flags().BoolVar(&f.noSystemAudio, "no-system-audio", false, "Do not record system audio")
	cmd.Flags().BoolVar(&f.noMicrophone, "no-microphone", false, "Do not record the microphone")
}

var startFlags optionFlags

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a recording in the daemon",
	Long: `Ask the running daemon to start a new recording session.

The recording captures:
  - Video from the selected surface (or the primary display)
  - Microphone audio unless --no-microphone is set
  - System audio when a source is available, unless --no-system-audio is set

Backends are tried in the configured order and the first that can run is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := recordingOptions(cfg, startFlags)
		st, err := sendCommand(cmd.Context(), ipc.CmdStart, &opts)
		if err != nil {
			return err
		}

		fmt.Println("Recording started.")
		printStarted(st)
		return nil
	},
}

func printStarted(st ipc.Status) {
	fmt.Printf("  ID:       %s\n", st.RecordingID)
	fmt.Printf("  Backend:  %s\n", st.Strategy)
	fmt.Printf("  Output:   %s\n", st.OutputPath)
	if e := st.LastEvent; e != nil && e.RecordingID == st.RecordingID {
		for _, w := range e.Warnings {
			fmt.Printf("  Warning:  %s\n", w)
		}
	}
}

func init() {
	startFlags.register(startCmd)
}

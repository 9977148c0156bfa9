package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/ipc"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

var jsonOutput bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recording status",
	Long:  `Display the daemon's recording status including state, backend, duration and output path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := runtimeDir()

		var st ipc.Status
		running := true
		if _, err := dir.DaemonPID(); err != nil {
			running = false
			st.State = models.StateIdle
		} else if st, err = dir.ReadStatus(); err != nil {
			return fmt.Errorf("failed to read status: %w", err)
		}

		if jsonOutput {
			data, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		label := lipgloss.NewStyle().Foreground(lipgloss.Color("#9A9EA0"))
		value := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
		red := lipgloss.NewStyle().Foreground(lipgloss.Color("#E95420")).Bold(true)
		orange := lipgloss.NewStyle().Foreground(lipgloss.Color("#DDA036")).Bold(true)
		green := lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))

		row := func(name, v string) {
			fmt.Printf("%s %s\n", label.Render(fmt.Sprintf("%-10s", name+":")), value.Render(v))
		}

		if !running {
			fmt.Println(label.Render("Daemon:    ") + red.Render("not running"))
			fmt.Println("\nStart it with 'kartoza-capture serve'.")
			return nil
		}
		row("Daemon", fmt.Sprintf("running (pid %d)", st.PID))

		switch st.State {
		case models.StateRecording:
			fmt.Println(label.Render("Recording: ") + red.Render("● ACTIVE"))
		case models.StatePaused:
			fmt.Println(label.Render("Recording: ") + orange.Render("PAUSED"))
		case models.StateStarting, models.StateStopping:
			fmt.Println(label.Render("Recording: ") + orange.Render(string(st.State)))
		default:
			fmt.Println(label.Render("Recording: ") + value.Render("INACTIVE"))
		}

		if st.RecordingID != "" {
			row("ID", st.RecordingID)
		}
		if st.Strategy != "" {
			row("Backend", string(st.Strategy))
		}
		if st.State.IsActive() {
			row("Duration", formatDuration(st.Duration))
		}
		if st.OutputPath != "" {
			row("Output", st.OutputPath)
		}

		if e := st.LastEvent; e != nil && e.IsFinal() && !st.State.IsActive() {
			fmt.Println()
			if e.Type == models.EventCompleted {
				fmt.Println(green.Render("Last recording saved: ") + value.Render(e.OutputPath))
			} else {
				fmt.Println(red.Render("Last recording failed: ") + value.Render(e.Message))
				if e.PartialPath != "" {
					row("Partial", e.PartialPath)
				}
				for _, p := range e.ExtraPaths {
					row("Also kept", p)
				}
			}
		} else if st.LastError != "" {
			row("Error", st.LastError)
		}
		return nil
	},
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func init() {
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
}

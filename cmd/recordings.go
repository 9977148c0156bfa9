package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/filemanager"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/store"
)

var recordingsJSONOutput bool

// openFiles opens the recordings index and a file manager over it
func openFiles() (*filemanager.Manager, func(), error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, err
	}
	index, err := store.Open(cfg.IndexPath, logger)
	if err != nil {
		return nil, nil, err
	}
	files := filemanager.New(filemanager.Config{
		TempDir:   cfg.TempDir,
		OutputDir: cfg.OutputDir,
		Retention: cfg.Retention,
	}, index, logger)
	return files, func() { _ = index.Close() }, nil
}

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List finished recordings",
	RunE: func(cmd *cobra.Command, args []string) error {
		files, closeFn, err := openFiles()
		if err != nil {
			return err
		}
		defer closeFn()

		entries, err := files.GetAllRecordings(cmd.Context())
		if err != nil {
			return err
		}

		if recordingsJSONOutput {
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if len(entries) == 0 {
			fmt.Printf("No recordings in %s\n", cfg.OutputDir)
			return nil
		}
		for _, e := range entries {
			audio := ""
			if e.HasSystemAudio {
				audio = ", system audio"
			}
			fmt.Printf("%s  %s  %s  %s%s\n",
				e.CreatedAt.Format("2006-01-02 15:04"),
				formatDuration(e.Duration()),
				formatSize(e.SizeBytes),
				filepath.Base(e.Path),
				audio)
		}
		return nil
	},
}

var recordingsDeleteCmd = &cobra.Command{
	Use:   "delete <path>...",
	Short: "Delete recordings and their index entries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, closeFn, err := openFiles()
		if err != nil {
			return err
		}
		defer closeFn()

		for _, p := range args {
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			if err := files.DeleteRecording(cmd.Context(), abs); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", abs)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale temporary capture files",
	Long: `Remove temporary capture files older than the configured retention.
Files belonging to a recording in progress are never touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, closeFn, err := openFiles()
		if err != nil {
			return err
		}
		defer closeFn()

		report, err := files.CleanupOldFiles(cmd.Context())
		if err != nil {
			return err
		}
		for _, p := range report.Removed {
			fmt.Printf("Removed %s\n", p)
		}
		fmt.Printf("%d files removed, %s released\n", len(report.Removed), formatSize(report.BytesReleased))
		return nil
	},
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	recordingsCmd.Flags().BoolVar(&recordingsJSONOutput, "json", false, "Output recordings as JSON")
	recordingsCmd.AddCommand(recordingsDeleteCmd)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/config"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/ipc"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
)

var (
	version   = "dev"
	debugMode bool
	cfgFile   string

	cfg    *config.Config
	logger *zap.Logger
)

// SetVersion sets the application version (called from main)
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "kartoza-capture",
	Short: "Screen capture orchestration with backend fallback",
	Long: `Kartoza Capture records a display with microphone and system audio.

It supports:
  - Native, browser and hybrid capture backends with automatic fallback
  - Separate audio tracks merged into the final recording
  - Pause and resume across every backend that allows it
  - A background daemon driven by start/stop/toggle commands
  - A foreground recording view with live status

Run 'kartoza-capture serve' to start the daemon, or 'kartoza-capture record' to
record in the foreground.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if debugMode {
			cfg.Debug = true
		}
		logger, err = logging.New(cfg.Debug)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default action: record in the foreground with the TUI
		return runRecord(cmd.Context(), recordFlags{tui: true, countdown: 3})
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.config/kartoza-capture/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(screensCmd)
	rootCmd.AddCommand(permissionsCmd)
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(versionCmd)
}

func runtimeDir() ipc.Dir {
	return ipc.Dir(config.GetRuntimeDir())
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/beep"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/config"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/tui"
)

type recordFlags struct {
	optionFlags
	tui       bool
	countdown int
	noBeep    bool
	duration  time.Duration
}

var recFlags recordFlags

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record in the foreground",
	Long: `Record in this process without a daemon.

Without --tui the recording runs until Ctrl+C (or --duration) and prints the
result. With --tui a live view shows the state and accepts pause, resume and
stop keys.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd.Context(), recFlags)
	},
}

func init() {
	recFlags.register(recordCmd)
	recordCmd.Flags().BoolVarP(&recFlags.tui, "tui", "t", false, "Show the interactive recording view")
	recordCmd.Flags().IntVar(&recFlags.countdown, "countdown", 3, "Seconds to count down before recording (TUI only)")
	recordCmd.Flags().BoolVar(&recFlags.noBeep, "no-beep", false, "Do not beep during the countdown")
	recordCmd.Flags().DurationVarP(&recFlags.duration, "duration", "d", 0, "Stop automatically after this long")
}

func runRecord(parent context.Context, f recordFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	if pid, err := runtimeDir().DaemonPID(); err == nil {
		return fmt.Errorf("the capture daemon (pid %d) owns recording; use 'kartoza-capture start' instead", pid)
	}

	l := logger
	if f.tui {
		// the view owns the terminal
		path := filepath.Join(config.GetConfigDir(), "capture.log")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		fl, err := logging.NewFile(path, cfg.Debug)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = fl.Sync() }()
		l = fl
	}

	a, err := newApp(parent, cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			l.Warn("Shutdown incomplete", zap.Error(err))
		}
	}()

	opts := recordingOptions(cfg, f.optionFlags)
	events, unsubscribe := a.engine.Subscribe(64)
	defer unsubscribe()

	if f.tui {
		final, err := tui.Run(parent, a.engine, events, opts, f.countdown, countdownCue(f))
		if err != nil {
			return err
		}
		if final != nil {
			return printFinal(final)
		}
		return nil
	}

	return recordPlain(parent, a, events, opts, f.duration)
}

func countdownCue(f recordFlags) tui.CueFunc {
	if f.noBeep {
		return nil
	}
	return beep.New(cfg.FFmpegPath).Play
}

func recordPlain(ctx context.Context, a *app, events <-chan models.Event, opts models.RecordingOptions, limit time.Duration) error {
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := a.engine.StartRecording(ctx, opts)
	if err != nil {
		return errors.New(describeError(err))
	}

	fmt.Println("Recording started.")
	fmt.Printf("  Backend:  %s\n", res.Strategy)
	fmt.Printf("  Output:   %s\n", res.ExpectedOutputPath)
	if !res.HasSystemAudio {
		fmt.Println("  System audio is not being recorded.")
	}
	fmt.Println("Press Ctrl+C to stop.")

	var timer <-chan time.Time
	if limit > 0 {
		timer = time.After(limit)
	}
	stopReq := sigCtx.Done()

	stop := func() error {
		stopReq, timer = nil, nil
		fmt.Println("\nStopping, finalizing recording...")
		_, err := a.engine.StopRecording(ctx)
		return err
	}

	for {
		select {
		case <-stopReq:
			if err := stop(); err != nil {
				return err
			}
		case <-timer:
			if err := stop(); err != nil {
				return err
			}
		case e, ok := <-events:
			if !ok {
				return errors.New("engine closed before the recording finished")
			}
			if e.RecordingID != res.RecordingID {
				continue
			}
			switch {
			case e.IsFinal():
				fmt.Println()
				return printFinal(&e)
			case e.Type == models.EventProgress:
				fmt.Printf("\r  Recording %s", formatDuration(e.Duration))
			case e.Type == models.EventStarted:
				for _, w := range e.Warnings {
					fmt.Printf("  Warning:  %s\n", w)
				}
			}
		}
	}
}

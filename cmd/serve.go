package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/ipc"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/notify"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/orchestrator"
)

// shutdownTimeout bounds finalizing an active recording on exit
const shutdownTimeout = 2 * time.Minute

var noNotify bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture daemon",
	Long: `Run the capture daemon in the foreground.

The daemon owns the recording engine. Other invocations of kartoza-capture
(start, stop, pause, resume, toggle, status) talk to it through files in the
runtime directory. Only one daemon runs per user.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&noNotify, "no-notify", false, "Disable desktop notifications")
}

func runServe(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dir := runtimeDir()
	pid := os.Getpid()
	if err := dir.Claim(pid); err != nil {
		return err
	}
	defer dir.Release(pid)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	d := &daemon{
		ctx:    ctx,
		engine: a.engine,
		dir:    dir,
		opts:   func() models.RecordingOptions { return recordingOptions(cfg, optionFlags{}) },
		quit:   cancel,
		logger: logging.Component(logger, "daemon"),
	}

	var wg sync.WaitGroup
	events, unsubscribe := a.engine.Subscribe(64)
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.publish(events)
	}()

	if !noNotify && notify.Available() {
		notes, unsubNotes := a.engine.Subscribe(16)
		defer unsubNotes()
		n := notify.New(notify.NotifySend, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Run(ctx, notes)
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		a.files.RunCleanup(ctx, cfg.CleanupInterval)
	}()
	go func() {
		defer wg.Done()
		if err := a.files.WatchRecordings(ctx); err != nil && ctx.Err() == nil {
			d.logger.Warn("Recording directory watch stopped", zap.Error(err))
		}
	}()

	d.writeStatus()
	d.logger.Info("Capture daemon ready",
		zap.Int("pid", pid),
		zap.String("runtimeDir", string(dir)),
		zap.String("agentMode", cfg.AgentMode))

	watchErr := dir.WatchCommands(ctx, logger, d.handle)

	d.logger.Info("Capture daemon shutting down")
	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()
	closeErr := a.Close(closeCtx)

	unsubscribe()
	wg.Wait()
	dir.ClearStatus()

	if watchErr != nil && ctx.Err() == nil {
		return fmt.Errorf("command watch failed: %w", watchErr)
	}
	return closeErr
}

// daemon executes ipc commands against the engine and publishes its status
type daemon struct {
	ctx    context.Context
	engine *orchestrator.Engine
	dir    ipc.Dir
	opts   func() models.RecordingOptions
	quit   context.CancelFunc
	logger *zap.Logger

	mu         sync.Mutex
	lastEvent  *models.Event
	commandID  string
	commandErr string
}

func (d *daemon) handle(req ipc.Request) {
	log := d.logger.With(zap.String("command", string(req.Command)), zap.String("commandId", req.ID))
	log.Debug("Command received")

	var err error
	switch req.Command {
	case ipc.CmdStart:
		err = d.start(req.Options)
	case ipc.CmdStop:
		_, err = d.engine.StopRecording(d.ctx)
	case ipc.CmdPause:
		err = d.engine.PauseRecording(d.ctx)
	case ipc.CmdResume:
		err = d.engine.ResumeRecording(d.ctx)
	case ipc.CmdToggle:
		if d.engine.GetStatus().State.IsActive() {
			_, err = d.engine.StopRecording(d.ctx)
		} else {
			err = d.start(req.Options)
		}
	case ipc.CmdQuit:
		d.quit()
	}

	if err != nil {
		log.Warn("Command failed", zap.Error(err))
	}
	d.reply(req.ID, err)
}

func (d *daemon) start(opts *models.RecordingOptions) error {
	o := d.opts()
	if opts != nil {
		o = *opts
	}
	_, err := d.engine.StartRecording(d.ctx, o)
	return err
}

func (d *daemon) reply(id string, err error) {
	d.mu.Lock()
	d.commandID = id
	d.commandErr = ""
	if err != nil {
		d.commandErr = describeError(err)
	}
	d.mu.Unlock()
	d.writeStatus()
}

func (d *daemon) publish(events <-chan models.Event) {
	for e := range events {
		if e.Type != models.EventProgress {
			d.logger.Info("Recording event",
				zap.String("type", string(e.Type)),
				logging.RecordingID(e.RecordingID))
		}
		d.mu.Lock()
		ev := e
		d.lastEvent = &ev
		d.mu.Unlock()
		d.writeStatus()
	}
}

func (d *daemon) writeStatus() {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := ipc.StatusFrom(d.engine.GetStatus())
	st.LastEvent = d.lastEvent
	st.CommandID = d.commandID
	st.CommandError = d.commandErr
	if err := d.dir.WriteStatus(st); err != nil {
		d.logger.Warn("Failed to write status", zap.Error(err))
	}
}

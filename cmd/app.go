package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/agent"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/bridge"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/capture"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/config"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/deps"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/device"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/filemanager"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/merger"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/orchestrator"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/store"
)

// app holds the wired components of one control process
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	index   *store.Store
	devices *device.Manager
	files   *filemanager.Manager
	bridge  *bridge.Bridge
	engine  *orchestrator.Engine

	server *http.Server
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newApp wires the engine and its collaborators from the configuration and attaches
// the capture agent the way cfg.AgentMode asks.
func newApp(ctx context.Context, c *config.Config, l *zap.Logger) (*app, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	if missing := deps.MissingRequired(); len(missing) > 0 {
		l.Warn("Required tools are missing, native capture will be unavailable",
			zap.String("missing", deps.FormatMissing(missing)))
	}

	index, err := store.Open(c.IndexPath, l)
	if err != nil {
		return nil, err
	}

	devices := device.NewManager(device.NewPlatform(), c.DeviceQueryTimeout, l)
	files := filemanager.New(filemanager.Config{
		TempDir:   c.TempDir,
		OutputDir: c.OutputDir,
		Retention: c.Retention,
	}, index, l)

	mux := merger.New(c.FFmpegPath, l)
	assembler := capture.NewStreamAssembler(mux, l)
	b := bridge.New(l)

	factory := capture.NewFactory(capture.FactoryConfig{
		Framework: capture.NewNativeFramework(capture.FrameworkOptions{
			FFmpegPath:   c.FFmpegPath,
			MinOSVersion: c.NativeMinMacOS,
			OSVersion:    devices.OSVersion,
			Logger:       l,
		}),
		Bridge:           b,
		Assembler:        assembler,
		ContentTimeout:   c.DeviceQueryTimeout,
		HandshakeTimeout: c.HandshakeTimeout,
		Logger:           l,
	})

	engine := orchestrator.New(orchestrator.Config{
		Policy: capture.Policy{
			Order:           c.Strategies(),
			FailureCooldown: c.FailureCooldown,
		},
		CheckPermissions:   c.CheckPermissions,
		ProgressInterval:   c.ProgressInterval,
		Quality:            c.Quality,
		DefaultAudioDevice: c.DefaultAudioDevice,
	}, devices, files, factory, assembler, l)

	b.OnFailure(func(id, msg string) {
		go engine.ReportFailure(id, models.NewError(models.KindCapture, "capture agent: %s", msg))
	})

	runCtx, cancel := context.WithCancel(ctx)
	a := &app{
		cfg:     c,
		logger:  l,
		index:   index,
		devices: devices,
		files:   files,
		bridge:  b,
		engine:  engine,
		cancel:  cancel,
	}

	if err := a.attachAgent(runCtx, mux); err != nil {
		cancel()
		_ = index.Close()
		return nil, err
	}

	// warm the device cache so the first start does not pay for enumeration
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		devices.Refresh(runCtx)
	}()

	return a, nil
}

func (a *app) attachAgent(ctx context.Context, joiner agent.Joiner) error {
	switch a.cfg.AgentMode {
	case "remote":
		mux := http.NewServeMux()
		mux.Handle(bridge.AgentPath, bridge.NewHandler(a.bridge, a.logger))
		a.server = &http.Server{
			Addr:              a.cfg.AgentListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.logger.Info("Waiting for capture agents", zap.String("addr", a.cfg.AgentListenAddr))
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Agent listener failed", zap.Error(err))
			}
		}()
	default:
		ctrlSide, agentSide := bridge.Pipe()
		a.bridge.Attach(ctrlSide)
		ag := agent.New(agent.NewFFmpegCapturer(a.cfg.FFmpegPath), joiner, a.logger)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := ag.Serve(ctx, agentSide); err != nil && ctx.Err() == nil {
				a.logger.Warn("Embedded agent stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

// Close stops any active recording, waits for it to finalize and releases resources
func (a *app) Close(ctx context.Context) error {
	err := a.engine.Close(ctx)
	a.cancel()
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.server.Shutdown(shutdownCtx)
		cancel()
	}
	_ = a.bridge.Close()
	a.wg.Wait()
	if cerr := a.index.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// recordingOptions builds start options from the config and command flags
func recordingOptions(c *config.Config, f optionFlags) models.RecordingOptions {
	opts := models.DefaultRecordingOptions()
	opts.IncludeSystemAudio = c.IncludeSystemAudio && !f.noSystemAudio
	opts.IncludeMicrophone = c.IncludeMicrophone && !f.noMicrophone
	opts.Quality = c.Quality
	opts.OutputDir = c.OutputDir
	opts.AudioDeviceID = c.DefaultAudioDevice

	if f.surface != "" {
		opts.SurfaceID = f.surface
	}
	if f.audioDevice != "" {
		opts.AudioDeviceID = f.audioDevice
	}
	if f.systemAudio != "" {
		opts.SystemAudioID = f.systemAudio
	}
	if f.quality != "" {
		opts.Quality = models.QualityTier(f.quality)
	}
	if f.outputDir != "" {
		opts.OutputDir = f.outputDir
	}
	opts.Filename = f.filename
	return opts
}

//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/deps"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/proc"
)

// waylandFramework records with wl-screenrec and PipeWire
type waylandFramework struct {
	hasTool func(names ...string) bool
	display func() deps.DisplayServer
	logger  *zap.Logger
}

// NewNativeFramework returns the native framework for this OS
func NewNativeFramework(opts FrameworkOptions) NativeFramework {
	return &waylandFramework{
		hasTool: deps.Available,
		display: deps.DetectDisplayServer,
		logger:  logging.Component(opts.Logger, "wayland-capture"),
	}
}

func (w *waylandFramework) Name() string { return "wl-screenrec" }

func (w *waylandFramework) Check(ctx context.Context) error {
	if w.display() != deps.DisplayServerWayland {
		return errors.New("wl-screenrec needs a Wayland session")
	}
	if !w.hasTool("wl-screenrec") {
		return errors.New("wl-screenrec is not installed")
	}
	return nil
}

func (w *waylandFramework) ShareableContent(ctx context.Context) (Content, error) {
	return Content{SystemAudio: w.hasTool("pw-record")}, nil
}

// Open starts the video capture and the PipeWire recorders. A system audio recorder
// that cannot start fails the whole request with ErrSystemAudioUnavailable so the
// caller can retry without it.
func (w *waylandFramework) Open(ctx context.Context, cfg SessionConfig) (NativeSession, error) {
	// Software encoding by default (more compatible)
	args := []string{"--no-hw", "--filename=" + cfg.VideoPath, "--encode-pixfmt", "yuv420p"}
	if cfg.Surface.Native != "" {
		args = append(args, "--output="+cfg.Surface.Native)
	}

	video, err := proc.Start("wl-screenrec", args...)
	if err != nil {
		return nil, err
	}
	if err := video.CheckStartup(startupWindow); err != nil {
		return nil, err
	}

	s := &processSession{video: video, artifacts: Artifacts{Video: cfg.VideoPath}}

	if cfg.SystemAudio != nil {
		r, err := startRecorder("", cfg.SystemAudio.Native, cfg.SystemAudioPath)
		if err != nil {
			_ = video.Stop(proc.DefaultStopGrace)
			removeQuietly(cfg.VideoPath)
			return nil, fmt.Errorf("%w: %v", ErrSystemAudioUnavailable, err)
		}
		s.system = r
		s.artifacts.SystemAudio = cfg.SystemAudioPath
	}

	if cfg.Microphone != nil {
		r, err := startRecorder("", cfg.Microphone.Native, cfg.MicrophonePath)
		if err != nil {
			w.logger.Warn("Microphone recording failed, continuing without it", zap.Error(err))
			s.warnings = append(s.warnings, fmt.Sprintf("microphone unavailable: %v", err))
		} else {
			s.mic = r
			s.artifacts.Microphone = cfg.MicrophonePath
		}
	}

	return s, nil
}

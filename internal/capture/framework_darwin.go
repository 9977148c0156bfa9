//go:build darwin

package capture

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/deps"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/device"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/proc"
)

// DefaultMinOSVersion is the first macOS release with a stable capture framework
const DefaultMinOSVersion = "12.3"

// avfoundationFramework records through ffmpeg's avfoundation device
type avfoundationFramework struct {
	ffmpeg     string
	minVersion string
	osVersion  func(ctx context.Context) string
	logger     *zap.Logger
}

// NewNativeFramework returns the native framework for this OS
func NewNativeFramework(opts FrameworkOptions) NativeFramework {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.MinOSVersion == "" {
		opts.MinOSVersion = DefaultMinOSVersion
	}
	return &avfoundationFramework{
		ffmpeg:     opts.FFmpegPath,
		minVersion: opts.MinOSVersion,
		osVersion:  opts.OSVersion,
		logger:     logging.Component(opts.Logger, "avfoundation-capture"),
	}
}

func (a *avfoundationFramework) Name() string { return "avfoundation" }

func (a *avfoundationFramework) Check(ctx context.Context) error {
	var have string
	if a.osVersion != nil {
		have = a.osVersion(ctx)
	}
	if !device.VersionAtLeast(have, a.minVersion) {
		return &VersionGateError{Framework: a.Name(), Have: have, Need: a.minVersion}
	}
	if !deps.Available(a.ffmpeg) {
		return fmt.Errorf("%s is not installed", a.ffmpeg)
	}
	return nil
}

// ShareableContent reports system audio when a loopback device is installed
func (a *avfoundationFramework) ShareableContent(ctx context.Context) (Content, error) {
	p := device.NewPlatform()
	audio, err := p.ListAudioDevices(ctx)
	if err != nil {
		return Content{}, err
	}
	screens, _ := p.ListScreens(ctx)

	c := Content{}
	for _, s := range screens {
		c.Displays = append(c.Displays, s.ID)
	}
	for _, d := range audio {
		if d.CanSupplySystemAudio {
			c.SystemAudio = true
		}
	}
	return c, nil
}

// Open captures the screen and the system audio loopback device as one avfoundation
// input; the microphone is a separate track
func (a *avfoundationFramework) Open(ctx context.Context, cfg SessionConfig) (NativeSession, error) {
	input := cfg.Surface.Native + ":none"
	if cfg.SystemAudio != nil {
		input = cfg.Surface.Native + ":" + cfg.SystemAudio.Native
	}

	args := []string{
		"-f", "avfoundation",
		"-capture_cursor", "1",
		"-framerate", strconv.Itoa(cfg.Quality.FPS()),
		"-i", input,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", strconv.Itoa(cfg.Quality.CRF()),
		"-pix_fmt", "yuv420p",
	}
	if cfg.SystemAudio != nil {
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	}
	args = append(args, "-y", cfg.VideoPath)

	video, err := proc.Start(a.ffmpeg, args...)
	if err != nil {
		return nil, err
	}
	if err := video.CheckStartup(startupWindow); err != nil {
		if cfg.SystemAudio != nil {
			return nil, fmt.Errorf("%w: %v", ErrSystemAudioUnavailable, err)
		}
		return nil, err
	}

	s := &processSession{
		video:     video,
		artifacts: Artifacts{Video: cfg.VideoPath, VideoHasAudio: cfg.SystemAudio != nil},
	}

	if cfg.Microphone != nil {
		r, err := startRecorder(a.ffmpeg, cfg.Microphone.Native, cfg.MicrophonePath)
		if err != nil {
			a.logger.Warn("Microphone recording failed, continuing without it", zap.Error(err))
			s.warnings = append(s.warnings, fmt.Sprintf("microphone unavailable: %v", err))
		} else {
			s.mic = r
			s.artifacts.Microphone = cfg.MicrophonePath
		}
	}

	return s, nil
}

package agent

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/proc"
)

// Job is one capture part the agent runs
type Job struct {
	// Surface is the platform's own screen id (X11 display name, avfoundation index)
	Surface string
	Width   int
	Height  int
	OffsetX int
	OffsetY int
	// Mic is the platform's own microphone id; empty records no audio
	Mic     string
	Quality models.QualityTier
	Output  string
}

// Capture is a running capture part
type Capture interface {
	Stop() error
	Done() <-chan struct{}
	// Reason describes why the capture ended on its own
	Reason() string
}

// Capturer starts capture parts
type Capturer interface {
	Start(ctx context.Context, j Job) (Capture, error)
}

// FFmpegCapturer grabs the screen with ffmpeg: x11grab on Linux, avfoundation on macOS
// and gdigrab on Windows
type FFmpegCapturer struct {
	FFmpegPath string
	// Display is the X11 display to grab; defaults to $DISPLAY
	Display string
	GOOS    string
	// StartupWindow is how long ffmpeg must survive to count as started
	StartupWindow time.Duration
}

// NewFFmpegCapturer creates a capturer for the current OS
func NewFFmpegCapturer(ffmpegPath string) *FFmpegCapturer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegCapturer{
		FFmpegPath:    ffmpegPath,
		Display:       os.Getenv("DISPLAY"),
		GOOS:          runtime.GOOS,
		StartupWindow: time.Second,
	}
}

// Start launches ffmpeg for one part
func (c *FFmpegCapturer) Start(ctx context.Context, j Job) (Capture, error) {
	args := grabArgs(c.GOOS, c.Display, j)
	p, err := proc.Start(c.FFmpegPath, args...)
	if err != nil {
		return nil, err
	}
	if err := p.CheckStartup(c.StartupWindow); err != nil {
		return nil, err
	}
	return processCapture{p}, nil
}

type processCapture struct {
	p *proc.Process
}

func (c processCapture) Stop() error           { return c.p.Stop(proc.DefaultStopGrace) }
func (c processCapture) Done() <-chan struct{} { return c.p.Done() }
func (c processCapture) Reason() string {
	return fmt.Sprintf("%s exited: %v: %s", c.p.Name(), c.p.Err(), c.p.Stderr())
}

// grabArgs builds the ffmpeg command line for a screen grab plus optional microphone
func grabArgs(goos, display string, j Job) []string {
	fps := strconv.Itoa(j.Quality.FPS())
	size := ""
	if j.Width > 0 && j.Height > 0 {
		size = fmt.Sprintf("%dx%d", j.Width, j.Height)
	}

	var args []string
	switch goos {
	case "darwin":
		// "<screen>:<mic>" selects both devices in one avfoundation input
		mic := j.Mic
		if mic == "" {
			mic = "none"
		}
		screen := j.Surface
		if screen == "" {
			screen = "1"
		}
		args = []string{
			"-f", "avfoundation",
			"-framerate", fps,
			"-capture_cursor", "1",
			"-i", screen + ":" + mic,
		}

	case "windows":
		args = []string{
			"-f", "gdigrab",
			"-framerate", fps,
			"-offset_x", strconv.Itoa(j.OffsetX),
			"-offset_y", strconv.Itoa(j.OffsetY),
		}
		if size != "" {
			args = append(args, "-video_size", size)
		}
		args = append(args, "-i", "desktop")
		if j.Mic != "" {
			args = append(args, "-f", "dshow", "-i", "audio="+j.Mic)
		}

	default:
		if display == "" {
			display = ":0"
		}
		args = []string{
			"-f", "x11grab",
			"-framerate", fps,
		}
		if size != "" {
			args = append(args, "-video_size", size)
		}
		args = append(args, "-i", fmt.Sprintf("%s+%d,%d", display, j.OffsetX, j.OffsetY))
		if j.Mic != "" {
			args = append(args, "-f", "pulse", "-i", j.Mic)
		}
	}

	// realtime encode: minimal latency, keyframe every 2 seconds
	args = append(args,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-crf", strconv.Itoa(j.Quality.CRF()),
		"-pix_fmt", "yuv420p",
		"-g", strconv.Itoa(j.Quality.FPS()*2),
	)
	if j.Mic != "" {
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	}
	return append(args, "-y", j.Output)
}

// Package audio records a single audio track (microphone or system monitor) to a file.
package audio

import (
	"fmt"
	"time"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/proc"
)

// startupWindow is how long a recorder must survive to count as started
const startupWindow = 300 * time.Millisecond

// Recorder handles audio recording through the platform's capture tool
type Recorder struct {
	device     string
	outputFile string
	ffmpeg     string
	proc       *proc.Process
}

// NewRecorder creates a new audio recorder. device is the platform handle (PipeWire target,
// avfoundation index or dshow name); empty selects the platform default input.
func NewRecorder(device, outputFile string) *Recorder {
	if device == "" {
		device = defaultDevice
	}
	return &Recorder{
		device:     device,
		outputFile: outputFile,
		ffmpeg:     "ffmpeg",
	}
}

// WithFFmpeg overrides the ffmpeg executable on platforms that record through it
func (r *Recorder) WithFFmpeg(path string) *Recorder {
	if path != "" {
		r.ffmpeg = path
	}
	return r
}

// Start begins audio recording
func (r *Recorder) Start() error {
	name, args := recordCommand(r.ffmpeg, r.device, r.outputFile)
	p, err := proc.Start(name, args...)
	if err != nil {
		return fmt.Errorf("failed to start audio recording: %w", err)
	}
	if err := p.CheckStartup(startupWindow); err != nil {
		return fmt.Errorf("audio recording from %s failed: %w", r.device, err)
	}
	r.proc = p
	return nil
}

// Stop stops audio recording and waits for the file to be finalized
func (r *Recorder) Stop() error {
	if r.proc == nil {
		return nil
	}
	return r.proc.Stop(proc.DefaultStopGrace)
}

// Done is closed when the recorder process exits; nil before Start
func (r *Recorder) Done() <-chan struct{} {
	if r.proc == nil {
		return nil
	}
	return r.proc.Done()
}

// PID returns the process ID
func (r *Recorder) PID() int {
	if r.proc == nil {
		return 0
	}
	return r.proc.PID()
}

// Device returns the device being recorded
func (r *Recorder) Device() string {
	return r.device
}

// OutputFile returns the file the recorder writes
func (r *Recorder) OutputFile() string {
	return r.outputFile
}

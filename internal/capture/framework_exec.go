package capture

import (
	"context"
	"sync"
	"time"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/audio"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/proc"
)

// startupWindow is how long a capture program must survive to count as started
const startupWindow = time.Second

// processSession is a NativeSession made of a video process and optional audio recorders
type processSession struct {
	video  *proc.Process
	system *audio.Recorder
	mic    *audio.Recorder

	artifacts Artifacts
	warnings  []string

	stopOnce sync.Once
	stopErr  error
}

func (s *processSession) Done() <-chan struct{} {
	return s.video.Done()
}

func (s *processSession) Warnings() []string {
	return s.warnings
}

// Stop interrupts every process concurrently so the tracks end together
func (s *processSession) Stop(ctx context.Context) (Artifacts, error) {
	s.stopOnce.Do(func() {
		var wg sync.WaitGroup
		var videoErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			videoErr = s.video.Stop(proc.DefaultStopGrace)
		}()
		for _, r := range []*audio.Recorder{s.system, s.mic} {
			if r == nil {
				continue
			}
			wg.Add(1)
			go func(r *audio.Recorder) {
				defer wg.Done()
				_ = r.Stop()
			}(r)
		}
		wg.Wait()
		s.stopErr = videoErr
	})

	art := s.artifacts
	if !fileExists(art.Video) {
		art.Video = ""
	}
	if !fileExists(art.SystemAudio) {
		art.SystemAudio = ""
	}
	if !fileExists(art.Microphone) {
		art.Microphone = ""
	}
	return art, s.stopErr
}

// startRecorder starts an audio recorder for dev, or returns nil with a warning
func startRecorder(ffmpeg, device, path string) (*audio.Recorder, error) {
	r := audio.NewRecorder(device, path).WithFFmpeg(ffmpeg)
	if err := r.Start(); err != nil {
		return nil, err
	}
	return r, nil
}

package capture

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// HybridBackend records system audio through the native framework and video plus
// microphone through the agent. The tracks are merged by the StreamAssembler.
type HybridBackend struct {
	audio  *NativeBackend
	video  *BrowserBackend
	logger *zap.Logger

	stopOnce sync.Once
	final    FinalInfo
	finalErr error
}

// NewHybridBackend composes a native audio strategy with a browser video strategy
func NewHybridBackend(audio *NativeBackend, video *BrowserBackend, logger *zap.Logger) *HybridBackend {
	audio.dropVideo = true
	return &HybridBackend{
		audio:  audio,
		video:  video,
		logger: logging.Component(logger, "hybrid").With(zap.String(logging.KeyStrategy, string(models.StrategyHybrid))),
	}
}

func (h *HybridBackend) Kind() models.StrategyKind { return models.StrategyHybrid }
func (h *HybridBackend) Split() bool               { return true }

func (h *HybridBackend) SupportsPause() bool {
	return h.audio.SupportsPause() && h.video.SupportsPause()
}

// Start opens native system audio first; without it a hybrid capture has no purpose
func (h *HybridBackend) Start(ctx context.Context, req StartRequest) (HandleInfo, error) {
	if !req.WantSystemAudio() {
		return HandleInfo{}, unavailable(nil, "hybrid capture needs a system audio request")
	}

	audioReq := req
	audioReq.Microphone = nil
	audioInfo, err := h.audio.Start(ctx, audioReq)
	if err != nil {
		_, _ = h.audio.Stop(ctx)
		return HandleInfo{}, unavailable(err, "native audio part failed")
	}
	if !audioInfo.HasSystemAudio {
		_, _ = h.audio.Stop(ctx)
		h.discard()
		return HandleInfo{}, unavailable(nil, "native framework supplied no system audio")
	}

	videoReq := req
	videoReq.SystemAudio = nil
	videoInfo, err := h.video.Start(ctx, videoReq)
	if err != nil {
		// the agent may have begun capturing without acknowledging it
		_, _ = h.video.Stop(context.WithoutCancel(ctx))
		_, _ = h.audio.Stop(ctx)
		h.discard()
		return HandleInfo{}, err
	}

	h.logger.Info("Hybrid capture started", logging.RecordingID(req.RecordingID))
	return HandleInfo{
		ExpectedOutputPath: req.OutputPath,
		HasSystemAudio:     true,
		Warnings:           append(audioInfo.Warnings, videoInfo.Warnings...),
	}, nil
}

// discard removes native audio produced by an aborted start
func (h *HybridBackend) discard() {
	for _, p := range h.audio.final.Artifacts.Paths() {
		removeQuietly(p)
	}
}

// Pause pauses both parts
func (h *HybridBackend) Pause(ctx context.Context) error {
	if err := h.video.Pause(ctx); err != nil {
		return err
	}
	return h.audio.Pause(ctx)
}

// Resume resumes both parts
func (h *HybridBackend) Resume(ctx context.Context) error {
	if err := h.audio.Resume(ctx); err != nil {
		return err
	}
	return h.video.Resume(ctx)
}

// Stop stops both parts concurrently and combines their artifacts
func (h *HybridBackend) Stop(ctx context.Context) (FinalInfo, error) {
	h.stopOnce.Do(func() {
		h.final, h.finalErr = h.stop(ctx)
	})
	return h.final, h.finalErr
}

func (h *HybridBackend) stop(ctx context.Context) (FinalInfo, error) {
	var (
		wg                 sync.WaitGroup
		audioFinal         FinalInfo
		audioErr, videoErr error
		videoFinal         FinalInfo
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		audioFinal, audioErr = h.audio.Stop(ctx)
	}()
	go func() {
		defer wg.Done()
		videoFinal, videoErr = h.video.Stop(ctx)
	}()
	wg.Wait()

	warnings := append(audioFinal.Warnings, videoFinal.Warnings...)
	if audioErr != nil {
		warnings = append(warnings, "native audio part: "+audioErr.Error())
	}

	if videoErr != nil {
		// the native audio is kept and reported alongside the failure
		if p := audioFinal.Artifacts.SystemAudio; p != "" {
			if models.PathOf(videoErr) == "" {
				var ce *models.CaptureError
				if errors.As(videoErr, &ce) {
					ce.WithPath(p)
				}
			} else {
				warnings = append(warnings, "system audio kept at "+p)
			}
		}
		return FinalInfo{Artifacts: Artifacts{SystemAudio: audioFinal.Artifacts.SystemAudio}, Warnings: warnings}, videoErr
	}

	return FinalInfo{
		Artifacts: Artifacts{
			Video:         videoFinal.Artifacts.Video,
			VideoHasAudio: videoFinal.Artifacts.VideoHasAudio,
			SystemAudio:   audioFinal.Artifacts.SystemAudio,
		},
		HasSystemAudio: audioFinal.HasSystemAudio,
		Warnings:       warnings,
	}, nil
}

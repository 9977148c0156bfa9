package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// NativeBackend captures through the OS framework. Pause and resume roll over to a new
// part per track; parts are joined on stop.
type NativeBackend struct {
	fw        NativeFramework
	content   *contentCache
	assembler *StreamAssembler
	logger    *zap.Logger

	// dropVideo makes the backend deliver audio tracks only (hybrid use)
	dropVideo bool

	mu             sync.Mutex
	req            StartRequest
	base           Artifacts
	session        NativeSession
	parts          []Artifacts
	warnings       []string
	hasSystemAudio bool
	stopping       bool

	stopOnce  sync.Once
	final     FinalInfo
	finalErr  error
	watchStop chan struct{}
}

// NewNativeBackend creates a native strategy for one recording
func NewNativeBackend(fw NativeFramework, content *contentCache, assembler *StreamAssembler, logger *zap.Logger) *NativeBackend {
	return &NativeBackend{
		fw:        fw,
		content:   content,
		assembler: assembler,
		logger:    logging.Component(logger, "native").With(zap.String(logging.KeyStrategy, string(models.StrategyNative))),
		watchStop: make(chan struct{}),
	}
}

func (n *NativeBackend) Kind() models.StrategyKind { return models.StrategyNative }
func (n *NativeBackend) SupportsPause() bool       { return true }
func (n *NativeBackend) Split() bool               { return false }

// Start checks the framework, queries its content through the cache and opens the
// joint video and system audio capture
func (n *NativeBackend) Start(ctx context.Context, req StartRequest) (HandleInfo, error) {
	if n.fw == nil {
		return HandleInfo{}, unavailable(nil, "no native capture framework on this host")
	}
	if err := n.fw.Check(ctx); err != nil {
		return HandleInfo{}, unavailable(err, "%s is not usable", n.fw.Name())
	}

	content, err := n.content.Get(ctx)
	if err != nil {
		return HandleInfo{}, unavailable(err, "%s content query failed", n.fw.Name())
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.req = req
	n.base = Artifacts{
		Video:       trackPath(req.OutputPath, "video", filepath.Ext(req.OutputPath)),
		SystemAudio: trackPath(req.OutputPath, "system", ".wav"),
		Microphone:  trackPath(req.OutputPath, "mic", ".wav"),
	}

	wantSystem := req.WantSystemAudio() && content.SystemAudio
	if req.WantSystemAudio() && !content.SystemAudio {
		n.warnings = append(n.warnings, fmt.Sprintf("%s cannot supply system audio", n.fw.Name()))
	}

	session, hasSystem, err := n.assembler.Acquire(ctx, wantSystem, n.opener(0))
	if err != nil {
		return HandleInfo{}, unavailable(err, "%s failed to start capture", n.fw.Name())
	}

	n.session = session
	n.hasSystemAudio = hasSystem
	go n.watch(session)

	n.logger.Info("Native capture started",
		logging.RecordingID(req.RecordingID),
		zap.String("framework", n.fw.Name()),
		zap.String("surface", req.Surface.ID),
		zap.Bool("hasSystemAudio", hasSystem))

	return HandleInfo{
		ExpectedOutputPath: req.OutputPath,
		HasSystemAudio:     hasSystem,
		Warnings:           append([]string(nil), n.warnings...),
	}, nil
}

// opener builds the framework request for one part. Video is always requested.
func (n *NativeBackend) opener(part int) OpenFunc {
	return func(ctx context.Context, withSystemAudio bool) (NativeSession, error) {
		cfg := SessionConfig{
			Surface:    n.req.Surface,
			Microphone: n.req.Microphone,
			Quality:    n.req.Quality,
			VideoPath:  partPath(n.base.Video, part),
		}
		if withSystemAudio {
			cfg.SystemAudio = n.req.SystemAudio
			cfg.SystemAudioPath = partPath(n.base.SystemAudio, part)
		}
		if n.req.Microphone != nil {
			cfg.MicrophonePath = partPath(n.base.Microphone, part)
		}
		return n.fw.Open(ctx, cfg)
	}
}

// watch reports a capture that ends while it should be running
func (n *NativeBackend) watch(s NativeSession) {
	select {
	case <-s.Done():
	case <-n.watchStop:
		return
	}

	n.mu.Lock()
	unexpected := n.session == s && !n.stopping
	onFailure := n.req.OnFailure
	n.mu.Unlock()

	if unexpected && onFailure != nil {
		onFailure(fmt.Errorf("%s capture ended unexpectedly", n.fw.Name()))
	}
}

// Pause finalizes the current part
func (n *NativeBackend) Pause(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.session == nil {
		return models.NewError(models.KindInvalidState, "native capture is not running")
	}
	s := n.session
	n.session = nil
	art, err := s.Stop(ctx)
	n.collect(s, art)
	if err != nil {
		return fmt.Errorf("failed to finalize part %d: %w", len(n.parts), err)
	}
	return nil
}

// Resume opens the next part with the same system audio decision as the first
func (n *NativeBackend) Resume(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.session != nil {
		return models.NewError(models.KindInvalidState, "native capture is already running")
	}
	s, err := n.opener(len(n.parts))(ctx, n.hasSystemAudio)
	if err != nil {
		return fmt.Errorf("failed to resume capture: %w", err)
	}
	n.session = s
	go n.watch(s)
	return nil
}

func (n *NativeBackend) collect(s NativeSession, art Artifacts) {
	if !art.Empty() {
		n.parts = append(n.parts, art)
	}
	n.warnings = append(n.warnings, s.Warnings()...)
}

// Stop finalizes the running part, joins all parts and releases the framework handle.
// Repeated calls return the first result.
func (n *NativeBackend) Stop(ctx context.Context) (FinalInfo, error) {
	n.stopOnce.Do(func() {
		n.final, n.finalErr = n.stop(ctx)
	})
	return n.final, n.finalErr
}

func (n *NativeBackend) stop(ctx context.Context) (FinalInfo, error) {
	n.mu.Lock()
	n.stopping = true
	s := n.session
	n.session = nil
	n.mu.Unlock()
	close(n.watchStop)

	var stopErr error
	if s != nil {
		art, err := s.Stop(ctx)
		n.mu.Lock()
		n.collect(s, art)
		n.mu.Unlock()
		stopErr = err
	}

	n.mu.Lock()
	parts := append([]Artifacts(nil), n.parts...)
	warnings := append([]string(nil), n.warnings...)
	hasSystem := n.hasSystemAudio
	n.mu.Unlock()

	if len(parts) == 0 {
		if stopErr != nil {
			return FinalInfo{}, fmt.Errorf("native capture stop failed: %w", stopErr)
		}
		return FinalInfo{Warnings: warnings}, nil
	}

	art, joinWarnings := n.assembler.JoinParts(ctx, parts, n.base)
	warnings = append(warnings, joinWarnings...)
	if stopErr != nil {
		warnings = append(warnings, stopErr.Error())
	}

	if n.dropVideo {
		art, warnings = n.audioOnly(ctx, art, warnings)
	}

	return FinalInfo{Artifacts: art, HasSystemAudio: hasSystem && (art.SystemAudio != "" || art.VideoHasAudio), Warnings: warnings}, nil
}

// audioOnly drops the video track that was only captured to keep the request safe
func (n *NativeBackend) audioOnly(ctx context.Context, art Artifacts, warnings []string) (Artifacts, []string) {
	out := Artifacts{SystemAudio: art.SystemAudio, Microphone: art.Microphone}
	if art.Video == "" {
		return out, warnings
	}
	if art.VideoHasAudio && out.SystemAudio == "" {
		extracted := trackPath(n.req.OutputPath, "system", ".m4a")
		if err := n.assembler.Muxer().DropVideo(ctx, art.Video, extracted); err != nil {
			// keep the container so the audio is not lost
			warnings = append(warnings, fmt.Sprintf("could not extract system audio: %v", err))
			out.SystemAudio = art.Video
			return out, warnings
		}
		out.SystemAudio = extracted
	}
	removeQuietly(art.Video)
	return out, warnings
}

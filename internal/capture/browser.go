package capture

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/bridge"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// BrowserBackend drives a capture agent through the bridge. It captures video and
// microphone only; system audio is never available on this path.
type BrowserBackend struct {
	bridge           *bridge.Bridge
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	logger           *zap.Logger

	mu       sync.Mutex
	req      StartRequest
	expected string
	// attempted is set once start was sent; the agent may begin capturing even when
	// its acknowledgement never reaches us
	attempted bool
	started   bool

	stopOnce sync.Once
	final    FinalInfo
	finalErr error
}

// NewBrowserBackend creates a browser strategy for one recording
func NewBrowserBackend(b *bridge.Bridge, requestTimeout, handshakeTimeout time.Duration, logger *zap.Logger) *BrowserBackend {
	return &BrowserBackend{
		bridge:           b,
		requestTimeout:   requestTimeout,
		handshakeTimeout: handshakeTimeout,
		logger:           logging.Component(logger, "browser").With(zap.String(logging.KeyStrategy, string(models.StrategyBrowser))),
	}
}

func (b *BrowserBackend) Kind() models.StrategyKind { return models.StrategyBrowser }
func (b *BrowserBackend) SupportsPause() bool       { return true }
func (b *BrowserBackend) Split() bool               { return true }

// Start asks the agent to begin capturing the surface and microphone
func (b *BrowserBackend) Start(ctx context.Context, req StartRequest) (HandleInfo, error) {
	if b.bridge == nil || !b.bridge.Connected() {
		return HandleInfo{}, unavailable(bridge.ErrNoAgent, "browser capture agent unavailable")
	}

	expected := trackPath(req.OutputPath, "screen", filepath.Ext(req.OutputPath))
	msg := bridge.Message{
		Type:          bridge.MsgStart,
		RecordingID:   req.RecordingID,
		SurfaceID:     req.Surface.ID,
		SurfaceNative: req.Surface.Native,
		Width:         req.Surface.Width,
		Height:        req.Surface.Height,
		OffsetX:       req.Surface.X,
		OffsetY:       req.Surface.Y,
		Quality:       req.Quality,
		OutputPath:    expected,
	}
	if req.Microphone != nil {
		msg.MicID = req.Microphone.ID
		msg.MicNative = req.Microphone.Native
	}

	b.mu.Lock()
	b.req = req
	b.expected = expected
	b.attempted = true
	b.mu.Unlock()

	if _, err := b.bridge.Request(ctx, msg, b.requestTimeout); err != nil {
		return HandleInfo{}, unavailable(err, "agent could not start capture")
	}

	b.mu.Lock()
	b.started = true
	b.mu.Unlock()

	b.logger.Info("Agent capture started",
		logging.RecordingID(req.RecordingID),
		zap.String("surface", req.Surface.ID),
		zap.String(logging.KeyPath, expected))

	var warnings []string
	if req.WantSystemAudio() {
		warnings = append(warnings, "browser capture cannot record system audio")
	}
	return HandleInfo{ExpectedOutputPath: expected, HasSystemAudio: false, Warnings: warnings}, nil
}

func (b *BrowserBackend) request(ctx context.Context, t bridge.MessageType) error {
	b.mu.Lock()
	started, id := b.started, b.req.RecordingID
	b.mu.Unlock()
	if !started {
		return models.NewError(models.KindInvalidState, "agent capture is not running")
	}
	_, err := b.bridge.Request(ctx, bridge.Message{Type: t, RecordingID: id}, b.requestTimeout)
	return err
}

// Pause forwards to the agent
func (b *BrowserBackend) Pause(ctx context.Context) error {
	return b.request(ctx, bridge.MsgPause)
}

// Resume forwards to the agent
func (b *BrowserBackend) Resume(ctx context.Context) error {
	return b.request(ctx, bridge.MsgResume)
}

// Stop runs the completion handshake. A missing report within the handshake timeout
// yields CompletionTimeout. After a start that was sent but not acknowledged the agent
// is still told to stop, and whatever it reports is discarded.
func (b *BrowserBackend) Stop(ctx context.Context) (FinalInfo, error) {
	b.stopOnce.Do(func() {
		b.final, b.finalErr = b.stop(ctx)
	})
	return b.final, b.finalErr
}

func (b *BrowserBackend) stop(ctx context.Context) (FinalInfo, error) {
	b.mu.Lock()
	attempted, started, req, expected := b.attempted, b.started, b.req, b.expected
	b.mu.Unlock()
	if !attempted {
		return FinalInfo{}, nil
	}
	if !started {
		b.abort(ctx, req.RecordingID, expected)
		return FinalInfo{}, nil
	}

	c, err := b.bridge.Handshake(ctx, req.RecordingID, expected, b.handshakeTimeout)
	if err != nil {
		return FinalInfo{}, err
	}
	return FinalInfo{
		Artifacts: Artifacts{
			Video:         c.ActualFilePath,
			VideoHasAudio: req.Microphone != nil,
		},
	}, nil
}

// abort stops a capture whose start was never acknowledged. The agent answers an
// unknown recording with failed, so an error here is expected and only logged.
func (b *BrowserBackend) abort(ctx context.Context, id, expected string) {
	log := b.logger.With(logging.RecordingID(id))
	c, err := b.bridge.Handshake(ctx, id, expected, b.requestTimeout)
	if err != nil {
		log.Debug("Stop after unacknowledged start", zap.Error(err))
		return
	}
	log.Warn("Agent had started capturing, discarding its artifact", zap.String(logging.KeyPath, c.ActualFilePath))
	removeQuietly(c.ActualFilePath)
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/bridge"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/capture"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/device"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/filemanager"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/merger"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/store"
)

type fakePlatform struct {
	screens []models.DeviceDescriptor
	audio   []models.DeviceDescriptor
	gated   bool
	screen  models.Permission
	mic     models.Permission
}

func (p *fakePlatform) Name() string { return "fake" }
func (p *fakePlatform) ListScreens(ctx context.Context) ([]models.DeviceDescriptor, error) {
	return p.screens, nil
}
func (p *fakePlatform) ListAudioDevices(ctx context.Context) ([]models.DeviceDescriptor, error) {
	return p.audio, nil
}
func (p *fakePlatform) PermissionGated() bool { return p.gated }
func (p *fakePlatform) CheckPermission(ctx context.Context, c models.Capability) (models.Permission, error) {
	if c == models.CapabilityScreen {
		return p.screen, nil
	}
	return p.mic, nil
}
func (p *fakePlatform) RequestPermission(ctx context.Context, c models.Capability) (models.Permission, error) {
	return p.CheckPermission(ctx, c)
}
func (p *fakePlatform) OSVersion(ctx context.Context) (string, error) { return "1.0", nil }

func defaultPlatform() *fakePlatform {
	return &fakePlatform{
		screens: []models.DeviceDescriptor{
			{ID: "display:0", Name: "eDP-1", Kind: models.KindDisplay, Primary: true, Native: "eDP-1"},
			{ID: "display:1", Name: "HDMI-A-1", Kind: models.KindDisplay, Native: "HDMI-A-1"},
		},
		audio: []models.DeviceDescriptor{
			{ID: "mic", Name: "Microphone", Kind: models.KindAudioInput, Native: "mic"},
			{ID: "speakers.monitor", Name: "Speakers", Kind: models.KindAudioMonitor, CanSupplySystemAudio: true, Native: "speakers.monitor"},
		},
	}
}

// fakeStrategy writes one file per requested track and reports them on stop
type fakeStrategy struct {
	kind        models.StrategyKind
	startErr    error
	stopErr     error
	noPause     bool
	systemTrack bool
	micTrack    bool
	startGate   chan struct{}
	stopGate    chan struct{}
	// keepOnError hands the artifacts back together with stopErr
	keepOnError bool

	mu      sync.Mutex
	req     capture.StartRequest
	started bool
	art     capture.Artifacts
	stops   int
	pauses  int
	resumes int
}

func (s *fakeStrategy) Kind() models.StrategyKind { return s.kind }
func (s *fakeStrategy) SupportsPause() bool       { return !s.noPause }
func (s *fakeStrategy) Split() bool               { return false }

func (s *fakeStrategy) Start(ctx context.Context, req capture.StartRequest) (capture.HandleInfo, error) {
	if s.startGate != nil {
		select {
		case <-s.startGate:
		case <-ctx.Done():
			return capture.HandleInfo{}, ctx.Err()
		}
	}
	if s.startErr != nil {
		return capture.HandleInfo{}, s.startErr
	}

	base := strings.TrimSuffix(req.OutputPath, filepath.Ext(req.OutputPath))
	art := capture.Artifacts{Video: req.OutputPath}
	writeFile(art.Video, "video")
	if s.systemTrack && req.SystemAudio != nil {
		art.SystemAudio = base + ".system.m4a"
		writeFile(art.SystemAudio, "system")
	}
	if s.micTrack && req.Microphone != nil {
		art.Microphone = base + ".mic.m4a"
		writeFile(art.Microphone, "mic")
	}

	s.mu.Lock()
	s.req = req
	s.started = true
	s.art = art
	s.mu.Unlock()
	return capture.HandleInfo{ExpectedOutputPath: req.OutputPath, HasSystemAudio: art.SystemAudio != ""}, nil
}

func (s *fakeStrategy) Stop(ctx context.Context) (capture.FinalInfo, error) {
	s.mu.Lock()
	s.stops++
	started, art := s.started, s.art
	s.mu.Unlock()
	if !started {
		return capture.FinalInfo{}, nil
	}
	if s.stopGate != nil {
		<-s.stopGate
	}
	if s.stopErr != nil {
		if s.keepOnError {
			return capture.FinalInfo{Artifacts: art, Warnings: []string{"video part lost"}}, s.stopErr
		}
		return capture.FinalInfo{}, s.stopErr
	}
	return capture.FinalInfo{Artifacts: art, HasSystemAudio: art.SystemAudio != ""}, nil
}

func (s *fakeStrategy) Pause(ctx context.Context) error {
	s.mu.Lock()
	s.pauses++
	s.mu.Unlock()
	return nil
}

func (s *fakeStrategy) Resume(ctx context.Context) error {
	s.mu.Lock()
	s.resumes++
	s.mu.Unlock()
	return nil
}

func (s *fakeStrategy) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func (s *fakeStrategy) request() capture.StartRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req
}

type fakeStrategies struct {
	mu      sync.Mutex
	caps    capture.Capabilities
	makers  map[models.StrategyKind]func() *fakeStrategy
	created []*fakeStrategy
}

func newFakeStrategies() *fakeStrategies {
	simple := func() *fakeStrategy { return &fakeStrategy{} }
	return &fakeStrategies{
		caps: capture.Capabilities{NativeAvailable: true, NativeVersionOK: true, NativeSystemAudio: true},
		makers: map[models.StrategyKind]func() *fakeStrategy{
			models.StrategyNative:  simple,
			models.StrategyHybrid:  simple,
			models.StrategyBrowser: simple,
		},
	}
}

func (f *fakeStrategies) New(kind models.StrategyKind) (capture.Strategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mk, ok := f.makers[kind]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", kind)
	}
	s := mk()
	s.kind = kind
	f.created = append(f.created, s)
	return s, nil
}

func (f *fakeStrategies) Capabilities(ctx context.Context, screen models.Permission, wantSystemAudio bool) capture.Capabilities {
	c := f.caps
	c.ScreenPermission = screen
	c.WantSystemAudio = wantSystemAudio
	return c
}

func (f *fakeStrategies) kinds() []models.StrategyKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.StrategyKind
	for _, s := range f.created {
		out = append(out, s.kind)
	}
	return out
}

func (f *fakeStrategies) last() *fakeStrategy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[len(f.created)-1]
}

type fakeMuxer struct {
	mu       sync.Mutex
	mergeErr error
	merges   []merger.MergeInput
}

func (m *fakeMuxer) MergeAudioTracks(ctx context.Context, in merger.MergeInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges = append(m.merges, in)
	if m.mergeErr != nil {
		return m.mergeErr
	}
	writeFile(in.Output, "merged")
	return nil
}

func (m *fakeMuxer) ConcatenateParts(ctx context.Context, parts []string, output string) error {
	writeFile(output, "joined")
	return nil
}

func (m *fakeMuxer) DropVideo(ctx context.Context, input, output string) error {
	writeFile(output, "audio")
	return nil
}

func writeFile(path, content string) {
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	_ = os.WriteFile(path, []byte(content), 0644)
}

type harness struct {
	engine     *Engine
	strategies *fakeStrategies
	muxer      *fakeMuxer
	platform   *fakePlatform
	events     <-chan models.Event
	outDir     string
}

type harnessOption func(*harness, *Config)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	base := t.TempDir()

	h := &harness{
		strategies: newFakeStrategies(),
		muxer:      &fakeMuxer{},
		platform:   defaultPlatform(),
		outDir:     filepath.Join(base, "out"),
	}
	cfg := Config{Policy: capture.Policy{FailureCooldown: time.Minute}}
	for _, o := range opts {
		o(h, &cfg)
	}

	idx, err := store.Open(store.MemoryPath, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	files := filemanager.New(filemanager.Config{
		TempDir:   filepath.Join(base, "tmp"),
		OutputDir: h.outDir,
	}, idx, zap.NewNop())

	devices := device.NewManager(h.platform, time.Second, zap.NewNop())
	assembler := capture.NewStreamAssembler(h.muxer, zap.NewNop())

	h.engine = New(cfg, devices, files, h.strategies, assembler, zap.NewNop())
	events, cancel := h.engine.Subscribe(64)
	h.events = events
	t.Cleanup(func() {
		cancel()
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = h.engine.Close(ctx)
	})
	return h
}

func defaultOptions() models.RecordingOptions {
	return models.RecordingOptions{IncludeMicrophone: true, IncludeSystemAudio: true, Filename: "demo.mp4"}
}

// next returns the next non-progress event
func (h *harness) next(t *testing.T) models.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-h.events:
			require.True(t, ok, "event stream closed")
			if e.Type == models.EventProgress {
				continue
			}
			return e
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return models.Event{}
		}
	}
}

func requireKind(t *testing.T, err error, kind models.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, &models.CaptureError{Kind: kind}), "expected %s, got %v", kind, err)
}

func TestEngine_StartStopCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RecordingID)
	assert.Equal(t, models.StrategyNative, res.Strategy)
	assert.Equal(t, filepath.Join(h.outDir, "demo.mp4"), res.ExpectedOutputPath)

	started := h.next(t)
	assert.Equal(t, models.EventStarted, started.Type)
	assert.Equal(t, res.RecordingID, started.RecordingID)
	assert.Equal(t, res.ExpectedOutputPath, started.ExpectedOutputPath)

	st := h.engine.GetStatus()
	assert.Equal(t, models.StateRecording, st.State)
	assert.NotNil(t, st.Devices)

	req := h.strategies.last().request()
	assert.Equal(t, "display:0", req.Surface.ID)
	require.NotNil(t, req.Microphone)
	assert.Equal(t, "mic", req.Microphone.ID)
	require.NotNil(t, req.SystemAudio)
	assert.Equal(t, "speakers.monitor", req.SystemAudio.ID)
	assert.Equal(t, models.QualityMedium, req.Quality)

	stop, err := h.engine.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.ExpectedOutputPath, stop.OutputPath)

	done := h.next(t)
	require.Equal(t, models.EventCompleted, done.Type, "%+v", done)
	assert.Equal(t, res.ExpectedOutputPath, done.OutputPath)
	assert.FileExists(t, done.OutputPath)

	st = h.engine.GetStatus()
	assert.Equal(t, models.StateIdle, st.State)
	assert.Equal(t, done.OutputPath, st.OutputPath)

	again, err := h.engine.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, done.OutputPath, again.OutputPath)
}

func TestEngine_StartWhileRecordingIsBusy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)

	_, err = h.engine.StartRecording(ctx, defaultOptions())
	requireKind(t, err, models.KindBusy)

	st := h.engine.GetStatus()
	assert.Equal(t, models.StateRecording, st.State)
	assert.Equal(t, first.RecordingID, st.RecordingID)
	assert.Len(t, h.strategies.kinds(), 1)
}

func TestEngine_ValidationError(t *testing.T) {
	h := newHarness(t)

	opts := defaultOptions()
	opts.SurfaceID = "display:7"
	opts.AudioDeviceID = "nope"
	_, err := h.engine.StartRecording(context.Background(), opts)
	requireKind(t, err, models.KindValidation)

	var ce *models.CaptureError
	require.True(t, errors.As(err, &ce))
	assert.Len(t, ce.Issues, 2)

	assert.Equal(t, models.StateIdle, h.engine.GetStatus().State)
	assert.Empty(t, h.strategies.kinds())
}

func TestEngine_NoAudioDevicesStartsWithoutSystemAudio(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) {
		h.platform.audio = nil
		h.strategies.makers[models.StrategyNative] = func() *fakeStrategy {
			return &fakeStrategy{systemTrack: true, micTrack: true}
		}
	})

	opts := defaultOptions()
	opts.SurfaceID = "display:1"
	res, err := h.engine.StartRecording(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, res.HasSystemAudio)

	started := h.next(t)
	assert.Equal(t, models.EventStarted, started.Type)
	assert.False(t, started.HasSystemAudio)
	require.NotEmpty(t, started.Warnings)
	assert.Contains(t, started.Warnings[0], "system audio")

	req := h.strategies.last().request()
	assert.Nil(t, req.SystemAudio)
	assert.Nil(t, req.Microphone)
	assert.Equal(t, "display:1", req.Surface.ID)
}

func TestEngine_FallsBackWhenStrategyUnavailable(t *testing.T) {
	h := newHarness(t, func(h *harness, cfg *Config) {
		cfg.Policy.Order = []models.StrategyKind{models.StrategyNative, models.StrategyBrowser}
		h.strategies.makers[models.StrategyNative] = func() *fakeStrategy {
			return &fakeStrategy{startErr: models.NewError(models.KindStrategyUnavailable, "framework busy")}
		}
	})
	ctx := context.Background()

	res, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, models.StrategyBrowser, res.Strategy)
	assert.Equal(t, []models.StrategyKind{models.StrategyNative, models.StrategyBrowser}, h.strategies.kinds())

	_, err = h.engine.StopRecording(ctx)
	require.NoError(t, err)
	h.next(t)
	require.Equal(t, models.EventCompleted, h.next(t).Type)

	// native is cooling down after its failure
	_, err = h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	kinds := h.strategies.kinds()
	assert.Equal(t, models.StrategyBrowser, kinds[len(kinds)-1])
	assert.Len(t, kinds, 3)
}

func TestEngine_AllStrategiesUnavailable(t *testing.T) {
	unavailable := func() *fakeStrategy {
		return &fakeStrategy{startErr: models.NewError(models.KindStrategyUnavailable, "nope")}
	}
	h := newHarness(t, func(h *harness, _ *Config) {
		for k := range h.strategies.makers {
			h.strategies.makers[k] = unavailable
		}
	})

	_, err := h.engine.StartRecording(context.Background(), defaultOptions())
	requireKind(t, err, models.KindStrategyUnavailable)

	evt := h.next(t)
	assert.Equal(t, models.EventError, evt.Type)
	assert.Equal(t, models.KindStrategyUnavailable, evt.ErrorKind)

	st := h.engine.GetStatus()
	assert.Equal(t, models.StateIdle, st.State)
	assert.NotEmpty(t, st.LastError)

	for _, s := range h.strategies.created {
		assert.Equal(t, 1, s.stopCount(), "failed start must release the handle")
	}
}

func TestEngine_CaptureErrorDoesNotFallBack(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) {
		h.strategies.makers[models.StrategyNative] = func() *fakeStrategy {
			return &fakeStrategy{startErr: errors.New("encoder crashed")}
		}
	})

	_, err := h.engine.StartRecording(context.Background(), defaultOptions())
	require.Error(t, err)
	assert.Equal(t, []models.StrategyKind{models.StrategyNative}, h.strategies.kinds())
	assert.Equal(t, models.EventError, h.next(t).Type)
}

func TestEngine_PermissionDenied(t *testing.T) {
	h := newHarness(t, func(h *harness, cfg *Config) {
		cfg.CheckPermissions = true
		h.platform.gated = true
		h.platform.screen = models.PermissionDenied
		h.platform.mic = models.PermissionGranted
	})

	_, err := h.engine.StartRecording(context.Background(), defaultOptions())
	requireKind(t, err, models.KindPermissionDenied)
	assert.NotEmpty(t, models.Remediation(models.KindPermissionDenied))
	assert.Empty(t, h.strategies.kinds())
}

func TestEngine_MicrophoneDeniedDropsTrack(t *testing.T) {
	h := newHarness(t, func(h *harness, cfg *Config) {
		cfg.CheckPermissions = true
		h.platform.gated = true
		h.platform.screen = models.PermissionGranted
		h.platform.mic = models.PermissionDenied
	})

	_, err := h.engine.StartRecording(context.Background(), defaultOptions())
	require.NoError(t, err)
	assert.Nil(t, h.strategies.last().request().Microphone)

	started := h.next(t)
	assert.Contains(t, strings.Join(started.Warnings, "\n"), "microphone")
}

func TestEngine_StopWhileStartingIsHonoured(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, func(h *harness, _ *Config) {
		h.strategies.makers[models.StrategyNative] = func() *fakeStrategy {
			return &fakeStrategy{startGate: gate}
		}
	})
	ctx := context.Background()

	type startResult struct {
		res models.StartResult
		err error
	}
	started := make(chan startResult, 1)
	go func() {
		res, err := h.engine.StartRecording(ctx, defaultOptions())
		started <- startResult{res, err}
	}()

	require.Eventually(t, func() bool {
		return h.engine.GetStatus().State == models.StateStarting
	}, 2*time.Second, 5*time.Millisecond)

	_, err := h.engine.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StateStarting, h.engine.GetStatus().State)

	close(gate)
	r := <-started
	require.NoError(t, r.err)

	assert.Equal(t, models.EventStarted, h.next(t).Type)
	done := h.next(t)
	require.Equal(t, models.EventCompleted, done.Type)
	assert.Equal(t, r.res.RecordingID, done.RecordingID)
}

func TestEngine_StopWithoutSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.StopRecording(context.Background())
	requireKind(t, err, models.KindInvalidState)
}

func TestEngine_StopWhileStoppingReturnsBestKnownPath(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, func(h *harness, _ *Config) {
		h.strategies.makers[models.StrategyNative] = func() *fakeStrategy {
			return &fakeStrategy{stopGate: gate}
		}
	})
	ctx := context.Background()

	res, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)

	first, err := h.engine.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StateStopping, h.engine.GetStatus().State)

	second, err := h.engine.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.OutputPath, second.OutputPath)
	assert.Equal(t, res.ExpectedOutputPath, second.OutputPath)

	_, err = h.engine.StartRecording(ctx, defaultOptions())
	requireKind(t, err, models.KindBusy)

	close(gate)
	h.next(t)
	assert.Equal(t, models.EventCompleted, h.next(t).Type)
	assert.Equal(t, 1, h.strategies.last().stopCount())
}

func TestEngine_PauseResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	requireKind(t, h.engine.PauseRecording(ctx), models.KindInvalidState)

	_, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	h.next(t)

	requireKind(t, h.engine.ResumeRecording(ctx), models.KindInvalidState)

	require.NoError(t, h.engine.PauseRecording(ctx))
	assert.Equal(t, models.StatePaused, h.engine.GetStatus().State)
	assert.Equal(t, models.EventPaused, h.next(t).Type)

	requireKind(t, h.engine.PauseRecording(ctx), models.KindInvalidState)

	require.NoError(t, h.engine.ResumeRecording(ctx))
	assert.Equal(t, models.EventResumed, h.next(t).Type)

	s := h.strategies.last()
	s.mu.Lock()
	assert.Equal(t, 1, s.pauses)
	assert.Equal(t, 1, s.resumes)
	s.mu.Unlock()

	// stopping from paused folds the pause into the duration
	require.NoError(t, h.engine.PauseRecording(ctx))
	h.next(t)
	_, err = h.engine.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.EventCompleted, h.next(t).Type)

	sess, ok := h.engine.Session()
	require.True(t, ok)
	assert.True(t, sess.PausedAt.IsZero())
}

func TestEngine_PauseUnsupported(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) {
		h.strategies.makers[models.StrategyNative] = func() *fakeStrategy {
			return &fakeStrategy{noPause: true}
		}
	})
	ctx := context.Background()

	_, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	requireKind(t, h.engine.PauseRecording(ctx), models.KindUnsupported)
	assert.Equal(t, models.StateRecording, h.engine.GetStatus().State)
}

func TestEngine_StopFailureReportsPartialPath(t *testing.T) {
	partial := filepath.Join(t.TempDir(), "capture-x-demo.screen.mp4")
	h := newHarness(t, func(h *harness, _ *Config) {
		h.strategies.makers[models.StrategyNative] = func() *fakeStrategy {
			return &fakeStrategy{stopErr: models.NewError(models.KindCompletionTimeout, "agent silent").WithPath(partial)}
		}
	})
	ctx := context.Background()

	_, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	h.next(t)

	_, err = h.engine.StopRecording(ctx)
	require.NoError(t, err)

	evt := h.next(t)
	require.Equal(t, models.EventError, evt.Type)
	assert.Equal(t, models.KindCompletionTimeout, evt.ErrorKind)
	assert.Equal(t, partial, evt.PartialPath)
	assert.NotEmpty(t, evt.Remediation)

	st := h.engine.GetStatus()
	assert.Equal(t, models.StateIdle, st.State)
	assert.Contains(t, st.LastError, "agent silent")

	_, err = h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
}

func TestEngine_MergesSeparateAudioTracks(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) {
		h.strategies.makers[models.StrategyNative] = func() *fakeStrategy {
			return &fakeStrategy{systemTrack: true, micTrack: true}
		}
	})
	ctx := context.Background()

	res, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	assert.True(t, res.HasSystemAudio)
	h.next(t)

	_, err = h.engine.StopRecording(ctx)
	require.NoError(t, err)

	done := h.next(t)
	require.Equal(t, models.EventCompleted, done.Type)
	assert.Equal(t, res.ExpectedOutputPath, done.OutputPath)
	assert.Empty(t, done.ExtraPaths)
	assert.True(t, done.HasSystemAudio)

	data, err := os.ReadFile(done.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "merged", string(data))
	require.Len(t, h.muxer.merges, 1)
	assert.Len(t, h.muxer.merges[0].Tracks, 2)
}

func TestEngine_MergeFailureKeepsTracks(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) {
		h.muxer.mergeErr = errors.New("ffmpeg exited with status 1")
		h.strategies.makers[models.StrategyNative] = func() *fakeStrategy {
			return &fakeStrategy{systemTrack: true, micTrack: true}
		}
	})
	ctx := context.Background()

	_, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	h.next(t)

	_, err = h.engine.StopRecording(ctx)
	require.NoError(t, err)

	done := h.next(t)
	require.Equal(t, models.EventCompleted, done.Type)
	require.Len(t, done.ExtraPaths, 2)
	for _, p := range append([]string{done.OutputPath}, done.ExtraPaths...) {
		assert.FileExists(t, p)
	}
	assert.Contains(t, strings.Join(done.Warnings, "\n"), string(models.KindMergeFailure))
}

func TestEngine_HandleRecordingError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	h.next(t)

	h.engine.ReportFailure("some-other-recording", errors.New("ignored"))
	assert.Equal(t, models.StateRecording, h.engine.GetStatus().State)

	h.engine.HandleRecordingError(models.NewError(models.KindCapture, "capture process exited"))

	evt := h.next(t)
	require.Equal(t, models.EventError, evt.Type)
	assert.Equal(t, res.RecordingID, evt.RecordingID)
	assert.Equal(t, models.KindCapture, evt.ErrorKind)
	assert.NotEmpty(t, evt.PartialPath)

	s := h.strategies.last()
	require.Eventually(t, func() bool { return s.stopCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	// the engine is immediately reusable
	_, err = h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)

	// a late stop of the failed session is a no-op for the new one
	h.engine.ReportFailure(res.RecordingID, errors.New("late"))
	assert.Equal(t, models.StateRecording, h.engine.GetStatus().State)
}

func TestEngine_StrategyFailureCallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	h.next(t)

	h.strategies.last().request().OnFailure(errors.New("wl-screenrec died"))

	evt := h.next(t)
	assert.Equal(t, models.EventError, evt.Type)
	assert.Contains(t, evt.Message, "wl-screenrec died")
}

func TestEngine_EventOrdering(t *testing.T) {
	h := newHarness(t, func(_ *harness, cfg *Config) {
		cfg.ProgressInterval = 2 * time.Millisecond
	})
	ctx := context.Background()

	_, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = h.engine.StopRecording(ctx)
	require.NoError(t, err)

	var seen []models.EventType
	timeout := time.After(5 * time.Second)
	for len(seen) == 0 || !(models.Event{Type: seen[len(seen)-1]}).IsFinal() {
		select {
		case e := <-h.events:
			seen = append(seen, e.Type)
		case <-timeout:
			t.Fatalf("no final event, saw %v", seen)
		}
	}

	assert.Equal(t, models.EventStarted, seen[0])
	assert.Contains(t, seen, models.EventProgress)
	assert.Equal(t, models.EventCompleted, seen[len(seen)-1])

	select {
	case e := <-h.events:
		t.Fatalf("unexpected event after completion: %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEngine_CloseStopsActiveRecording(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Close(closeCtx))

	var last models.Event
	for e := range h.events {
		last = e
	}
	assert.Equal(t, models.EventCompleted, last.Type)

	_, err = h.engine.StartRecording(ctx, defaultOptions())
	requireKind(t, err, models.KindInvalidState)
}

func TestEngine_BrowserHandshakeTimeout(t *testing.T) {
	control, agentSide := bridge.Pipe()
	b := bridge.New(zap.NewNop())
	b.Attach(control)
	t.Cleanup(func() {
		_ = b.Close()
		_ = agentSide.Close()
	})

	// the agent starts captures but never confirms a stop
	go func() {
		for {
			msg, err := agentSide.Receive(context.Background())
			if err != nil {
				return
			}
			if msg.Type == bridge.MsgStart {
				writeFile(msg.OutputPath, "screen")
				_ = agentSide.Send(context.Background(), bridge.Message{Type: bridge.MsgStarted, RecordingID: msg.RecordingID})
			}
		}
	}()

	base := t.TempDir()
	idx, err := store.Open(store.MemoryPath, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	files := filemanager.New(filemanager.Config{TempDir: filepath.Join(base, "tmp"), OutputDir: filepath.Join(base, "out")}, idx, zap.NewNop())
	assembler := capture.NewStreamAssembler(&fakeMuxer{}, zap.NewNop())
	factory := capture.NewFactory(capture.FactoryConfig{
		Bridge:           b,
		Assembler:        assembler,
		RequestTimeout:   time.Second,
		HandshakeTimeout: 50 * time.Millisecond,
		Logger:           zap.NewNop(),
	})
	devices := device.NewManager(defaultPlatform(), time.Second, zap.NewNop())

	engine := New(Config{}, devices, files, factory, assembler, zap.NewNop())
	events, cancel := engine.Subscribe(16)
	defer cancel()

	ctx := context.Background()
	res, err := engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, models.StrategyBrowser, res.Strategy)
	assert.False(t, res.HasSystemAudio)

	_, err = engine.StopRecording(ctx)
	require.NoError(t, err)

	var evt models.Event
	for evt = range events {
		if evt.IsFinal() {
			break
		}
	}
	require.Equal(t, models.EventError, evt.Type)
	assert.Equal(t, models.KindCompletionTimeout, evt.ErrorKind)
	assert.FileExists(t, evt.PartialPath)

	closeCtx, done := context.WithTimeout(ctx, 5*time.Second)
	defer done()
	require.NoError(t, engine.Close(closeCtx))
}

func TestEngine_ConcurrentStartsAdmitOneSession(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, func(h *harness, _ *Config) {
		h.strategies.makers[models.StrategyNative] = func() *fakeStrategy {
			return &fakeStrategy{startGate: gate}
		}
	})
	ctx := context.Background()

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.StartRecording(ctx, defaultOptions())
			errs <- err
		}()
	}

	// every loser returns Busy while the winner is held in its strategy start
	var busy int
	for busy < n-1 {
		select {
		case err := <-errs:
			requireKind(t, err, models.KindBusy)
			busy++
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d starts returned", busy, n-1)
		}
	}
	assert.Equal(t, models.StateStarting, h.engine.GetStatus().State)

	close(gate)
	wg.Wait()
	require.NoError(t, <-errs)
	assert.Len(t, h.strategies.kinds(), 1)
	assert.Equal(t, models.StateRecording, h.engine.GetStatus().State)
}

func TestEngine_PermissionRecheckedBeforeEachStart(t *testing.T) {
	h := newHarness(t, func(h *harness, cfg *Config) {
		cfg.CheckPermissions = true
		h.platform.gated = true
		h.platform.screen = models.PermissionDenied
		h.platform.mic = models.PermissionGranted
	})
	ctx := context.Background()

	_, err := h.engine.StartRecording(ctx, defaultOptions())
	requireKind(t, err, models.KindPermissionDenied)

	// the user grants access in the system settings
	h.platform.screen = models.PermissionGranted

	res, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, models.StrategyNative, res.Strategy)
}

func TestEngine_UnmovableOutputCompletesAtTempPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// a regular file where the destination directory should be
	blocker := filepath.Join(t.TempDir(), "blocked")
	writeFile(blocker, "not a directory")
	opts := defaultOptions()
	opts.OutputDir = filepath.Join(blocker, "videos")

	res, err := h.engine.StartRecording(ctx, opts)
	require.NoError(t, err)
	h.next(t)

	_, err = h.engine.StopRecording(ctx)
	require.NoError(t, err)

	done := h.next(t)
	require.Equal(t, models.EventCompleted, done.Type, "%+v", done)
	assert.True(t, strings.HasPrefix(filepath.Base(done.OutputPath), filemanager.TempPrefix+res.RecordingID), done.OutputPath)
	assert.FileExists(t, done.OutputPath)
	assert.Contains(t, strings.Join(done.Warnings, "\n"), "kept at "+done.OutputPath)

	sess, ok := h.engine.Session()
	require.True(t, ok)
	assert.Equal(t, models.StateCompleted, sess.State)
	assert.Equal(t, done.OutputPath, sess.ActualOutputPath)

	again, err := h.engine.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, done.OutputPath, again.OutputPath)
}

func TestEngine_StopFailureReportsKeptTracks(t *testing.T) {
	partial := filepath.Join(t.TempDir(), "capture-x-demo.screen.mp4")
	h := newHarness(t, func(h *harness, _ *Config) {
		h.strategies.makers[models.StrategyNative] = func() *fakeStrategy {
			return &fakeStrategy{
				systemTrack: true,
				keepOnError: true,
				stopErr:     models.NewError(models.KindCompletionTimeout, "agent silent").WithPath(partial),
			}
		}
	})
	ctx := context.Background()

	_, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	system := h.strategies.last().art.SystemAudio
	require.NotEmpty(t, system)
	h.next(t)

	_, err = h.engine.StopRecording(ctx)
	require.NoError(t, err)

	evt := h.next(t)
	require.Equal(t, models.EventError, evt.Type)
	assert.Equal(t, partial, evt.PartialPath)
	assert.Contains(t, evt.ExtraPaths, system)
	assert.NotContains(t, evt.ExtraPaths, partial)
	assert.Contains(t, evt.Warnings, "video part lost")
	assert.FileExists(t, system)
}

func TestEngine_RepeatedStopReturnsFinalPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	writeFile(filepath.Join(h.outDir, "demo.mp4"), "older recording")

	res, err := h.engine.StartRecording(ctx, defaultOptions())
	require.NoError(t, err)
	h.next(t)

	first, err := h.engine.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.ExpectedOutputPath, first.OutputPath)

	done := h.next(t)
	require.Equal(t, models.EventCompleted, done.Type)
	assert.Equal(t, filepath.Join(h.outDir, "demo-1.mp4"), done.OutputPath)

	for i := 0; i < 2; i++ {
		again, err := h.engine.StopRecording(ctx)
		require.NoError(t, err)
		assert.Equal(t, done.OutputPath, again.OutputPath)
	}
}

package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/bridge"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/merger"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

type fakeSession struct {
	art      Artifacts
	done     chan struct{}
	once     sync.Once
	stops    int
	warnings []string
}

func (s *fakeSession) Stop(ctx context.Context) (Artifacts, error) {
	s.stops++
	s.end()
	return s.art, nil
}

func (s *fakeSession) end()                  { s.once.Do(func() { close(s.done) }) }
func (s *fakeSession) Done() <-chan struct{} { return s.done }
func (s *fakeSession) Warnings() []string    { return s.warnings }

type fakeFramework struct {
	mu              sync.Mutex
	checkErr        error
	content         Content
	contentCalls    int
	contentDelay    time.Duration
	openErr         error
	failSystemAudio bool
	embedAudio      bool
	configs         []SessionConfig
	sessions        []*fakeSession
}

func (f *fakeFramework) Name() string { return "fake-native" }

func (f *fakeFramework) Check(ctx context.Context) error { return f.checkErr }

func (f *fakeFramework) ShareableContent(ctx context.Context) (Content, error) {
	f.mu.Lock()
	f.contentCalls++
	delay := f.contentDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return f.content, nil
}

func (f *fakeFramework) Open(ctx context.Context, cfg SessionConfig) (NativeSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	if f.openErr != nil {
		return nil, f.openErr
	}
	if cfg.SystemAudio != nil && f.failSystemAudio {
		return nil, ErrSystemAudioUnavailable
	}

	s := &fakeSession{done: make(chan struct{})}
	s.art.Video = cfg.VideoPath
	mustWrite(cfg.VideoPath, "video")
	if cfg.SystemAudio != nil {
		if f.embedAudio {
			s.art.VideoHasAudio = true
		} else {
			s.art.SystemAudio = cfg.SystemAudioPath
			mustWrite(cfg.SystemAudioPath, "system")
		}
	}
	if cfg.Microphone != nil {
		s.art.Microphone = cfg.MicrophonePath
		mustWrite(cfg.MicrophonePath, "mic")
	}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeFramework) lastSession() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[len(f.sessions)-1]
}

func mustWrite(path, content string) {
	if path == "" {
		return
	}
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	_ = os.WriteFile(path, []byte(content), 0644)
}

// fakeMuxer concatenates and merges by writing marker files
type fakeMuxer struct {
	mu       sync.Mutex
	mergeErr error
	merges   []merger.MergeInput
	concats  [][]string
	drops    []string
}

func (m *fakeMuxer) MergeAudioTracks(ctx context.Context, in merger.MergeInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges = append(m.merges, in)
	if m.mergeErr != nil {
		return m.mergeErr
	}
	mustWrite(in.Output, "merged")
	return nil
}

func (m *fakeMuxer) ConcatenateParts(ctx context.Context, parts []string, output string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concats = append(m.concats, parts)
	mustWrite(output, "joined")
	return nil
}

func (m *fakeMuxer) DropVideo(ctx context.Context, input, output string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops = append(m.drops, input)
	mustWrite(output, "audio-only")
	return nil
}

func newTestAssembler(m Muxer) *StreamAssembler {
	return NewStreamAssembler(m, zap.NewNop())
}

func testRequest(t *testing.T, withSystem, withMic bool) StartRequest {
	t.Helper()
	req := StartRequest{
		RecordingID: "rec-1",
		Surface:     models.DeviceDescriptor{ID: "display:0", Kind: models.KindDisplay, Native: "eDP-1"},
		Quality:     models.QualityMedium,
		OutputPath:  filepath.Join(t.TempDir(), "capture-rec-1-recording.mp4"),
	}
	if withSystem {
		req.SystemAudio = &models.DeviceDescriptor{ID: "speakers.monitor", Kind: models.KindAudioMonitor, CanSupplySystemAudio: true, Native: "speakers.monitor"}
	}
	if withMic {
		req.Microphone = &models.DeviceDescriptor{ID: "mic", Kind: models.KindAudioInput, Native: "mic"}
	}
	return req
}

// startAgent attaches an in-memory agent that writes a file for every stop
func startAgent(t *testing.T, respond func(bridge.Message) *bridge.Message) *bridge.Bridge {
	t.Helper()
	control, agent := bridge.Pipe()
	b := bridge.New(zap.NewNop())
	b.Attach(control)

	go func() {
		for {
			msg, err := agent.Receive(context.Background())
			if err != nil {
				return
			}
			if reply := respond(msg); reply != nil {
				_ = agent.Send(context.Background(), *reply)
			}
		}
	}()

	t.Cleanup(func() {
		_ = b.Close()
		_ = agent.Close()
	})
	return b
}

// fileAgent acknowledges every control message and reports the file it wrote on stop
func fileAgent() func(bridge.Message) *bridge.Message {
	var mu sync.Mutex
	outputs := make(map[string]string)

	return func(msg bridge.Message) *bridge.Message {
		mu.Lock()
		defer mu.Unlock()
		switch msg.Type {
		case bridge.MsgStart:
			mustWrite(msg.OutputPath, "screen")
			outputs[msg.RecordingID] = msg.OutputPath
			return &bridge.Message{Type: bridge.MsgStarted, RecordingID: msg.RecordingID}
		case bridge.MsgPause:
			return &bridge.Message{Type: bridge.MsgPaused, RecordingID: msg.RecordingID}
		case bridge.MsgResume:
			return &bridge.Message{Type: bridge.MsgResumed, RecordingID: msg.RecordingID}
		case bridge.MsgStop:
			return &bridge.Message{Type: bridge.MsgStopped, RecordingID: msg.RecordingID, ActualFilePath: outputs[msg.RecordingID]}
		}
		return nil
	}
}

func requireKind(t *testing.T, err error, kind models.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, &models.CaptureError{Kind: kind}), "expected %s, got %v", kind, err)
}

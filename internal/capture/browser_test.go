package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/bridge"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

func TestBrowserBackend_RoundTrip(t *testing.T) {
	b := startAgent(t, fileAgent())
	backend := NewBrowserBackend(b, time.Second, time.Second, zap.NewNop())
	req := testRequest(t, true, true)

	info, err := backend.Start(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, info.HasSystemAudio)
	assert.Equal(t, trackPath(req.OutputPath, "screen", ".mp4"), info.ExpectedOutputPath)
	assert.NotEmpty(t, info.Warnings, "system audio was requested")

	require.NoError(t, backend.Pause(context.Background()))
	require.NoError(t, backend.Resume(context.Background()))

	final, err := backend.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, info.ExpectedOutputPath, final.Artifacts.Video)
	assert.True(t, final.Artifacts.VideoHasAudio)
	assert.False(t, final.HasSystemAudio)
	assert.FileExists(t, final.Artifacts.Video)

	again, err := backend.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, final, again)
}

func TestBrowserBackend_NoAgent(t *testing.T) {
	backend := NewBrowserBackend(bridge.New(zap.NewNop()), time.Second, time.Second, zap.NewNop())
	_, err := backend.Start(context.Background(), testRequest(t, false, false))
	requireKind(t, err, models.KindStrategyUnavailable)

	backend = NewBrowserBackend(nil, time.Second, time.Second, zap.NewNop())
	_, err = backend.Start(context.Background(), testRequest(t, false, false))
	requireKind(t, err, models.KindStrategyUnavailable)
}

func TestBrowserBackend_AgentRejectsStart(t *testing.T) {
	b := startAgent(t, func(msg bridge.Message) *bridge.Message {
		return &bridge.Message{Type: bridge.MsgFailed, RecordingID: msg.RecordingID, Error: "screen picker dismissed"}
	})
	backend := NewBrowserBackend(b, time.Second, time.Second, zap.NewNop())

	_, err := backend.Start(context.Background(), testRequest(t, false, false))
	requireKind(t, err, models.KindStrategyUnavailable)
}

func TestBrowserBackend_PauseBeforeStart(t *testing.T) {
	backend := NewBrowserBackend(bridge.New(zap.NewNop()), time.Second, time.Second, zap.NewNop())
	requireKind(t, backend.Pause(context.Background()), models.KindInvalidState)
	requireKind(t, backend.Resume(context.Background()), models.KindInvalidState)

	final, err := backend.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, final.Artifacts.Empty())
}

func TestBrowserBackend_HandshakeTimeout(t *testing.T) {
	b := startAgent(t, func(msg bridge.Message) *bridge.Message {
		if msg.Type == bridge.MsgStart {
			return &bridge.Message{Type: bridge.MsgStarted, RecordingID: msg.RecordingID}
		}
		// never confirms the stop
		return nil
	})
	backend := NewBrowserBackend(b, time.Second, 50*time.Millisecond, zap.NewNop())
	req := testRequest(t, false, false)

	info, err := backend.Start(context.Background(), req)
	require.NoError(t, err)

	_, err = backend.Stop(context.Background())
	requireKind(t, err, models.KindCompletionTimeout)
	assert.Equal(t, info.ExpectedOutputPath, models.PathOf(err))
}

// lateAgent acknowledges start only after delay and records every message type it sees
type lateAgent struct {
	delay time.Duration
	mu    sync.Mutex
	seen  []bridge.MessageType
	files func(bridge.Message) *bridge.Message
}

func newLateAgent(delay time.Duration) *lateAgent {
	return &lateAgent{delay: delay, files: fileAgent()}
}

func (a *lateAgent) respond(msg bridge.Message) *bridge.Message {
	a.mu.Lock()
	a.seen = append(a.seen, msg.Type)
	a.mu.Unlock()
	if msg.Type == bridge.MsgStart {
		time.Sleep(a.delay)
	}
	return a.files(msg)
}

func (a *lateAgent) received() []bridge.MessageType {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]bridge.MessageType(nil), a.seen...)
}

func TestBrowserBackend_StopAfterUnacknowledgedStart(t *testing.T) {
	agent := newLateAgent(300 * time.Millisecond)
	b := startAgent(t, agent.respond)
	backend := NewBrowserBackend(b, 100*time.Millisecond, time.Second, zap.NewNop())

	_, err := backend.Start(context.Background(), testRequest(t, false, false))
	requireKind(t, err, models.KindStrategyUnavailable)

	final, err := backend.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, final.Artifacts.Empty())

	require.Eventually(t, func() bool {
		for _, m := range agent.received() {
			if m == bridge.MsgStop {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "agent was never told to stop")
}

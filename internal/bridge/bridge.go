// Package bridge links the control process with a capture agent that may live in
// another process, and runs the two-phase completion handshake for split captures.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// DefaultRequestTimeout bounds start/pause/resume acknowledgements
const DefaultRequestTimeout = 10 * time.Second

// ErrNoAgent is returned when no agent is attached
var ErrNoAgent = errors.New("no capture agent connected")

type waitKey struct {
	recordingID string
	reply       MessageType
}

// FailureHandler is called for agent failures nobody is waiting on, e.g. a capture
// that died mid-recording
type FailureHandler func(recordingID, message string)

// Bridge is the control-side end of the PlatformRecorderBridge
type Bridge struct {
	logger *zap.Logger

	mu        sync.Mutex
	conn      Conn
	connDone  chan struct{}
	attached  chan struct{}
	waiters   map[waitKey]chan Message
	onFailure FailureHandler
	platform  string
}

// New creates a Bridge with no agent attached
func New(logger *zap.Logger) *Bridge {
	return &Bridge{
		logger:   logging.Component(logger, "bridge"),
		attached: make(chan struct{}),
		waiters:  make(map[waitKey]chan Message),
	}
}

// OnFailure registers the handler for unsolicited agent failures
func (b *Bridge) OnFailure(h FailureHandler) {
	b.mu.Lock()
	b.onFailure = h
	b.mu.Unlock()
}

// Attach makes conn the active agent link, replacing any previous one
func (b *Bridge) Attach(conn Conn) {
	b.mu.Lock()
	old := b.conn
	b.conn = conn
	done := make(chan struct{})
	b.connDone = done
	select {
	case <-b.attached:
	default:
		close(b.attached)
	}
	b.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	go b.readLoop(conn, done)
}

// Connected reports whether an agent link is active
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// AgentPlatform returns the platform the agent announced in its hello message
func (b *Bridge) AgentPlatform() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.platform
}

// WaitConnected blocks until an agent has attached or ctx ends
func (b *Bridge) WaitConnected(ctx context.Context) error {
	b.mu.Lock()
	attached := b.attached
	b.mu.Unlock()
	select {
	case <-attached:
		return nil
	case <-ctx.Done():
		return ErrNoAgent
	}
}

func (b *Bridge) readLoop(conn Conn, done chan struct{}) {
	defer close(done)
	for {
		msg, err := conn.Receive(context.Background())
		if err != nil {
			b.detach(conn, err)
			return
		}
		b.dispatch(msg)
	}
}

func (b *Bridge) detach(conn Conn, err error) {
	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	b.attached = make(chan struct{})
	// fail every outstanding wait so no caller hangs on a dead link
	var pending []chan Message
	for key, ch := range b.waiters {
		pending = append(pending, ch)
		delete(b.waiters, key)
	}
	b.mu.Unlock()

	if !errors.Is(err, ErrClosed) {
		b.logger.Warn("Agent link lost", zap.Error(err))
	}
	for _, ch := range pending {
		ch <- Message{Type: MsgFailed, Error: "agent disconnected"}
	}
}

func (b *Bridge) dispatch(msg Message) {
	if !msg.Type.reply() {
		b.logger.Warn("Ignoring unexpected message from agent", zap.String("type", string(msg.Type)))
		return
	}

	b.mu.Lock()
	if msg.Type == MsgHello {
		b.platform = msg.Platform
		b.mu.Unlock()
		b.logger.Info("Agent ready", zap.String("platform", msg.Platform))
		return
	}

	var targets []chan Message
	if msg.Type == MsgFailed {
		// a failure answers whatever is outstanding for the recording
		for key, ch := range b.waiters {
			if key.recordingID == msg.RecordingID {
				targets = append(targets, ch)
				delete(b.waiters, key)
			}
		}
	} else {
		key := waitKey{msg.RecordingID, msg.Type}
		if ch, ok := b.waiters[key]; ok {
			targets = append(targets, ch)
			delete(b.waiters, key)
		}
	}
	handler := b.onFailure
	b.mu.Unlock()

	if len(targets) == 0 {
		if msg.Type == MsgFailed && handler != nil {
			handler(msg.RecordingID, msg.Error)
			return
		}
		b.logger.Debug("Stale agent message ignored",
			logging.RecordingID(msg.RecordingID), zap.String("type", string(msg.Type)))
		return
	}
	for _, ch := range targets {
		ch <- msg
	}
}

func (b *Bridge) register(id string, reply MessageType) (chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := waitKey{id, reply}
	if _, exists := b.waiters[key]; exists {
		return nil, fmt.Errorf("already waiting for %s of recording %s", reply, id)
	}
	ch := make(chan Message, 1)
	b.waiters[key] = ch
	return ch, nil
}

func (b *Bridge) unregister(id string, reply MessageType, ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := waitKey{id, reply}
	if b.waiters[key] == ch {
		delete(b.waiters, key)
	}
}

func (b *Bridge) send(ctx context.Context, msg Message) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNoAgent
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	return conn.Send(ctx, msg)
}

// Request sends a control message and waits up to timeout for the agent's
// acknowledgement. A failed reply is returned as an error.
func (b *Bridge) Request(ctx context.Context, msg Message, timeout time.Duration) (Message, error) {
	reply := expectedReply(msg.Type)
	if reply == "" {
		return Message{}, fmt.Errorf("%s is not a control message", msg.Type)
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	ch, err := b.register(msg.RecordingID, reply)
	if err != nil {
		return Message{}, err
	}
	defer b.unregister(msg.RecordingID, reply, ch)

	if err := b.send(ctx, msg); err != nil {
		return Message{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.Type == MsgFailed {
			return r, fmt.Errorf("agent failed to %s: %s", msg.Type, r.Error)
		}
		return r, nil
	case <-timer.C:
		return Message{}, fmt.Errorf("agent did not acknowledge %s within %s", msg.Type, timeout)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Completion is the agent's report that its artifact has been flushed
type Completion struct {
	RecordingID    string
	ActualFilePath string
	SizeBytes      int64
}

// Handshake runs phases one and two of the completion handshake: it asks the agent to
// stop and waits for the actual file path. No report within timeout yields a
// CompletionTimeout error carrying expectedPath as the best-known artifact.
func (b *Bridge) Handshake(ctx context.Context, id, expectedPath string, timeout time.Duration) (Completion, error) {
	ch, err := b.register(id, MsgStopped)
	if err != nil {
		return Completion{}, err
	}
	defer b.unregister(id, MsgStopped, ch)

	if err := b.send(ctx, Message{Type: MsgStop, RecordingID: id}); err != nil {
		return Completion{}, models.WrapError(models.KindCompletionTimeout, err,
			"could not ask the agent to stop").WithPath(expectedPath)
	}

	return b.await(ctx, id, expectedPath, timeout, ch)
}

// AwaitCompletion waits for a stopped report without sending stop, for agents that end
// a capture on their own
func (b *Bridge) AwaitCompletion(ctx context.Context, id, expectedPath string, timeout time.Duration) (Completion, error) {
	ch, err := b.register(id, MsgStopped)
	if err != nil {
		return Completion{}, err
	}
	defer b.unregister(id, MsgStopped, ch)
	return b.await(ctx, id, expectedPath, timeout, ch)
}

func (b *Bridge) await(ctx context.Context, id, expectedPath string, timeout time.Duration, ch chan Message) (Completion, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.Type == MsgFailed {
			return Completion{}, models.NewError(models.KindCapture,
				"agent failed to finalize recording: %s", r.Error).WithPath(expectedPath)
		}
		if r.ActualFilePath == "" {
			return Completion{}, models.NewError(models.KindFileError,
				"agent reported no file path").WithPath(expectedPath)
		}
		b.logger.Info("Agent confirmed artifact",
			logging.RecordingID(id), zap.String(logging.KeyPath, r.ActualFilePath))
		return Completion{RecordingID: id, ActualFilePath: r.ActualFilePath, SizeBytes: r.SizeBytes}, nil
	case <-timer.C:
		b.logger.Warn("Completion handshake timed out", logging.RecordingID(id), zap.Duration("timeout", timeout))
		return Completion{}, models.NewError(models.KindCompletionTimeout,
			"agent did not report the recording file within %s", timeout).WithPath(expectedPath)
	case <-ctx.Done():
		return Completion{}, models.WrapError(models.KindCompletionTimeout, ctx.Err(),
			"completion handshake cancelled").WithPath(expectedPath)
	}
}

// Close detaches and closes the active agent link
func (b *Bridge) Close() error {
	b.mu.Lock()
	conn := b.conn
	done := b.connDone
	b.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	if done != nil {
		<-done
	}
	return err
}

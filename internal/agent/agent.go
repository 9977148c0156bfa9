// Package agent runs captures on behalf of the control process. It speaks the bridge
// protocol: every control message is acknowledged, and a stop is answered with the path
// and size of the file actually written.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/bridge"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
)

// Joiner concatenates capture parts
type Joiner interface {
	ConcatenateParts(ctx context.Context, parts []string, output string) error
}

// Agent is the capture side of the bridge
type Agent struct {
	capturer Capturer
	joiner   Joiner
	logger   *zap.Logger
	platform string

	mu   sync.Mutex
	conn bridge.Conn
	jobs map[string]*job
}

type job struct {
	id      string
	spec    Job
	parts   []string
	current Capture
}

// New creates an agent
func New(c Capturer, j Joiner, logger *zap.Logger) *Agent {
	return &Agent{
		capturer: c,
		joiner:   j,
		logger:   logging.Component(logger, "agent"),
		platform: runtime.GOOS,
		jobs:     make(map[string]*job),
	}
}

// Serve announces the agent on conn and handles control messages until ctx ends or the
// connection closes. Captures still running at that point are stopped.
func (a *Agent) Serve(ctx context.Context, conn bridge.Conn) error {
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	defer a.stopAll()

	if err := a.send(ctx, bridge.Message{Type: bridge.MsgHello, Platform: a.platform}); err != nil {
		return fmt.Errorf("failed to announce agent: %w", err)
	}
	a.logger.Info("Agent ready", zap.String("platform", a.platform))

	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, bridge.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		reply := a.handle(ctx, msg)
		reply.RecordingID = msg.RecordingID
		if err := a.send(ctx, reply); err != nil {
			return err
		}
	}
}

func (a *Agent) send(ctx context.Context, msg bridge.Message) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	msg.Time = time.Now()
	return conn.Send(ctx, msg)
}

func failed(format string, args ...any) bridge.Message {
	return bridge.Message{Type: bridge.MsgFailed, Error: fmt.Sprintf(format, args...)}
}

func (a *Agent) handle(ctx context.Context, msg bridge.Message) bridge.Message {
	log := a.logger.With(logging.RecordingID(msg.RecordingID), zap.String("message", string(msg.Type)))
	log.Debug("Control message received")

	var reply bridge.Message
	switch msg.Type {
	case bridge.MsgStart:
		reply = a.start(ctx, msg)
	case bridge.MsgPause:
		reply = a.pause(msg.RecordingID)
	case bridge.MsgResume:
		reply = a.resume(ctx, msg.RecordingID)
	case bridge.MsgStop:
		reply = a.stop(ctx, msg.RecordingID)
	default:
		reply = failed("unsupported message %q", msg.Type)
	}

	if reply.Type == bridge.MsgFailed {
		log.Warn("Control message failed", zap.String("error", reply.Error))
	}
	return reply
}

func (a *Agent) start(ctx context.Context, msg bridge.Message) bridge.Message {
	if msg.RecordingID == "" || msg.OutputPath == "" {
		return failed("start needs a recording id and an output path")
	}

	a.mu.Lock()
	_, exists := a.jobs[msg.RecordingID]
	a.mu.Unlock()
	if exists {
		return failed("recording %s is already running", msg.RecordingID)
	}

	if err := os.MkdirAll(filepath.Dir(msg.OutputPath), 0755); err != nil {
		return failed("cannot create output directory: %v", err)
	}

	j := &job{
		id: msg.RecordingID,
		spec: Job{
			Surface: msg.SurfaceNative,
			Width:   msg.Width,
			Height:  msg.Height,
			OffsetX: msg.OffsetX,
			OffsetY: msg.OffsetY,
			Mic:     msg.MicNative,
			Quality: msg.Quality,
			Output:  msg.OutputPath,
		},
	}
	if err := a.startPart(ctx, j); err != nil {
		return failed("capture did not start: %v", err)
	}

	a.mu.Lock()
	a.jobs[j.id] = j
	a.mu.Unlock()

	a.logger.Info("Capture started", logging.RecordingID(j.id), zap.String(logging.KeyPath, msg.OutputPath))
	return bridge.Message{Type: bridge.MsgStarted}
}

// startPart launches the next part of j; the caller must not hold a.mu
func (a *Agent) startPart(ctx context.Context, j *job) error {
	spec := j.spec
	spec.Output = partName(j.spec.Output, len(j.parts))
	c, err := a.capturer.Start(ctx, spec)
	if err != nil {
		return err
	}

	a.mu.Lock()
	j.current = c
	a.mu.Unlock()

	go a.watch(j, c, spec.Output)
	return nil
}

// watch reports a part that ends without being asked to
func (a *Agent) watch(j *job, c Capture, part string) {
	<-c.Done()

	a.mu.Lock()
	unexpected := j.current == c
	if unexpected {
		j.current = nil
		j.parts = append(j.parts, part)
	}
	a.mu.Unlock()

	if !unexpected {
		return
	}
	a.logger.Warn("Capture ended unexpectedly", logging.RecordingID(j.id), zap.String("reason", c.Reason()))
	msg := failed("capture ended unexpectedly: %s", strings.TrimSpace(c.Reason()))
	msg.RecordingID = j.id
	if err := a.send(context.Background(), msg); err != nil {
		a.logger.Debug("Could not report capture failure", zap.Error(err))
	}
}

// finishPart stops the running part of j, if any, and records its file
func (a *Agent) finishPart(j *job) error {
	a.mu.Lock()
	c := j.current
	j.current = nil
	part := partName(j.spec.Output, len(j.parts))
	if c != nil {
		j.parts = append(j.parts, part)
	}
	a.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Stop()
}

func (a *Agent) lookup(id string) (*job, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.jobs[id]
	return j, ok
}

func (a *Agent) pause(id string) bridge.Message {
	j, ok := a.lookup(id)
	if !ok {
		return failed("unknown recording %s", id)
	}
	a.mu.Lock()
	running := j.current != nil
	a.mu.Unlock()
	if !running {
		return failed("recording %s is not capturing", id)
	}
	if err := a.finishPart(j); err != nil {
		a.logger.Warn("Part did not stop cleanly", logging.RecordingID(id), zap.Error(err))
	}
	return bridge.Message{Type: bridge.MsgPaused}
}

func (a *Agent) resume(ctx context.Context, id string) bridge.Message {
	j, ok := a.lookup(id)
	if !ok {
		return failed("unknown recording %s", id)
	}
	a.mu.Lock()
	running := j.current != nil
	a.mu.Unlock()
	if running {
		return failed("recording %s is already capturing", id)
	}
	if err := a.startPart(ctx, j); err != nil {
		return failed("capture did not resume: %v", err)
	}
	return bridge.Message{Type: bridge.MsgResumed}
}

func (a *Agent) stop(ctx context.Context, id string) bridge.Message {
	j, ok := a.lookup(id)
	if !ok {
		return failed("unknown recording %s", id)
	}
	if err := a.finishPart(j); err != nil {
		a.logger.Warn("Part did not stop cleanly", logging.RecordingID(id), zap.Error(err))
	}

	a.mu.Lock()
	delete(a.jobs, id)
	parts := append([]string(nil), j.parts...)
	a.mu.Unlock()

	path, err := a.join(ctx, parts, j.spec.Output)
	if err != nil {
		return failed("%v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return failed("artifact unreadable: %v", err)
	}

	a.logger.Info("Capture finished",
		logging.RecordingID(id),
		zap.String(logging.KeyPath, path),
		zap.Int64("sizeBytes", info.Size()),
		zap.Int("parts", len(parts)))

	return bridge.Message{Type: bridge.MsgStopped, ActualFilePath: path, SizeBytes: info.Size()}
}

// join turns the recorded parts into one file at output
func (a *Agent) join(ctx context.Context, parts []string, output string) (string, error) {
	var existing []string
	for _, p := range parts {
		if info, err := os.Stat(p); err == nil && info.Size() > 0 {
			existing = append(existing, p)
		}
	}

	switch len(existing) {
	case 0:
		return "", errors.New("no data was captured")
	case 1:
		if err := os.Rename(existing[0], output); err != nil {
			// the part itself is still a valid artifact
			return existing[0], nil
		}
		return output, nil
	}

	if err := a.joiner.ConcatenateParts(ctx, existing, output); err != nil {
		// report the first part rather than lose the recording
		a.logger.Warn("Failed to join parts", zap.Strings("parts", existing), zap.Error(err))
		return existing[0], nil
	}
	for _, p := range existing {
		_ = os.Remove(p)
	}
	return output, nil
}

// stopAll stops every running capture when the link goes away
func (a *Agent) stopAll() {
	a.mu.Lock()
	var running []Capture
	for id, j := range a.jobs {
		if j.current != nil {
			running = append(running, j.current)
			j.current = nil
		}
		delete(a.jobs, id)
	}
	a.mu.Unlock()

	for _, c := range running {
		_ = c.Stop()
	}
	if len(running) > 0 {
		a.logger.Warn("Control link closed, stopped running captures", zap.Int("count", len(running)))
	}
}

// partName inserts a part number before the extension
func partName(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s.part%03d%s", strings.TrimSuffix(path, ext), n, ext)
}

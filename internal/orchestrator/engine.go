// Package orchestrator owns the recording session lifecycle. The Engine accepts start,
// stop, pause and resume requests, drives the selected capture strategy, finalizes the
// produced artifacts through the file manager and publishes lifecycle events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/capture"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/filemanager"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// Devices is the device manager surface the engine depends on
type Devices interface {
	Snapshot() *models.DeviceSnapshot
	Refresh(ctx context.Context) *models.DeviceSnapshot
	GetAvailableScreens(ctx context.Context, refresh bool) []models.DeviceDescriptor
	ValidateDeviceSelection(ctx context.Context, surfaceID, micID, systemAudioID string) models.ValidationResult
	// CheckPermissions queries the platform afresh and updates the cached status
	CheckPermissions(ctx context.Context) models.PermissionStatus
}

// Files tracks pending recordings and moves finished ones into place
type Files interface {
	RegisterRecording(id string, reg filemanager.Registration) (filemanager.Pending, error)
	CompleteRecording(ctx context.Context, id string, a filemanager.Artifact) (filemanager.CompleteResult, error)
	Forget(id string)
}

// Strategies creates capture strategies and reports what the host supports
type Strategies interface {
	New(kind models.StrategyKind) (capture.Strategy, error)
	Capabilities(ctx context.Context, screen models.Permission, wantSystemAudio bool) capture.Capabilities
}

// Assembler turns a strategy's artifacts into one deliverable
type Assembler interface {
	Assemble(ctx context.Context, final capture.FinalInfo, output string) (capture.AssembleResult, error)
}

// DefaultFinalizeTimeout bounds stopping a strategy and finalizing its files
const DefaultFinalizeTimeout = 2 * time.Minute

// Config holds the engine settings
type Config struct {
	Policy capture.Policy
	// CheckPermissions enables the consent check before each start
	CheckPermissions   bool
	ProgressInterval   time.Duration
	Quality            models.QualityTier
	DefaultAudioDevice string
	FinalizeTimeout    time.Duration
}

// Engine is the single-session recording state machine
type Engine struct {
	cfg        Config
	devices    Devices
	files      Files
	strategies Strategies
	assembler  Assembler
	logger     *zap.Logger

	history capture.History
	bus     *bus
	now     func() time.Time

	// serializes pause, resume and stop; start does not take it so that a stop
	// arriving while starting can be recorded as pending
	opMu sync.Mutex

	mu           sync.Mutex
	session      *models.RecordingSession
	strategy     capture.Strategy
	pending      filemanager.Pending
	pendingStop  bool
	stopProgress context.CancelFunc
	closed       bool

	wg sync.WaitGroup
}

// New creates an engine
func New(cfg Config, devices Devices, files Files, strategies Strategies, assembler Assembler, logger *zap.Logger) *Engine {
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = DefaultFinalizeTimeout
	}
	if cfg.Quality == "" {
		cfg.Quality = models.QualityMedium
	}
	return &Engine{
		cfg:        cfg,
		devices:    devices,
		files:      files,
		strategies: strategies,
		assembler:  assembler,
		logger:     logging.Component(logger, "engine"),
		bus:        newBus(),
		now:        time.Now,
	}
}

// Subscribe returns a channel of lifecycle events and a function that ends the
// subscription. Events arrive in publish order; a slow subscriber never blocks the engine.
func (e *Engine) Subscribe(buffer int) (<-chan models.Event, func()) {
	return e.bus.subscribe(buffer)
}

// plan is a resolved device selection
type plan struct {
	surface     models.DeviceDescriptor
	mic         *models.DeviceDescriptor
	systemAudio *models.DeviceDescriptor
	quality     models.QualityTier
	screenPerm  models.Permission
	warnings    []string
}

func (e *Engine) resolve(ctx context.Context, opts models.RecordingOptions) (plan, error) {
	snap := e.devices.Snapshot()
	if snap == nil {
		snap = e.devices.Refresh(ctx)
	}

	p := plan{quality: opts.Quality, screenPerm: models.PermissionUnknown}
	if p.quality == "" {
		p.quality = e.cfg.Quality
	}

	surfaceID := opts.SurfaceID
	if surfaceID == "" {
		primary, ok := snap.PrimaryScreen()
		if !ok {
			primary = models.SyntheticPrimaryDisplay()
		}
		surfaceID = primary.ID
	}

	v := e.devices.ValidateDeviceSelection(ctx, surfaceID, opts.AudioDeviceID, opts.SystemAudioID)
	if !v.Valid {
		err := models.NewError(models.KindValidation, "invalid device selection")
		err.Issues = v.Issues
		return p, err
	}

	p.surface, _ = snap.FindScreen(surfaceID)
	if p.surface.ID == "" {
		p.surface = models.SyntheticPrimaryDisplay()
	}

	if opts.IncludeMicrophone {
		if mic, ok := e.pickMicrophone(snap, opts.AudioDeviceID); ok {
			p.mic = &mic
		}
	}

	if opts.IncludeSystemAudio {
		if opts.SystemAudioID != "" {
			dev, _ := snap.FindAudio(opts.SystemAudioID)
			p.systemAudio = &dev
		} else if dev, ok := snap.SystemAudioSource(); ok {
			p.systemAudio = &dev
		} else {
			p.warnings = append(p.warnings, "no system audio source available, recording without system audio")
		}
	}

	if e.cfg.CheckPermissions {
		// consent can change between recordings, so the cache is never trusted here
		perms := e.devices.CheckPermissions(ctx)
		p.screenPerm = perms.Screen
		if perms.Screen == models.PermissionDenied {
			return p, models.NewError(models.KindPermissionDenied, "screen recording permission denied")
		}
		if p.mic != nil && perms.Microphone == models.PermissionDenied {
			p.mic = nil
			p.warnings = append(p.warnings, "microphone permission denied, recording without microphone")
		}
	}

	return p, nil
}

func (e *Engine) pickMicrophone(snap *models.DeviceSnapshot, explicit string) (models.DeviceDescriptor, bool) {
	if explicit != "" {
		return snap.FindAudio(explicit)
	}
	if e.cfg.DefaultAudioDevice != "" {
		if d, ok := snap.FindAudio(e.cfg.DefaultAudioDevice); ok {
			return d, true
		}
	}
	if snap == nil {
		return models.DeviceDescriptor{}, false
	}
	for _, d := range snap.AudioInputs {
		if d.Kind == models.KindAudioInput {
			return d, true
		}
	}
	return models.DeviceDescriptor{}, false
}

// StartRecording validates the options, selects a capture strategy and starts it.
// Only one session may be active; a second request fails with Busy.
func (e *Engine) StartRecording(ctx context.Context, opts models.RecordingOptions) (models.StartResult, error) {
	if err := e.checkIdle(); err != nil {
		return models.StartResult{}, err
	}

	p, err := e.resolve(ctx, opts)
	if err != nil {
		return models.StartResult{}, err
	}

	sess := &models.RecordingSession{
		ID:       uuid.NewString(),
		State:    models.StateStarting,
		Options:  opts,
		Warnings: p.warnings,
	}
	sess.Options.Quality = p.quality

	e.mu.Lock()
	if err := e.checkIdleLocked(); err != nil {
		e.mu.Unlock()
		return models.StartResult{}, err
	}
	e.session = sess
	e.strategy = nil
	e.pending = filemanager.Pending{}
	e.pendingStop = false
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	log := e.logger.With(logging.RecordingID(sess.ID))
	log.Info("Starting recording", zap.String("surface", p.surface.ID))

	pending, err := e.files.RegisterRecording(sess.ID, filemanager.Registration{
		Filename: opts.Filename,
		Dir:      opts.OutputDir,
	})
	if err != nil {
		e.fail(sess.ID, err, false)
		return models.StartResult{}, err
	}

	req := capture.StartRequest{
		RecordingID: sess.ID,
		Surface:     p.surface,
		Microphone:  p.mic,
		SystemAudio: p.systemAudio,
		Quality:     p.quality,
		OutputPath:  pending.TempPath,
		OnFailure: func(err error) {
			e.ReportFailure(sess.ID, err)
		},
	}

	strategy, info, err := e.startStrategy(ctx, log, p, req)
	if err != nil {
		e.files.Forget(sess.ID)
		e.fail(sess.ID, err, false)
		return models.StartResult{}, err
	}

	e.mu.Lock()
	if e.session != sess || sess.State != models.StateStarting {
		e.mu.Unlock()
		log.Warn("Recording ended while starting, releasing capture")
		e.release(strategy)
		e.files.Forget(sess.ID)
		return models.StartResult{}, models.NewError(models.KindInvalidState, "recording %s ended while starting", sess.ID)
	}

	sess.State = models.StateRecording
	sess.StartTime = e.now()
	sess.Strategy = strategy.Kind()
	sess.ExpectedOutputPath = pending.FinalPath
	sess.HasSystemAudio = info.HasSystemAudio
	sess.Warnings = append(sess.Warnings, info.Warnings...)
	e.strategy = strategy
	e.pending = pending

	e.bus.publish(models.Event{
		Type:               models.EventStarted,
		RecordingID:        sess.ID,
		Time:               sess.StartTime,
		ExpectedOutputPath: sess.ExpectedOutputPath,
		Strategy:           sess.Strategy,
		HasSystemAudio:     sess.HasSystemAudio,
		Warnings:           append([]string(nil), sess.Warnings...),
	})
	e.startProgressLocked(sess.ID)

	result := models.StartResult{
		RecordingID:        sess.ID,
		ExpectedOutputPath: sess.ExpectedOutputPath,
		Strategy:           sess.Strategy,
		HasSystemAudio:     sess.HasSystemAudio,
	}
	stopNow := e.pendingStop
	e.mu.Unlock()

	log.Info("Recording started",
		zap.String(logging.KeyStrategy, string(result.Strategy)),
		zap.String(logging.KeyPath, result.ExpectedOutputPath),
		zap.Bool("systemAudio", result.HasSystemAudio))

	if stopNow {
		log.Info("Honouring stop requested while starting")
		if _, err := e.StopRecording(ctx); err != nil {
			log.Warn("Pending stop failed", zap.Error(err))
		}
	}
	return result, nil
}

func (e *Engine) checkIdle() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkIdleLocked()
}

func (e *Engine) checkIdleLocked() error {
	if e.closed {
		return models.NewError(models.KindInvalidState, "engine is shut down")
	}
	if s := e.session; s != nil && s.State.IsActive() {
		return models.NewError(models.KindBusy, "recording %s is %s", s.ID, s.State)
	}
	return nil
}

// startStrategy tries the selected strategies in order. A StrategyUnavailable failure
// falls through to the next candidate; any other error ends the attempt.
func (e *Engine) startStrategy(ctx context.Context, log *zap.Logger, p plan, req capture.StartRequest) (capture.Strategy, capture.HandleInfo, error) {
	caps := e.strategies.Capabilities(ctx, p.screenPerm, req.WantSystemAudio())
	kinds := capture.Select(caps, e.cfg.Policy, e.history.Snapshot(), e.now())
	log.Debug("Strategy candidates", zap.Any("order", kinds))

	var lastErr error
	for _, kind := range kinds {
		s, err := e.strategies.New(kind)
		if err != nil {
			lastErr = models.WrapError(models.KindStrategyUnavailable, err, "strategy %s", kind)
			continue
		}

		info, err := s.Start(ctx, req)
		if err == nil {
			e.history.Clear(kind)
			return s, info, nil
		}
		e.release(s)
		lastErr = err

		if !errors.Is(err, models.ErrStrategyUnavailable) {
			return nil, capture.HandleInfo{}, err
		}
		e.history.Record(kind, e.now())
		log.Warn("Strategy unavailable, trying next",
			zap.String(logging.KeyStrategy, string(kind)), zap.Error(err))
	}

	if lastErr == nil {
		lastErr = models.NewError(models.KindStrategyUnavailable, "no capture strategy available")
	}
	return nil, capture.HandleInfo{}, lastErr
}

// release stops a strategy whose output is not wanted
func (e *Engine) release(s capture.Strategy) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.FinalizeTimeout)
	defer cancel()
	if _, err := s.Stop(ctx); err != nil {
		e.logger.Debug("Strategy release", zap.String(logging.KeyStrategy, string(s.Kind())), zap.Error(err))
	}
}

// StopRecording stops the active session and returns the best-known output path at
// once; the completed event carries the final path, which can differ when the
// destination was taken or the move failed. Once the session is terminal every call
// returns the path of its final event. A stop while starting is applied once the start
// resolves.
func (e *Engine) StopRecording(ctx context.Context) (models.StopResult, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil {
		return models.StopResult{}, models.NewError(models.KindInvalidState, "no recording to stop")
	}

	switch s.State {
	case models.StateCompleted, models.StateFailed, models.StateStopping:
		return e.stopResultLocked(s), nil
	case models.StateStarting:
		e.pendingStop = true
		return e.stopResultLocked(s), nil
	}

	now := e.now()
	if s.State == models.StatePaused && !s.PausedAt.IsZero() {
		s.PausedFor += now.Sub(s.PausedAt)
		s.PausedAt = time.Time{}
	}
	s.State = models.StateStopping
	s.EndTime = now
	e.stopProgressLocked()

	e.logger.Info("Stopping recording", logging.RecordingID(s.ID),
		zap.String(logging.KeyStrategy, string(s.Strategy)),
		zap.Duration("duration", s.Duration(now)))

	e.wg.Add(1)
	go e.finalize(s.ID, e.strategy, e.pending)
	return e.stopResultLocked(s), nil
}

func (e *Engine) stopResultLocked(s *models.RecordingSession) models.StopResult {
	return models.StopResult{
		RecordingID: s.ID,
		OutputPath:  s.BestKnownPath(),
		Duration:    s.Duration(e.now()),
	}
}

// finalize stops the strategy, assembles its tracks and moves the result into place
func (e *Engine) finalize(id string, s capture.Strategy, p filemanager.Pending) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.FinalizeTimeout)
	defer cancel()

	log := e.logger.With(logging.RecordingID(id))

	final, err := s.Stop(ctx)
	if err != nil {
		log.Error("Strategy stop failed", zap.Error(err))
		e.failWithArtifacts(id, err, final)
		return
	}

	assembled, err := e.assembler.Assemble(ctx, final, p.TempPath)
	if err != nil {
		log.Error("Assembling artifacts failed", zap.Error(err))
		e.fail(id, err, true)
		return
	}

	e.mu.Lock()
	var duration time.Duration
	var kind models.StrategyKind
	if e.session != nil && e.session.ID == id {
		duration = e.session.Duration(e.now())
		kind = e.session.Strategy
	}
	e.mu.Unlock()

	done, err := e.files.CompleteRecording(ctx, id, filemanager.Artifact{
		Path:           assembled.OutputPath,
		Extras:         assembled.ExtraPaths,
		Duration:       duration,
		Strategy:       kind,
		HasSystemAudio: final.HasSystemAudio,
	})
	if err != nil {
		if !done.Kept {
			log.Error("Completing recording failed", zap.Error(err))
			e.fail(id, err, true)
			return
		}
		log.Warn("Recording kept at its temporary path", zap.String(logging.KeyPath, done.FinalPath), zap.Error(err))
		assembled.Warnings = append(assembled.Warnings,
			fmt.Sprintf("%s: recording kept at %s", err.Error(), done.FinalPath))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.session
	if sess == nil || sess.ID != id || sess.State != models.StateStopping {
		log.Warn("Session changed while finalizing, dropping completion", zap.String(logging.KeyPath, done.FinalPath))
		return
	}
	sess.State = models.StateCompleted
	sess.ActualOutputPath = done.FinalPath
	sess.HasSystemAudio = final.HasSystemAudio
	sess.Warnings = append(sess.Warnings, assembled.Warnings...)
	e.strategy = nil

	e.bus.publish(models.Event{
		Type:           models.EventCompleted,
		RecordingID:    id,
		Time:           e.now(),
		Duration:       sess.Duration(e.now()),
		Strategy:       sess.Strategy,
		HasSystemAudio: sess.HasSystemAudio,
		OutputPath:     done.FinalPath,
		ExtraPaths:     done.ExtraPaths,
		Warnings:       append([]string(nil), sess.Warnings...),
	})

	log.Info("Recording completed",
		zap.String(logging.KeyPath, done.FinalPath),
		zap.Int64("sizeBytes", done.SizeBytes),
		zap.Int64(logging.KeyDurationMs, sess.Duration(e.now()).Milliseconds()))
}

// PauseRecording pauses a recording session
func (e *Engine) PauseRecording(ctx context.Context) error {
	return e.toggle(ctx, models.StateRecording, models.StatePaused)
}

// ResumeRecording resumes a paused session
func (e *Engine) ResumeRecording(ctx context.Context) error {
	return e.toggle(ctx, models.StatePaused, models.StateRecording)
}

func (e *Engine) toggle(ctx context.Context, from, to models.RecordingState) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	s := e.session
	if s == nil || s.State != from {
		state := models.StateIdle
		if s != nil {
			state = s.State
		}
		e.mu.Unlock()
		return models.NewError(models.KindInvalidState, "cannot move to %s while %s", to, state)
	}
	strategy := e.strategy
	id := s.ID
	e.mu.Unlock()

	if !strategy.SupportsPause() {
		return models.NewError(models.KindUnsupported, "%s capture does not support pause", strategy.Kind())
	}

	var err error
	if to == models.StatePaused {
		err = strategy.Pause(ctx)
	} else {
		err = strategy.Resume(ctx)
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != s || s.State != from {
		return models.NewError(models.KindInvalidState, "recording %s ended while changing to %s", id, to)
	}

	now := e.now()
	evt := models.Event{RecordingID: id, Time: now}
	if to == models.StatePaused {
		s.PausedAt = now
		evt.Type = models.EventPaused
	} else {
		if !s.PausedAt.IsZero() {
			s.PausedFor += now.Sub(s.PausedAt)
		}
		s.PausedAt = time.Time{}
		evt.Type = models.EventResumed
	}
	s.State = to
	evt.Duration = s.Duration(now)
	e.bus.publish(evt)

	e.logger.Info("Recording "+string(evt.Type), logging.RecordingID(id))
	return nil
}

// HandleRecordingError fails the active session and releases its capture
func (e *Engine) HandleRecordingError(err error) {
	e.ReportFailure("", err)
}

// ReportFailure fails the session with the given id, or the active one when id is
// empty. Failures reported while the session is stopping are left to finalization.
func (e *Engine) ReportFailure(id string, err error) {
	if err == nil {
		err = errors.New("unknown capture failure")
	}

	e.mu.Lock()
	s := e.session
	if s == nil || (id != "" && s.ID != id) || !s.State.IsActive() || s.State == models.StateStopping {
		e.mu.Unlock()
		e.logger.Debug("Ignoring failure report", logging.RecordingID(id), zap.Error(err))
		return
	}
	strategy := e.strategy
	e.failLocked(s, err)
	e.strategy = nil
	track := !e.closed
	if strategy != nil && track {
		e.wg.Add(1)
	}
	e.mu.Unlock()

	if strategy != nil {
		go func() {
			if track {
				defer e.wg.Done()
			}
			e.release(strategy)
		}()
	}
}

// failWithArtifacts fails a stopping session and reports every artifact the strategy
// still handed back next to the error's partial path
func (e *Engine) failWithArtifacts(id string, err error, final capture.FinalInfo) {
	partial := models.PathOf(err)
	var extras []string
	for _, p := range final.Artifacts.Paths() {
		if p != partial {
			extras = append(extras, p)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	if s == nil || s.ID != id || s.State.IsTerminal() {
		return
	}
	s.Warnings = append(s.Warnings, final.Warnings...)
	e.failLocked(s, err, extras...)
	e.strategy = nil
}

// fail transitions the session to failed when it is still the active one
func (e *Engine) fail(id string, err error, stopping bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	if s == nil || s.ID != id || s.State.IsTerminal() {
		return
	}
	if s.State == models.StateStopping && !stopping {
		return
	}
	e.failLocked(s, err)
	e.strategy = nil
}

func (e *Engine) failLocked(s *models.RecordingSession, err error, extras ...string) {
	now := e.now()
	if s.EndTime.IsZero() {
		s.EndTime = now
	}
	s.State = models.StateFailed
	s.Error = err.Error()
	e.stopProgressLocked()

	kind := models.KindOf(err)
	partial := models.PathOf(err)
	if partial == "" {
		partial = e.pending.TempPath
	}
	if partial == "" {
		partial = s.BestKnownPath()
	}

	e.bus.publish(models.Event{
		Type:        models.EventError,
		RecordingID: s.ID,
		Time:        now,
		Duration:    s.Duration(now),
		Strategy:    s.Strategy,
		ErrorKind:   kind,
		Message:     err.Error(),
		PartialPath: partial,
		ExtraPaths:  extras,
		Remediation: models.Remediation(kind),
		Warnings:    append([]string(nil), s.Warnings...),
	})

	e.logger.Error("Recording failed", logging.RecordingID(s.ID),
		zap.String("kind", string(kind)),
		zap.String(logging.KeyPath, partial),
		zap.Strings("kept", extras),
		zap.Error(err))
}

func (e *Engine) startProgressLocked(id string) {
	if e.cfg.ProgressInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.stopProgress = cancel
	e.wg.Add(1)
	go e.progress(ctx, id)
}

func (e *Engine) stopProgressLocked() {
	if e.stopProgress != nil {
		e.stopProgress()
		e.stopProgress = nil
	}
}

func (e *Engine) progress(ctx context.Context, id string) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			// the check runs under mu so a progress event never follows a final event
			if ctx.Err() == nil && e.session != nil && e.session.ID == id && e.session.State == models.StateRecording {
				now := e.now()
				e.bus.publish(models.Event{
					Type:        models.EventProgress,
					RecordingID: id,
					Time:        now,
					Duration:    e.session.Duration(now),
				})
			}
			e.mu.Unlock()
		}
	}
}

// GetStatus returns the current state without blocking. A finished session reports
// idle together with its id, output path and error.
func (e *Engine) GetStatus() models.RecordingStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := models.RecordingStatus{State: models.StateIdle, Devices: e.devices.Snapshot()}
	s := e.session
	if s == nil {
		return st
	}
	if s.State.IsActive() {
		st.State = s.State
	}
	st.RecordingID = s.ID
	st.Strategy = s.Strategy
	st.Duration = s.Duration(e.now())
	st.StartTime = s.StartTime
	st.OutputPath = s.BestKnownPath()
	st.LastError = s.Error
	return st
}

// Session returns a copy of the current or last session
func (e *Engine) Session() (models.RecordingSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return models.RecordingSession{}, false
	}
	s := *e.session
	s.Warnings = append([]string(nil), e.session.Warnings...)
	return s, true
}

// GetAvailableScreens lists capture surfaces
func (e *Engine) GetAvailableScreens(ctx context.Context, refresh bool) []models.DeviceDescriptor {
	return e.devices.GetAvailableScreens(ctx, refresh)
}

// Close stops an active recording, waits for finalization and ends every subscription.
// When ctx expires first the session is failed and its temporary artifact kept.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	active := e.session != nil && e.session.State.IsActive()
	e.mu.Unlock()

	if active {
		if _, err := e.StopRecording(ctx); err != nil {
			e.logger.Warn("Stopping recording on shutdown failed", zap.Error(err))
		}
	}

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for recording to finalize: %w", ctx.Err())
		e.mu.Lock()
		if s := e.session; s != nil && s.State.IsActive() {
			e.failLocked(s, models.WrapError(models.KindCapture, ctx.Err(), "shutdown before recording finalized"))
		}
		e.mu.Unlock()
	}

	e.bus.close()
	return err
}

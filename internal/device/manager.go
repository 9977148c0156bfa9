// Package device enumerates capture surfaces and audio devices, validates device
// selections and caches capture permission state.
//
// Device and permission state are published as immutable snapshots: a refresh builds
// a new value and swaps it in with a single atomic store, so readers never observe a
// partially updated list.
package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// Platform exposes the host's device and consent primitives
type Platform interface {
	Name() string
	ListScreens(ctx context.Context) ([]models.DeviceDescriptor, error)
	ListAudioDevices(ctx context.Context) ([]models.DeviceDescriptor, error)
	// PermissionGated reports whether the OS mediates capture consent
	PermissionGated() bool
	CheckPermission(ctx context.Context, c models.Capability) (models.Permission, error)
	RequestPermission(ctx context.Context, c models.Capability) (models.Permission, error)
	OSVersion(ctx context.Context) (string, error)
}

// DefaultQueryTimeout bounds every platform query when none is configured
const DefaultQueryTimeout = 5 * time.Second

// Manager is the DeviceManager: cached enumeration, validation and permission state
type Manager struct {
	platform Platform
	timeout  time.Duration
	logger   *zap.Logger

	snapshot atomic.Pointer[models.DeviceSnapshot]
	perms    atomic.Pointer[models.PermissionStatus]
	version  atomic.Uint64

	// serializes refreshes; readers never take it
	refreshMu sync.Mutex
	permMu    sync.Mutex

	osVersionOnce sync.Once
	osVersion     string
}

// NewManager creates a DeviceManager for the given platform
func NewManager(p Platform, timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Manager{
		platform: p,
		timeout:  timeout,
		logger:   logging.Component(logger, "device-manager"),
	}
}

// Platform returns the underlying platform primitives
func (m *Manager) Platform() Platform {
	return m.platform
}

// Snapshot returns the current device snapshot without blocking; nil before the first refresh
func (m *Manager) Snapshot() *models.DeviceSnapshot {
	return m.snapshot.Load()
}

// Refresh re-enumerates screens and audio devices and atomically replaces the snapshot.
// Screen enumeration failures downgrade to a single synthetic primary display.
func (m *Manager) Refresh(ctx context.Context) *models.DeviceSnapshot {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	snap := &models.DeviceSnapshot{RefreshedAt: time.Now()}

	screens, err := m.listScreens(ctx)
	if err != nil || len(screens) == 0 {
		if err == nil {
			err = fmt.Errorf("no screens reported")
		}
		m.logger.Warn("Screen enumeration failed, using synthetic primary display",
			zap.String("platform", m.platform.Name()), zap.Error(err))
		screens = []models.DeviceDescriptor{models.SyntheticPrimaryDisplay()}
		snap.Synthetic = true
	}
	snap.Screens = screens

	audio, err := m.listAudio(ctx)
	if err != nil {
		m.logger.Warn("Audio device enumeration failed", zap.Error(err))
		// keep the previous audio list rather than dropping known devices
		if prev := m.snapshot.Load(); prev != nil {
			audio = prev.AudioInputs
		}
	}
	snap.AudioInputs = audio

	snap.Version = m.version.Add(1)
	m.snapshot.Store(snap)

	m.logger.Debug("Device snapshot refreshed",
		zap.Uint64("version", snap.Version),
		zap.Int("screens", len(snap.Screens)),
		zap.Int("audio", len(snap.AudioInputs)))

	return snap
}

func (m *Manager) listScreens(ctx context.Context) ([]models.DeviceDescriptor, error) {
	return bounded(ctx, m.timeout, m.platform.ListScreens)
}

func (m *Manager) listAudio(ctx context.Context) ([]models.DeviceDescriptor, error) {
	return bounded(ctx, m.timeout, m.platform.ListAudioDevices)
}

// bounded runs fn with a timeout. fn runs on its own goroutine so a platform call that
// ignores its context cannot hold the caller past the deadline; a late result is dropped.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("platform query timed out after %s: %w", timeout, ctx.Err())
	}
}

func (m *Manager) current(ctx context.Context) *models.DeviceSnapshot {
	if snap := m.snapshot.Load(); snap != nil {
		return snap
	}
	return m.Refresh(ctx)
}

// GetAvailableScreens returns the cached screens, re-enumerating when refresh is set
// or nothing has been enumerated yet. The result is never empty.
func (m *Manager) GetAvailableScreens(ctx context.Context, refresh bool) []models.DeviceDescriptor {
	var snap *models.DeviceSnapshot
	if refresh {
		snap = m.Refresh(ctx)
	} else {
		snap = m.current(ctx)
	}
	out := make([]models.DeviceDescriptor, len(snap.Screens))
	copy(out, snap.Screens)
	return out
}

// GetAudioDevices returns the cached audio devices, re-enumerating when refresh is set
func (m *Manager) GetAudioDevices(ctx context.Context, refresh bool) []models.DeviceDescriptor {
	var snap *models.DeviceSnapshot
	if refresh {
		snap = m.Refresh(ctx)
	} else {
		snap = m.current(ctx)
	}
	out := make([]models.DeviceDescriptor, len(snap.AudioInputs))
	copy(out, snap.AudioInputs)
	return out
}

// ValidateDeviceSelection checks a proposed surface and audio devices against the
// current snapshot. Failure is an expected outcome and is reported, not returned as error.
func (m *Manager) ValidateDeviceSelection(ctx context.Context, surfaceID, micID, systemAudioID string) models.ValidationResult {
	snap := m.current(ctx)
	var issues []string

	if surfaceID == "" {
		issues = append(issues, "no capture surface selected")
	} else if _, _, err := models.ParseSurfaceID(surfaceID); err != nil {
		issues = append(issues, err.Error())
	} else if _, ok := snap.FindScreen(surfaceID); !ok {
		issues = append(issues, fmt.Sprintf("surface %q not found", surfaceID))
	}

	if micID != "" {
		if _, ok := snap.FindAudio(micID); !ok {
			issues = append(issues, fmt.Sprintf("audio device %q not found", micID))
		}
	}

	if systemAudioID != "" {
		dev, ok := snap.FindAudio(systemAudioID)
		switch {
		case !ok:
			issues = append(issues, fmt.Sprintf("system audio device %q not found", systemAudioID))
		case !dev.CanSupplySystemAudio:
			issues = append(issues, fmt.Sprintf("device %q cannot supply system audio", systemAudioID))
		}
	}

	return models.ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

// Permissions returns the cached permission status, querying the platform when the cache is empty
func (m *Manager) Permissions(ctx context.Context) models.PermissionStatus {
	if p := m.perms.Load(); p != nil {
		return *p
	}
	return m.CheckPermissions(ctx)
}

// CheckPermissions queries the platform and replaces the cached status. Platforms without
// consent gating report unknown rather than granted.
func (m *Manager) CheckPermissions(ctx context.Context) models.PermissionStatus {
	return m.queryPermissions(ctx, m.platform.CheckPermission)
}

// RequestPermissions asks the OS for consent and replaces the cached status
func (m *Manager) RequestPermissions(ctx context.Context) models.PermissionStatus {
	return m.queryPermissions(ctx, m.platform.RequestPermission)
}

// InvalidatePermissions drops the cached permission status
func (m *Manager) InvalidatePermissions() {
	m.perms.Store(nil)
}

func (m *Manager) queryPermissions(ctx context.Context, query func(context.Context, models.Capability) (models.Permission, error)) models.PermissionStatus {
	m.permMu.Lock()
	defer m.permMu.Unlock()

	status := models.UnknownPermissions()
	status.CheckedAt = time.Now()

	if m.platform.PermissionGated() {
		status.Screen = m.queryOne(ctx, query, models.CapabilityScreen)
		status.Microphone = m.queryOne(ctx, query, models.CapabilityMicrophone)
	}

	m.perms.Store(&status)
	return status
}

func (m *Manager) queryOne(ctx context.Context, query func(context.Context, models.Capability) (models.Permission, error), c models.Capability) models.Permission {
	p, err := bounded(ctx, m.timeout, func(ctx context.Context) (models.Permission, error) {
		return query(ctx, c)
	})
	if err != nil {
		m.logger.Warn("Permission query failed", zap.String("capability", string(c)), zap.Error(err))
		return models.PermissionUnknown
	}
	return p
}

// OSVersion returns the host OS version, queried once and cached
func (m *Manager) OSVersion(ctx context.Context) string {
	m.osVersionOnce.Do(func() {
		v, err := bounded(ctx, m.timeout, m.platform.OSVersion)
		if err != nil {
			m.logger.Debug("OS version unavailable", zap.Error(err))
			return
		}
		m.osVersion = v
	})
	return m.osVersion
}

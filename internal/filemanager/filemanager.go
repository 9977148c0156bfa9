// Package filemanager owns recording artifacts on disk: it hands out temporary paths
// before capture starts, moves finished artifacts to their destination and sweeps
// abandoned temporaries.
package filemanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// TempPrefix marks every temporary artifact; leftovers are recognised by it after a crash
const TempPrefix = "capture-"

// DefaultRetention is how long abandoned temporaries are kept
const DefaultRetention = 24 * time.Hour

// Index is the recordings index the manager keeps in sync
type Index interface {
	Add(ctx context.Context, e models.RecordingEntry) error
	List(ctx context.Context) ([]models.RecordingEntry, error)
	DeleteByPath(ctx context.Context, path string) (int64, error)
}

// Config holds the directories and retention the manager works with
type Config struct {
	TempDir   string
	OutputDir string
	Retention time.Duration
}

// Registration is the caller's choice of destination
type Registration struct {
	Filename string
	Dir      string
}

// Pending is a registered recording whose artifact has not been completed yet
type Pending struct {
	RecordingID  string
	TempPath     string
	FinalPath    string
	RegisteredAt time.Time
	// Kept is set when the artifact could not be moved and stays at KeptPath for good
	Kept     bool
	KeptPath string
}

// Artifact describes what a finished capture produced
type Artifact struct {
	Path string
	// Extras are additional files kept next to Path, e.g. unmerged audio tracks
	Extras         []string
	Duration       time.Duration
	Strategy       models.StrategyKind
	HasSystemAudio bool
}

// CompleteResult reports where a completed recording ended up. Kept means the move
// failed and FinalPath is the temporary artifact, which is then authoritative.
type CompleteResult struct {
	FinalPath  string
	ExtraPaths []string
	SizeBytes  int64
	Kept       bool
}

// Manager is the FileManager
type Manager struct {
	cfg    Config
	index  Index
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]*Pending
}

// New creates a FileManager. index may be nil.
func New(cfg Config, index Index, logger *zap.Logger) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "kartoza-capture")
	}
	return &Manager{
		cfg:     cfg,
		index:   index,
		logger:  logging.Component(logger, "file-manager"),
		now:     time.Now,
		pending: make(map[string]*Pending),
	}
}

// TempDir returns the directory for in-flight artifacts
func (m *Manager) TempDir() string {
	return m.cfg.TempDir
}

// RegisterRecording reserves a temporary path for id and records its destination.
// It must be called before capture starts so the artifact can always be found.
func (m *Manager) RegisterRecording(id string, reg Registration) (Pending, error) {
	if id == "" {
		return Pending{}, models.NewError(models.KindValidation, "recording id is required")
	}

	filename := filepath.Base(strings.TrimSpace(reg.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		filename = fmt.Sprintf("recording-%s.mp4", m.now().Format("20060102-150405"))
	}
	if filepath.Ext(filename) == "" {
		filename += ".mp4"
	}
	dir := reg.Dir
	if dir == "" {
		dir = m.cfg.OutputDir
	}

	if err := os.MkdirAll(m.cfg.TempDir, 0755); err != nil {
		return Pending{}, models.WrapError(models.KindFileError, err, "failed to create temp directory")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pending[id]; exists {
		return Pending{}, models.NewError(models.KindValidation, "recording %s is already registered", id)
	}

	p := &Pending{
		RecordingID:  id,
		TempPath:     filepath.Join(m.cfg.TempDir, TempPrefix+id+"-"+filename),
		FinalPath:    filepath.Join(dir, filename),
		RegisteredAt: m.now(),
	}
	m.pending[id] = p

	m.logger.Debug("Recording registered",
		logging.RecordingID(id),
		zap.String("tempPath", p.TempPath),
		zap.String("finalPath", p.FinalPath))

	return *p, nil
}

// Pending returns the registration of id
func (m *Manager) Pending(id string) (Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if !ok {
		return Pending{}, false
	}
	return *p, true
}

// Forget drops the registration of id without touching any file
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// CompleteRecording moves the finished artifact to its destination: the file is copied,
// its size verified and only then the temporary removed. When the copy cannot be
// verified the temporary stays in place and is reported as the authoritative path.
func (m *Manager) CompleteRecording(ctx context.Context, id string, a Artifact) (CompleteResult, error) {
	p, ok := m.Pending(id)
	if !ok {
		m.logger.Warn("Completing unregistered recording", logging.RecordingID(id), zap.String(logging.KeyPath, a.Path))
		p = Pending{RecordingID: id, FinalPath: filepath.Join(m.cfg.OutputDir, stripTempPrefix(id, filepath.Base(a.Path)))}
	}

	info, err := os.Stat(a.Path)
	if err != nil {
		return CompleteResult{}, models.WrapError(models.KindFileError, err, "capture artifact missing").WithPath(a.Path)
	}

	// the artifact decides the container; an audio-only fallback keeps its own extension
	final := p.FinalPath
	if ext := filepath.Ext(a.Path); ext != "" && ext != filepath.Ext(final) {
		final = strings.TrimSuffix(final, filepath.Ext(final)) + ext
	}
	final = uniquePath(final)

	size, err := m.move(ctx, a.Path, final, info.Size())
	if err != nil {
		cerr := models.WrapError(models.KindFileError, err, "failed to move recording to %s", filepath.Dir(final)).WithPath(a.Path)
		return m.keep(ctx, p, a, info.Size(), cerr), cerr
	}

	result := CompleteResult{FinalPath: final, SizeBytes: size}
	base := strings.TrimSuffix(final, filepath.Ext(final))
	stem := tempStem(p, a.Path)
	for _, extra := range a.Extras {
		dest := uniquePath(base + extraSuffix(stem, extra))
		st, err := os.Stat(extra)
		if err != nil {
			m.logger.Warn("Extra artifact missing", zap.String(logging.KeyPath, extra), zap.Error(err))
			continue
		}
		if _, err := m.move(ctx, extra, dest, st.Size()); err != nil {
			m.logger.Warn("Failed to move extra artifact, keeping it in place",
				zap.String(logging.KeyPath, extra), zap.Error(err))
			result.ExtraPaths = append(result.ExtraPaths, extra)
			continue
		}
		result.ExtraPaths = append(result.ExtraPaths, dest)
	}

	if p.TempPath != "" && p.TempPath != a.Path {
		_ = os.Remove(p.TempPath)
	}
	m.Forget(id)

	if m.index != nil {
		entry := models.RecordingEntry{
			ID:             id,
			Path:           final,
			CreatedAt:      m.now(),
			DurationMs:     a.Duration.Milliseconds(),
			SizeBytes:      size,
			Strategy:       a.Strategy,
			HasSystemAudio: a.HasSystemAudio,
			Environment:    models.CurrentEnvironment().String(),
		}
		if err := m.index.Add(ctx, entry); err != nil {
			m.logger.Warn("Failed to index recording", logging.RecordingID(id), zap.Error(err))
		}
	}

	m.logger.Info("Recording completed",
		logging.RecordingID(id),
		zap.String(logging.KeyPath, final),
		zap.Int64("sizeBytes", size),
		zap.Int("extras", len(result.ExtraPaths)))

	return result, nil
}

// keep leaves an artifact that could not be moved where it is. The registration stays
// so the cleanup sweep never reclaims the file, and the index points at it.
func (m *Manager) keep(ctx context.Context, p Pending, a Artifact, size int64, cause error) CompleteResult {
	m.mu.Lock()
	reg, ok := m.pending[p.RecordingID]
	if !ok {
		reg = &p
		reg.RegisteredAt = m.now()
		m.pending[p.RecordingID] = reg
	}
	reg.Kept = true
	reg.KeptPath = a.Path
	m.mu.Unlock()

	m.logger.Warn("Keeping recording at its temporary path",
		logging.RecordingID(p.RecordingID),
		zap.String(logging.KeyPath, a.Path),
		zap.Error(cause))

	if m.index != nil {
		entry := models.RecordingEntry{
			ID:             p.RecordingID,
			Path:           a.Path,
			CreatedAt:      m.now(),
			DurationMs:     a.Duration.Milliseconds(),
			SizeBytes:      size,
			Strategy:       a.Strategy,
			HasSystemAudio: a.HasSystemAudio,
			Environment:    models.CurrentEnvironment().String(),
		}
		if err := m.index.Add(ctx, entry); err != nil {
			m.logger.Warn("Failed to index kept recording", logging.RecordingID(p.RecordingID), zap.Error(err))
		}
	}

	return CompleteResult{FinalPath: a.Path, ExtraPaths: a.Extras, SizeBytes: size, Kept: true}
}

// move copies src to dst, verifies the size and removes src
func (m *Manager) move(ctx context.Context, src, dst string, want int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return 0, err
	}

	st, err := os.Stat(dst)
	if err != nil {
		return 0, err
	}
	if st.Size() != want {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("size mismatch after copy: wrote %d of %d bytes", st.Size(), want)
	}

	if err := os.Remove(src); err != nil {
		m.logger.Warn("Failed to remove temporary artifact", zap.String(logging.KeyPath, src), zap.Error(err))
	}
	return st.Size(), nil
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	if err := dstFile.Sync(); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}

// uniquePath appends -1, -2, ... until nothing occupies the path
func uniquePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// tempStem is the registered temp name without its extension; track files share it
func tempStem(p Pending, main string) string {
	if p.TempPath != "" {
		name := filepath.Base(p.TempPath)
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return strings.SplitN(filepath.Base(main), ".", 2)[0]
}

// extraSuffix is the part of an extra track's name that distinguishes it from the main
// artifact, e.g. ".mic.wav" for capture-id-talk.mic.wav
func extraSuffix(stem, extra string) string {
	name := filepath.Base(extra)
	if strings.HasPrefix(name, stem+".") {
		return strings.TrimPrefix(name, stem)
	}
	return "." + name
}

func stripTempPrefix(id, name string) string {
	return strings.TrimPrefix(name, TempPrefix+id+"-")
}

// CleanupReport lists what a cleanup pass removed
type CleanupReport struct {
	Removed       []string
	ExpiredIDs    []string
	BytesReleased int64
}

// CleanupOldFiles removes temporaries of registrations older than the retention and
// sweeps the temp directory for leftover capture files of the same age. Files of live
// registrations are never touched.
func (m *Manager) CleanupOldFiles(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport
	cutoff := m.now().Add(-m.cfg.Retention)

	live := make(map[string]bool)
	m.mu.Lock()
	for id, p := range m.pending {
		if !p.Kept && p.RegisteredAt.Before(cutoff) {
			report.ExpiredIDs = append(report.ExpiredIDs, id)
			delete(m.pending, id)
			continue
		}
		live[id] = true
	}
	m.mu.Unlock()

	entries, err := os.ReadDir(m.cfg.TempDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, nil
		}
		return report, models.WrapError(models.KindFileError, err, "failed to read temp directory")
	}
	indexed := m.indexedPaths(ctx)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := e.Name()
		path := filepath.Join(m.cfg.TempDir, name)
		if e.IsDir() || !strings.HasPrefix(name, TempPrefix) || belongsToLive(name, live) || indexed[path] {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			m.logger.Warn("Failed to remove stale artifact", zap.String(logging.KeyPath, path), zap.Error(err))
			continue
		}
		report.Removed = append(report.Removed, path)
		report.BytesReleased += info.Size()
	}

	if len(report.Removed) > 0 || len(report.ExpiredIDs) > 0 {
		m.logger.Info("Cleanup finished",
			zap.Int("removed", len(report.Removed)),
			zap.Strings("expired", report.ExpiredIDs),
			zap.Int64("bytes", report.BytesReleased))
	}
	return report, nil
}

// indexedPaths are recordings the index knows about; a kept temporary survives a restart
// through it
func (m *Manager) indexedPaths(ctx context.Context) map[string]bool {
	out := make(map[string]bool)
	if m.index == nil {
		return out
	}
	entries, err := m.index.List(ctx)
	if err != nil {
		m.logger.Warn("Failed to read recordings index for cleanup", zap.Error(err))
		return out
	}
	for _, e := range entries {
		out[e.Path] = true
	}
	return out
}

func belongsToLive(name string, live map[string]bool) bool {
	for id := range live {
		if strings.HasPrefix(name, TempPrefix+id+"-") {
			return true
		}
	}
	return false
}

// RunCleanup runs CleanupOldFiles immediately and then every interval until ctx ends
func (m *Manager) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.CleanupOldFiles(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("Cleanup failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DeleteRecording removes a finished recording and its index entry
func (m *Manager) DeleteRecording(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return models.WrapError(models.KindFileError, err, "failed to delete recording").WithPath(path)
	}
	if m.index != nil {
		if _, err := m.index.DeleteByPath(ctx, path); err != nil {
			return models.WrapError(models.KindFileError, err, "failed to update recordings index")
		}
	}
	m.mu.Lock()
	for id, p := range m.pending {
		if p.Kept && p.KeptPath == path {
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()
	m.logger.Info("Recording deleted", zap.String(logging.KeyPath, path))
	return nil
}

// GetAllRecordings lists finished recordings, newest first. Without an index the output
// directory is scanned.
func (m *Manager) GetAllRecordings(ctx context.Context) ([]models.RecordingEntry, error) {
	if m.index != nil {
		entries, err := m.index.List(ctx)
		if err != nil {
			return nil, models.WrapError(models.KindFileError, err, "failed to read recordings index")
		}
		return entries, nil
	}

	dirEntries, err := os.ReadDir(m.cfg.OutputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, models.WrapError(models.KindFileError, err, "failed to read output directory")
	}

	var out []models.RecordingEntry
	for _, e := range dirEntries {
		if e.IsDir() || !isMediaFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(m.cfg.OutputDir, e.Name())
		out = append(out, models.RecordingEntry{
			ID:        path,
			Path:      path,
			CreatedAt: info.ModTime(),
			SizeBytes: info.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

var mediaExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".mov": true,
	".wav": true, ".m4a": true, ".ogg": true,
}

func isMediaFile(name string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(name))]
}

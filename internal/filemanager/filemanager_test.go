package filemanager

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/store"
)

type testEnv struct {
	m     *Manager
	index *store.Store
	temp  string
	out   string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	base := t.TempDir()
	idx, err := store.Open(store.MemoryPath, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	env := testEnv{
		index: idx,
		temp:  filepath.Join(base, "tmp"),
		out:   filepath.Join(base, "out"),
	}
	env.m = New(Config{TempDir: env.temp, OutputDir: env.out, Retention: time.Hour}, idx, zap.NewNop())
	return env
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRegisterRecording(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.m.RegisterRecording("abc", Registration{Filename: "demo.mp4"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.temp, "capture-abc-demo.mp4"), p.TempPath)
	assert.Equal(t, filepath.Join(env.out, "demo.mp4"), p.FinalPath)
	assert.DirExists(t, env.temp)

	got, ok := env.m.Pending("abc")
	require.True(t, ok)
	assert.Equal(t, p, got)

	_, err = env.m.RegisterRecording("abc", Registration{Filename: "again.mp4"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = env.m.RegisterRecording("", Registration{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRegisterRecording_Defaults(t *testing.T) {
	env := newTestEnv(t)
	custom := filepath.Join(t.TempDir(), "elsewhere")

	p, err := env.m.RegisterRecording("a", Registration{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(p.FinalPath), "recording-"))
	assert.Equal(t, ".mp4", filepath.Ext(p.FinalPath))

	p, err = env.m.RegisterRecording("b", Registration{Filename: "../../escape", Dir: custom})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(custom, "escape.mp4"), p.FinalPath)
	assert.Equal(t, env.temp, filepath.Dir(p.TempPath))
}

func TestCompleteRecording_SizeRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.m.RegisterRecording("abc", Registration{Filename: "demo.mp4"})
	require.NoError(t, err)

	content := strings.Repeat("frame", 4096)
	writeFile(t, p.TempPath, content)

	res, err := env.m.CompleteRecording(ctx, "abc", Artifact{
		Path:           p.TempPath,
		Duration:       90 * time.Second,
		Strategy:       models.StrategyNative,
		HasSystemAudio: true,
	})
	require.NoError(t, err)
	assert.Equal(t, p.FinalPath, res.FinalPath)
	assert.Equal(t, int64(len(content)), res.SizeBytes)

	data, err := os.ReadFile(res.FinalPath)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
	assert.NoFileExists(t, p.TempPath)

	_, ok := env.m.Pending("abc")
	assert.False(t, ok)

	entry, err := env.index.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, res.FinalPath, entry.Path)
	assert.Equal(t, res.SizeBytes, entry.SizeBytes)
	assert.Equal(t, int64(90000), entry.DurationMs)
	assert.Equal(t, models.StrategyNative, entry.Strategy)
	assert.True(t, entry.HasSystemAudio)
}

func TestCompleteRecording_ActualPathDiffers(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.m.RegisterRecording("abc", Registration{Filename: "demo.mp4"})
	require.NoError(t, err)

	// the agent reports a different file than the one registered
	actual := filepath.Join(env.temp, "capture-abc-demo.screen.webm")
	writeFile(t, actual, "webm")
	writeFile(t, p.TempPath, "stale")

	res, err := env.m.CompleteRecording(context.Background(), "abc", Artifact{Path: actual})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.out, "demo.webm"), res.FinalPath)
	assert.NoFileExists(t, actual)
	assert.NoFileExists(t, p.TempPath)
}

func TestCompleteRecording_KeepsExtras(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.m.RegisterRecording("abc", Registration{Filename: "demo.mp4"})
	require.NoError(t, err)

	video := filepath.Join(env.temp, "capture-abc-demo.video.mp4")
	mic := filepath.Join(env.temp, "capture-abc-demo.mic.wav")
	writeFile(t, video, "video")
	writeFile(t, mic, "mic")

	res, err := env.m.CompleteRecording(context.Background(), "abc", Artifact{Path: video, Extras: []string{mic}})
	require.NoError(t, err)
	assert.Equal(t, p.FinalPath, res.FinalPath)
	require.Len(t, res.ExtraPaths, 1)
	assert.Equal(t, filepath.Join(env.out, "demo.mic.wav"), res.ExtraPaths[0])
	assert.FileExists(t, res.ExtraPaths[0])
	assert.NoFileExists(t, mic)
}

func TestCompleteRecording_DoesNotOverwrite(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, filepath.Join(env.out, "demo.mp4"), "older recording")

	p, err := env.m.RegisterRecording("abc", Registration{Filename: "demo.mp4"})
	require.NoError(t, err)
	writeFile(t, p.TempPath, "new")

	res, err := env.m.CompleteRecording(context.Background(), "abc", Artifact{Path: p.TempPath})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.out, "demo-1.mp4"), res.FinalPath)

	data, err := os.ReadFile(filepath.Join(env.out, "demo.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "older recording", string(data))
}

func TestCompleteRecording_MissingArtifact(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.m.RegisterRecording("abc", Registration{Filename: "demo.mp4"})
	require.NoError(t, err)

	_, err = env.m.CompleteRecording(context.Background(), "abc", Artifact{Path: p.TempPath})
	assert.ErrorIs(t, err, models.ErrFile)
	assert.Equal(t, p.TempPath, models.PathOf(err))

	// registration survives so a retry can still complete
	_, ok := env.m.Pending("abc")
	assert.True(t, ok)
}

func TestCompleteRecording_UnwritableDestinationKeepsTemp(t *testing.T) {
	env := newTestEnv(t)

	// a file where the destination directory should be
	blocker := filepath.Join(t.TempDir(), "blocked")
	writeFile(t, blocker, "not a directory")

	p, err := env.m.RegisterRecording("abc", Registration{Filename: "demo.mp4", Dir: filepath.Join(blocker, "sub")})
	require.NoError(t, err)
	writeFile(t, p.TempPath, "video")

	res, err := env.m.CompleteRecording(context.Background(), "abc", Artifact{Path: p.TempPath})
	assert.ErrorIs(t, err, models.ErrFile)
	assert.Equal(t, p.TempPath, models.PathOf(err))
	assert.FileExists(t, p.TempPath)
	assert.True(t, res.Kept)
	assert.Equal(t, p.TempPath, res.FinalPath)
	assert.Equal(t, int64(len("video")), res.SizeBytes)

	kept, ok := env.m.Pending("abc")
	require.True(t, ok)
	assert.True(t, kept.Kept)
	assert.Equal(t, p.TempPath, kept.KeptPath)

	entries, err := env.m.GetAllRecordings(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, p.TempPath, entries[0].Path)
}

func TestCleanupOldFiles_SparesKeptArtifact(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now()
	env.m.now = func() time.Time { return start }

	blocker := filepath.Join(t.TempDir(), "blocked")
	writeFile(t, blocker, "not a directory")
	p, err := env.m.RegisterRecording("abc", Registration{Filename: "demo.mp4", Dir: filepath.Join(blocker, "sub")})
	require.NoError(t, err)
	writeFile(t, p.TempPath, "video")

	res, err := env.m.CompleteRecording(context.Background(), "abc", Artifact{Path: p.TempPath})
	require.Error(t, err)
	require.True(t, res.Kept)

	old := start.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(p.TempPath, old, old))
	env.m.now = func() time.Time { return start.Add(2 * time.Hour) }

	report, err := env.m.CleanupOldFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Removed)
	assert.Empty(t, report.ExpiredIDs)
	assert.FileExists(t, p.TempPath)

	// a fresh manager has no registration, the index still protects the file
	fresh := New(Config{TempDir: env.temp, OutputDir: env.out, Retention: time.Hour}, env.index, zap.NewNop())
	fresh.now = env.m.now
	report, err = fresh.CleanupOldFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Removed)
	assert.FileExists(t, p.TempPath)

	// deleting the recording releases the registration
	require.NoError(t, env.m.DeleteRecording(context.Background(), p.TempPath))
	_, ok := env.m.Pending("abc")
	assert.False(t, ok)
}

func TestCompleteRecording_Unregistered(t *testing.T) {
	env := newTestEnv(t)
	actual := filepath.Join(env.temp, "capture-zzz-talk.mp4")
	writeFile(t, actual, "video")

	res, err := env.m.CompleteRecording(context.Background(), "zzz", Artifact{Path: actual})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.out, "talk.mp4"), res.FinalPath)
}

func TestCleanupOldFiles(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	// a crashed session left this behind
	stale := filepath.Join(env.temp, "capture-dead-x.mp4")
	writeFile(t, stale, "stale")
	require.NoError(t, os.Chtimes(stale, old, old))

	// recent leftovers and foreign files are kept
	recent := filepath.Join(env.temp, "capture-new-x.mp4")
	writeFile(t, recent, "recent")
	foreign := filepath.Join(env.temp, "notes.txt")
	writeFile(t, foreign, "keep")
	require.NoError(t, os.Chtimes(foreign, old, old))

	// an old file of a live registration is kept
	p, err := env.m.RegisterRecording("live", Registration{Filename: "x.mp4"})
	require.NoError(t, err)
	writeFile(t, p.TempPath, "in progress")
	require.NoError(t, os.Chtimes(p.TempPath, old, old))

	report, err := env.m.CleanupOldFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, report.Removed)
	assert.Equal(t, int64(len("stale")), report.BytesReleased)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, recent)
	assert.FileExists(t, foreign)
	assert.FileExists(t, p.TempPath)
}

func TestCleanupOldFiles_ExpiresRegistrations(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now()
	env.m.now = func() time.Time { return start }

	p, err := env.m.RegisterRecording("abandoned", Registration{Filename: "x.mp4"})
	require.NoError(t, err)
	writeFile(t, p.TempPath, "partial")
	old := start.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(p.TempPath, old, old))

	env.m.now = func() time.Time { return start.Add(2 * time.Hour) }
	report, err := env.m.CleanupOldFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"abandoned"}, report.ExpiredIDs)
	assert.NoFileExists(t, p.TempPath)

	_, ok := env.m.Pending("abandoned")
	assert.False(t, ok)
}

func TestCleanupOldFiles_NoTempDir(t *testing.T) {
	m := New(Config{TempDir: filepath.Join(t.TempDir(), "absent")}, nil, nil)
	report, err := m.CleanupOldFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Removed)
}

func TestDeleteRecording(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.m.RegisterRecording("abc", Registration{Filename: "demo.mp4"})
	require.NoError(t, err)
	writeFile(t, p.TempPath, "video")
	res, err := env.m.CompleteRecording(ctx, "abc", Artifact{Path: p.TempPath})
	require.NoError(t, err)

	require.NoError(t, env.m.DeleteRecording(ctx, res.FinalPath))
	assert.NoFileExists(t, res.FinalPath)

	list, err := env.m.GetAllRecordings(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// deleting twice is not an error
	assert.NoError(t, env.m.DeleteRecording(ctx, res.FinalPath))
}

func TestGetAllRecordings_WithoutIndex(t *testing.T) {
	out := t.TempDir()
	m := New(Config{OutputDir: out, TempDir: t.TempDir()}, nil, nil)

	older := filepath.Join(out, "a.mp4")
	newer := filepath.Join(out, "b.wav")
	writeFile(t, older, "a")
	writeFile(t, newer, "bb")
	writeFile(t, filepath.Join(out, "notes.txt"), "ignored")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	list, err := m.GetAllRecordings(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer, list[0].Path)
	assert.Equal(t, int64(2), list[0].SizeBytes)
	assert.Equal(t, older, list[1].Path)
}

func TestWatchRecordings_PrunesRemovedFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := env.m.RegisterRecording("abc", Registration{Filename: "demo.mp4"})
	require.NoError(t, err)
	writeFile(t, p.TempPath, "video")
	res, err := env.m.CompleteRecording(ctx, "abc", Artifact{Path: p.TempPath})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- env.m.WatchRecordings(ctx) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.Remove(res.FinalPath))

	require.Eventually(t, func() bool {
		list, err := env.index.List(context.Background())
		return err == nil && len(list) == 0
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRunCleanup_StopsWithContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.m.RunCleanup(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}

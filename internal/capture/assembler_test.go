package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

func TestAcquire_JointRequest(t *testing.T) {
	a := newTestAssembler(&fakeMuxer{})
	var requests []bool
	open := func(ctx context.Context, withSystem bool) (NativeSession, error) {
		requests = append(requests, withSystem)
		return &fakeSession{done: make(chan struct{})}, nil
	}

	_, hasSystem, err := a.Acquire(context.Background(), true, open)
	require.NoError(t, err)
	assert.True(t, hasSystem)
	assert.Equal(t, []bool{true}, requests)
}

func TestAcquire_FallsBackToVideoOnly(t *testing.T) {
	a := newTestAssembler(&fakeMuxer{})
	var requests []bool
	open := func(ctx context.Context, withSystem bool) (NativeSession, error) {
		requests = append(requests, withSystem)
		if withSystem {
			return nil, ErrSystemAudioUnavailable
		}
		return &fakeSession{done: make(chan struct{})}, nil
	}

	s, hasSystem, err := a.Acquire(context.Background(), true, open)
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.False(t, hasSystem)
	assert.Equal(t, []bool{true, false}, requests)
}

func TestAcquire_OtherErrorsFail(t *testing.T) {
	a := newTestAssembler(&fakeMuxer{})
	boom := errors.New("capture device busy")
	calls := 0
	open := func(ctx context.Context, withSystem bool) (NativeSession, error) {
		calls++
		return nil, boom
	}

	_, _, err := a.Acquire(context.Background(), true, open)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestAssemble_SingleArtifactPassesThrough(t *testing.T) {
	m := &fakeMuxer{}
	a := newTestAssembler(m)
	dir := t.TempDir()
	video := filepath.Join(dir, "screen.mp4")
	mustWrite(video, "v")

	res, err := a.Assemble(context.Background(), FinalInfo{Artifacts: Artifacts{Video: video, VideoHasAudio: true}}, filepath.Join(dir, "out.mp4"))
	require.NoError(t, err)
	assert.Equal(t, video, res.OutputPath)
	assert.False(t, res.Merged)
	assert.Empty(t, m.merges)
}

func TestAssemble_MergesSeparateTracks(t *testing.T) {
	m := &fakeMuxer{}
	a := newTestAssembler(m)
	dir := t.TempDir()
	art := Artifacts{
		Video:       filepath.Join(dir, "v.mp4"),
		SystemAudio: filepath.Join(dir, "s.wav"),
		Microphone:  filepath.Join(dir, "m.wav"),
	}
	for _, p := range art.Paths() {
		mustWrite(p, "x")
	}
	out := filepath.Join(dir, "out.mp4")

	res, err := a.Assemble(context.Background(), FinalInfo{Artifacts: art}, out)
	require.NoError(t, err)
	assert.Equal(t, out, res.OutputPath)
	assert.True(t, res.Merged)
	assert.Empty(t, res.ExtraPaths)
	assert.Empty(t, res.Warnings)

	require.Len(t, m.merges, 1)
	assert.Equal(t, []string{art.SystemAudio, art.Microphone}, m.merges[0].Tracks)

	// intermediates are gone, the merged container remains
	assert.FileExists(t, out)
	for _, p := range art.Paths() {
		assert.NoFileExists(t, p)
	}
}

func TestAssemble_MergeFailureKeepsBoth(t *testing.T) {
	m := &fakeMuxer{mergeErr: models.NewError(models.KindMergeFailure, "ffmpeg exited with code 1")}
	a := newTestAssembler(m)
	dir := t.TempDir()
	art := Artifacts{
		Video:         filepath.Join(dir, "v.mp4"),
		VideoHasAudio: true,
		Microphone:    filepath.Join(dir, "m.wav"),
	}
	for _, p := range art.Paths() {
		mustWrite(p, "x")
	}

	res, err := a.Assemble(context.Background(), FinalInfo{Artifacts: art, Warnings: []string{"earlier"}}, filepath.Join(dir, "out.mp4"))
	require.NoError(t, err)
	assert.Equal(t, art.Video, res.OutputPath)
	assert.Equal(t, []string{art.Microphone}, res.ExtraPaths)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[1], string(models.KindMergeFailure))

	assert.FileExists(t, art.Video)
	assert.FileExists(t, art.Microphone)
}

func TestAssemble_MissingVideoKeepsAudio(t *testing.T) {
	a := newTestAssembler(&fakeMuxer{})
	dir := t.TempDir()
	sys := filepath.Join(dir, "s.wav")
	mustWrite(sys, "x")

	res, err := a.Assemble(context.Background(), FinalInfo{Artifacts: Artifacts{Video: filepath.Join(dir, "gone.mp4"), SystemAudio: sys}}, "")
	require.NoError(t, err)
	assert.Equal(t, sys, res.OutputPath)
	assert.NotEmpty(t, res.Warnings)
}

func TestAssemble_NothingCaptured(t *testing.T) {
	a := newTestAssembler(&fakeMuxer{})
	_, err := a.Assemble(context.Background(), FinalInfo{}, "")
	requireKind(t, err, models.KindFileError)
}

func TestJoinParts(t *testing.T) {
	m := &fakeMuxer{}
	a := newTestAssembler(m)
	dir := t.TempDir()
	base := Artifacts{Video: filepath.Join(dir, "v.mp4"), Microphone: filepath.Join(dir, "m.wav")}

	parts := []Artifacts{
		{Video: partPath(base.Video, 0), Microphone: partPath(base.Microphone, 0)},
		{Video: partPath(base.Video, 1), Microphone: partPath(base.Microphone, 1)},
	}
	for _, p := range parts {
		for _, f := range p.Paths() {
			mustWrite(f, "part")
		}
	}

	out, warnings := a.JoinParts(context.Background(), parts, base)
	assert.Empty(t, warnings)
	assert.Equal(t, base.Video, out.Video)
	assert.Equal(t, base.Microphone, out.Microphone)
	assert.Len(t, m.concats, 2)
	for _, p := range parts {
		for _, f := range p.Paths() {
			_, err := os.Stat(f)
			assert.True(t, os.IsNotExist(err))
		}
	}
}

func TestJoinParts_SinglePart(t *testing.T) {
	m := &fakeMuxer{}
	a := newTestAssembler(m)
	part := Artifacts{Video: filepath.Join(t.TempDir(), "v.part000.mp4")}

	out, _ := a.JoinParts(context.Background(), []Artifacts{part}, Artifacts{Video: "unused"})
	assert.Equal(t, part, out)
	assert.Empty(t, m.concats)
}

func TestTrackAndPartPaths(t *testing.T) {
	out := filepath.Join("tmp", "capture-abc-rec.mp4")
	assert.Equal(t, filepath.Join("tmp", "capture-abc-rec.system.wav"), trackPath(out, "system", ".wav"))
	assert.Equal(t, filepath.Join("tmp", "capture-abc-rec.part002.mp4"), partPath(out, 2))
}

package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/merger"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// Muxer is the external muxing utility
type Muxer interface {
	MergeAudioTracks(ctx context.Context, in merger.MergeInput) error
	ConcatenateParts(ctx context.Context, parts []string, output string) error
	DropVideo(ctx context.Context, input, output string) error
}

// OpenFunc opens a native session with or without the system audio part
type OpenFunc func(ctx context.Context, withSystemAudio bool) (NativeSession, error)

// StreamAssembler acquires video with system audio and combines the captured tracks
// into one deliverable
type StreamAssembler struct {
	muxer  Muxer
	logger *zap.Logger
}

// NewStreamAssembler creates a StreamAssembler around the muxing utility
func NewStreamAssembler(m Muxer, logger *zap.Logger) *StreamAssembler {
	return &StreamAssembler{muxer: m, logger: logging.Component(logger, "assembler")}
}

// Muxer returns the muxing utility
func (a *StreamAssembler) Muxer() Muxer {
	return a.muxer
}

// Acquire opens video and system audio as one joint request. When the system audio part
// is unavailable it retries video-only and reports hasSystemAudio=false instead of failing.
func (a *StreamAssembler) Acquire(ctx context.Context, wantSystemAudio bool, open OpenFunc) (NativeSession, bool, error) {
	if wantSystemAudio {
		s, err := open(ctx, true)
		if err == nil {
			return s, true, nil
		}
		if !errors.Is(err, ErrSystemAudioUnavailable) {
			return nil, false, err
		}
		a.logger.Warn("System audio unavailable, continuing with video only", zap.Error(err))
	}

	s, err := open(ctx, false)
	if err != nil {
		return nil, false, err
	}
	return s, false, nil
}

// AssembleResult is the deliverable produced from a capture's artifacts
type AssembleResult struct {
	OutputPath string
	// ExtraPaths are unmerged tracks kept next to OutputPath after a failed merge
	ExtraPaths []string
	Warnings   []string
	Merged     bool
}

// Assemble merges separately captured audio tracks into the video container at output.
// A single artifact passes through untouched. If the merge fails every source artifact
// is kept and reported with a MergeFailure warning.
func (a *StreamAssembler) Assemble(ctx context.Context, final FinalInfo, output string) (AssembleResult, error) {
	art := final.Artifacts
	result := AssembleResult{Warnings: append([]string(nil), final.Warnings...)}

	var tracks []string
	for _, t := range []string{art.SystemAudio, art.Microphone} {
		if fileExists(t) {
			tracks = append(tracks, t)
		}
	}

	if !fileExists(art.Video) {
		if len(tracks) > 0 {
			// never drop captured audio even when the video is gone
			result.OutputPath = tracks[0]
			result.ExtraPaths = tracks[1:]
			result.Warnings = append(result.Warnings, "video artifact missing, only audio was kept")
			return result, nil
		}
		return result, models.NewError(models.KindFileError, "capture produced no artifact").WithPath(art.Video)
	}

	if len(tracks) == 0 {
		result.OutputPath = art.Video
		return result, nil
	}

	if output == "" || output == art.Video {
		output = trackPath(art.Video, "merged", filepath.Ext(art.Video))
	}

	err := a.muxer.MergeAudioTracks(ctx, merger.MergeInput{
		Video:         art.Video,
		VideoHasAudio: art.VideoHasAudio,
		Tracks:        tracks,
		Output:        output,
	})
	if err != nil {
		a.logger.Warn("Audio merge failed, keeping unmerged artifacts",
			zap.String(logging.KeyPath, art.Video), zap.Strings("tracks", tracks), zap.Error(err))
		result.OutputPath = art.Video
		result.ExtraPaths = tracks
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: %v; unmerged tracks kept", models.KindMergeFailure, err))
		return result, nil
	}

	for _, p := range append([]string{art.Video}, tracks...) {
		if p != output {
			_ = os.Remove(p)
		}
	}
	result.OutputPath = output
	result.Merged = true
	return result, nil
}

// joinParts concatenates the parts of one track into path, or renames a single part
func (a *StreamAssembler) joinParts(ctx context.Context, parts []string, path string) (string, error) {
	var existing []string
	for _, p := range parts {
		if fileExists(p) {
			existing = append(existing, p)
		}
	}
	switch len(existing) {
	case 0:
		return "", nil
	case 1:
		if existing[0] == path {
			return path, nil
		}
		if err := os.Rename(existing[0], path); err != nil {
			return existing[0], nil
		}
		return path, nil
	}

	if err := a.muxer.ConcatenateParts(ctx, existing, path); err != nil {
		return "", fmt.Errorf("failed to join %d parts: %w", len(existing), err)
	}
	for _, p := range existing {
		_ = os.Remove(p)
	}
	return path, nil
}

// JoinParts concatenates per-part artifacts track by track into the paths of base
func (a *StreamAssembler) JoinParts(ctx context.Context, parts []Artifacts, base Artifacts) (Artifacts, []string) {
	if len(parts) == 0 {
		return Artifacts{}, nil
	}
	if len(parts) == 1 {
		return parts[0], nil
	}

	var warnings []string
	out := Artifacts{VideoHasAudio: parts[0].VideoHasAudio}
	join := func(pick func(Artifacts) string, target string) string {
		var files []string
		for _, p := range parts {
			if f := pick(p); f != "" {
				files = append(files, f)
			}
		}
		if len(files) == 0 {
			return ""
		}
		path, err := a.joinParts(ctx, files, target)
		if err != nil {
			// keep the first part as the best-known artifact
			warnings = append(warnings, err.Error())
			return files[0]
		}
		return path
	}

	out.Video = join(func(a Artifacts) string { return a.Video }, base.Video)
	out.SystemAudio = join(func(a Artifacts) string { return a.SystemAudio }, base.SystemAudio)
	out.Microphone = join(func(a Artifacts) string { return a.Microphone }, base.Microphone)
	return out, warnings
}

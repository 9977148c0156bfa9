// Package merger drives the external ffmpeg/ffprobe tools: part concatenation, track
// extraction and the amix merge of separately captured audio tracks.
package merger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// ProcessingStep represents a step in the post-capture pipeline
type ProcessingStep int

const (
	StepConcatenating ProcessingStep = iota
	StepExtracting
	StepMerging
)

func (s ProcessingStep) String() string {
	switch s {
	case StepConcatenating:
		return "concatenating"
	case StepExtracting:
		return "extracting"
	case StepMerging:
		return "merging"
	default:
		return "unknown"
	}
}

// PercentCallback is called to report progress percentage during a step
type PercentCallback func(step ProcessingStep, percent float64)

// Merger runs ffmpeg jobs against capture artifacts
type Merger struct {
	ffmpeg    string
	ffprobe   string
	logger    *zap.Logger
	onPercent PercentCallback
}

// New creates a Merger. An empty ffmpegPath resolves "ffmpeg" from PATH; ffprobe is
// expected next to it.
func New(ffmpegPath string, logger *zap.Logger) *Merger {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Merger{
		ffmpeg:  ffmpegPath,
		ffprobe: probePath(ffmpegPath),
		logger:  logging.Component(logger, "merger"),
	}
}

func probePath(ffmpegPath string) string {
	if i := strings.LastIndex(ffmpegPath, "ffmpeg"); i >= 0 {
		return ffmpegPath[:i] + "ffprobe" + ffmpegPath[i+len("ffmpeg"):]
	}
	return "ffprobe"
}

// FFmpegPath returns the ffmpeg executable used by this merger
func (m *Merger) FFmpegPath() string {
	return m.ffmpeg
}

// SetPercentCallback sets the callback for percentage progress updates
func (m *Merger) SetPercentCallback(cb PercentCallback) {
	m.onPercent = cb
}

func (m *Merger) reportPercent(step ProcessingStep, percent float64) {
	if m.onPercent != nil {
		m.onPercent(step, percent)
	}
}

// ExitError is returned when ffmpeg exits non-zero
type ExitError struct {
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d: %v, stderr: %s", e.Code, e.Err, lastLines(e.Stderr, 5))
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// runFFmpegWithProgress runs an FFmpeg command and reports progress
// durationUs is the expected duration in microseconds for calculating percentage
func (m *Merger) runFFmpegWithProgress(ctx context.Context, step ProcessingStep, durationUs int64, args ...string) error {
	// -stats_period 0.5 outputs progress every 0.5 seconds
	progressArgs := append([]string{"-progress", "pipe:1", "-stats_period", "0.5", "-nostats"}, args...)

	cmd := exec.CommandContext(ctx, m.ffmpeg, progressArgs...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf

	m.logger.Debug("Running ffmpeg", zap.Stringer("step", step), zap.Strings("args", progressArgs))

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	m.reportPercent(step, 0)

	// FFmpeg writes key=value lines; out_time_us is "N/A" until the first frame
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if percent, ok := parseProgressLine(line, durationUs); ok {
			m.reportPercent(step, percent)
		}
	}

	if err := cmd.Wait(); err != nil {
		code := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		return &ExitError{Code: code, Stderr: stderrBuf.String(), Err: err}
	}

	m.reportPercent(step, 100)
	return nil
}

// parseProgressLine converts an out_time_us line into a percentage of durationUs
func parseProgressLine(line string, durationUs int64) (float64, bool) {
	timeStr, ok := strings.CutPrefix(line, "out_time_us=")
	if !ok || timeStr == "N/A" || durationUs <= 0 {
		return 0, false
	}
	timeUs, err := strconv.ParseInt(timeStr, 10, 64)
	if err != nil || timeUs < 0 {
		return 0, false
	}
	percent := float64(timeUs) / float64(durationUs) * 100
	if percent > 100 {
		percent = 100
	}
	return percent, true
}

// ProbeDurationUs returns the duration of a media file in microseconds, or 0 if unknown
func (m *Merger) ProbeDurationUs(ctx context.Context, path string) int64 {
	out, err := exec.CommandContext(ctx, m.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}
	return int64(secs * 1000000)
}

// HasAudioStream reports whether the container at path carries an audio stream
func (m *Merger) HasAudioStream(ctx context.Context, path string) (bool, error) {
	out, err := exec.CommandContext(ctx, m.ffprobe,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	).Output()
	if err != nil {
		return false, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// ConcatenateParts concatenates multiple video or audio parts into a single file
// Uses FFmpeg's concat demuxer for lossless concatenation
func (m *Merger) ConcatenateParts(ctx context.Context, parts []string, outputFile string) error {
	var existingParts []string
	for _, part := range parts {
		if fileExists(part) {
			existingParts = append(existingParts, part)
		}
	}

	switch len(existingParts) {
	case 0:
		return fmt.Errorf("no existing parts to concatenate")
	case 1:
		return copyFile(existingParts[0], outputFile)
	}

	listFile := outputFile + ".txt"
	f, err := os.Create(listFile)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	for _, part := range existingParts {
		// FFmpeg concat format: file 'path', single quotes escaped
		escapedPath := strings.ReplaceAll(part, "'", "'\\''")
		_, _ = fmt.Fprintf(f, "file '%s'\n", escapedPath)
	}
	_ = f.Close()
	defer func() { _ = os.Remove(listFile) }()

	var total int64
	for _, part := range existingParts {
		total += m.ProbeDurationUs(ctx, part)
	}

	err = m.runFFmpegWithProgress(ctx, StepConcatenating, total,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		outputFile,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w", err)
	}
	return nil
}

// DropAudio copies the video stream of input into output without any audio track
func (m *Merger) DropAudio(ctx context.Context, input, output string) error {
	return m.runFFmpegWithProgress(ctx, StepExtracting, m.ProbeDurationUs(ctx, input),
		"-y", "-i", input, "-map", "0:v", "-c:v", "copy", "-an", output)
}

// DropVideo extracts the audio of input into an audio-only container
func (m *Merger) DropVideo(ctx context.Context, input, output string) error {
	return m.runFFmpegWithProgress(ctx, StepExtracting, m.ProbeDurationUs(ctx, input),
		"-y", "-i", input, "-map", "0:a", "-vn", "-c:a", "copy", output)
}

// MergeInput describes a video container and the audio tracks to mix into it
type MergeInput struct {
	// Video is the container whose video stream is kept as-is
	Video string
	// VideoHasAudio includes the container's own audio track in the mix
	VideoHasAudio bool
	// Tracks are separate audio files, e.g. system audio and microphone
	Tracks []string
	Output string
}

// buildMergeArgs builds the amix invocation: every audio input is mixed into one track,
// the video stream is copied untouched
func buildMergeArgs(in MergeInput) []string {
	args := []string{"-y", "-i", in.Video}
	for _, t := range in.Tracks {
		args = append(args, "-i", t)
	}

	var labels []string
	if in.VideoHasAudio {
		labels = append(labels, "[0:a]")
	}
	for i := range in.Tracks {
		labels = append(labels, fmt.Sprintf("[%d:a]", i+1))
	}

	args = append(args, "-map", "0:v")
	if len(labels) == 1 {
		args = append(args, "-map", strings.Trim(labels[0], "[]"))
	} else {
		filter := fmt.Sprintf("%samix=inputs=%d:duration=longest:dropout_transition=0[aout]",
			strings.Join(labels, ""), len(labels))
		args = append(args, "-filter_complex", filter, "-map", "[aout]")
	}

	return append(args,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		in.Output,
	)
}

// MergeAudioTracks mixes the given audio tracks into the video container. A failing
// ffmpeg run returns a MergeFailure error and leaves every input in place.
func (m *Merger) MergeAudioTracks(ctx context.Context, in MergeInput) error {
	if in.Video == "" || in.Output == "" {
		return models.NewError(models.KindMergeFailure, "merge needs a video input and an output path")
	}
	if !fileExists(in.Video) {
		return models.NewError(models.KindMergeFailure, "video input %s does not exist", in.Video)
	}
	if len(in.Tracks) == 0 && !in.VideoHasAudio {
		return models.NewError(models.KindMergeFailure, "no audio tracks to merge")
	}
	for _, t := range in.Tracks {
		if !fileExists(t) {
			return models.NewError(models.KindMergeFailure, "audio track %s does not exist", t)
		}
	}

	durationUs := m.ProbeDurationUs(ctx, in.Video)
	if err := m.runFFmpegWithProgress(ctx, StepMerging, durationUs, buildMergeArgs(in)...); err != nil {
		_ = os.Remove(in.Output)
		return models.WrapError(models.KindMergeFailure, err, "audio merge failed")
	}

	m.logger.Info("Merged audio tracks",
		zap.String(logging.KeyPath, in.Output),
		zap.Int("tracks", len(in.Tracks)))
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destination, source); err != nil {
		_ = destination.Close()
		return err
	}
	return destination.Close()
}

// Package capture implements the capture strategies (native, browser, hybrid), the
// pure selection policy between them and the StreamAssembler that turns captured
// tracks into one deliverable.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// StartRequest is everything a strategy needs to begin capturing
type StartRequest struct {
	RecordingID string
	Surface     models.DeviceDescriptor
	// Microphone is nil when no microphone track is wanted
	Microphone *models.DeviceDescriptor
	// SystemAudio is the device that supplies system audio; nil when unwanted or unknown
	SystemAudio *models.DeviceDescriptor
	Quality     models.QualityTier
	// OutputPath is the registered temporary path; track files are derived from it
	OutputPath string
	// OnFailure is called at most once if capture dies while recording
	OnFailure func(error)
}

// WantSystemAudio reports whether a system audio track was requested
func (r StartRequest) WantSystemAudio() bool {
	return r.SystemAudio != nil
}

// HandleInfo describes an acquired capture handle
type HandleInfo struct {
	ExpectedOutputPath string
	HasSystemAudio     bool
	Warnings           []string
}

// Artifacts are the files a capture produced
type Artifacts struct {
	// Video is the main container
	Video string
	// VideoHasAudio is set when Video already carries an audio track
	VideoHasAudio bool
	SystemAudio   string
	Microphone    string
}

// Paths returns every non-empty artifact path
func (a Artifacts) Paths() []string {
	var out []string
	for _, p := range []string{a.Video, a.SystemAudio, a.Microphone} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Empty reports whether nothing was captured
func (a Artifacts) Empty() bool {
	return a.Video == "" && a.SystemAudio == "" && a.Microphone == ""
}

// FinalInfo is the outcome of stopping a strategy
type FinalInfo struct {
	Artifacts      Artifacts
	HasSystemAudio bool
	Warnings       []string
}

// Strategy owns the capture handle of one recording. A Strategy value is used for a
// single recording; Stop releases the handle exactly once and is safe after a failed Start.
type Strategy interface {
	Kind() models.StrategyKind
	Start(ctx context.Context, req StartRequest) (HandleInfo, error)
	Stop(ctx context.Context) (FinalInfo, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SupportsPause() bool
	// Split reports whether completion is confirmed by an agent through the bridge
	Split() bool
}

// trackPath derives the path of one track from the registered output path:
// capture-<id>-name.mp4 → capture-<id>-name.<track>.<ext>
func trackPath(output, track, ext string) string {
	dir := filepath.Dir(output)
	base := strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))
	return filepath.Join(dir, base+"."+track+ext)
}

// partPath inserts a part number before the extension
func partPath(path string, part int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s.part%03d%s", strings.TrimSuffix(path, ext), part, ext)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func removeQuietly(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

func unavailable(err error, format string, args ...any) error {
	return models.WrapError(models.KindStrategyUnavailable, err, format, args...)
}

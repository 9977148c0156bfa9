//go:build darwin

package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// darwinPlatform enumerates through ffmpeg's avfoundation input and probes TCC consent
type darwinPlatform struct {
	ffmpeg   string
	run      CommandRunner
	versionF func(ctx context.Context) (string, error)
}

// NewPlatform returns the device primitives for the running OS
func NewPlatform() Platform {
	return &darwinPlatform{ffmpeg: "ffmpeg", run: runCombined, versionF: hostVersion}
}

func (p *darwinPlatform) Name() string { return "darwin" }

func (p *darwinPlatform) list(ctx context.Context) (screens, audio []models.DeviceDescriptor, err error) {
	// ffmpeg exits non-zero after listing; only the output matters
	output, _ := p.run(ctx, p.ffmpeg, "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "")
	if len(output) == 0 {
		return nil, nil, fmt.Errorf("no output from avfoundation device listing")
	}
	screens, audio = parseAVFoundationDevices(output)
	return screens, audio, nil
}

func (p *darwinPlatform) ListScreens(ctx context.Context) ([]models.DeviceDescriptor, error) {
	screens, _, err := p.list(ctx)
	return screens, err
}

func (p *darwinPlatform) ListAudioDevices(ctx context.Context) ([]models.DeviceDescriptor, error) {
	_, audio, err := p.list(ctx)
	return audio, err
}

// macOS gates screen and microphone capture behind TCC consent
func (p *darwinPlatform) PermissionGated() bool { return true }

// CheckPermission probes consent with a minimal capture; TCC refusals surface as
// "not authorized" in ffmpeg's output
func (p *darwinPlatform) CheckPermission(ctx context.Context, c models.Capability) (models.Permission, error) {
	input := "none:0"
	if c == models.CapabilityScreen {
		screens, _, err := p.list(ctx)
		if err != nil || len(screens) == 0 {
			return models.PermissionUnknown, err
		}
		input = screens[0].Native + ":none"
	}

	output, err := p.run(ctx, p.ffmpeg, "-hide_banner", "-f", "avfoundation", "-t", "0.1",
		"-i", input, "-f", "null", "-")
	lower := strings.ToLower(string(output))
	switch {
	case strings.Contains(lower, "not authorized") || strings.Contains(lower, "permission"):
		return models.PermissionDenied, nil
	case err == nil:
		return models.PermissionGranted, nil
	default:
		return models.PermissionUnknown, nil
	}
}

// RequestPermission triggers the same probe; the first capture attempt makes the OS prompt
func (p *darwinPlatform) RequestPermission(ctx context.Context, c models.Capability) (models.Permission, error) {
	return p.CheckPermission(ctx, c)
}

func (p *darwinPlatform) OSVersion(ctx context.Context) (string, error) {
	return p.versionF(ctx)
}

//go:build !linux && !darwin

package device

import (
	"context"
	"fmt"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// genericPlatform reports one primary display and uses DirectShow for audio
type genericPlatform struct {
	ffmpeg   string
	run      CommandRunner
	versionF func(ctx context.Context) (string, error)
}

// NewPlatform returns the device primitives for the running OS
func NewPlatform() Platform {
	return &genericPlatform{ffmpeg: "ffmpeg", run: runCombined, versionF: hostVersion}
}

func (p *genericPlatform) Name() string { return "generic" }

func (p *genericPlatform) ListScreens(ctx context.Context) ([]models.DeviceDescriptor, error) {
	return []models.DeviceDescriptor{models.SyntheticPrimaryDisplay()}, nil
}

func (p *genericPlatform) ListAudioDevices(ctx context.Context) ([]models.DeviceDescriptor, error) {
	output, _ := p.run(ctx, p.ffmpeg, "-hide_banner", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
	if len(output) == 0 {
		return nil, fmt.Errorf("no output from dshow device listing")
	}
	return parseDshowAudioDevices(output), nil
}

func (p *genericPlatform) PermissionGated() bool { return false }

func (p *genericPlatform) CheckPermission(ctx context.Context, c models.Capability) (models.Permission, error) {
	return models.PermissionUnknown, nil
}

func (p *genericPlatform) RequestPermission(ctx context.Context, c models.Capability) (models.Permission, error) {
	return models.PermissionUnknown, nil
}

func (p *genericPlatform) OSVersion(ctx context.Context) (string, error) {
	return p.versionF(ctx)
}

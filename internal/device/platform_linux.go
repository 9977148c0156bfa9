//go:build linux

package device

import (
	"context"
	"fmt"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/deps"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// linuxPlatform enumerates monitors through Hyprland or xrandr and audio through PulseAudio/PipeWire
type linuxPlatform struct {
	run      CommandRunner
	hasTool  func(names ...string) bool
	versionF func(ctx context.Context) (string, error)
}

// NewPlatform returns the device primitives for the running OS
func NewPlatform() Platform {
	return &linuxPlatform{run: runOutput, hasTool: deps.Available, versionF: hostVersion}
}

func (p *linuxPlatform) Name() string { return "linux" }

// ListScreens asks Hyprland first and falls back to xrandr
func (p *linuxPlatform) ListScreens(ctx context.Context) ([]models.DeviceDescriptor, error) {
	if p.hasTool("hyprctl") {
		output, err := p.run(ctx, "hyprctl", "monitors", "-j")
		if err == nil {
			if screens, err := parseHyprMonitors(output); err == nil && len(screens) > 0 {
				return screens, nil
			}
		}
	}

	if p.hasTool("xrandr") {
		output, err := p.run(ctx, "xrandr", "--listmonitors")
		if err != nil {
			return nil, fmt.Errorf("failed to run xrandr: %w", err)
		}
		return parseXrandrMonitors(output)
	}

	return nil, fmt.Errorf("no monitor enumeration tool available")
}

// ListAudioDevices lists PulseAudio/PipeWire sources; ".monitor" sources carry system audio
func (p *linuxPlatform) ListAudioDevices(ctx context.Context) ([]models.DeviceDescriptor, error) {
	if !p.hasTool("pactl") {
		return defaultPipeWireDevices(), nil
	}
	output, err := p.run(ctx, "pactl", "-f", "json", "list", "sources")
	if err != nil {
		return nil, fmt.Errorf("failed to list audio sources: %w", err)
	}
	return parsePactlSources(output)
}

// defaultPipeWireDevices are the PipeWire default targets usable without enumeration
func defaultPipeWireDevices() []models.DeviceDescriptor {
	return []models.DeviceDescriptor{
		{ID: "@DEFAULT_SOURCE@", Name: "Default input", Kind: models.KindAudioInput, Native: "@DEFAULT_SOURCE@"},
		{ID: "@DEFAULT_MONITOR@", Name: "Default output monitor", Kind: models.KindAudioMonitor, CanSupplySystemAudio: true, Native: "@DEFAULT_MONITOR@"},
	}
}

// Linux desktops do not mediate capture consent at this level
func (p *linuxPlatform) PermissionGated() bool { return false }

func (p *linuxPlatform) CheckPermission(ctx context.Context, c models.Capability) (models.Permission, error) {
	return models.PermissionUnknown, nil
}

func (p *linuxPlatform) RequestPermission(ctx context.Context, c models.Capability) (models.Permission, error) {
	return models.PermissionUnknown, nil
}

func (p *linuxPlatform) OSVersion(ctx context.Context) (string, error) {
	return p.versionF(ctx)
}

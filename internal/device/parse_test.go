package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

func TestParseHyprMonitors(t *testing.T) {
	output := []byte(`[
		{"id": 0, "name": "eDP-1", "description": "Laptop panel", "width": 1920, "height": 1200, "x": 0, "y": 0, "focused": false, "scale": 1.0},
		{"id": 1, "name": "HDMI-A-1", "width": 2560, "height": 1440, "x": 1920, "y": 0, "focused": true, "scale": 1.0}
	]`)

	screens, err := parseHyprMonitors(output)
	require.NoError(t, err)
	require.Len(t, screens, 2)

	assert.Equal(t, "display:0", screens[0].ID)
	assert.Equal(t, "eDP-1 (Laptop panel)", screens[0].Name)
	assert.Equal(t, "eDP-1", screens[0].Native)
	assert.Equal(t, "1920x1200", screens[0].Resolution())
	assert.True(t, screens[1].Primary)
	assert.Equal(t, 1920, screens[1].X)
}

func TestParseHyprMonitors_Invalid(t *testing.T) {
	_, err := parseHyprMonitors([]byte("not json"))
	assert.Error(t, err)
}

func TestParseXrandrMonitors(t *testing.T) {
	output := []byte(`Monitors: 2
 0: +*eDP-1 1920/344x1080/193+0+0  eDP-1
 1: +HDMI-1 2560/597x1440/336+1920+0  HDMI-1
`)

	screens, err := parseXrandrMonitors(output)
	require.NoError(t, err)
	require.Len(t, screens, 2)

	assert.Equal(t, "display:0", screens[0].ID)
	assert.True(t, screens[0].Primary)
	assert.Equal(t, "HDMI-1", screens[1].Native)
	assert.Equal(t, 2560, screens[1].Width)
	assert.Equal(t, 1440, screens[1].Height)
	assert.Equal(t, 1920, screens[1].X)

	_, err = parseXrandrMonitors([]byte("Monitors: 0\n"))
	assert.Error(t, err)
}

func TestParsePactlSources(t *testing.T) {
	output := []byte(`[
		{"index": 55, "name": "alsa_output.pci-0000_00_1f.3.analog-stereo.monitor", "description": "Monitor of Built-in Audio", "monitor_of_sink": "alsa_output.pci-0000_00_1f.3.analog-stereo"},
		{"index": 56, "name": "alsa_input.pci-0000_00_1f.3.analog-stereo", "description": "Built-in Audio Analog Stereo", "monitor_of_sink": "n/a"}
	]`)

	devices, err := parsePactlSources(output)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, models.KindAudioMonitor, devices[0].Kind)
	assert.True(t, devices[0].CanSupplySystemAudio)
	assert.Equal(t, models.KindAudioInput, devices[1].Kind)
	assert.False(t, devices[1].CanSupplySystemAudio)
	assert.Equal(t, "Built-in Audio Analog Stereo", devices[1].Name)
}

func TestParseAVFoundationDevices(t *testing.T) {
	output := []byte(`[AVFoundation indev @ 0x7f8] AVFoundation video devices:
[AVFoundation indev @ 0x7f8] [0] FaceTime HD Camera
[AVFoundation indev @ 0x7f8] [1] Capture screen 0
[AVFoundation indev @ 0x7f8] [2] Capture screen 1
[AVFoundation indev @ 0x7f8] AVFoundation audio devices:
[AVFoundation indev @ 0x7f8] [0] MacBook Pro Microphone
[AVFoundation indev @ 0x7f8] [1] BlackHole 2ch
: Input/output error
`)

	screens, audio := parseAVFoundationDevices(output)
	require.Len(t, screens, 2)
	assert.Equal(t, "display:0", screens[0].ID)
	assert.Equal(t, "1", screens[0].Native)
	assert.True(t, screens[0].Primary)
	assert.Equal(t, "display:1", screens[1].ID)
	assert.Equal(t, "2", screens[1].Native)

	require.Len(t, audio, 2)
	assert.Equal(t, "avfoundation:0", audio[0].ID)
	assert.False(t, audio[0].CanSupplySystemAudio)
	assert.Equal(t, "avfoundation:1", audio[1].ID)
	assert.True(t, audio[1].CanSupplySystemAudio)
}

func TestParseDshowAudioDevices(t *testing.T) {
	output := []byte(`[dshow @ 0000] "Integrated Camera" (video)
[dshow @ 0000]   Alternative name "@device_pnp_\\?\usb"
[dshow @ 0000] "Microphone Array (Realtek(R) Audio)" (audio)
[dshow @ 0000]   Alternative name "@device_cm_{33D9A762}\wave_{A1}"
[dshow @ 0000] "Stereo Mix (Realtek(R) Audio)" (audio)
`)

	devices := parseDshowAudioDevices(output)
	require.Len(t, devices, 2)
	assert.Equal(t, "dshow:Microphone Array (Realtek(R) Audio)", devices[0].ID)
	assert.False(t, devices[0].CanSupplySystemAudio)
	assert.True(t, devices[1].CanSupplySystemAudio)
}

func TestParseDshowAudioDevices_LegacySections(t *testing.T) {
	output := []byte(`[dshow @ 0000] DirectShow video devices
[dshow @ 0000]  "Integrated Camera"
[dshow @ 0000] DirectShow audio devices
[dshow @ 0000]  "Headset Microphone"
`)

	devices := parseDshowAudioDevices(output)
	require.Len(t, devices, 1)
	assert.Equal(t, "Headset Microphone", devices[0].Name)
}

func TestVersionAtLeast(t *testing.T) {
	tests := []struct {
		version, min string
		want         bool
	}{
		{"12.3", "12.3", true},
		{"12.2.1", "12.3", false},
		{"13.0", "12.3", true},
		{"14.4.1", "12.3", true},
		{"11.7", "12.3", false},
		{"12.10", "12.3", true},
		{"", "12.3", false},
		{"10.0", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.version+">="+tt.min, func(t *testing.T) {
			assert.Equal(t, tt.want, VersionAtLeast(tt.version, tt.min))
		})
	}
}

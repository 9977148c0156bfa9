package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DeviceKind classifies a capturable surface or audio device
type DeviceKind string

const (
	KindDisplay      DeviceKind = "display"
	KindWindow       DeviceKind = "window"
	KindAudioInput   DeviceKind = "audio-input"
	KindAudioMonitor DeviceKind = "audio-monitor"
)

// PrimaryDisplayID is used for the synthetic display returned when enumeration fails
const PrimaryDisplayID = "display:0"

// DeviceDescriptor describes a display, window or audio device
type DeviceDescriptor struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Kind                 DeviceKind `json:"kind"`
	Width                int        `json:"width,omitempty"`
	Height               int        `json:"height,omitempty"`
	X                    int        `json:"x,omitempty"`
	Y                    int        `json:"y,omitempty"`
	Primary              bool       `json:"primary,omitempty"`
	CanSupplySystemAudio bool       `json:"can_supply_system_audio"`
	// Native is the backend-specific handle (monitor name, avfoundation index, source name)
	Native string `json:"native,omitempty"`
}

// IsSurface reports whether the descriptor can be used as a video source
func (d DeviceDescriptor) IsSurface() bool {
	return d.Kind == KindDisplay || d.Kind == KindWindow
}

// Resolution formats the descriptor's size as WxH
func (d DeviceDescriptor) Resolution() string {
	if d.Width == 0 || d.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// SyntheticPrimaryDisplay is the fallback surface when no display could be enumerated
func SyntheticPrimaryDisplay() DeviceDescriptor {
	return DeviceDescriptor{
		ID:      PrimaryDisplayID,
		Name:    "Primary Display",
		Kind:    KindDisplay,
		Primary: true,
	}
}

// SurfaceID builds a surface id in the "display:N" / "window:N" form
func SurfaceID(kind DeviceKind, n int) string {
	return fmt.Sprintf("%s:%d", kind, n)
}

// ParseSurfaceID splits a surface id into its kind and numeric index
func ParseSurfaceID(id string) (DeviceKind, int, error) {
	prefix, num, ok := strings.Cut(id, ":")
	if !ok {
		return "", 0, fmt.Errorf("invalid surface id format: %q", id)
	}
	kind := DeviceKind(prefix)
	if kind != KindDisplay && kind != KindWindow {
		return "", 0, fmt.Errorf("invalid surface kind %q in %q", prefix, id)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("invalid surface index in %q", id)
	}
	return kind, n, nil
}

// DeviceSnapshot is an immutable view of enumerated devices. Refreshes replace it whole.
type DeviceSnapshot struct {
	Version     uint64             `json:"version"`
	Screens     []DeviceDescriptor `json:"screens"`
	AudioInputs []DeviceDescriptor `json:"audio_inputs"`
	RefreshedAt time.Time          `json:"refreshed_at"`
	Synthetic   bool               `json:"synthetic,omitempty"`
}

// FindScreen returns the screen descriptor with the given id
func (s *DeviceSnapshot) FindScreen(id string) (DeviceDescriptor, bool) {
	if s == nil {
		return DeviceDescriptor{}, false
	}
	for _, d := range s.Screens {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceDescriptor{}, false
}

// FindAudio returns the audio descriptor with the given id
func (s *DeviceSnapshot) FindAudio(id string) (DeviceDescriptor, bool) {
	if s == nil {
		return DeviceDescriptor{}, false
	}
	for _, d := range s.AudioInputs {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceDescriptor{}, false
}

// SystemAudioSource returns the first audio descriptor that can supply system audio
func (s *DeviceSnapshot) SystemAudioSource() (DeviceDescriptor, bool) {
	if s == nil {
		return DeviceDescriptor{}, false
	}
	for _, d := range s.AudioInputs {
		if d.CanSupplySystemAudio {
			return d, true
		}
	}
	return DeviceDescriptor{}, false
}

// PrimaryScreen returns the primary display, or the first screen
func (s *DeviceSnapshot) PrimaryScreen() (DeviceDescriptor, bool) {
	if s == nil || len(s.Screens) == 0 {
		return DeviceDescriptor{}, false
	}
	for _, d := range s.Screens {
		if d.Primary {
			return d, true
		}
	}
	return s.Screens[0], true
}

// Permission is the tri-state answer to a capability consent query
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionUnknown Permission = "unknown"
)

// Capability names a consent-gated capture capability
type Capability string

const (
	CapabilityScreen     Capability = "screen"
	CapabilityMicrophone Capability = "microphone"
)

// PermissionStatus is a cached snapshot of capability consent
type PermissionStatus struct {
	Screen     Permission `json:"screen"`
	Microphone Permission `json:"microphone"`
	CheckedAt  time.Time  `json:"checked_at"`
}

// UnknownPermissions returns a status with every capability unknown
func UnknownPermissions() PermissionStatus {
	return PermissionStatus{Screen: PermissionUnknown, Microphone: PermissionUnknown}
}

// Get returns the permission for one capability
func (p PermissionStatus) Get(c Capability) Permission {
	switch c {
	case CapabilityScreen:
		return p.Screen
	case CapabilityMicrophone:
		return p.Microphone
	}
	return PermissionUnknown
}

// ValidationResult describes whether a device selection is usable
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

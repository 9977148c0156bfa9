package deps

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// DisplayServer represents the type of display server in use
type DisplayServer string

const (
	DisplayServerWayland DisplayServer = "wayland"
	DisplayServerX11     DisplayServer = "x11"
	DisplayServerQuartz  DisplayServer = "quartz"
	DisplayServerWindows DisplayServer = "windows"
	DisplayServerUnknown DisplayServer = "unknown"
)

// Dependency represents an external program used by a capture backend
type Dependency struct {
	Name        string // Command name (e.g., "ffmpeg")
	Description string // Human-readable description
	Required    bool   // If true, no backend can run without it
}

// CheckResult contains the result of checking a dependency
type CheckResult struct {
	Dependency Dependency
	Available  bool
	Path       string // Path to the executable if found
	Error      error  // Error if check failed
}

// LookPath resolves executables; replaced in tests
var LookPath = exec.LookPath

// DetectDisplayServer determines the display server the capture backends must target
func DetectDisplayServer() DisplayServer {
	switch runtime.GOOS {
	case "darwin":
		return DisplayServerQuartz
	case "windows":
		return DisplayServerWindows
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return DisplayServerWayland
	}
	if os.Getenv("DISPLAY") != "" {
		return DisplayServerX11
	}
	return DisplayServerUnknown
}

// GetDisplayServerName returns a human-readable name for the display server
func GetDisplayServerName() string {
	switch DetectDisplayServer() {
	case DisplayServerWayland:
		return "Wayland"
	case DisplayServerX11:
		return "X11"
	case DisplayServerQuartz:
		return "macOS Quartz"
	case DisplayServerWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// BaseDeps lists dependencies required regardless of display server
var BaseDeps = []Dependency{
	{
		Name:        "ffmpeg",
		Description: "Browser-style capture agent and audio track merging",
		Required:    true,
	},
	{
		Name:        "ffprobe",
		Description: "Artifact probing for stream detection and progress",
		Required:    true,
	},
}

// WaylandDeps lists the native backend tools on Wayland
var WaylandDeps = []Dependency{
	{
		Name:        "wl-screenrec",
		Description: "Native Wayland screen capture",
	},
	{
		Name:        "pw-record",
		Description: "PipeWire audio capture (microphone and system monitor)",
	},
	{
		Name:        "hyprctl",
		Description: "Hyprland monitor enumeration",
	},
	{
		Name:        "pactl",
		Description: "Audio source enumeration",
	},
}

// X11Deps lists tools used on X11; screen capture itself goes through ffmpeg x11grab
var X11Deps = []Dependency{
	{
		Name:        "xrandr",
		Description: "X11 monitor enumeration",
	},
	{
		Name:        "pactl",
		Description: "Audio source enumeration",
	},
}

// DarwinDeps lists tools used on macOS
var DarwinDeps = []Dependency{
	{
		Name:        "sw_vers",
		Description: "macOS version detection for the native framework gate",
	},
}

// OptionalDeps lists optional dependencies that enhance functionality
var OptionalDeps = []Dependency{
	{
		Name:        "notify-send",
		Description: "Desktop notifications",
	},
}

// GetBackendDeps returns the native backend dependencies for the current display server
func GetBackendDeps() []Dependency {
	switch DetectDisplayServer() {
	case DisplayServerWayland:
		return WaylandDeps
	case DisplayServerX11:
		return X11Deps
	case DisplayServerQuartz:
		return DarwinDeps
	default:
		return nil
	}
}

// Check verifies if a single dependency is available
func Check(dep Dependency) CheckResult {
	result := CheckResult{Dependency: dep}

	path, err := LookPath(dep.Name)
	if err != nil {
		result.Available = false
		result.Error = err
	} else {
		result.Available = true
		result.Path = path
	}

	return result
}

// Available reports whether every named program can be found on PATH
func Available(names ...string) bool {
	for _, name := range names {
		if _, err := LookPath(name); err != nil {
			return false
		}
	}
	return true
}

// CheckAll verifies base, backend and optional dependencies
func CheckAll() (required []CheckResult, backend []CheckResult, optional []CheckResult) {
	for _, dep := range BaseDeps {
		required = append(required, Check(dep))
	}
	for _, dep := range GetBackendDeps() {
		backend = append(backend, Check(dep))
	}
	for _, dep := range OptionalDeps {
		optional = append(optional, Check(dep))
	}
	return required, backend, optional
}

// MissingRequired returns a list of missing required dependencies
func MissingRequired() []CheckResult {
	var missing []CheckResult
	for _, dep := range BaseDeps {
		result := Check(dep)
		if !result.Available {
			missing = append(missing, result)
		}
	}
	return missing
}

// HasAllRequired returns true if all required dependencies are available
func HasAllRequired() bool {
	return len(MissingRequired()) == 0
}

// FormatMissing returns a formatted string of missing dependencies
func FormatMissing(results []CheckResult) string {
	if len(results) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Missing dependencies:\n\n")

	for _, r := range results {
		status := "MISSING"
		if r.Dependency.Required {
			status = "REQUIRED"
		}
		sb.WriteString(fmt.Sprintf("  • %s (%s)\n", r.Dependency.Name, status))
		sb.WriteString(fmt.Sprintf("    %s\n\n", r.Dependency.Description))
	}

	return sb.String()
}

package models

import (
	"fmt"
	"os"
	"runtime"
	"time"
)

// RecordingEntry is one row of the recordings index, written when a session completes
type RecordingEntry struct {
	ID             string       `json:"id" gorm:"primaryKey"`
	Path           string       `json:"path" gorm:"index"`
	CreatedAt      time.Time    `json:"created_at"`
	DurationMs     int64        `json:"duration_ms"`
	SizeBytes      int64        `json:"size_bytes"`
	Strategy       StrategyKind `json:"strategy,omitempty"`
	HasSystemAudio bool         `json:"has_system_audio"`
	Environment    string       `json:"environment,omitempty"`
}

// Duration returns the entry's duration as a time.Duration
func (e RecordingEntry) Duration() time.Duration {
	return time.Duration(e.DurationMs) * time.Millisecond
}

// EnvironmentInfo contains system environment details recorded with an entry
type EnvironmentInfo struct {
	OS                 string `json:"os"`
	Arch               string `json:"arch"`
	Hostname           string `json:"hostname"`
	DesktopEnvironment string `json:"desktop_environment"`
}

// CurrentEnvironment describes the host the process runs on
func CurrentEnvironment() EnvironmentInfo {
	hostname, _ := os.Hostname()
	return EnvironmentInfo{
		OS:                 runtime.GOOS,
		Arch:               runtime.GOARCH,
		Hostname:           hostname,
		DesktopEnvironment: getDesktopEnvironment(),
	}
}

// String formats the environment as os/arch@host (desktop)
func (e EnvironmentInfo) String() string {
	return fmt.Sprintf("%s/%s@%s (%s)", e.OS, e.Arch, e.Hostname, e.DesktopEnvironment)
}

func getDesktopEnvironment() string {
	if de := os.Getenv("XDG_CURRENT_DESKTOP"); de != "" {
		return de
	}
	if de := os.Getenv("DESKTOP_SESSION"); de != "" {
		return de
	}
	if os.Getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" {
		return "Hyprland"
	}
	if os.Getenv("SWAYSOCK") != "" {
		return "Sway"
	}
	if runtime.GOOS == "darwin" {
		return "Aqua"
	}
	return "Unknown"
}

// FormatDuration formats a duration for display
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatFileSize formats a file size in bytes for display
func FormatFileSize(bytes int64) string {
	const (
		KB float64 = 1024
		MB         = KB * 1024
		GB         = MB * 1024
	)

	b := float64(bytes)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", b/GB)
	case b >= MB:
		return fmt.Sprintf("%.1f MB", b/MB)
	case b >= KB:
		return fmt.Sprintf("%.1f KB", b/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

package models

import "time"

// RecordingState represents the current state of a recording session
type RecordingState string

const (
	StateIdle      RecordingState = "idle"
	StateStarting  RecordingState = "starting"
	StateRecording RecordingState = "recording"
	StatePaused    RecordingState = "paused"
	StateStopping  RecordingState = "stopping"
	StateCompleted RecordingState = "completed"
	StateFailed    RecordingState = "failed"
)

// IsTerminal reports whether no further transitions are possible for a session
func (s RecordingState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// IsActive reports whether a session in this state blocks new start requests
func (s RecordingState) IsActive() bool {
	return s != StateIdle && !s.IsTerminal()
}

var transitions = map[RecordingState][]RecordingState{
	StateIdle:      {StateStarting},
	StateStarting:  {StateRecording, StateStopping, StateFailed},
	StateRecording: {StatePaused, StateStopping, StateFailed},
	StatePaused:    {StateRecording, StateStopping, StateFailed},
	StateStopping:  {StateCompleted, StateFailed},
}

// CanTransition reports whether moving from s to next is a legal transition
func (s RecordingState) CanTransition(next RecordingState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StrategyKind names a capture backend variant
type StrategyKind string

const (
	StrategyNative  StrategyKind = "native"
	StrategyBrowser StrategyKind = "browser"
	StrategyHybrid  StrategyKind = "hybrid"
)

// ParseStrategyKind converts a config value into a StrategyKind
func ParseStrategyKind(s string) (StrategyKind, bool) {
	switch StrategyKind(s) {
	case StrategyNative, StrategyBrowser, StrategyHybrid:
		return StrategyKind(s), true
	}
	return "", false
}

// QualityTier selects frame rate and encoder quality
type QualityTier string

const (
	QualityLow    QualityTier = "low"
	QualityMedium QualityTier = "medium"
	QualityHigh   QualityTier = "high"
)

// FPS returns the capture frame rate for the tier
func (q QualityTier) FPS() int {
	switch q {
	case QualityLow:
		return 15
	case QualityHigh:
		return 60
	default:
		return 30
	}
}

// CRF returns the x264 constant rate factor for the tier
func (q QualityTier) CRF() int {
	switch q {
	case QualityLow:
		return 30
	case QualityHigh:
		return 18
	default:
		return 23
	}
}

// RecordingOptions contains the caller's request for a recording session
type RecordingOptions struct {
	SurfaceID          string      `json:"surface_id"`
	AudioDeviceID      string      `json:"audio_device_id,omitempty"`
	SystemAudioID      string      `json:"system_audio_id,omitempty"`
	IncludeSystemAudio bool        `json:"include_system_audio"`
	IncludeMicrophone  bool        `json:"include_microphone"`
	Quality            QualityTier `json:"quality"`
	OutputDir          string      `json:"output_dir"`
	Filename           string      `json:"filename,omitempty"`
}

// DefaultRecordingOptions returns the default recording options
func DefaultRecordingOptions() RecordingOptions {
	return RecordingOptions{
		SurfaceID:          "",
		IncludeSystemAudio: true,
		IncludeMicrophone:  true,
		Quality:            QualityMedium,
	}
}

// RecordingSession represents an active or finished recording session
type RecordingSession struct {
	ID                 string           `json:"id"`
	State              RecordingState   `json:"state"`
	Strategy           StrategyKind     `json:"strategy,omitempty"`
	Options            RecordingOptions `json:"options"`
	StartTime          time.Time        `json:"start_time"`
	EndTime            time.Time        `json:"end_time,omitempty"`
	PausedFor          time.Duration    `json:"paused_for,omitempty"`
	PausedAt           time.Time        `json:"paused_at,omitempty"`
	ExpectedOutputPath string           `json:"expected_output_path"`
	ActualOutputPath   string           `json:"actual_output_path,omitempty"`
	HasSystemAudio     bool             `json:"has_system_audio"`
	Warnings           []string         `json:"warnings,omitempty"`
	Error              string           `json:"error,omitempty"`
}

// Duration returns recorded time so far, excluding paused intervals
func (s *RecordingSession) Duration(now time.Time) time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	end := now
	if !s.EndTime.IsZero() {
		end = s.EndTime
	}
	d := end.Sub(s.StartTime) - s.PausedFor
	if !s.PausedAt.IsZero() {
		d -= end.Sub(s.PausedAt)
	}
	if d < 0 {
		return 0
	}
	return d
}

// BestKnownPath returns the actual output path when known, otherwise the expected one
func (s *RecordingSession) BestKnownPath() string {
	if s.ActualOutputPath != "" {
		return s.ActualOutputPath
	}
	return s.ExpectedOutputPath
}

// RecordingStatus is used for CLI/API status responses
type RecordingStatus struct {
	State       RecordingState  `json:"state"`
	RecordingID string          `json:"recording_id,omitempty"`
	Strategy    StrategyKind    `json:"strategy,omitempty"`
	Duration    time.Duration   `json:"duration"`
	StartTime   time.Time       `json:"start_time,omitempty"`
	OutputPath  string          `json:"output_path,omitempty"`
	Devices     *DeviceSnapshot `json:"devices,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

// StartResult is returned when a start request is accepted
type StartResult struct {
	RecordingID        string       `json:"recording_id"`
	ExpectedOutputPath string       `json:"expected_output_path"`
	Strategy           StrategyKind `json:"strategy"`
	HasSystemAudio     bool         `json:"has_system_audio"`
}

// StopResult is returned by a stop request; the completed event carries the authoritative path
type StopResult struct {
	RecordingID string        `json:"recording_id,omitempty"`
	OutputPath  string        `json:"output_path"`
	Duration    time.Duration `json:"duration"`
}

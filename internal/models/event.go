package models

import "time"

// EventType names a recording lifecycle event
type EventType string

const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is emitted by the engine for every lifecycle change of a session
type Event struct {
	Type        EventType     `json:"type"`
	RecordingID string        `json:"recording_id"`
	Time        time.Time     `json:"time"`
	Duration    time.Duration `json:"duration,omitempty"`

	// started
	ExpectedOutputPath string       `json:"expected_output_path,omitempty"`
	Strategy           StrategyKind `json:"strategy,omitempty"`
	HasSystemAudio     bool         `json:"has_system_audio,omitempty"`

	// completed
	OutputPath string   `json:"output_path,omitempty"`
	ExtraPaths []string `json:"extra_paths,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`

	// error
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	Message     string    `json:"message,omitempty"`
	PartialPath string    `json:"partial_path,omitempty"`
	Remediation string    `json:"remediation,omitempty"`
}

// IsFinal reports whether no further events will follow for the session
func (e Event) IsFinal() bool {
	return e.Type == EventCompleted || e.Type == EventError
}

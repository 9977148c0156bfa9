package bridge

import (
	"time"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// MessageType names a bridge protocol message
type MessageType string

// Control → agent
const (
	MsgStart  MessageType = "start"
	MsgStop   MessageType = "stop"
	MsgPause  MessageType = "pause"
	MsgResume MessageType = "resume"
)

// Agent → control
const (
	MsgStarted MessageType = "started"
	MsgPaused  MessageType = "paused"
	MsgResumed MessageType = "resumed"
	MsgStopped MessageType = "stopped"
	MsgFailed  MessageType = "failed"
	MsgHello   MessageType = "hello"
)

// Message is the JSON envelope exchanged between the control process and the agent
type Message struct {
	Type        MessageType `json:"type"`
	RecordingID string      `json:"recordingId,omitempty"`
	Time        time.Time   `json:"time"`

	// start
	SurfaceID     string             `json:"surfaceId,omitempty"`
	SurfaceNative string             `json:"surfaceNative,omitempty"`
	Width         int                `json:"width,omitempty"`
	Height        int                `json:"height,omitempty"`
	OffsetX       int                `json:"offsetX,omitempty"`
	OffsetY       int                `json:"offsetY,omitempty"`
	MicID         string             `json:"micId,omitempty"`
	MicNative     string             `json:"micNative,omitempty"`
	Quality       models.QualityTier `json:"quality,omitempty"`
	OutputPath    string             `json:"outputPath,omitempty"`

	// stopped
	ActualFilePath string `json:"actualFilePath,omitempty"`
	SizeBytes      int64  `json:"sizeBytes,omitempty"`

	// failed
	Error string `json:"error,omitempty"`

	// hello
	Platform string `json:"platform,omitempty"`
}

// reply reports whether the message travels agent → control
func (t MessageType) reply() bool {
	switch t {
	case MsgStarted, MsgPaused, MsgResumed, MsgStopped, MsgFailed, MsgHello:
		return true
	}
	return false
}

// expectedReply returns the acknowledgement an agent sends for a control message
func expectedReply(t MessageType) MessageType {
	switch t {
	case MsgStart:
		return MsgStarted
	case MsgPause:
		return MsgPaused
	case MsgResume:
		return MsgResumed
	case MsgStop:
		return MsgStopped
	}
	return ""
}

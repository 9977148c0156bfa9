package ipc

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// Status is the daemon's published view of the engine
type Status struct {
	PID         int                   `json:"pid"`
	State       models.RecordingState `json:"state"`
	RecordingID string                `json:"recording_id,omitempty"`
	Strategy    models.StrategyKind   `json:"strategy,omitempty"`
	StartTime   time.Time             `json:"start_time,omitempty"`
	Duration    time.Duration         `json:"duration"`
	OutputPath  string                `json:"output_path,omitempty"`
	LastError   string                `json:"last_error,omitempty"`
	LastEvent   *models.Event         `json:"last_event,omitempty"`

	// Reply to the most recent command
	CommandID    string `json:"command_id,omitempty"`
	CommandError string `json:"command_error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// StatusFrom converts an engine status
func StatusFrom(st models.RecordingStatus) Status {
	return Status{
		PID:         os.Getpid(),
		State:       st.State,
		RecordingID: st.RecordingID,
		Strategy:    st.Strategy,
		StartTime:   st.StartTime,
		Duration:    st.Duration,
		OutputPath:  st.OutputPath,
		LastError:   st.LastError,
		Timestamp:   time.Now(),
	}
}

// WriteStatus publishes s atomically
func (d Dir) WriteStatus(s Status) error {
	if err := d.Ensure(); err != nil {
		return err
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	return atomicWriteJSON(d.statusPath(), s)
}

// ReadStatus loads the last published status
func (d Dir) ReadStatus() (Status, error) {
	var s Status
	err := readJSON(d.statusPath(), &s)
	return s, err
}

// ClearStatus removes the status file
func (d Dir) ClearStatus() {
	_ = os.Remove(d.statusPath())
}

// Send writes req and waits for the daemon to publish a status answering it
func (d Dir) Send(ctx context.Context, req Request) (Status, error) {
	if _, err := d.DaemonPID(); err != nil {
		return Status{}, err
	}
	if err := d.WriteCommand(req); err != nil {
		return Status{}, err
	}
	st, err := d.WaitStatus(ctx, func(s Status) bool { return s.CommandID == req.ID })
	if err != nil {
		return st, err
	}
	if st.CommandError != "" {
		return st, errors.New(st.CommandError)
	}
	return st, nil
}

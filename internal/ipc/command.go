package ipc

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// Command is a request from the CLI to the daemon
type Command string

const (
	CmdStart  Command = "start"
	CmdStop   Command = "stop"
	CmdPause  Command = "pause"
	CmdResume Command = "resume"
	CmdToggle Command = "toggle"
	CmdQuit   Command = "quit"
)

// Valid reports whether c is a known command
func (c Command) Valid() bool {
	switch c {
	case CmdStart, CmdStop, CmdPause, CmdResume, CmdToggle, CmdQuit:
		return true
	}
	return false
}

// Request is one command file
type Request struct {
	ID          string                   `json:"id"`
	Command     Command                  `json:"command"`
	Options     *models.RecordingOptions `json:"options,omitempty"`
	RequestedAt time.Time                `json:"requested_at"`
}

// NewRequest creates a request with a fresh id
func NewRequest(cmd Command, opts *models.RecordingOptions) Request {
	return Request{ID: uuid.NewString(), Command: cmd, Options: opts, RequestedAt: time.Now()}
}

// WriteCommand drops a request for the daemon, replacing any unread one
func (d Dir) WriteCommand(req Request) error {
	if !req.Command.Valid() {
		return fmt.Errorf("unknown command %q", req.Command)
	}
	if err := d.Ensure(); err != nil {
		return err
	}
	return atomicWriteJSON(d.commandPath(), req)
}

// ReadCommand takes the pending request, removing the file so it runs once. It
// returns nil when nothing is pending; malformed and unknown requests are discarded.
func (d Dir) ReadCommand() (*Request, error) {
	path := d.commandPath()
	var req Request
	err := readJSON(path, &req)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, rmErr
	}
	if err != nil || !req.Command.Valid() {
		return nil, nil
	}
	return &req, nil
}

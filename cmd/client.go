package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/ipc"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// commandTimeout bounds how long a client waits for the daemon to answer
const commandTimeout = 30 * time.Second

// sendCommand delivers one command to the running daemon and returns its reply
func sendCommand(ctx context.Context, c ipc.Command, opts *models.RecordingOptions) (ipc.Status, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	st, err := runtimeDir().Send(ctx, ipc.NewRequest(c, opts))
	switch {
	case errors.Is(err, ipc.ErrNoDaemon):
		return st, fmt.Errorf("no capture daemon is running; start one with 'kartoza-capture serve'")
	case errors.Is(err, context.DeadlineExceeded):
		return st, fmt.Errorf("daemon did not answer %s within %s", c, commandTimeout)
	}
	return st, err
}

// waitFinal blocks until the daemon publishes the final event of recording id
func waitFinal(ctx context.Context, id string, timeout time.Duration) (*models.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	st, err := runtimeDir().WaitStatus(ctx, func(s ipc.Status) bool {
		return s.LastEvent != nil && s.LastEvent.RecordingID == id && s.LastEvent.IsFinal()
	})
	if err != nil {
		return nil, fmt.Errorf("recording %s did not finish: %w", id, err)
	}
	return st.LastEvent, nil
}

// printFinal reports a completed or failed recording
func printFinal(e *models.Event) error {
	if e.Type == models.EventError {
		fmt.Printf("Recording failed: %s\n", e.Message)
		if e.PartialPath != "" {
			fmt.Printf("Partial file: %s\n", e.PartialPath)
		}
		for _, p := range e.ExtraPaths {
			fmt.Printf("Also kept:    %s\n", p)
		}
		if e.Remediation != "" {
			fmt.Println(e.Remediation)
		}
		return errors.New(e.Message)
	}
	fmt.Printf("Recording saved: %s\n", e.OutputPath)
	for _, p := range e.ExtraPaths {
		fmt.Printf("Also kept:       %s\n", p)
	}
	for _, w := range e.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	return nil
}

// describeError renders err with validation issues and remediation for the terminal
func describeError(err error) string {
	msg := err.Error()
	var ce *models.CaptureError
	if errors.As(err, &ce) && len(ce.Issues) > 0 {
		msg += ": " + strings.Join(ce.Issues, "; ")
	}
	if r := models.Remediation(models.KindOf(err)); r != "" {
		msg += "\n" + r
	}
	return msg
}

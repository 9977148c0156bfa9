// Package notify turns recording lifecycle events into desktop notifications.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// Urgency levels for notifications
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyCritical Urgency = "critical"
)

const appTitle = "Screen Recording"

// Message is one desktop notification
type Message struct {
	Title   string
	Body    string
	Urgency Urgency
	Icon    string
}

// SendFunc delivers a notification
type SendFunc func(ctx context.Context, m Message) error

// NotifySend delivers through notify-send
func NotifySend(ctx context.Context, m Message) error {
	args := []string{m.Title, m.Body}

	if m.Urgency != "" {
		args = append(args, "--urgency="+string(m.Urgency))
	}

	if m.Icon != "" {
		args = append(args, "--icon="+m.Icon)
	}

	cmd := exec.CommandContext(ctx, "notify-send", args...)
	return cmd.Run()
}

// Available reports whether notify-send is installed
func Available() bool {
	_, err := exec.LookPath("notify-send")
	return err == nil
}

// Notifier maps lifecycle events to notifications
type Notifier struct {
	send   SendFunc
	logger *zap.Logger
}

// New creates a notifier; a nil send uses notify-send
func New(send SendFunc, logger *zap.Logger) *Notifier {
	if send == nil {
		send = NotifySend
	}
	return &Notifier{send: send, logger: logging.Component(logger, "notify")}
}

// MessageFor returns the notification for e; progress events have none
func MessageFor(e models.Event) (Message, bool) {
	switch e.Type {
	case models.EventStarted:
		body := "Recording started"
		if !e.HasSystemAudio {
			body += " without system audio"
		}
		return Message{Title: appTitle, Body: body + "...", Urgency: UrgencyNormal, Icon: "video-x-generic"}, true
	case models.EventPaused:
		return Message{Title: appTitle, Body: "Recording paused", Urgency: UrgencyLow, Icon: "media-playback-pause"}, true
	case models.EventResumed:
		return Message{Title: appTitle, Body: "Recording resumed", Urgency: UrgencyLow, Icon: "media-record"}, true
	case models.EventCompleted:
		body := filepath.Base(e.OutputPath) + " saved!"
		icon := "video-x-generic"
		if len(e.Warnings) > 0 {
			body += fmt.Sprintf(" (%d warnings)", len(e.Warnings))
			icon = "dialog-warning"
		}
		return Message{Title: "Screen Recording Complete", Body: body, Urgency: UrgencyNormal, Icon: icon}, true
	case models.EventError:
		body := e.Message
		if e.PartialPath != "" {
			body += "\nPartial recording: " + e.PartialPath
		}
		for _, p := range e.ExtraPaths {
			body += "\nAlso kept: " + p
		}
		if e.Remediation != "" {
			body += "\n" + e.Remediation
		}
		return Message{Title: "Screen Recording Failed", Body: body, Urgency: UrgencyCritical, Icon: "dialog-error"}, true
	}
	return Message{}, false
}

// Notify sends the notification for one event
func (n *Notifier) Notify(ctx context.Context, e models.Event) {
	m, ok := MessageFor(e)
	if !ok {
		return
	}
	if err := n.send(ctx, m); err != nil {
		n.logger.Debug("Notification failed", logging.RecordingID(e.RecordingID), zap.Error(err))
	}
}

// Run notifies for every event until the channel closes or ctx ends
func (n *Notifier) Run(ctx context.Context, events <-chan models.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			n.Notify(ctx, e)
		}
	}
}

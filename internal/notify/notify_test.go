package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

func TestMessageFor(t *testing.T) {
	tests := []struct {
		name    string
		event   models.Event
		ok      bool
		urgency Urgency
		body    string
	}{
		{"started", models.Event{Type: models.EventStarted, HasSystemAudio: true}, true, UrgencyNormal, "Recording started..."},
		{"started without system audio", models.Event{Type: models.EventStarted}, true, UrgencyNormal, "without system audio"},
		{"completed", models.Event{Type: models.EventCompleted, OutputPath: "/videos/demo.mp4"}, true, UrgencyNormal, "demo.mp4 saved!"},
		{"completed with warnings", models.Event{Type: models.EventCompleted, OutputPath: "/videos/demo.mp4", Warnings: []string{"x"}}, true, UrgencyNormal, "(1 warnings)"},
		{"error", models.Event{Type: models.EventError, Message: "agent silent", PartialPath: "/tmp/capture-1.mp4"}, true, UrgencyCritical, "Partial recording: /tmp/capture-1.mp4"},
		{"error with kept tracks", models.Event{Type: models.EventError, Message: "agent silent", PartialPath: "/tmp/capture-1.screen.mp4", ExtraPaths: []string{"/tmp/capture-1.system.m4a"}}, true, UrgencyCritical, "Also kept: /tmp/capture-1.system.m4a"},
		{"paused", models.Event{Type: models.EventPaused}, true, UrgencyLow, "paused"},
		{"progress", models.Event{Type: models.EventProgress}, false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := MessageFor(tt.event)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.urgency, m.Urgency)
			assert.Contains(t, m.Body, tt.body)
		})
	}
}

func TestRunSendsUntilClosed(t *testing.T) {
	var mu sync.Mutex
	var sent []Message
	n := New(func(ctx context.Context, m Message) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, m)
		return errors.New("no notification daemon")
	}, zap.NewNop())

	events := make(chan models.Event, 4)
	events <- models.Event{Type: models.EventStarted}
	events <- models.Event{Type: models.EventProgress}
	events <- models.Event{Type: models.EventCompleted, OutputPath: "/v/a.mp4"}
	close(events)

	n.Run(context.Background(), events)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 2)
	assert.Equal(t, "Screen Recording Complete", sent[1].Title)
}

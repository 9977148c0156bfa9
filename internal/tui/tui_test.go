package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

type fakeController struct {
	startErr error
	pauseErr error
	starts   int
	stops    int
	pauses   int
	resumes  int
}

func (f *fakeController) StartRecording(context.Context, models.RecordingOptions) (models.StartResult, error) {
	f.starts++
	if f.startErr != nil {
		return models.StartResult{}, f.startErr
	}
	return models.StartResult{
		RecordingID:        "rec-1",
		ExpectedOutputPath: "/tmp/out.mp4",
		Strategy:           models.StrategyNative,
		HasSystemAudio:     true,
	}, nil
}

func (f *fakeController) StopRecording(context.Context) (models.StopResult, error) {
	f.stops++
	return models.StopResult{RecordingID: "rec-1"}, nil
}

func (f *fakeController) PauseRecording(context.Context) error {
	f.pauses++
	return f.pauseErr
}

func (f *fakeController) ResumeRecording(context.Context) error {
	f.resumes++
	return nil
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return out, cmd
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func recordingModel(t *testing.T, ctrl *fakeController) Model {
	t.Helper()
	m := NewModel(context.Background(), ctrl, make(chan models.Event), models.RecordingOptions{SurfaceID: "display:0"}, 0)
	res, err := ctrl.StartRecording(context.Background(), m.opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	m, _ = update(t, m, startedMsg{result: res})
	if m.phase != phaseRecording {
		t.Fatalf("expected recording phase, got %v", m.phase)
	}
	return m
}

func TestNewModel_Countdown(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{}, nil, models.RecordingOptions{}, 3)
	if m.phase != phaseCountdown {
		t.Errorf("expected countdown phase, got %v", m.phase)
	}

	m = NewModel(context.Background(), &fakeController{}, nil, models.RecordingOptions{}, 0)
	if m.phase != phaseStarting {
		t.Errorf("expected starting phase without countdown, got %v", m.phase)
	}
}

func TestCountdownStartsRecording(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl, nil, models.RecordingOptions{}, 2)

	m, cmd := update(t, m, countdownTickMsg{})
	if m.countdown != 1 || m.phase != phaseCountdown || cmd == nil {
		t.Fatalf("expected countdown at 1, got %d (%v)", m.countdown, m.phase)
	}

	m, cmd = update(t, m, countdownTickMsg{})
	if m.phase != phaseStarting {
		t.Fatalf("expected starting phase, got %v", m.phase)
	}
	msg := cmd()
	if ctrl.starts != 1 {
		t.Errorf("expected one start call, got %d", ctrl.starts)
	}
	if _, ok := msg.(startedMsg); !ok {
		t.Errorf("expected startedMsg, got %T", msg)
	}
}

func TestCountdownPlaysCues(t *testing.T) {
	var played []int
	cue := func(_ context.Context, n int) error {
		played = append(played, n)
		return nil
	}
	m := NewModel(context.Background(), &fakeController{}, nil, models.RecordingOptions{}, 2).WithCue(cue)

	if cmd := m.cueCmd(2); cmd != nil {
		cmd()
	}
	m, _ = update(t, m, countdownTickMsg{})
	if cmd := m.cueCmd(m.countdown); cmd != nil {
		cmd()
	}

	if len(played) != 2 || played[0] != 2 || played[1] != 1 {
		t.Errorf("expected cues 2 then 1, got %v", played)
	}

	m = NewModel(context.Background(), &fakeController{}, nil, models.RecordingOptions{}, 2)
	if m.cueCmd(1) != nil {
		t.Error("expected no cue command without a cue")
	}
}

func TestCountdownCancel(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{}, nil, models.RecordingOptions{}, 3)
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected esc to quit during countdown")
	}
}

func TestStartFailureShowsError(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{}, nil, models.RecordingOptions{}, 0)
	m, _ = update(t, m, startedMsg{err: errors.New("capture busy")})
	if m.phase != phaseDone {
		t.Errorf("expected done phase, got %v", m.phase)
	}
	if _, err := m.Final(); err == nil {
		t.Error("expected start error to be kept")
	}
}

func TestPauseResumeKeys(t *testing.T) {
	ctrl := &fakeController{}
	m := recordingModel(t, ctrl)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if cmd == nil {
		t.Fatal("expected pause command")
	}
	cmd()
	if ctrl.pauses != 1 {
		t.Errorf("expected one pause call, got %d", ctrl.pauses)
	}

	m, _ = update(t, m, eventMsg(models.Event{Type: models.EventPaused, RecordingID: "rec-1"}))
	if m.phase != phasePaused {
		t.Fatalf("expected paused phase, got %v", m.phase)
	}

	_, cmd = update(t, m, runeKey("p"))
	cmd()
	if ctrl.resumes != 1 {
		t.Errorf("expected one resume call, got %d", ctrl.resumes)
	}
}

func TestPauseErrorIsShown(t *testing.T) {
	ctrl := &fakeController{pauseErr: models.NewError(models.KindUnsupported, "pause not supported")}
	m := recordingModel(t, ctrl)

	_, cmd := update(t, m, runeKey("p"))
	msg := cmd()
	m, _ = update(t, m, msg)
	if m.err == nil || m.phase != phaseRecording {
		t.Errorf("expected error shown while still recording, got %v / %v", m.err, m.phase)
	}
}

func TestStopThenCompleted(t *testing.T) {
	ctrl := &fakeController{}
	m := recordingModel(t, ctrl)

	m, cmd := update(t, m, runeKey("s"))
	if m.phase != phaseFinalizing {
		t.Fatalf("expected finalizing phase, got %v", m.phase)
	}
	cmd()
	if ctrl.stops != 1 {
		t.Errorf("expected one stop call, got %d", ctrl.stops)
	}

	m, _ = update(t, m, eventMsg(models.Event{
		Type:        models.EventCompleted,
		RecordingID: "rec-1",
		OutputPath:  "/tmp/out.mp4",
		Duration:    5 * time.Second,
	}))
	if m.phase != phaseDone {
		t.Fatalf("expected done phase, got %v", m.phase)
	}
	final, err := m.Final()
	if err != nil || final == nil || final.OutputPath != "/tmp/out.mp4" {
		t.Errorf("unexpected final state: %+v, %v", final, err)
	}
}

func TestQuitStopsAndQuitsOnFinal(t *testing.T) {
	ctrl := &fakeController{}
	m := recordingModel(t, ctrl)

	m, cmd := update(t, m, runeKey("q"))
	cmd()
	if ctrl.stops != 1 || !m.quitOnFinal {
		t.Fatal("expected q to stop and arm quit")
	}

	_, cmd = update(t, m, eventMsg(models.Event{Type: models.EventError, RecordingID: "rec-1", Message: "encoder crashed"}))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected quit after final event")
	}
}

func TestEventsForOtherRecordingsIgnored(t *testing.T) {
	m := recordingModel(t, &fakeController{})
	m, _ = update(t, m, eventMsg(models.Event{Type: models.EventCompleted, RecordingID: "other"}))
	if m.phase != phaseRecording || m.final != nil {
		t.Errorf("expected foreign event ignored, phase %v", m.phase)
	}
}

func TestViewRendersFinalResult(t *testing.T) {
	m := recordingModel(t, &fakeController{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = update(t, m, eventMsg(models.Event{
		Type:        models.EventError,
		RecordingID: "rec-1",
		Message:     "encoder crashed",
		PartialPath: "/tmp/partial.mp4",
	}))

	view := m.View()
	for _, want := range []string{"Kartoza Capture", "encoder crashed", "/tmp/partial.mp4"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{65 * time.Second, "00:01:05"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "02:03:04"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestGetBigDigit(t *testing.T) {
	if len(getBigDigit(3)) == 0 {
		t.Error("expected art for digit 3")
	}
	if getBigDigit(9) != nil {
		t.Error("expected no art outside 1-5")
	}
}

// Package tui renders a foreground recording: an optional countdown, the live state of
// the session and its final result.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/stopwatch"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// Controller is the engine surface the view drives
type Controller interface {
	StartRecording(ctx context.Context, opts models.RecordingOptions) (models.StartResult, error)
	StopRecording(ctx context.Context) (models.StopResult, error)
	PauseRecording(ctx context.Context) error
	ResumeRecording(ctx context.Context) error
}

type phase int

const (
	phaseCountdown phase = iota
	phaseStarting
	phaseRecording
	phasePaused
	phaseFinalizing
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseCountdown:
		return "Get ready"
	case phaseStarting:
		return "Starting"
	case phaseRecording:
		return "REC"
	case phasePaused:
		return "Paused"
	case phaseFinalizing:
		return "Finalizing"
	}
	return "Done"
}

type keyMap struct {
	Pause  key.Binding
	Stop   key.Binding
	Quit   key.Binding
	Help   key.Binding
	Cancel key.Binding
}

var keys = keyMap{
	Pause: key.NewBinding(
		key.WithKeys(" ", "p"),
		key.WithHelp("space", "pause/resume"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s", "enter"),
		key.WithHelp("s", "stop"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "stop and quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
}

// Messages
type countdownTickMsg struct{}
type blinkMsg struct{}
type eventMsg models.Event
type eventsClosedMsg struct{}
type startedMsg struct {
	result models.StartResult
	err    error
}
type actionErrMsg struct{ err error }

// CueFunc plays an audible cue for a countdown number; 0 marks the start
type CueFunc func(ctx context.Context, count int) error

// Model is the recording view
type Model struct {
	ctx    context.Context
	ctrl   Controller
	events <-chan models.Event
	opts   models.RecordingOptions

	phase     phase
	countdown int
	cue       CueFunc
	spinner   spinner.Model
	stopwatch stopwatch.Model

	width    int
	height   int
	showHelp bool
	blinkOn  bool

	started  models.StartResult
	warnings []string
	final    *models.Event
	err      error
	// quit once the final event arrives
	quitOnFinal bool
}

// NewModel creates the view. A positive countdown delays the start by that many seconds.
func NewModel(ctx context.Context, ctrl Controller, events <-chan models.Event, opts models.RecordingOptions, countdown int) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorRed)

	m := Model{
		ctx:       ctx,
		ctrl:      ctrl,
		events:    events,
		opts:      opts,
		countdown: countdown,
		spinner:   s,
		stopwatch: stopwatch.NewWithInterval(time.Second),
		blinkOn:   true,
	}
	if countdown <= 0 {
		m.phase = phaseStarting
	}
	return m
}

// WithCue returns a copy of m that plays cue on every countdown step
func (m Model) WithCue(cue CueFunc) Model {
	m.cue = cue
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	first := m.startCmd()
	if m.phase == phaseCountdown {
		first = tea.Batch(countdownTickCmd(), m.cueCmd(m.countdown))
	}
	return tea.Batch(first, m.spinner.Tick, blinkCmd(), waitForEvent(m.events))
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case countdownTickMsg:
		if m.phase != phaseCountdown {
			return m, nil
		}
		m.countdown--
		if m.countdown <= 0 {
			m.phase = phaseStarting
			if cue := m.cueCmd(0); cue != nil {
				return m, tea.Batch(m.startCmd(), cue)
			}
			return m, m.startCmd()
		}
		if cue := m.cueCmd(m.countdown); cue != nil {
			return m, tea.Batch(countdownTickCmd(), cue)
		}
		return m, countdownTickCmd()

	case startedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.phase = phaseDone
			return m, nil
		}
		m.started = msg.result
		if m.phase == phaseStarting {
			m.phase = phaseRecording
		}
		return m, m.stopwatch.Start()

	case eventMsg:
		return m.handleEvent(models.Event(msg))

	case eventsClosedMsg:
		if m.phase != phaseDone {
			m.phase = phaseDone
		}
		return m, nil

	case actionErrMsg:
		m.err = msg.err
		if m.phase == phaseFinalizing {
			m.phase = phaseDone
		}
		return m, nil

	case blinkMsg:
		m.blinkOn = !m.blinkOn
		return m, blinkCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.stopwatch, cmd = m.stopwatch.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.phase {
	case phaseCountdown:
		if key.Matches(msg, keys.Cancel) || key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
		return m, nil

	case phaseDone:
		if key.Matches(msg, keys.Quit) || key.Matches(msg, keys.Cancel) || key.Matches(msg, keys.Stop) {
			return m, tea.Quit
		}
		return m, nil

	case phaseStarting, phaseFinalizing:
		// ctrl+c still leaves; the engine keeps finalizing
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitOnFinal = true
		m.phase = phaseFinalizing
		return m, m.stopCmd()
	case key.Matches(msg, keys.Stop):
		m.phase = phaseFinalizing
		return m, m.stopCmd()
	case key.Matches(msg, keys.Pause):
		m.err = nil
		if m.phase == phasePaused {
			return m, m.resumeCmd()
		}
		return m, m.pauseCmd()
	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m Model) handleEvent(e models.Event) (tea.Model, tea.Cmd) {
	next := waitForEvent(m.events)
	if m.started.RecordingID != "" && e.RecordingID != m.started.RecordingID && e.Type != models.EventStarted {
		return m, next
	}

	switch e.Type {
	case models.EventStarted:
		m.warnings = append(m.warnings, e.Warnings...)
	case models.EventPaused:
		m.phase = phasePaused
		return m, tea.Batch(next, m.stopwatch.Stop())
	case models.EventResumed:
		m.phase = phaseRecording
		return m, tea.Batch(next, m.stopwatch.Start())
	case models.EventCompleted, models.EventError:
		m.final = &e
		m.phase = phaseDone
		if m.quitOnFinal {
			return m, tea.Quit
		}
		return m, m.stopwatch.Stop()
	}
	return m, next
}

// View renders the UI using the standard layout
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.phase == phaseCountdown {
		return renderCountdown(m.countdown, m.width, m.height)
	}

	header := RenderHeader("Recording", &HeaderState{
		State:    m.phase.String(),
		Active:   m.phase == phaseRecording,
		Surface:  m.opts.SurfaceID,
		Duration: formatElapsed(m.stopwatch.Elapsed()),
		BlinkOn:  m.blinkOn,
	})
	footer := RenderHelpFooter(m.helpText(), m.width)
	return LayoutWithHeaderFooter(header, m.renderContent(), footer, m.width, m.height)
}

func (m Model) helpText() string {
	switch m.phase {
	case phaseDone:
		return "q - quit"
	case phaseStarting, phaseFinalizing:
		return "ctrl+c - leave"
	}
	return "space - pause/resume | s - stop | q - stop and quit | ? - help"
}

func (m Model) renderContent() string {
	var sections []string

	switch m.phase {
	case phaseStarting:
		sections = append(sections, m.spinner.View()+" Starting capture...")
	case phaseFinalizing:
		sections = append(sections, m.spinner.View()+" Finalizing recording...")
	}

	if m.started.RecordingID != "" {
		audio := "no"
		if m.started.HasSystemAudio {
			audio = "yes"
		}
		sections = append(sections,
			field("Strategy", string(m.started.Strategy)),
			field("System audio", audio),
			field("Output", m.started.ExpectedOutputPath),
		)
	}

	for _, w := range m.warnings {
		sections = append(sections, WarningStyle.Render("! "+w))
	}

	if m.final != nil {
		sections = append(sections, "", renderFinal(*m.final))
	}
	if m.err != nil {
		sections = append(sections, "", ErrorStyle.Render("Error: "+m.err.Error()))
	}

	if m.showHelp {
		sections = append(sections, "", TitleStyle.Render("Help"), LabelStyle.Render(`Keyboard Shortcuts:
  space/p      Pause or resume
  s/enter      Stop and keep the recording
  q            Stop, then quit when the file is ready
  ?            Toggle this help`))
	}

	return lipgloss.NewStyle().
		Width(HeaderWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func renderFinal(e models.Event) string {
	if e.Type == models.EventError {
		lines := []string{ErrorStyle.Render("Recording failed: " + e.Message)}
		if e.PartialPath != "" {
			lines = append(lines, field("Partial file", e.PartialPath))
		}
		for _, p := range e.ExtraPaths {
			lines = append(lines, field("Also kept", p))
		}
		if e.Remediation != "" {
			lines = append(lines, LabelStyle.Render(e.Remediation))
		}
		return strings.Join(lines, "\n")
	}

	lines := []string{SuccessStyle.Render("Saved " + filepath.Base(e.OutputPath))}
	lines = append(lines, field("Path", e.OutputPath))
	lines = append(lines, field("Duration", formatElapsed(e.Duration)))
	for _, p := range e.ExtraPaths {
		lines = append(lines, field("Also kept", p))
	}
	for _, w := range e.Warnings {
		lines = append(lines, WarningStyle.Render("! "+w))
	}
	return strings.Join(lines, "\n")
}

func field(label, value string) string {
	return LabelStyle.Render(label+": ") + ValueStyle.Render(value)
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, mins, s)
}

// Final returns the last lifecycle event and any error the view saw
func (m Model) Final() (*models.Event, error) {
	return m.final, m.err
}

// Commands

func countdownTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return countdownTickMsg{}
	})
}

func blinkCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg {
		return blinkMsg{}
	})
}

func waitForEvent(events <-chan models.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(e)
	}
}

// cueCmd plays the cue off the update loop; failures are silent
func (m Model) cueCmd(count int) tea.Cmd {
	if m.cue == nil {
		return nil
	}
	cue, ctx := m.cue, m.ctx
	return func() tea.Msg {
		_ = cue(ctx, count)
		return nil
	}
}

func (m Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := m.ctrl.StartRecording(m.ctx, m.opts)
		return startedMsg{result: res, err: err}
	}
}

func (m Model) stopCmd() tea.Cmd {
	return func() tea.Msg {
		if _, err := m.ctrl.StopRecording(m.ctx); err != nil {
			return actionErrMsg{err}
		}
		return nil
	}
}

func (m Model) pauseCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.ctrl.PauseRecording(m.ctx); err != nil {
			return actionErrMsg{err}
		}
		return nil
	}
}

func (m Model) resumeCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.ctrl.ResumeRecording(m.ctx); err != nil {
			return actionErrMsg{err}
		}
		return nil
	}
}

// Run shows the recording view until the user quits and returns the final event.
// cue may be nil.
func Run(ctx context.Context, ctrl Controller, events <-chan models.Event, opts models.RecordingOptions, countdown int, cue CueFunc) (*models.Event, error) {
	m := NewModel(ctx, ctrl, events, opts, countdown).WithCue(cue)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	out, err := p.Run()
	if err != nil {
		return nil, err
	}
	final, viewErr := out.(Model).Final()
	if final == nil && viewErr != nil {
		return nil, viewErr
	}
	return final, nil
}

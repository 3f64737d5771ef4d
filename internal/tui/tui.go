// Package tui provides a Bubble Tea terminal user interface for snap-memories.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/handiism/snap-memories/internal/config"
	"github.com/handiism/snap-memories/internal/model"
	"github.com/handiism/snap-memories/internal/pipeline"
	"github.com/handiism/snap-memories/internal/planner"
	"github.com/handiism/snap-memories/internal/report"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFC00")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))
)

// maxLogs is how many recent events are shown.
const maxLogs = 10

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StatePlanning
	StateRunning
	StateComplete
	StateError
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   pipeline.ProgressLevel
}

// tracker collects executor events between ticks. The executor calls add
// from its workers; the model reads snapshots on TickMsg.
type tracker struct {
	mu      sync.Mutex
	settled int
	total   int
	stages  map[planner.Stage]int
	logs    []LogEntry
	verbose bool

	// transfer is the latest download progress line, cleared when that
	// download settles.
	transfer   string
	transferID int
}

func newTracker(verbose bool) *tracker {
	return &tracker{stages: make(map[planner.Stage]int), verbose: verbose}
}

func (t *tracker) add(e pipeline.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.Type == pipeline.EventProgress {
		t.transfer, t.transferID = e.Message, e.ActionID
		return
	}
	if e.Type == pipeline.EventSettled || e.Type == pipeline.EventPlanned {
		t.settled = e.Settled
		t.total = e.Total
		t.stages[e.Stage]++
		if t.transfer != "" && e.ActionID == t.transferID {
			t.transfer = ""
		}
	}
	if e.Level == pipeline.LevelVerbose && !t.verbose {
		return
	}
	if e.Type == pipeline.EventStarted {
		return
	}
	t.logs = append(t.logs, LogEntry{Message: e.Message, Level: e.Level})
	if len(t.logs) > maxLogs {
		t.logs = t.logs[len(t.logs)-maxLogs:]
	}
}

type snapshot struct {
	settled  int
	total    int
	stages   map[planner.Stage]int
	logs     []LogEntry
	transfer string
}

func (t *tracker) snapshot() snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	stages := make(map[planner.Stage]int, len(t.stages))
	for k, v := range t.stages {
		stages[k] = v
	}
	return snapshot{
		settled:  t.settled,
		total:    t.total,
		stages:   stages,
		logs:     append([]LogEntry(nil), t.logs...),
		transfer: t.transfer,
	}
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	settings  *config.Settings
	logs      []LogEntry
	err       error

	// Run context
	ctx    context.Context
	cancel context.CancelFunc

	pipeline *pipeline.Pipeline
	plan     *planner.Plan
	stats    *pipeline.RunStatistics
	tracker  *tracker

	// Run progress
	settled  int
	total    int
	stages   map[planner.Stage]int
	transfer string

	// Options
	useGPU  bool
	dryRun  bool
	verbose bool

	width  int
	height int
}

// NewModel creates a new TUI model. settings provides the defaults for
// every run started from the UI.
func NewModel(settings *config.Settings) Model {
	if settings == nil {
		settings = config.DefaultSettings()
	}

	ti := textinput.New()
	ti.Placeholder = "~/Downloads/mydata or memories_history.html"
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFC00"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		logs:      make([]LogEntry, 0),
		ctx:       ctx,
		cancel:    cancel,
		useGPU:    settings.UseGPU,
		dryRun:    settings.DryRun,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Message types
type (
	// PlanDoneMsg is sent when planning completes.
	PlanDoneMsg struct {
		Plan     *planner.Plan
		Pipeline *pipeline.Pipeline
		Tracker  *tracker
		Err      error
	}

	// RunDoneMsg is sent when every action has settled.
	RunDoneMsg struct {
		Stats *pipeline.RunStatistics
		Err   error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.state == StateRunning || m.state == StatePlanning {
				// In-flight actions finish; everything else is skipped.
				m.cancel()
			}

		case "enter":
			if m.state == StateInput && strings.TrimSpace(m.textInput.Value()) != "" {
				m.state = StatePlanning
				return m, tea.Batch(m.startPlan(), m.spinner.Tick)
			}

		case "ctrl+g":
			if m.state == StateInput {
				m.useGPU = !m.useGPU
			}

		case "ctrl+r":
			if m.state == StateInput {
				m.dryRun = !m.dryRun
			}

		case "ctrl+o":
			if m.state == StateInput {
				m.verbose = !m.verbose
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				// Reset for a new run
				m.state = StateInput
				m.logs = nil
				m.err = nil
				m.pipeline = nil
				m.plan = nil
				m.stats = nil
				m.tracker = nil
				m.settled = 0
				m.total = 0
				m.stages = nil
				m.cancel()
				m.ctx, m.cancel = context.WithCancel(context.Background())
				m.textInput.SetValue("")
				m.textInput.Focus()
				return m, textinput.Blink
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case PlanDoneMsg:
		if msg.Err != nil {
			m.state = StateError
			m.err = msg.Err
		} else {
			m.plan = msg.Plan
			m.pipeline = msg.Pipeline
			m.tracker = msg.Tracker
			m.total = len(msg.Plan.Actions)
			m.state = StateRunning
			// Start the run and tick for progress updates
			cmds = append(cmds, m.startRun(), m.tickProgress())
		}

	case RunDoneMsg:
		m.stats = msg.Stats
		m.refresh()
		switch {
		case msg.Err != nil:
			m.state = StateError
			m.err = msg.Err
		default:
			m.state = StateComplete
		}

	case TickMsg:
		if m.tracker != nil && m.state == StateRunning {
			m.refresh()

			var percent float64
			if m.total > 0 {
				percent = float64(m.settled) / float64(m.total)
			}
			progressCmd := m.progress.SetPercent(percent)
			cmds = append(cmds, progressCmd, m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	// Update text input
	if m.state == StateInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) refresh() {
	if m.tracker == nil {
		return
	}
	snap := m.tracker.snapshot()
	m.settled = snap.settled
	if snap.total > 0 {
		m.total = snap.total
	}
	m.stages = snap.stages
	m.logs = snap.logs
	m.transfer = snap.transfer
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("Snap Memories"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Rebuild your memories export into a dated photo library"))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StatePlanning:
		b.WriteString(m.viewPlanning())
	case StateRunning:
		b.WriteString(m.viewRunning())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Export folder or manifest:"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s Use hardware video encoders (ctrl+g)\n", check(m.useGPU)))
	b.WriteString(fmt.Sprintf("  %s Dry run, only show the plan (ctrl+r)\n", check(m.dryRun)))
	b.WriteString(fmt.Sprintf("  %s Verbose output (ctrl+o)\n", check(m.verbose)))
	b.WriteString("\n")

	output := m.settings.OutputDir
	if output == "" {
		output = "<export>-library"
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("Output: %s", output)))
	b.WriteString("\n")

	return b.String()
}

func check(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

func (m Model) viewPlanning() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render("Scanning and planning..."))
	b.WriteString("\n\n")

	return b.String()
}

func (m Model) viewRunning() string {
	var b strings.Builder

	if m.plan != nil {
		counts := m.plan.CountByKind()
		b.WriteString(successStyle.Render(fmt.Sprintf("Planned %d action(s):", len(m.plan.Actions))))
		b.WriteString("\n")
		for _, kind := range planner.ActionKinds {
			if n := counts[kind]; n > 0 {
				b.WriteString(stageStyle.Render(fmt.Sprintf("  %-26s %d", kind, n)))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	// Progress bar
	var percent float64
	if m.total > 0 {
		percent = float64(m.settled) / float64(m.total)
	}
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString("\n")

	var stages []string
	for s := planner.StageDownload; s <= planner.StageCleanup; s++ {
		if n := m.stages[s]; n > 0 {
			stages = append(stages, fmt.Sprintf("%s %d", s, n))
		}
	}
	b.WriteString(infoStyle.Render(fmt.Sprintf("Actions: %d/%d | %s", m.settled, m.total, strings.Join(stages, ", "))))
	b.WriteString("\n")
	if m.transfer != "" {
		b.WriteString(subtitleStyle.Render(m.transfer))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Logs
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	var b strings.Builder

	if m.stats == nil {
		return ""
	}

	title := "Done!"
	switch {
	case m.stats.DryRun:
		title = "Dry run complete"
	case m.stats.Cancelled:
		title = "Cancelled"
	case m.stats.Failed():
		title = "Finished with failures"
	}

	box := boxStyle.Render(fmt.Sprintf(
		"%s\n\n"+
			"Succeeded: %d\n"+
			"Skipped: %d\n"+
			"Failed: %d\n"+
			"Downloaded: %s\n"+
			"Output: %s",
		title,
		m.stats.Total(model.StatusSucceeded),
		m.stats.Total(model.StatusSkipped),
		m.stats.Total(model.StatusFailed),
		humanize.Bytes(uint64(m.stats.BytesDownloaded)),
		m.plan.OutputDir,
	))
	b.WriteString(box)
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render(report.Summary(m.stats)))
	b.WriteString("\n")

	if m.stats.Failed() {
		b.WriteString("\n")
		b.WriteString(m.renderLogs())
	}

	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "•"
		switch log.Level {
		case pipeline.LevelError:
			style = errorStyle
			prefix = "✗"
		case pipeline.LevelWarning:
			style = warningStyle
			prefix = "!"
		case pipeline.LevelSuccess:
			style = successStyle
			prefix = "✓"
		case pipeline.LevelInfo:
			style = infoStyle
			prefix = "›"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateInput:
		return "enter: start • ctrl+g: gpu • ctrl+r: dry run • ctrl+o: verbose • esc: quit"
	case StatePlanning, StateRunning:
		return "esc: cancel"
	case StateComplete, StateError:
		return "r: new run • q: quit"
	}
	return ""
}

// runSettings copies the base settings and applies the UI options.
func (m *Model) runSettings(input string) *config.Settings {
	settings := *m.settings
	settings.UseGPU = m.useGPU
	settings.DryRun = m.dryRun
	if settings.OutputDir == "" {
		settings.OutputDir = config.DefaultOutputDir(input)
	}
	return &settings
}

// startPlan scans the input and builds the plan.
func (m *Model) startPlan() tea.Cmd {
	input := strings.TrimSpace(m.textInput.Value())
	settings := m.runSettings(input)
	tr := newTracker(m.verbose)
	ctx := m.ctx

	return func() tea.Msg {
		if err := settings.CheckInput(input); err != nil {
			return PlanDoneMsg{Err: err}
		}

		// The alt screen owns the terminal; progress reaches the user
		// through the tracker instead of the log.
		p := pipeline.New(settings, zerolog.Nop(), tr.add)

		plan, err := p.Plan(ctx, input)
		if err != nil {
			return PlanDoneMsg{Err: err}
		}
		return PlanDoneMsg{Plan: plan, Pipeline: p, Tracker: tr}
	}
}

// startRun executes the plan in background.
func (m *Model) startRun() tea.Cmd {
	p, plan, ctx := m.pipeline, m.plan, m.ctx

	return func() tea.Msg {
		if p == nil || plan == nil {
			return RunDoneMsg{Err: fmt.Errorf("nothing to run")}
		}
		stats, err := p.Run(ctx, plan)
		return RunDoneMsg{Stats: stats, Err: err}
	}
}

// Run starts the TUI application.
func Run(settings *config.Settings) error {
	p := tea.NewProgram(NewModel(settings), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

package tui

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mpataki/apsweep/internal/models"
	"github.com/mpataki/apsweep/internal/report"
)

// Source is the read side of the orchestrator the browser needs.
type Source interface {
	ListSweeps(limit int) ([]*models.Sweep, error)
	GetSweep(id int64) (*models.Sweep, error)
	GetExecutionsForSweep(sweepID int64) ([]*models.Execution, error)
	DeleteSweep(id int64) error
}

type View int

const (
	ViewSweepList View = iota
	ViewSweepDetail
	ViewLog
)

type App struct {
	source Source

	view          View
	sweeps        []*models.Sweep
	selectedIdx   int
	selectedSweep *models.Sweep
	executions    []*models.Execution
	logView       viewport.Model

	width  int
	height int
	err    error
}

func NewApp(source Source) *App {
	return &App{
		source:  source,
		view:    ViewSweepList,
		logView: viewport.New(80, 20),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadSweeps, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) hasActiveSweeps() bool {
	for _, s := range a.sweeps {
		if !s.State.Terminal() {
			return true
		}
	}
	return false
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.logView.Width = msg.Width
		a.logView.Height = max(msg.Height-4, 1)
		return a, nil

	case sweepsLoadedMsg:
		a.sweeps = msg.sweeps
		a.err = msg.err
		if a.selectedIdx >= len(a.sweeps) {
			a.selectedIdx = max(len(a.sweeps)-1, 0)
		}
		return a, nil

	case tickMsg:
		// Another process may be running a sweep; keep the list fresh
		if a.view == ViewSweepList && a.hasActiveSweeps() {
			return a, tea.Batch(a.loadSweeps, a.tickCmd())
		}
		return a, a.tickCmd()

	case sweepDetailMsg:
		a.selectedSweep = msg.sweep
		a.executions = msg.executions
		a.err = msg.err
		if a.err == nil {
			a.view = ViewSweepDetail
		}
		return a, nil

	case sweepDeletedMsg:
		a.err = msg.err
		return a, a.loadSweeps

	case logLoadedMsg:
		if msg.err != nil {
			a.err = msg.err
			return a, nil
		}
		a.logView.SetContent(msg.content)
		a.logView.GotoBottom()
		a.view = ViewLog
		return a, nil
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewSweepList:
		return a.handleSweepListKey(msg)
	case ViewSweepDetail:
		return a.handleSweepDetailKey(msg)
	case ViewLog:
		return a.handleLogKey(msg)
	}
	return a, nil
}

func (a *App) handleSweepListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.sweeps)-1 {
			a.selectedIdx++
		}

	case "enter":
		if len(a.sweeps) > 0 && a.selectedIdx < len(a.sweeps) {
			return a, a.loadSweepDetail(a.sweeps[a.selectedIdx].ID)
		}

	case "r":
		return a, a.loadSweeps

	case "d":
		if len(a.sweeps) > 0 && a.selectedIdx < len(a.sweeps) {
			return a, a.deleteSweep(a.sweeps[a.selectedIdx].ID)
		}
	}

	return a, nil
}

func (a *App) handleSweepDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewSweepList
		a.selectedSweep = nil
		a.executions = nil

	case "ctrl+c":
		return a, tea.Quit

	case "l":
		if a.selectedSweep != nil {
			return a, a.loadLog(a.selectedSweep.LogPath)
		}
	}

	return a, nil
}

func (a *App) handleLogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewSweepDetail
		return a, nil

	case "ctrl+c":
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.logView, cmd = a.logView.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	switch a.view {
	case ViewSweepList:
		return a.viewSweepList()
	case ViewSweepDetail:
		return a.viewSweepDetail()
	case ViewLog:
		return a.viewLog()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func (a *App) viewSweepList() string {
	s := titleStyle.Render("apsweep") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.sweeps) == 0 {
		s += "No sweeps yet. Run `apsweep <target>` to start one.\n"
	} else {
		s += "Recent Sweeps\n"
		s += "─────────────\n"

		for i, sweep := range a.sweeps {
			line := report.SweepLine(sweep)
			if i == a.selectedIdx {
				line = selectedStyle.Render("▶ " + line)
			} else if sweep.State.Terminal() {
				line = "  " + dimStyle.Render(line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[enter] view  [d] delete  [r] refresh  [q] quit")
	return s
}

func (a *App) viewSweepDetail() string {
	if a.selectedSweep == nil {
		return "No sweep selected"
	}
	sweep := a.selectedSweep

	s := titleStyle.Render(fmt.Sprintf("Sweep #%d: %s", sweep.ID, sweep.Target)) + "  " + report.State(sweep.State) + "\n\n"
	s += dimStyle.Render("Workdir: ") + sweep.WorkDir + "\n"
	s += dimStyle.Render("Log:     ") + sweep.LogPath + "\n"
	if sweep.Error != "" {
		s += dimStyle.Render("Error:   ") + sweep.Error + "\n"
	}
	s += "\nRuns\n────\n"

	if len(a.executions) == 0 {
		s += "(no runs yet)\n"
	} else {
		for _, exec := range a.executions {
			s += "  " + report.ExecutionLine(exec) + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[l] log  [esc] back  [q] quit")
	return s
}

func (a *App) viewLog() string {
	title := "Log"
	if a.selectedSweep != nil {
		title += ": " + a.selectedSweep.LogPath
	}
	return titleStyle.Render(title) + "\n" + a.logView.View() + "\n" + helpStyle.Render("[↑/↓] scroll  [esc] back")
}

// Messages

type sweepsLoadedMsg struct {
	sweeps []*models.Sweep
	err    error
}

type sweepDetailMsg struct {
	sweep      *models.Sweep
	executions []*models.Execution
	err        error
}

type sweepDeletedMsg struct {
	sweepID int64
	err     error
}

type logLoadedMsg struct {
	content string
	err     error
}

// Commands

func (a *App) loadSweeps() tea.Msg {
	sweeps, err := a.source.ListSweeps(50)
	return sweepsLoadedMsg{sweeps: sweeps, err: err}
}

func (a *App) loadSweepDetail(id int64) tea.Cmd {
	return func() tea.Msg {
		sweep, err := a.source.GetSweep(id)
		if err != nil {
			return sweepDetailMsg{err: err}
		}
		execs, err := a.source.GetExecutionsForSweep(id)
		return sweepDetailMsg{sweep: sweep, executions: execs, err: err}
	}
}

func (a *App) deleteSweep(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.source.DeleteSweep(id); err != nil {
			return sweepDeletedMsg{err: err}
		}
		return sweepDeletedMsg{sweepID: id}
	}
}

func (a *App) loadLog(path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			// The next sweep in the same workdir removes the log
			if os.IsNotExist(err) {
				return logLoadedMsg{content: "(log file no longer exists)"}
			}
			return logLoadedMsg{err: err}
		}
		if len(data) == 0 {
			return logLoadedMsg{content: "(empty log)"}
		}
		return logLoadedMsg{content: string(data)}
	}
}

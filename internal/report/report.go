// Package report renders sweep summaries and history for the terminal.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/mpataki/apsweep/internal/models"
	"github.com/mpataki/apsweep/internal/orchestrator"
	"github.com/mpataki/apsweep/internal/workspace"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	runStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

// Summary prints the end-of-sweep report: how many artifacts were generated,
// their names, and where the log is.
func Summary(w io.Writer, s *orchestrator.Summary) {
	if s.State == models.SweepStateAborted {
		fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("Sweep #%d aborted after %d of %d runs", s.SweepID, len(s.Artifacts), len(s.Schedule))))
	} else {
		fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Done running %d tool runs", len(s.Artifacts))))
	}

	fmt.Fprintln(w, labelStyle.Render("Generated files in ")+s.WorkDir)
	for _, name := range s.Artifacts {
		fmt.Fprintf(w, "    %s\n", name)
	}
	for _, spec := range s.NonZero {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("  run %s exited non-zero but produced an artifact", spec)))
	}
	fmt.Fprintln(w, labelStyle.Render("Log file: ")+s.LogPath)
}

// Cleanup prints what the workspace preparer removed.
func Cleanup(w io.Writer, c *workspace.Cleanup, logPath string) {
	fmt.Fprintf(w, "Removed %d generated files\n", len(c.Deleted))
	for _, name := range c.Deleted {
		fmt.Fprintf(w, "    %s\n", name)
	}
	if c.LogRemoved {
		fmt.Fprintf(w, "Removed log file %s\n", logPath)
	}
}

// Schedule prints the effective schedule and, when target is set, the
// artifact name each entry would produce.
func Schedule(w io.Writer, specs []models.RunSpec, ws *workspace.Workspace, target string) {
	for i, spec := range specs {
		line := fmt.Sprintf("%2d. mode=%d concurrency=%d", i+1, spec.Mode, spec.Concurrency)
		if target != "" {
			line += "  -> " + ws.FixedName(target, spec)
		}
		fmt.Fprintln(w, line)
	}
}

func State(state models.SweepState) string {
	switch state {
	case models.SweepStateRunning, models.SweepStatePreparing:
		return runStyle.Render("● " + string(state))
	case models.SweepStateDone:
		return okStyle.Render("✓ done")
	case models.SweepStateAborted:
		return failStyle.Render("✗ aborted")
	default:
		return string(state)
	}
}

// SweepLine is one row of `apsweep list`: id, target, state, artifact count, age.
func SweepLine(s *models.Sweep) string {
	return fmt.Sprintf("#%-4d %s %s  %d files  %s",
		s.ID, runewidth.FillRight(truncate(s.Target, 28), 28), State(s.State), s.ArtifactCount, FormatTimeAgo(s.CreatedAt))
}

// SweepDetail prints a sweep and all its executions.
func SweepDetail(w io.Writer, s *models.Sweep, execs []*models.Execution) {
	fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(fmt.Sprintf("Sweep #%d", s.ID)), State(s.State))
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Target:  "), s.Target)
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Workdir: "), s.WorkDir)
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Log:     "), s.LogPath)
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Token:   "), s.Token)
	if s.Error != "" {
		fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Error:   "), failStyle.Render(s.Error))
	}

	if len(execs) == 0 {
		fmt.Fprintln(w, "\n(no runs)")
		return
	}
	fmt.Fprintln(w, "\nRuns:")
	for _, exec := range execs {
		fmt.Fprintln(w, "  "+ExecutionLine(exec))
	}
}

// ExecutionLine renders e.g. "3. e0/j4  ✓  exit:0  12s  rose_0_4_foo.cpp".
func ExecutionLine(exec *models.Execution) string {
	status := "○"
	switch exec.Status {
	case models.ExecStatusComplete:
		status = okStyle.Render("✓")
	case models.ExecStatusRunning:
		status = runStyle.Render("●")
	case models.ExecStatusFailed:
		status = failStyle.Render("✗")
	}

	line := fmt.Sprintf("%d. %-6s %s", exec.SequenceNum, exec.Spec, status)
	if exec.ExitCode != nil {
		if *exec.ExitCode == 0 {
			line += "  " + labelStyle.Render("exit:0")
		} else {
			line += "  " + failStyle.Render(fmt.Sprintf("exit:%d", *exec.ExitCode))
		}
	}
	if d := exec.Duration(); d > 0 {
		line += "  " + FormatDuration(d)
	}
	if exec.Artifact != "" {
		line += "  " + exec.Artifact
	}
	return line
}

func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

// FormatTimeAgo renders t relative to now for list output.
func FormatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}

// truncate shortens s to at most width terminal cells.
func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "...")
}

package tui

import (
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/apsweep/internal/models"
)

type fakeSource struct {
	sweeps  []*models.Sweep
	execs   map[int64][]*models.Execution
	deleted []int64
}

func (f *fakeSource) ListSweeps(limit int) ([]*models.Sweep, error) { return f.sweeps, nil }

func (f *fakeSource) GetSweep(id int64) (*models.Sweep, error) {
	for _, s := range f.sweeps {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, os.ErrNotExist
}

func (f *fakeSource) GetExecutionsForSweep(id int64) ([]*models.Execution, error) {
	return f.execs[id], nil
}

func (f *fakeSource) DeleteSweep(id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// step applies msg and feeds any produced command's message back once.
func step(t *testing.T, a *App, msg tea.Msg) *App {
	t.Helper()
	model, cmd := a.Update(msg)
	app := model.(*App)
	if cmd != nil {
		if next := cmd(); next != nil {
			if _, isBatch := next.(tea.BatchMsg); !isBatch {
				model, _ = app.Update(next)
				app = model.(*App)
			}
		}
	}
	return app
}

func newSource(t *testing.T) *fakeSource {
	logPath := filepath.Join(t.TempDir(), "auto_run_logs.log")
	require.NoError(t, os.WriteFile(logPath, []byte("child output\n"), 0644))
	code := 0
	return &fakeSource{
		sweeps: []*models.Sweep{
			{ID: 2, Target: "bar.cpp", State: models.SweepStateAborted, LogPath: logPath, Error: "generated artifact not found"},
			{ID: 1, Target: "foo.cpp", State: models.SweepStateDone, LogPath: logPath},
		},
		execs: map[int64][]*models.Execution{
			1: {{SequenceNum: 1, Spec: models.RunSpec{Mode: 0, Concurrency: 1}, Status: models.ExecStatusComplete, ExitCode: &code, Artifact: "rose_0_1_foo.cpp"}},
		},
	}
}

func TestApp_ListDetailLog(t *testing.T) {
	src := newSource(t)
	app := NewApp(src)
	app = step(t, app, app.loadSweeps())

	assert.Contains(t, app.View(), "bar.cpp")
	assert.Contains(t, app.View(), "foo.cpp")

	app = step(t, app, key("down"))
	assert.Equal(t, 1, app.selectedIdx)

	app = step(t, app, key("enter"))
	require.Equal(t, ViewSweepDetail, app.view)
	view := app.View()
	assert.Contains(t, view, "Sweep #1: foo.cpp")
	assert.Contains(t, view, "rose_0_1_foo.cpp")

	app = step(t, app, key("l"))
	require.Equal(t, ViewLog, app.view)
	assert.Contains(t, app.View(), "child output")

	app = step(t, app, key("esc"))
	assert.Equal(t, ViewSweepDetail, app.view)
	app = step(t, app, key("esc"))
	assert.Equal(t, ViewSweepList, app.view)
}

func TestApp_Delete(t *testing.T) {
	src := newSource(t)
	app := NewApp(src)
	app = step(t, app, app.loadSweeps())

	step(t, app, key("d"))
	assert.Equal(t, []int64{2}, src.deleted)
}

func TestApp_MissingLog(t *testing.T) {
	src := newSource(t)
	src.sweeps[0].LogPath = filepath.Join(t.TempDir(), "gone.log")
	app := NewApp(src)
	app = step(t, app, app.loadSweeps())
	app = step(t, app, key("enter"))
	assert.Contains(t, app.View(), "generated artifact not found")

	app = step(t, app, key("l"))
	assert.Contains(t, app.View(), "no longer exists")
}

package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mpataki/apsweep/internal/models"
)

var (
	// ErrArtifactMissing means the tool did not leave its output where expected.
	ErrArtifactMissing = errors.New("generated artifact not found")
	// ErrCleanup means a stale file could not be removed before a sweep.
	ErrCleanup = errors.New("workspace cleanup failed")
)

// Workspace is the directory where the tool writes artifacts and the sweep
// log accumulates.
type Workspace struct {
	Path    string
	Prefix  string
	Ext     string
	LogFile string
}

func New(path, prefix, ext, logFile string) *Workspace {
	return &Workspace{
		Path:    path,
		Prefix:  prefix,
		Ext:     ext,
		LogFile: logFile,
	}
}

func (w *Workspace) LogPath() string {
	return filepath.Join(w.Path, w.LogFile)
}

// GeneratedName is the file the tool writes for target.
func (w *Workspace) GeneratedName(target string) string {
	return w.Prefix + filepath.Base(target)
}

// FixedName is the per-run name: prefix + mode + "_" + concurrency + "_" + basename.
func (w *Workspace) FixedName(target string, spec models.RunSpec) string {
	return w.Prefix + strconv.Itoa(spec.Mode) + "_" + strconv.Itoa(spec.Concurrency) + "_" + filepath.Base(target)
}

// IsGenerated reports whether name carries both the reserved prefix and the
// tool's output extension.
func (w *Workspace) IsGenerated(name string) bool {
	return strings.HasPrefix(name, w.Prefix) && strings.HasSuffix(name, w.Ext)
}

type Cleanup struct {
	Deleted    []string
	LogRemoved bool
}

// Prepare removes stale generated files and the previous log. The first
// failed deletion aborts; files removed before it stay removed.
func (w *Workspace) Prepare() (*Cleanup, error) {
	entries, err := os.ReadDir(w.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrCleanup, w.Path, err)
	}

	var stale []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if w.IsGenerated(entry.Name()) {
			stale = append(stale, entry.Name())
		}
	}
	sort.Strings(stale)

	c := &Cleanup{}
	for _, name := range stale {
		if err := os.Remove(filepath.Join(w.Path, name)); err != nil {
			return c, fmt.Errorf("%w: failed to delete %s: %v", ErrCleanup, name, err)
		}
		c.Deleted = append(c.Deleted, name)
	}

	if err := os.Remove(w.LogPath()); err != nil {
		if !os.IsNotExist(err) {
			return c, fmt.Errorf("%w: failed to delete log file: %v", ErrCleanup, err)
		}
	} else {
		c.LogRemoved = true
	}

	return c, nil
}

// OpenLog opens the shared sweep log for appending.
func (w *Workspace) OpenLog() (*os.File, error) {
	f, err := os.OpenFile(w.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Collect renames the tool's output for target to the per-run name and
// returns that name.
func (w *Workspace) Collect(target string, spec models.RunSpec) (string, error) {
	generated := w.GeneratedName(target)
	fixed := w.FixedName(target, spec)

	src := filepath.Join(w.Path, generated)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s (run %s)", ErrArtifactMissing, generated, spec)
		}
		return "", fmt.Errorf("failed to stat %s: %w", generated, err)
	}

	if err := os.Rename(src, filepath.Join(w.Path, fixed)); err != nil {
		return "", fmt.Errorf("failed to rename %s to %s: %w", generated, fixed, err)
	}
	return fixed, nil
}

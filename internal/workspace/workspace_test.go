package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/apsweep/internal/models"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	return New(t.TempDir(), "rose_", ".cpp", "auto_run_logs.log")
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0644))
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNames(t *testing.T) {
	w := New("/work", "rose_", ".cpp", "log")
	target := "/src/kernels/foo.cpp"

	assert.Equal(t, "rose_foo.cpp", w.GeneratedName(target))
	assert.Equal(t, "rose_0_1_foo.cpp", w.FixedName(target, models.RunSpec{Mode: 0, Concurrency: 1}))
	assert.Equal(t, "rose_1_2_foo.cpp", w.FixedName(target, models.RunSpec{Mode: 1, Concurrency: 2}))
}

func TestPrepare_DeletesOnlyMatchingFiles(t *testing.T) {
	w := newTestWorkspace(t)
	for _, name := range []string{
		"rose_old.cpp",
		"rose_0_1_foo.cpp",
		"rose_notes.txt", // prefix only
		"foo.cpp",        // extension only
		"myrose_x.cpp",   // prefix not at start
		"README.md",
	} {
		touch(t, w.Path, name)
	}
	require.NoError(t, os.Mkdir(filepath.Join(w.Path, "rose_dir.cpp"), 0755))
	touch(t, w.Path, w.LogFile)

	c, err := w.Prepare()
	require.NoError(t, err)

	assert.Equal(t, []string{"rose_0_1_foo.cpp", "rose_old.cpp"}, c.Deleted)
	assert.True(t, c.LogRemoved)
	assert.ElementsMatch(t,
		[]string{"rose_notes.txt", "foo.cpp", "myrose_x.cpp", "README.md", "rose_dir.cpp"},
		listDir(t, w.Path))
}

func TestPrepare_Idempotent(t *testing.T) {
	w := newTestWorkspace(t)
	touch(t, w.Path, "rose_old.cpp")

	first, err := w.Prepare()
	require.NoError(t, err)
	assert.Len(t, first.Deleted, 1)
	assert.False(t, first.LogRemoved)

	second, err := w.Prepare()
	require.NoError(t, err)
	assert.Empty(t, second.Deleted)
	assert.False(t, second.LogRemoved)
}

func TestPrepare_DeletionFailure(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced")
	}
	w := newTestWorkspace(t)
	touch(t, w.Path, "rose_locked.cpp")
	require.NoError(t, os.Chmod(w.Path, 0555))
	t.Cleanup(func() { os.Chmod(w.Path, 0755) })

	_, err := w.Prepare()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCleanup))
}

func TestPrepare_MissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope"), "rose_", ".cpp", "log")
	_, err := w.Prepare()
	assert.ErrorIs(t, err, ErrCleanup)
}

func TestCollect(t *testing.T) {
	w := newTestWorkspace(t)
	spec := models.RunSpec{Mode: 1, Concurrency: 4}

	touch(t, w.Path, "rose_foo.cpp")
	name, err := w.Collect("src/foo.cpp", spec)
	require.NoError(t, err)
	assert.Equal(t, "rose_1_4_foo.cpp", name)

	assert.NoFileExists(t, filepath.Join(w.Path, "rose_foo.cpp"))
	data, err := os.ReadFile(filepath.Join(w.Path, name))
	require.NoError(t, err)
	assert.Equal(t, "rose_foo.cpp", string(data))
}

func TestCollect_Missing(t *testing.T) {
	w := newTestWorkspace(t)
	_, err := w.Collect("foo.cpp", models.RunSpec{Mode: 0, Concurrency: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArtifactMissing)
	assert.Contains(t, err.Error(), "rose_foo.cpp")
}

func TestOpenLog_Appends(t *testing.T) {
	w := newTestWorkspace(t)
	for _, line := range []string{"one\n", "two\n"} {
		f, err := w.OpenLog()
		require.NoError(t, err)
		_, err = f.WriteString(line)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	data, err := os.ReadFile(w.LogPath())
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

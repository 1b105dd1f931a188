package procmeta

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProc lays out a proc-like tree under a temp dir. Each process gets a
// real cwd symlink so the OS filesystem can resolve it.
type fakeProc struct {
	t    *testing.T
	root string
}

func newFakeProc(t *testing.T) *fakeProc {
	t.Helper()
	return &fakeProc{t: t, root: t.TempDir()}
}

func (f *fakeProc) add(pid int, cwd string) string {
	f.t.Helper()
	dir := filepath.Join(f.root, strconv.Itoa(pid))
	require.NoError(f.t, os.MkdirAll(dir, 0o755))
	if cwd != "" {
		require.NoError(f.t, os.Symlink(cwd, filepath.Join(dir, "cwd")))
	}
	return dir
}

func (f *fakeProc) write(pid int, name string, data string) {
	f.t.Helper()
	path := filepath.Join(f.root, strconv.Itoa(pid), name)
	require.NoError(f.t, os.WriteFile(path, []byte(data), 0o644))
}

func (f *fakeProc) reader() *Reader {
	return NewReaderFs(afero.NewOsFs(), f.root)
}

func TestReader_PIDsSortedNumerically(t *testing.T) {
	proc := newFakeProc(t)
	proc.add(100, "/tmp")
	proc.add(9, "/tmp")
	proc.add(1, "/")
	require.NoError(t, os.MkdirAll(filepath.Join(proc.root, "sys"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(proc.root, "uptime"), []byte("1 1\n"), 0o644))

	pids, err := proc.reader().PIDs()

	require.NoError(t, err)
	assert.Equal(t, []int{1, 9, 100}, pids)
}

func TestReader_PIDsMissingRoot(t *testing.T) {
	r := NewReaderFs(afero.NewOsFs(), filepath.Join(t.TempDir(), "missing"))

	_, err := r.PIDs()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestReader_Cwd(t *testing.T) {
	proc := newFakeProc(t)
	proc.add(42, "/mnt/old/a")

	cwd, err := proc.reader().Cwd(42)

	require.NoError(t, err)
	assert.Equal(t, "/mnt/old/a", cwd)
}

func TestReader_CwdUnreadable(t *testing.T) {
	proc := newFakeProc(t)
	proc.add(42, "")

	_, err := proc.reader().Cwd(42)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pid 42")
}

func TestReader_CwdWithoutLinkSupport(t *testing.T) {
	r := NewReaderFs(afero.NewMemMapFs(), "/proc")

	_, err := r.Cwd(1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read links")
}

func TestReader_Metadata(t *testing.T) {
	proc := newFakeProc(t)
	proc.add(7, "/mnt/old/b")
	proc.write(7, "comm", "postgres\n")
	proc.write(7, "cmdline", "postgres\x00-D\x00/mnt/old/b\x00")
	proc.write(7, "environ", "PGDATA=/mnt/old/b\x00LANG=C\x00")
	proc.write(7, "status", "Name:\tpostgres\nUid:\t70\t70\t70\t70\n")

	md, err := proc.reader().Metadata(7)

	require.NoError(t, err)
	assert.Equal(t, 7, md.PID)
	assert.Equal(t, "/mnt/old/b", md.Cwd)
	assert.Equal(t, "postgres", md.Comm)
	assert.Equal(t, 70, md.UID)
	assert.Equal(t, []string{"postgres", "-D", "/mnt/old/b"}, md.Args)
	assert.Equal(t, "postgres -D /mnt/old/b", md.CmdlineFull)
	assert.Equal(t, map[string]string{"PGDATA": "/mnt/old/b", "LANG": "C"}, md.Environ)
}

func TestReader_MetadataBestEffort(t *testing.T) {
	proc := newFakeProc(t)
	proc.add(2, "/")

	md, err := proc.reader().Metadata(2)

	require.NoError(t, err)
	assert.Equal(t, "/", md.Cwd)
	assert.Empty(t, md.Comm)
	assert.Empty(t, md.Args)
	assert.Empty(t, md.Environ)
	assert.Equal(t, -1, md.UID)
}

func TestReader_MetadataRequiresCwd(t *testing.T) {
	proc := newFakeProc(t)
	proc.add(3, "")
	proc.write(3, "comm", "gone\n")

	_, err := proc.reader().Metadata(3)

	require.Error(t, err)
}

package procmeta

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// DefaultRoot is where the proc filesystem is mounted.
const DefaultRoot = "/proc"

// Reader reads the process table from a proc filesystem.
// The filesystem is pluggable so tests can serve a synthetic tree.
type Reader struct {
	fs   afero.Fs
	root string
}

// NewReader creates a Reader over the host's /proc.
func NewReader() *Reader {
	return NewReaderFs(afero.NewOsFs(), DefaultRoot)
}

// NewReaderFs creates a Reader over fs, treating root as the proc mount point.
func NewReaderFs(fs afero.Fs, root string) *Reader {
	return &Reader{fs: fs, root: root}
}

// Root returns the proc mount point this reader uses.
func (r *Reader) Root() string {
	return r.root
}

// PIDs lists every live process in ascending PID order.
// Only a failure to read the proc root itself is reported as an error.
func (r *Reader) PIDs() ([]int, error) {
	entries, err := afero.ReadDir(r.fs, r.root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.root, err)
	}

	pids := make([]int, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	return pids, nil
}

// Cwd resolves the working directory link of pid.
func (r *Reader) Cwd(pid int) (string, error) {
	lr, ok := r.fs.(afero.LinkReader)
	if !ok {
		return "", fmt.Errorf("filesystem %s cannot read links", r.fs.Name())
	}

	target, err := lr.ReadlinkIfPossible(r.path(pid, "cwd"))
	if err != nil {
		return "", fmt.Errorf("reading cwd of pid %d: %w", pid, err)
	}
	return target, nil
}

// Metadata collects everything the selector can look at for pid.
// The cwd link is mandatory; comm, cmdline, environ and status are best
// effort and left empty when unreadable (kernel threads have no cmdline,
// environ needs ptrace access).
func (r *Reader) Metadata(pid int) (*ProcessMetadata, error) {
	cwd, err := r.Cwd(pid)
	if err != nil {
		return nil, err
	}

	md := &ProcessMetadata{
		PID:     pid,
		Cwd:     cwd,
		UID:     -1,
		Environ: map[string]string{},
		Args:    []string{},
	}

	if comm, err := afero.ReadFile(r.fs, r.path(pid, "comm")); err == nil {
		md.Comm = strings.TrimRight(string(comm), "\n")
	}
	if raw, err := afero.ReadFile(r.fs, r.path(pid, "cmdline")); err == nil {
		md.Args, md.CmdlineFull = parseCmdline(splitNul(raw))
	}
	if raw, err := afero.ReadFile(r.fs, r.path(pid, "environ")); err == nil {
		md.Environ = parseEnviron(splitNul(raw))
	}
	if raw, err := afero.ReadFile(r.fs, r.path(pid, "status")); err == nil {
		if uid, ok := parseStatusUID(raw); ok {
			md.UID = uid
		}
	}

	return md, nil
}

func (r *Reader) path(pid int, name string) string {
	return filepath.Join(r.root, strconv.Itoa(pid), name)
}

// parseStatusUID extracts the real UID from a /proc/<pid>/status buffer.
func parseStatusUID(raw []byte) (int, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Uid:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "Uid:"))
		if len(fields) == 0 {
			return 0, false
		}
		uid, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, false
		}
		return uid, true
	}
	return 0, false
}

package replacer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mrzor/cwd-migrate/internal/procmeta"
)

var errNoProcess = errors.New("no such process")

// fakeTable is a synthetic process table. Chdir through a fakeHandle
// updates it, so tests can observe the effect of Run.
type fakeTable struct {
	cwds    map[int]string
	meta    map[int]*procmeta.ProcessMetadata
	listErr error
}

func newTable(cwds map[int]string) *fakeTable {
	return &fakeTable{cwds: cwds, meta: map[int]*procmeta.ProcessMetadata{}}
}

func (f *fakeTable) PIDs() ([]int, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	pids := make([]int, 0, len(f.cwds))
	for pid := range f.cwds {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids, nil
}

func (f *fakeTable) Cwd(pid int) (string, error) {
	cwd, ok := f.cwds[pid]
	if !ok || cwd == "" {
		return "", errNoProcess
	}
	return cwd, nil
}

func (f *fakeTable) Metadata(pid int) (*procmeta.ProcessMetadata, error) {
	cwd, err := f.Cwd(pid)
	if err != nil {
		return nil, err
	}
	if md, ok := f.meta[pid]; ok {
		cp := *md
		cp.Cwd = cwd
		return &cp, nil
	}
	return &procmeta.ProcessMetadata{PID: pid, Cwd: cwd, UID: -1}, nil
}

type fakeAttacher struct {
	table      *fakeTable
	attachErr  map[int]error
	chdirErr   map[int]error
	releaseErr map[int]error

	attached []int
	chdirs   []int
	handles  map[int]*fakeHandle
}

func newAttacher(table *fakeTable) *fakeAttacher {
	return &fakeAttacher{
		table:      table,
		attachErr:  map[int]error{},
		chdirErr:   map[int]error{},
		releaseErr: map[int]error{},
		handles:    map[int]*fakeHandle{},
	}
}

func (a *fakeAttacher) Attach(pid int) (Handle, error) {
	if err := a.attachErr[pid]; err != nil {
		return nil, err
	}
	if _, ok := a.handles[pid]; ok {
		return nil, fmt.Errorf("pid %d already traced", pid)
	}
	a.attached = append(a.attached, pid)
	h := &fakeHandle{pid: pid, a: a}
	a.handles[pid] = h
	return h, nil
}

// releases returns how many times each attached PID was released.
func (a *fakeAttacher) releases() map[int]int {
	out := map[int]int{}
	for pid, h := range a.handles {
		out[pid] = h.released
	}
	return out
}

type fakeHandle struct {
	pid      int
	a        *fakeAttacher
	released int
}

func (h *fakeHandle) PID() int { return h.pid }

func (h *fakeHandle) Chdir(path string) error {
	h.a.chdirs = append(h.a.chdirs, h.pid)
	if err := h.a.chdirErr[h.pid]; err != nil {
		return err
	}
	h.a.table.cwds[h.pid] = path
	return nil
}

func (h *fakeHandle) Release() error {
	h.released++
	return h.a.releaseErr[h.pid]
}

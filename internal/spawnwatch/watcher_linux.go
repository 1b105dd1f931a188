//go:build linux

package spawnwatch

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"github.com/spf13/afero"
)

// Options configures Start.
type Options struct {
	// Fs and TracefsRoots locate the tracepoint format file.
	Fs           afero.Fs
	TracefsRoots []string
	// MaxEntries bounds the spawn map; the oldest entries are evicted first.
	MaxEntries uint32
}

const defaultMaxEntries = 16384

// Watcher records forks until closed.
type Watcher struct {
	spawned  *ebpf.Map
	prog     *ebpf.Program
	forkLink link.Link
}

// Start loads and attaches the fork watcher.
func Start(opts Options) (*Watcher, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.TracefsRoots == nil {
		opts.TracefsRoots = TracefsRoots
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = defaultMaxEntries
	}

	childPID, err := ReadFormat(opts.Fs, opts.TracefsRoots, "sched", "sched_process_fork", "child_pid")
	if err != nil {
		return nil, err
	}
	if childPID.Size != 4 {
		return nil, fmt.Errorf("child_pid is %d bytes, want 4", childPID.Size)
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("removing memlock limit: %w", err)
	}

	w := &Watcher{}

	w.spawned, err = ebpf.NewMap(&ebpf.MapSpec{
		Name:       "spawned",
		Type:       ebpf.LRUHash,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: opts.MaxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("creating spawn map: %w", err)
	}

	w.prog, err = ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         "spawn_watch",
		Type:         ebpf.TracePoint,
		License:      "GPL",
		Instructions: forkProgram(w.spawned.FD(), childPID.Offset),
	})
	if err != nil {
		return nil, w.closeErrorf("loading fork program", err)
	}

	w.forkLink, err = link.Tracepoint("sched", "sched_process_fork", w.prog, nil)
	if err != nil {
		return nil, w.closeErrorf("attaching fork tracepoint", err)
	}

	return w, nil
}

// forkProgram stores spawned[ctx->child_pid] = bpf_ktime_get_ns().
func forkProgram(mapFD, childPIDOffset int) asm.Instructions {
	return asm.Instructions{
		asm.Mov.Reg(asm.R6, asm.R1),

		asm.FnKtimeGetNs.Call(),
		asm.StoreMem(asm.RFP, -16, asm.R0, asm.DWord),

		//nolint:gosec // Tracepoint records are far smaller than 32KiB
		asm.LoadMem(asm.R7, asm.R6, int16(childPIDOffset), asm.Word),
		asm.StoreMem(asm.RFP, -4, asm.R7, asm.Word),

		asm.LoadMapPtr(asm.R1, mapFD),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -4),
		asm.Mov.Reg(asm.R3, asm.RFP),
		asm.Add.Imm(asm.R3, -16),
		asm.Mov.Imm(asm.R4, 0), // BPF_ANY
		asm.FnMapUpdateElem.Call(),

		asm.Mov.Imm(asm.R0, 0),
		asm.Return(),
	}
}

// closeErrorf releases whatever was loaded and returns a formatted error.
func (w *Watcher) closeErrorf(errstr string, e error) error {
	if w.forkLink != nil {
		_ = w.forkLink.Close() //nolint:errcheck // Best-effort cleanup in error path
	}
	if w.prog != nil {
		_ = w.prog.Close() //nolint:errcheck // Best-effort cleanup in error path
	}
	if w.spawned != nil {
		_ = w.spawned.Close() //nolint:errcheck // Best-effort cleanup in error path
	}
	return fmt.Errorf("%s: %w", errstr, e)
}

// Spawned returns every recorded fork, oldest first.
func (w *Watcher) Spawned() ([]Spawn, error) {
	var (
		pid uint32
		ts  uint64
		out []Spawn
	)
	iter := w.spawned.Iterate()
	for iter.Next(&pid, &ts) {
		out = append(out, Spawn{PID: int(pid), Monotonic: ts})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("reading spawn map: %w", err)
	}
	sortSpawns(out)
	return out, nil
}

// Close detaches the program and frees the map.
func (w *Watcher) Close() error {
	var errs []error

	if w.forkLink != nil {
		if err := w.forkLink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing fork link: %w", err))
		}
	}

	if w.prog != nil {
		if err := w.prog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing fork program: %w", err))
		}
	}

	if w.spawned != nil {
		if err := w.spawned.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing spawn map: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %w", errors.Join(errs...))
	}

	return nil
}

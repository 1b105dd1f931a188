// Package discovery enumerates live processes together with their working
// directories and selects the ones located under a detection path.
package discovery

import (
	"fmt"
	"iter"

	"go.uber.org/zap"
)

// ProcessTable is the read-only view of the host's processes.
type ProcessTable interface {
	// PIDs lists every live process. An error means the table itself
	// could not be read.
	PIDs() ([]int, error)
	// Cwd resolves the working directory of one process.
	Cwd(pid int) (string, error)
}

// Snapshot pairs a process with the working directory it had when it was
// observed. It is only meaningful until the filter decision is made.
type Snapshot struct {
	PID int
	Cwd string
}

// EnumerationError reports that the process table could not be listed at all.
type EnumerationError struct {
	Err error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerating processes: %v", e.Err)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}

// LookupError reports that one process's working directory could not be
// resolved (it exited, permission was denied, the link was unreadable).
type LookupError struct {
	PID int
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("resolving cwd of pid %d: %v", e.PID, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Discoverer produces snapshots from a ProcessTable.
type Discoverer struct {
	Table  ProcessTable
	Logger *zap.Logger

	// OnLookupError, if set, is called for every process that is dropped
	// because its working directory could not be resolved.
	OnLookupError func(*LookupError)
}

// Snapshots lists the process table and returns a producer that yields only
// the processes whose working directory resolved, in table order.
// Per-process lookup failures are logged and discarded; only a failure to
// list the table is returned, as an *EnumerationError.
func (d *Discoverer) Snapshots() (iter.Seq[Snapshot], error) {
	pids, err := d.Table.PIDs()
	if err != nil {
		return nil, &EnumerationError{Err: err}
	}

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(yield func(Snapshot) bool) {
		for _, pid := range pids {
			cwd, err := d.Table.Cwd(pid)
			if err != nil {
				lookupErr := &LookupError{PID: pid, Err: err}
				logger.Debug("skipping process", zap.Int("pid", pid), zap.Error(err))
				if d.OnLookupError != nil {
					d.OnLookupError(lookupErr)
				}
				continue
			}
			if !yield(Snapshot{PID: pid, Cwd: cwd}) {
				return
			}
		}
	}, nil
}

// Filter returns a producer yielding the snapshots of seq for which keep
// reports true.
func Filter(seq iter.Seq[Snapshot], keep func(Snapshot) bool) iter.Seq[Snapshot] {
	return func(yield func(Snapshot) bool) {
		for s := range seq {
			if keep(s) && !yield(s) {
				return
			}
		}
	}
}

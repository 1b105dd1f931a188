package spawnwatch

import (
	"errors"
	"sort"
)

// ErrUnsupported is returned where eBPF tracepoints are not available.
var ErrUnsupported = errors.New("spawnwatch: not supported on this platform")

// Spawn is one process forked while the watcher was running.
type Spawn struct {
	PID int
	// Monotonic is the fork time in nanoseconds since boot.
	Monotonic uint64
}

// Straggler is a spawned process still working under the old directory.
type Straggler struct {
	Spawn
	Cwd string
}

// Stragglers returns the spawns whose current working directory still
// satisfies under. Processes that already exited are ignored.
func Stragglers(spawns []Spawn, cwd func(pid int) (string, error), under func(path string) bool) []Straggler {
	var out []Straggler
	for _, s := range spawns {
		dir, err := cwd(s.PID)
		if err != nil {
			continue
		}
		if under(dir) {
			out = append(out, Straggler{Spawn: s, Cwd: dir})
		}
	}
	return out
}

func sortSpawns(spawns []Spawn) {
	sort.Slice(spawns, func(i, j int) bool {
		if spawns[i].Monotonic != spawns[j].Monotonic {
			return spawns[i].Monotonic < spawns[j].Monotonic
		}
		return spawns[i].PID < spawns[j].PID
	})
}

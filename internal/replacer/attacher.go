package replacer

import (
	"github.com/mrzor/cwd-migrate/internal/ptrace"
)

// Handle is exclusive tracing control over one stopped process.
type Handle interface {
	PID() int
	Chdir(path string) error
	Release() error
}

// Attacher acquires tracing control over processes.
type Attacher interface {
	Attach(pid int) (Handle, error)
}

// FromTracer adapts a ptrace.Tracer to the Attacher interface.
func FromTracer(t *ptrace.Tracer) Attacher {
	return tracerAttacher{t: t}
}

type tracerAttacher struct {
	t *ptrace.Tracer
}

func (a tracerAttacher) Attach(pid int) (Handle, error) {
	h, err := a.t.Attach(pid)
	if err != nil {
		return nil, err
	}
	return h, nil
}

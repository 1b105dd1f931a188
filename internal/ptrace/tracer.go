package ptrace

import (
	"errors"
	"runtime"
	"sync"
	"syscall"
)

var (
	// ErrUnsupported is returned when this build cannot inject system calls.
	ErrUnsupported = errors.New("ptrace: syscall injection is not supported on this platform")
	// ErrProcessExited is returned when the tracee dies during an operation.
	ErrProcessExited = errors.New("ptrace: process exited")
	// ErrReleased is returned when a released handle is used.
	ErrReleased = errors.New("ptrace: handle already released")
	// ErrClosed is returned when the tracer has been closed.
	ErrClosed = errors.New("ptrace: tracer closed")
)

// Tracer serializes ptrace requests onto a single OS thread.
type Tracer struct {
	mu     sync.Mutex
	closed bool
	reqs   chan func()
	done   chan struct{}
}

// New starts a tracer thread.
func New() *Tracer {
	t := &Tracer{
		reqs: make(chan func()),
		done: make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *Tracer) loop() {
	// Never unlocked: the thread exits with this goroutine, which detaches
	// whatever it still traces.
	runtime.LockOSThread()
	defer close(t.done)

	for fn := range t.reqs {
		fn()
	}
}

// do runs fn on the tracer thread and waits for its result.
func (t *Tracer) do(fn func() error) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	errc := make(chan error, 1)
	t.reqs <- func() { errc <- fn() }
	t.mu.Unlock()

	return <-errc
}

// Attach stops pid and takes exclusive tracing control over it.
// The returned handle must be released.
func (t *Tracer) Attach(pid int) (*Handle, error) {
	h := &Handle{pid: pid, tracer: t}
	if err := t.do(h.attach); err != nil {
		return nil, err
	}
	return h, nil
}

// Close stops the tracer thread. Handles still attached are detached by the
// kernel when the thread exits; their Release then returns ErrClosed.
func (t *Tracer) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.reqs)
	t.mu.Unlock()

	<-t.done
	return nil
}

// Handle is tracing control over one process.
// It is not safe for concurrent use.
type Handle struct {
	pid      int
	tracer   *Tracer
	pending  []syscall.Signal
	released bool
}

// PID returns the traced process ID.
func (h *Handle) PID() int {
	return h.pid
}

// Chdir makes the tracee change its working directory to path.
func (h *Handle) Chdir(path string) error {
	if h.released {
		return ErrReleased
	}
	return h.tracer.do(func() error {
		return h.chdir(path)
	})
}

// Release detaches from the tracee and lets it run again.
// Releasing twice is a no-op.
func (h *Handle) Release() error {
	if h.released {
		return nil
	}
	h.released = true
	return h.tracer.do(h.detach)
}

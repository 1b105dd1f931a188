//go:build linux

package ptrace

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

func (h *Handle) attach() error {
	if !injectionSupported {
		return ErrUnsupported
	}

	if err := unix.PtraceAttach(h.pid); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("PTRACE_ATTACH pid %d: %w", h.pid, ErrProcessExited)
		}
		return fmt.Errorf("PTRACE_ATTACH pid %d: %w", h.pid, err)
	}

	if err := h.waitStop(unix.SIGSTOP, h.cont); err != nil {
		_ = unix.PtraceDetach(h.pid) //nolint:errcheck // Best-effort cleanup in error path
		return err
	}
	return nil
}

func (h *Handle) detach() error {
	err := unix.PtraceDetach(h.pid)
	if errors.Is(err, unix.ESRCH) {
		// Gone already, nothing left to release.
		return nil
	}
	if err != nil {
		return fmt.Errorf("PTRACE_DETACH pid %d: %w", h.pid, err)
	}

	for _, sig := range h.pending {
		_ = unix.Kill(h.pid, sig) //nolint:errcheck // Best-effort redelivery
	}
	h.pending = nil
	return nil
}

func (h *Handle) chdir(path string) error {
	if err := injectChdir(h, path); err != nil {
		return fmt.Errorf("chdir(%q) in pid %d: %w", path, h.pid, err)
	}
	return nil
}

func (h *Handle) cont() error {
	return unix.PtraceCont(h.pid, 0)
}

func (h *Handle) step() error {
	return unix.PtraceSingleStep(h.pid)
}

// waitStop waits until the tracee stops with want. Any other stop signal is
// remembered for redelivery on detach and the tracee is resumed with resume.
func (h *Handle) waitStop(want syscall.Signal, resume func() error) error {
	for {
		var ws unix.WaitStatus
		if _, err := unix.Wait4(h.pid, &ws, unix.WALL, nil); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.ECHILD) {
				return ErrProcessExited
			}
			return fmt.Errorf("wait4 pid %d: %w", h.pid, err)
		}

		switch {
		case ws.Exited(), ws.Signaled():
			return ErrProcessExited
		case ws.Stopped():
			sig := ws.StopSignal()
			if sig == want {
				return nil
			}
			h.pending = append(h.pending, sig)
			if err := resume(); err != nil {
				return fmt.Errorf("resuming pid %d after %v: %w", h.pid, sig, err)
			}
		}
	}
}

// poke writes data at addr and returns a function restoring what was there.
func (h *Handle) poke(addr uintptr, data []byte) (func() error, error) {
	saved := make([]byte, len(data))
	if _, err := unix.PtracePeekData(h.pid, addr, saved); err != nil {
		return nil, fmt.Errorf("PTRACE_PEEKDATA %#x: %w", addr, err)
	}
	if _, err := unix.PtracePokeData(h.pid, addr, data); err != nil {
		return nil, fmt.Errorf("PTRACE_POKEDATA %#x: %w", addr, err)
	}
	return func() error {
		if _, err := unix.PtracePokeData(h.pid, addr, saved); err != nil {
			return fmt.Errorf("restoring %#x: %w", addr, err)
		}
		return nil
	}, nil
}

// syscallResult converts a raw syscall return register into an error.
func syscallResult(ret uint64) error {
	//nolint:gosec // Register reinterpreted as signed return value
	if v := int64(ret); v < 0 && v > -4096 {
		return syscall.Errno(-v)
	}
	return nil
}

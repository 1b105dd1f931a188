//go:build linux && amd64

package ptrace

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const injectionSupported = true

const redZone = 128

// syscallInsn is the x86-64 "syscall" instruction.
var syscallInsn = []byte{0x0f, 0x05}

func injectChdir(h *Handle, path string) error {
	var saved unix.PtraceRegs
	if err := unix.PtraceGetRegs(h.pid, &saved); err != nil {
		return fmt.Errorf("PTRACE_GETREGS: %w", err)
	}

	arg := append([]byte(path), 0)
	//nolint:gosec // Register values are addresses in the tracee
	addr := (uintptr(saved.Rsp) - redZone - uintptr(len(arg))) &^ 15

	restoreStack, err := h.poke(addr, arg)
	if err != nil {
		return err
	}

	//nolint:gosec // Register values are addresses in the tracee
	entry, restoreText, err := h.syscallEntry(uintptr(saved.Rip))
	if err != nil {
		return errors.Join(err, restoreStack())
	}

	regs := saved
	regs.Rax = unix.SYS_CHDIR
	regs.Rdi = uint64(addr)
	regs.Orig_rax = ^uint64(0)
	regs.Rip = uint64(entry)

	var result unix.PtraceRegs
	stepErr := h.singleSyscall(&regs, &result)

	// Put everything back even when the step failed.
	var restoreErrs []error
	if restoreText != nil {
		restoreErrs = append(restoreErrs, restoreText())
	}
	restoreErrs = append(restoreErrs, restoreStack())
	if err := unix.PtraceSetRegs(h.pid, &saved); err != nil {
		restoreErrs = append(restoreErrs, fmt.Errorf("PTRACE_SETREGS restore: %w", err))
	}
	if err := errors.Join(restoreErrs...); err != nil {
		if errors.Is(stepErr, ErrProcessExited) {
			return stepErr
		}
		return errors.Join(stepErr, err)
	}

	if stepErr != nil {
		return stepErr
	}
	return syscallResult(result.Rax)
}

// syscallEntry returns the address of a syscall instruction to execute.
// A tracee stopped inside a system call has one right before ip; otherwise
// the instruction at ip is patched and a restore function is returned.
func (h *Handle) syscallEntry(ip uintptr) (uintptr, func() error, error) {
	prev := make([]byte, len(syscallInsn))
	if _, err := unix.PtracePeekText(h.pid, ip-uintptr(len(syscallInsn)), prev); err == nil && bytes.Equal(prev, syscallInsn) {
		return ip - uintptr(len(syscallInsn)), nil, nil
	}

	restore, err := h.poke(ip, syscallInsn)
	if err != nil {
		return 0, nil, err
	}
	return ip, restore, nil
}

// singleSyscall loads regs, executes exactly one instruction and stores the
// resulting registers in result.
func (h *Handle) singleSyscall(regs, result *unix.PtraceRegs) error {
	if err := unix.PtraceSetRegs(h.pid, regs); err != nil {
		return fmt.Errorf("PTRACE_SETREGS: %w", err)
	}
	if err := h.step(); err != nil {
		return fmt.Errorf("PTRACE_SINGLESTEP: %w", err)
	}
	if err := h.waitStop(unix.SIGTRAP, h.step); err != nil {
		return err
	}
	if err := unix.PtraceGetRegs(h.pid, result); err != nil {
		return fmt.Errorf("PTRACE_GETREGS result: %w", err)
	}
	return nil
}

// Package ptrace attaches to foreign processes and makes them change their
// own working directory.
//
// # Threading
//
// Linux only accepts ptrace requests for a tracee from the thread that
// attached to it. Tracer therefore owns a goroutine locked to one OS thread
// and runs every attach, injection and detach there. When the Tracer is
// closed that thread exits, and the kernel detaches any tracee it still held.
//
// # Injection (linux/amd64)
//
//  1. PTRACE_ATTACH and wait for the SIGSTOP stop.
//  2. Save the registers.
//  3. Write the NUL-terminated path below the stack red zone.
//  4. Find a syscall instruction: reuse the one just before the instruction
//     pointer when the tracee is blocked in a system call, otherwise patch
//     the bytes at the instruction pointer.
//  5. Single-step with rax = SYS_chdir, rdi = path and orig_rax = -1 so no
//     syscall restart logic applies to the injected call.
//  6. Read the result, restore memory and registers.
//
// Signals that arrive while the tracee is held are suppressed and raised
// again after detach.
//
// Other platforms build, but Attach returns ErrUnsupported.
package ptrace

// Package spawnwatch records processes forked while a migration is in
// progress.
//
// Discovery takes a snapshot of the process table; a child forked from a
// process under the detection path after that snapshot inherits the old
// working directory and is never seen. The watcher attaches a small eBPF
// program to the sched:sched_process_fork tracepoint that stores every new
// child PID with its fork time in an LRU map, so the caller can check those
// children once the run is over.
//
// The program is assembled at runtime with cilium/ebpf/asm. The offset of the
// child_pid field varies between kernels and is read from the tracepoint's
// format file under tracefs.
package spawnwatch

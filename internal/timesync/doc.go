// Package timesync converts kernel monotonic timestamps into wall-clock time.
//
// Timestamps recorded by the spawn watcher come from bpf_ktime_get_ns
// (nanoseconds since boot). Adding them to the boot time from /proc/stat
// gives an absolute time good enough for reporting.
package timesync

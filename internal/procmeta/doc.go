// Package procmeta reads process state from the proc filesystem and keeps a
// per-PID ledger of what happened to each process during a migration.
//
// Reader is the read-only view of the process table:
//   - PIDs() - Enumerate live processes (ascending PID)
//   - Cwd(pid) - Resolve the working directory link
//   - Metadata(pid) - Collect comm, argv, environment and uid
//
// Manager provides command-query separation over the ledger:
//
// Queries (read-only):
//   - Get(pid) - Retrieve metadata
//   - GetIssues(pid) - Retrieve warnings
//   - Migrated(pid) - Whether the working directory was changed
//   - Errors() - Every skip or failure reason, by PID
//   - Summary() - Aggregate outcome buckets
//
// Commands (mutations):
//   - Set(pid, metadata) - Store metadata
//   - SetError(pid, err) - Store a skip or failure reason
//   - AddIssue(pid, issue) - Add a warning
//   - MarkMigrated(pid) - Record a successful working directory change
//   - GetOrCreate(pid) - Atomic get-or-create
//
// Thread-safe with RWMutex for concurrent access.
package procmeta

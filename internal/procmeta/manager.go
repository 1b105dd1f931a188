package procmeta

import (
	"maps"
	"sort"
	"sync"
)

// Manager is the per-run ledger of process outcomes.
// It provides command-query separation for metadata access.
type Manager struct {
	mu             sync.RWMutex
	metadata       map[int]*ProcessMetadata // PID -> process metadata
	metadataErrors map[int]error            // PID -> skip or failure reason
	captureIssues  map[int][]string         // PID -> list of warnings
	migrated       map[int]bool             // PID -> working directory changed
}

// Summary aggregates the ledger into outcome buckets, each sorted by PID.
type Summary struct {
	Migrated []int
	Failed   []int // Recorded error and never migrated
	Warned   []int // Has at least one issue
}

// NewManager creates a new process ledger.
func NewManager() *Manager {
	return &Manager{
		metadata:       make(map[int]*ProcessMetadata),
		metadataErrors: make(map[int]error),
		captureIssues:  make(map[int][]string),
		migrated:       make(map[int]bool),
	}
}

// Get retrieves metadata for a PID (query).
// Returns nil if no metadata exists for this PID.
func (m *Manager) Get(pid int) *ProcessMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata[pid]
}

// GetIssues retrieves the warnings for a PID (query).
// Returns nil if no issues exist for this PID.
func (m *Manager) GetIssues(pid int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.captureIssues[pid]
}

// Migrated reports whether pid had its working directory changed (query).
func (m *Manager) Migrated(pid int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.migrated[pid]
}

// Errors returns a copy of every recorded error, keyed by PID (query).
func (m *Manager) Errors() map[int]error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.metadataErrors)
}

// Summary buckets every known PID by outcome (query).
func (m *Manager) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Summary
	for pid := range m.migrated {
		s.Migrated = append(s.Migrated, pid)
	}
	for pid := range m.metadataErrors {
		if !m.migrated[pid] {
			s.Failed = append(s.Failed, pid)
		}
	}
	for pid, issues := range m.captureIssues {
		if len(issues) > 0 {
			s.Warned = append(s.Warned, pid)
		}
	}
	sort.Ints(s.Migrated)
	sort.Ints(s.Failed)
	sort.Ints(s.Warned)
	return s
}

// Set stores metadata for a PID (command).
// If metadata already exists, it is replaced.
func (m *Manager) Set(pid int, metadata *ProcessMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[pid] = metadata
}

// SetError stores the reason a PID was skipped or failed (command).
func (m *Manager) SetError(pid int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadataErrors[pid] = err
}

// AddIssue adds a warning for a PID (command).
func (m *Manager) AddIssue(pid int, issue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureIssues[pid] = append(m.captureIssues[pid], issue)
}

// MarkMigrated records a successful working directory change (command).
func (m *Manager) MarkMigrated(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.migrated[pid] = true
}

// GetOrCreate retrieves metadata for a PID, creating it if it doesn't exist (command).
// Returns the metadata (existing or newly created).
func (m *Manager) GetOrCreate(pid int) *ProcessMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.metadata[pid] == nil {
		m.metadata[pid] = &ProcessMetadata{
			PID:     pid,
			UID:     -1,
			Environ: make(map[string]string),
		}
	}

	return m.metadata[pid]
}

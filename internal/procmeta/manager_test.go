package procmeta

import (
	"errors"
	"testing"
)

func TestManager_SetAndGet(t *testing.T) {
	m := NewManager()

	metadata := &ProcessMetadata{
		PID:         1234,
		Cwd:         "/mnt/old/work",
		Environ:     map[string]string{"FOO": "bar"},
		Args:        []string{"echo", "hello"},
		CmdlineFull: "echo hello",
	}

	m.Set(1234, metadata)

	got := m.Get(1234)
	if got == nil {
		t.Fatal("Get() returned nil")
	}

	if got.Cwd != "/mnt/old/work" {
		t.Errorf("metadata.Cwd = %q, want /mnt/old/work", got.Cwd)
	}
}

func TestManager_GetNonExistent(t *testing.T) {
	m := NewManager()

	got := m.Get(9999)
	if got != nil {
		t.Error("Expected nil for non-existent PID")
	}
}

func TestManager_SetError(t *testing.T) {
	m := NewManager()

	testErr := errors.New("attach: operation not permitted")
	m.SetError(1234, testErr)

	got := m.Errors()[1234]
	if got == nil {
		t.Fatal("Errors()[1234] is nil")
	}

	if !errors.Is(got, testErr) {
		t.Errorf("Errors()[1234] = %v, want %v", got, testErr)
	}
}

func TestManager_AddIssue(t *testing.T) {
	m := NewManager()

	m.AddIssue(1234, "issue 1")
	m.AddIssue(1234, "issue 2")

	issues := m.GetIssues(1234)
	if len(issues) != 2 {
		t.Errorf("GetIssues() length = %d, want 2", len(issues))
	}

	if issues[0] != "issue 1" || issues[1] != "issue 2" {
		t.Errorf("GetIssues() = %v, want [issue 1, issue 2]", issues)
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager()

	// Should create new metadata
	metadata := m.GetOrCreate(1234)
	if metadata == nil {
		t.Fatal("GetOrCreate() returned nil")
	}

	if metadata.Environ == nil {
		t.Error("Environ map should be initialized")
	}
	if metadata.PID != 1234 {
		t.Errorf("metadata.PID = %d, want 1234", metadata.PID)
	}
	if metadata.UID != -1 {
		t.Errorf("metadata.UID = %d, want -1", metadata.UID)
	}

	// Should return existing metadata
	metadata.Environ["TEST"] = "value"
	metadata2 := m.GetOrCreate(1234)

	if metadata2.Environ["TEST"] != "value" {
		t.Error("GetOrCreate() should return existing metadata")
	}

	// Verify same instance
	if metadata != metadata2 {
		t.Error("GetOrCreate() should return same instance")
	}
}

func TestManager_Concurrent(_ *testing.T) {
	m := NewManager()

	// Test concurrent access
	done := make(chan bool)

	// Writer goroutine
	go func() {
		for i := 0; i < 100; i++ {
			metadata := &ProcessMetadata{
				Environ: map[string]string{"key": "value"},
			}
			m.Set(i, metadata)
			m.AddIssue(i, "issue")
		}
		done <- true
	}()

	// Reader goroutine
	go func() {
		for i := 0; i < 100; i++ {
			_ = m.Get(i)
			_ = m.GetIssues(i)
			_ = m.Summary()
		}
		done <- true
	}()

	// Wait for both goroutines
	<-done
	<-done
}

func TestManager_MarkMigrated(t *testing.T) {
	m := NewManager()

	if m.Migrated(42) {
		t.Fatal("Migrated() = true before MarkMigrated")
	}

	m.MarkMigrated(42)

	if !m.Migrated(42) {
		t.Error("Migrated() = false after MarkMigrated")
	}
}

func TestManager_Summary(t *testing.T) {
	m := NewManager()

	m.MarkMigrated(30)
	m.MarkMigrated(10)
	m.SetError(20, errors.New("attach failed"))
	m.SetError(10, errors.New("late warning turned error"))
	m.AddIssue(40, "still under old path")

	s := m.Summary()

	if len(s.Migrated) != 2 || s.Migrated[0] != 10 || s.Migrated[1] != 30 {
		t.Errorf("Summary().Migrated = %v, want [10 30]", s.Migrated)
	}
	// PID 10 was migrated, so its error does not count as a failure.
	if len(s.Failed) != 1 || s.Failed[0] != 20 {
		t.Errorf("Summary().Failed = %v, want [20]", s.Failed)
	}
	if len(s.Warned) != 1 || s.Warned[0] != 40 {
		t.Errorf("Summary().Warned = %v, want [40]", s.Warned)
	}
}

func TestManager_SummaryEmpty(t *testing.T) {
	s := NewManager().Summary()

	if s.Migrated != nil || s.Failed != nil || s.Warned != nil {
		t.Errorf("Summary() of empty ledger = %+v, want all nil", s)
	}
}

func TestManager_ErrorsIsACopy(t *testing.T) {
	m := NewManager()
	boom := errors.New("boom")
	m.SetError(7, boom)

	errs := m.Errors()
	if len(errs) != 1 || !errors.Is(errs[7], boom) {
		t.Fatalf("Errors() = %v, want {7: boom}", errs)
	}

	delete(errs, 7)
	if m.Errors()[7] == nil {
		t.Error("mutating the returned map changed the ledger")
	}
}

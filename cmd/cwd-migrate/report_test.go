package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mrzor/cwd-migrate/internal/config"
	"github.com/mrzor/cwd-migrate/internal/discovery"
	"github.com/mrzor/cwd-migrate/internal/procmeta"
	"github.com/mrzor/cwd-migrate/internal/replacer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSummarize(t *testing.T) {
	ledger := procmeta.NewManager()
	ledger.MarkMigrated(10)
	ledger.MarkMigrated(11)
	ledger.Set(20, &procmeta.ProcessMetadata{PID: 20, Comm: "nginx"})
	ledger.SetError(20, &replacer.AttachError{PID: 20, Err: errors.New("EPERM")})
	ledger.SetError(21, &replacer.MutationError{PID: 21, Path: "/new", Err: errors.New("ENOENT")})
	ledger.SetError(30, &discovery.LookupError{PID: 30, Err: errors.New("exited")})
	ledger.SetError(31, &replacer.SelectorError{PID: 31, Err: errors.New("bad index")})
	ledger.AddIssue(31, "selector failed")

	r := summarize(ledger)

	assert.Equal(t, []int{10, 11}, r.Migrated)
	assert.Equal(t, []int{20, 21}, r.failedPIDs())
	assert.Equal(t, 2, r.Skipped)
	assert.Equal(t, []int{31}, r.Warned)
	assert.Equal(t, map[int]string{20: "nginx"}, r.Comm)
	assert.Equal(t, map[int][]string{31: {"selector failed"}}, r.Issues)
}

func TestLogReport(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := report{
		Migrated: []int{1},
		Failed:   map[int]error{2: errors.New("boom")},
		Skipped:  5,
		Warned:   []int{3},
		Comm:     map[int]string{2: "redis-server"},
		Issues:   map[int][]string{3: {"thread 4 still under old path"}},
	}

	logReport(zap.New(core), r)

	failed := logs.FilterMessage("process not migrated").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "redis-server", failed[0].ContextMap()["comm"])

	warned := logs.FilterMessage("process has issues").All()
	require.Len(t, warned, 1)
	assert.EqualValues(t, 3, warned[0].ContextMap()["pid"])
	assert.Equal(t, []interface{}{"thread 4 still under old path"}, warned[0].ContextMap()["issues"])

	summary := logs.FilterMessage("migration summary").All()
	require.Len(t, summary, 1)
	fields := summary[0].ContextMap()
	assert.EqualValues(t, 1, fields["migrated"])
	assert.EqualValues(t, 1, fields["failed"])
	assert.EqualValues(t, 5, fields["skipped"])
	assert.EqualValues(t, 1, fields["warned"])
	assert.Equal(t, []interface{}{3}, fields["warned_pids"])
}

type fakeMetadata map[int]string

func (f fakeMetadata) Metadata(pid int) (*procmeta.ProcessMetadata, error) {
	comm, ok := f[pid]
	if !ok {
		return nil, errors.New("gone")
	}
	return &procmeta.ProcessMetadata{PID: pid, Comm: comm}, nil
}

func TestPrintMatches(t *testing.T) {
	var buf bytes.Buffer
	m := config.Migration{From: "/mnt/old", To: "/mnt/new"}

	printMatches(&buf, m, []discovery.Snapshot{{PID: 7, Cwd: "/mnt/old/a"}, {PID: 9, Cwd: "/mnt/old"}}, fakeMetadata{7: "postgres"})

	out := buf.String()
	assert.Contains(t, out, "/mnt/old -> /mnt/new: 2 process(es)")
	assert.Regexp(t, `7\s+postgres\s+/mnt/old/a`, out)
	assert.Regexp(t, `9\s+\?\s+/mnt/old\n`, out)
}

func TestPrintMatches_None(t *testing.T) {
	var buf bytes.Buffer

	printMatches(&buf, config.Migration{From: "/a", To: "/b"}, nil, fakeMetadata{})

	assert.Equal(t, "/a -> /b: 0 process(es)\n", buf.String())
}

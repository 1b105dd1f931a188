package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/mrzor/cwd-migrate/internal/config"
	"github.com/mrzor/cwd-migrate/internal/discovery"
	"github.com/mrzor/cwd-migrate/internal/procmeta"
	"github.com/mrzor/cwd-migrate/internal/replacer"

	"go.uber.org/zap"
)

// report is the outcome of a run, read back from the ledger.
type report struct {
	Migrated []int
	// Failed holds processes that matched but could not be attached or moved.
	Failed map[int]error
	// Skipped counts processes left alone because they could not be
	// inspected or the selector failed on them.
	Skipped int
	Warned  []int
	// Comm names failed processes whose metadata was captured.
	Comm map[int]string
	// Issues holds the warnings recorded against each warned process.
	Issues map[int][]string
}

func summarize(ledger *procmeta.Manager) report {
	s := ledger.Summary()
	r := report{
		Migrated: s.Migrated,
		Failed:   map[int]error{},
		Warned:   s.Warned,
		Comm:     map[int]string{},
		Issues:   map[int][]string{},
	}

	for pid, err := range ledger.Errors() {
		if ledger.Migrated(pid) {
			continue
		}
		var (
			attachErr   *replacer.AttachError
			mutationErr *replacer.MutationError
		)
		if errors.As(err, &attachErr) || errors.As(err, &mutationErr) {
			r.Failed[pid] = err
			if md := ledger.Get(pid); md != nil && md.Comm != "" {
				r.Comm[pid] = md.Comm
			}
			continue
		}
		r.Skipped++
	}
	for _, pid := range r.Warned {
		r.Issues[pid] = ledger.GetIssues(pid)
	}
	return r
}

func (r report) failedPIDs() []int {
	pids := make([]int, 0, len(r.Failed))
	for pid := range r.Failed {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

func logReport(logger *zap.Logger, r report) {
	for _, pid := range r.failedPIDs() {
		fields := []zap.Field{zap.Int("pid", pid), zap.Error(r.Failed[pid])}
		if comm, ok := r.Comm[pid]; ok {
			fields = append(fields, zap.String("comm", comm))
		}
		logger.Warn("process not migrated", fields...)
	}
	for _, pid := range r.Warned {
		logger.Warn("process has issues", zap.Int("pid", pid), zap.Strings("issues", r.Issues[pid]))
	}
	logger.Info("migration summary",
		zap.Int("migrated", len(r.Migrated)),
		zap.Int("failed", len(r.Failed)),
		zap.Int("skipped", r.Skipped),
		zap.Int("warned", len(r.Warned)),
		zap.Ints("migrated_pids", r.Migrated),
		zap.Ints("failed_pids", r.failedPIDs()),
		zap.Ints("warned_pids", r.Warned),
	)
}

type metadataSource interface {
	Metadata(pid int) (*procmeta.ProcessMetadata, error)
}

// printMatches lists the processes a migration would move.
func printMatches(w io.Writer, m config.Migration, matches []discovery.Snapshot, src metadataSource) {
	fmt.Fprintf(w, "%s -> %s: %d process(es)\n", m.From, m.To, len(matches)) //nolint:errcheck // Terminal output

	if len(matches) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tCOMM\tCWD") //nolint:errcheck // Terminal output
	for _, s := range matches {
		comm := "?"
		if md, err := src.Metadata(s.PID); err == nil && md.Comm != "" {
			comm = md.Comm
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.PID, comm, s.Cwd) //nolint:errcheck // Terminal output
	}
	_ = tw.Flush() //nolint:errcheck // Terminal output
}

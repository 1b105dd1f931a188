package replacer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/mrzor/cwd-migrate/internal/discovery"
	"github.com/mrzor/cwd-migrate/internal/procmeta"
	"github.com/mrzor/cwd-migrate/internal/selector"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// ProcessTable is the process view Prepare reads from. Metadata is only
// consulted when a selector is configured.
type ProcessTable interface {
	discovery.ProcessTable
	Metadata(pid int) (*procmeta.ProcessMetadata, error)
}

// Mode controls how Run reacts to a process that cannot be moved.
type Mode int

const (
	// FailFast stops at the first failure. Earlier moves stay applied.
	FailFast Mode = iota
	// BestEffort tries every process and reports all failures together.
	BestEffort
)

func (m Mode) String() string {
	switch m {
	case FailFast:
		return "fail-fast"
	case BestEffort:
		return "best-effort"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Options configures Prepare and Scan.
type Options struct {
	Table    ProcessTable
	Attacher Attacher // unused by Scan

	Logger *zap.Logger
	Ledger *procmeta.Manager
	Tracer trace.Tracer

	// Selector further narrows the matching processes. Nil keeps them all.
	Selector *selector.Selector

	// ExcludePIDs are never touched. Nil means the calling process only;
	// pass an empty slice to exclude nothing.
	ExcludePIDs []int

	Mode Mode
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Ledger == nil {
		o.Ledger = procmeta.NewManager()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("cwd-migrate")
	}
	if o.ExcludePIDs == nil {
		o.ExcludePIDs = []int{os.Getpid()}
	}
	return o
}

// CwdReplacer holds attached processes and the directory they will be moved to.
type CwdReplacer struct {
	handles []Handle
	target  string
	mode    Mode

	logger *zap.Logger
	ledger *procmeta.Manager
	tracer trace.Tracer

	ran    bool
	closed bool
}

// Scan lists the processes whose working directory lies under detectPath and
// that pass the exclusion list and selector. Nothing is attached.
func Scan(ctx context.Context, opts Options, detectPath string) ([]discovery.Snapshot, error) {
	opts = opts.withDefaults()
	_, span := opts.Tracer.Start(ctx, "cwd.scan", trace.WithAttributes(
		attribute.String("cwd.detect_path", detectPath),
	))
	defer span.End()

	matches, err := scan(opts, detectPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("cwd.matched", len(matches)))
	return matches, nil
}

// Prepare attaches to every process under detectPath and returns a replacer
// that will move them to newPath. Only a failure to list the process table is
// returned as an error; per-process failures are logged and recorded in the
// ledger.
func Prepare(ctx context.Context, opts Options, detectPath, newPath string) (*CwdReplacer, error) {
	if opts.Attacher == nil {
		return nil, errors.New("replacer: no attacher configured")
	}
	opts = opts.withDefaults()

	ctx, span := opts.Tracer.Start(ctx, "cwd.prepare", trace.WithAttributes(
		attribute.String("cwd.detect_path", detectPath),
		attribute.String("cwd.new_path", newPath),
	))
	defer span.End()

	matches, err := scan(opts, detectPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	r := &CwdReplacer{
		target: newPath,
		mode:   opts.Mode,
		logger: opts.Logger,
		ledger: opts.Ledger,
		tracer: opts.Tracer,
	}

	for _, s := range matches {
		if h := attach(ctx, opts, s); h != nil {
			r.handles = append(r.handles, h)
		}
	}

	span.SetAttributes(
		attribute.Int("cwd.matched", len(matches)),
		attribute.Int("cwd.attached", len(r.handles)),
	)
	opts.Logger.Info("prepared processes",
		zap.String("detect", detectPath),
		zap.String("target", newPath),
		zap.Int("matched", len(matches)),
		zap.Int("attached", len(r.handles)),
	)

	return r, nil
}

func scan(opts Options, detectPath string) ([]discovery.Snapshot, error) {
	d := &discovery.Discoverer{
		Table:  opts.Table,
		Logger: opts.Logger,
		OnLookupError: func(err *discovery.LookupError) {
			opts.Ledger.SetError(err.PID, err)
		},
	}
	seq, err := d.Snapshots()
	if err != nil {
		return nil, err
	}

	filter := discovery.NewPathFilter(detectPath)
	var matches []discovery.Snapshot
	for s := range discovery.Filter(seq, filter.Match) {
		if slices.Contains(opts.ExcludePIDs, s.PID) {
			opts.Logger.Debug("excluded process", zap.Int("pid", s.PID))
			continue
		}
		if !selected(opts, s) {
			continue
		}
		matches = append(matches, s)
	}
	return matches, nil
}

// selected records s in the ledger and reports whether the selector keeps it.
func selected(opts Options, s discovery.Snapshot) bool {
	if opts.Selector == nil {
		opts.Ledger.GetOrCreate(s.PID).Cwd = s.Cwd
		return true
	}

	md, err := opts.Table.Metadata(s.PID)
	if err != nil {
		lookupErr := &discovery.LookupError{PID: s.PID, Err: err}
		opts.Logger.Debug("skipping process", zap.Int("pid", s.PID), zap.Error(err))
		opts.Ledger.SetError(s.PID, lookupErr)
		return false
	}
	// The selector sees the cwd that matched, even if it moved since.
	md.Cwd = s.Cwd
	opts.Ledger.Set(s.PID, md)

	ok, err := opts.Selector.Match(md)
	if err != nil {
		selErr := &SelectorError{PID: s.PID, Err: err}
		opts.Logger.Warn("selector failed, skipping process",
			zap.Int("pid", s.PID),
			zap.String("selector", opts.Selector.String()),
			zap.Error(err),
		)
		opts.Ledger.SetError(s.PID, selErr)
		opts.Ledger.AddIssue(s.PID, selErr.Error())
		return false
	}
	if !ok {
		opts.Logger.Debug("process not selected", zap.Int("pid", s.PID), zap.String("comm", md.Comm))
	}
	return ok
}

func attach(ctx context.Context, opts Options, s discovery.Snapshot) Handle {
	_, span := opts.Tracer.Start(ctx, "cwd.attach", trace.WithAttributes(
		attribute.Int("process.pid", s.PID),
		attribute.String("cwd.path", s.Cwd),
	))
	defer span.End()

	h, err := opts.Attacher.Attach(s.PID)
	if err != nil {
		attachErr := &AttachError{PID: s.PID, Err: err}
		opts.Logger.Error("failed to attach to process",
			zap.Int("pid", s.PID),
			zap.String("cwd", s.Cwd),
			zap.Error(err),
		)
		opts.Ledger.SetError(s.PID, attachErr)
		span.RecordError(attachErr)
		span.SetStatus(codes.Error, attachErr.Error())
		return nil
	}

	opts.Logger.Debug("attached to process", zap.Int("pid", s.PID), zap.String("cwd", s.Cwd))
	return h
}

// Target returns the directory processes are moved to.
func (r *CwdReplacer) Target() string {
	return r.target
}

// Handles returns the attached processes in discovery order.
func (r *CwdReplacer) Handles() []Handle {
	return slices.Clone(r.handles)
}

// PIDs returns the attached process IDs in discovery order.
func (r *CwdReplacer) PIDs() []int {
	pids := make([]int, len(r.handles))
	for i, h := range r.handles {
		pids[i] = h.PID()
	}
	return pids
}

// Run moves every attached process to the target directory, in discovery
// order. In FailFast mode the first failure is returned as a *MutationError
// and the remaining processes are left untouched. In BestEffort mode every
// process is tried and all failures are joined.
func (r *CwdReplacer) Run(ctx context.Context) error {
	if r.ran {
		return ErrAlreadyRun
	}
	if r.closed {
		return errors.New("replacer: already closed")
	}
	r.ran = true

	ctx, span := r.tracer.Start(ctx, "cwd.run", trace.WithAttributes(
		attribute.String("cwd.new_path", r.target),
		attribute.String("cwd.mode", r.mode.String()),
		attribute.Int("cwd.processes", len(r.handles)),
	))
	defer span.End()

	var errs []error
	for _, h := range r.handles {
		err := r.chdir(ctx, h)
		if err == nil {
			continue
		}
		if r.mode == FailFast {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d processes failed", len(errs), len(r.handles)))
		return err
	}
	return nil
}

func (r *CwdReplacer) chdir(ctx context.Context, h Handle) error {
	pid := h.PID()
	_, span := r.tracer.Start(ctx, "cwd.chdir", trace.WithAttributes(
		attribute.Int("process.pid", pid),
		attribute.String("cwd.new_path", r.target),
	))
	defer span.End()

	if err := h.Chdir(r.target); err != nil {
		mutErr := &MutationError{PID: pid, Path: r.target, Err: err}
		r.logger.Error("failed to change working directory",
			zap.Int("pid", pid),
			zap.String("target", r.target),
			zap.Error(err),
		)
		r.ledger.SetError(pid, mutErr)
		span.RecordError(mutErr)
		span.SetStatus(codes.Error, mutErr.Error())
		return mutErr
	}

	r.ledger.MarkMigrated(pid)
	r.logger.Info("changed working directory", zap.Int("pid", pid), zap.String("target", r.target))
	return nil
}

// Close releases every attached process. Subsequent calls are no-ops.
func (r *CwdReplacer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, h := range r.handles {
		if err := h.Release(); err != nil {
			r.logger.Warn("failed to release process", zap.Int("pid", h.PID()), zap.Error(err))
			errs = append(errs, fmt.Errorf("releasing pid %d: %w", h.PID(), err))
		}
	}
	return errors.Join(errs...)
}

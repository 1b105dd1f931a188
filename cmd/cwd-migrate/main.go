// cwd-migrate moves the working directory of running processes from one
// directory tree to another, typically before the old tree is unmounted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrzor/cwd-migrate/internal/config"
	"github.com/mrzor/cwd-migrate/internal/discovery"
	"github.com/mrzor/cwd-migrate/internal/lock"
	"github.com/mrzor/cwd-migrate/internal/logging"
	"github.com/mrzor/cwd-migrate/internal/otel"
	"github.com/mrzor/cwd-migrate/internal/procmeta"
	"github.com/mrzor/cwd-migrate/internal/ptrace"
	"github.com/mrzor/cwd-migrate/internal/replacer"
	"github.com/mrzor/cwd-migrate/internal/selector"
	"github.com/mrzor/cwd-migrate/internal/spawnwatch"
	"github.com/mrzor/cwd-migrate/internal/timesync"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err) //nolint:errcheck // Nothing left to report to
		os.Exit(1)
	}
}

// job is one migration with its compiled selector.
type job struct {
	config.Migration
	selector *selector.Selector
}

// setupOTEL initializes the OTEL provider and returns a tracer and cleanup function.
func setupOTEL(logger *zap.Logger) (trace.Tracer, func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, err
	}

	versionInfo := fmt.Sprintf("%s (%s)", version, commit)
	tp, err := otel.InitProvider(otelCfg, versionInfo, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			logger.Warn("error shutting down OTEL provider", zap.Error(err))
		}
	}

	return otel.Tracer(tp), cleanup, nil
}

// buildJobs resolves the plan file and compiles every selector, so that a
// typo fails the run before any process is stopped.
func buildJobs(cfg *config.Config, fs afero.Fs) ([]job, error) {
	if cfg.PlanFile != "" {
		plan, err := config.LoadPlan(fs, cfg.PlanFile)
		if err != nil {
			return nil, err
		}
		cfg.Migrations = plan.Migrations
	}

	jobs := make([]job, 0, len(cfg.Migrations))
	for _, m := range cfg.Migrations {
		if !cfg.DryRun {
			if err := config.ValidateTarget(fs, m.To); err != nil {
				return nil, err
			}
		}
		sel, err := selector.New(cfg.SelectorFor(m))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job{Migration: m, selector: sel})
	}
	return jobs, nil
}

// startSpawnWatch starts the fork watcher. Failure only loses the straggler
// report, so it is logged and nil is returned.
func startSpawnWatch(logger *zap.Logger) *spawnwatch.Watcher {
	w, err := spawnwatch.Start(spawnwatch.Options{})
	if err != nil {
		logger.Warn("spawn watching unavailable, processes forked during the run will not be reported", zap.Error(err))
		return nil
	}
	logger.Debug("watching for spawned processes")
	return w
}

// reportStragglers warns about processes forked during the run that still
// work under a detection path.
func reportStragglers(w *spawnwatch.Watcher, jobs []job, reader *procmeta.Reader, logger *zap.Logger) {
	spawns, err := w.Spawned()
	if err != nil {
		logger.Warn("reading spawned processes", zap.Error(err))
		return
	}

	converter, err := timesync.NewConverter()
	if err != nil {
		logger.Warn("creating time converter", zap.Error(err))
		return
	}

	for _, j := range jobs {
		under := func(p string) bool { return discovery.Under(p, j.From) }
		for _, s := range spawnwatch.Stragglers(spawns, reader.Cwd, under) {
			logger.Warn("process spawned during the run is still under the old path",
				zap.Int("pid", s.PID),
				zap.String("cwd", s.Cwd),
				zap.String("detect", j.From),
				zap.Time("spawned_at", converter.MonotonicToWallClock(s.Monotonic)),
			)
		}
	}
}

// ignoreSignals keeps SIGINT and SIGTERM from killing the tool while
// processes are held stopped. The returned function restores them.
func ignoreSignals(logger *zap.Logger) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigCh:
				logger.Warn("ignoring signal until every process is released", zap.Stringer("signal", sig))
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func dryRun(ctx context.Context, jobs []job, opts replacer.Options, reader *procmeta.Reader) error {
	for _, j := range jobs {
		opts.Selector = j.selector
		matches, err := replacer.Scan(ctx, opts, j.From)
		if err != nil {
			return err
		}
		printMatches(os.Stdout, j.Migration, matches, reader)
	}
	return nil
}

func migrate(ctx context.Context, cfg *config.Config, jobs []job, opts replacer.Options, logger *zap.Logger) error {
	tracer := ptrace.New()
	defer func() {
		if err := tracer.Close(); err != nil {
			logger.Warn("closing tracer", zap.Error(err))
		}
	}()
	opts.Attacher = replacer.FromTracer(tracer)
	if cfg.BestEffort {
		opts.Mode = replacer.BestEffort
	}

	restore := ignoreSignals(logger)
	defer restore()

	var chain replacer.Chain
	defer func() {
		if err := chain.Close(); err != nil {
			logger.Warn("releasing processes", zap.Error(err))
		}
	}()

	exclude := []int{os.Getpid()}
	for _, j := range jobs {
		opts.Selector = j.selector
		// A process already held for an earlier migration stays with it.
		opts.ExcludePIDs = exclude
		r, err := replacer.Prepare(ctx, opts, j.From, j.To)
		if err != nil {
			return err
		}
		chain = append(chain, r)
		exclude = append(exclude, r.PIDs()...)
	}

	return chain.Run(ctx)
}

func run() error {
	cfg, err := config.ParseArgs(os.Args, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("cwd-migrate %s (commit: %s, built: %s)\n", version, commit, date)
		return nil
	}

	logger, cleanupLogger, err := logging.New(logging.Config{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	if err != nil {
		return err
	}
	defer cleanupLogger()

	logger.Info("starting cwd-migrate", zap.String("version", version), zap.String("commit", commit))

	jobs, err := buildJobs(cfg, afero.NewOsFs())
	if err != nil {
		return err
	}

	tracer, cleanupOTEL, err := setupOTEL(logger)
	if err != nil {
		return err
	}
	defer cleanupOTEL()

	ctx := context.Background()
	if cfg.TraceID != "" {
		id, hashed := otel.TraceIDFromString(cfg.TraceID)
		if hashed {
			logger.Info("trace ID is not 32 hex characters, using its SHA-256 hash",
				zap.String("trace_id", cfg.TraceID),
				zap.String("hashed", otel.TraceIDString(id)),
			)
		}
		ctx = otel.ContextWithTraceID(ctx, id)
	}

	ctx, span := tracer.Start(ctx, "cwd.migrate", trace.WithAttributes(
		attribute.Int("cwd.migrations", len(jobs)),
		attribute.Bool("cwd.dry_run", cfg.DryRun),
	))
	defer span.End()

	reader := procmeta.NewReader()
	ledger := procmeta.NewManager()
	opts := replacer.Options{
		Table:  reader,
		Logger: logger,
		Ledger: ledger,
		Tracer: tracer,
	}

	if cfg.DryRun {
		return dryRun(ctx, jobs, opts, reader)
	}

	runLock, err := lock.Acquire(cfg.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := runLock.Release(); err != nil {
			logger.Warn("releasing run lock", zap.Error(err))
		}
	}()

	var watcher *spawnwatch.Watcher
	if cfg.WatchSpawns {
		watcher = startSpawnWatch(logger)
	}

	runErr := migrate(ctx, cfg, jobs, opts, logger)

	if watcher != nil {
		reportStragglers(watcher, jobs, reader, logger)
		if err := watcher.Close(); err != nil {
			logger.Warn("closing spawn watcher", zap.Error(err))
		}
	}

	logReport(logger, summarize(ledger))

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	return runErr
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/app"
	"github.com/joseph-ayodele/kpi-extractor/internal/async"
	"github.com/joseph-ayodele/kpi-extractor/internal/common"
	"github.com/joseph-ayodele/kpi-extractor/internal/entity"
	"github.com/joseph-ayodele/kpi-extractor/internal/ingest"
	"github.com/joseph-ayodele/kpi-extractor/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

type summary struct {
	mu         sync.Mutex
	records    []*entity.KpiRecord
	failed     int
	saved      int
	duplicates int
}

type options struct {
	dir     string
	out     string
	workers int
	save    bool
	hidden  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.dir, "dir", "", "directory to process PDFs from (required)")
	flag.StringVar(&opts.out, "out", "", "output XLSX file path (optional, defaults to parent directory)")
	flag.IntVar(&opts.workers, "workers", 4, "concurrent extractions")
	flag.BoolVar(&opts.save, "save", false, "append each record to the configured record store")
	flag.BoolVar(&opts.hidden, "hidden", false, "include hidden files and directories")
	flag.Parse()

	if opts.dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}

	cfg := common.LoadConfig()
	logger := common.NewLogger(os.Stderr, "text", cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, cfg, opts, os.Stdout, logger)
	stop()
	os.Exit(code)
}

// run returns the process exit code. Every component is closed before it returns.
func run(ctx context.Context, cfg *common.Config, opts options, stdout io.Writer, logger *slog.Logger) int {
	if opts.out == "" {
		opts.out = filepath.Join(filepath.Dir(filepath.Clean(opts.dir)), "extracted_kpis.xlsx")
	}
	cfg.Export.Path = opts.out

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	files, stats, err := ingest.ScanDirectory(ctx, opts.dir, !opts.hidden)
	if err != nil {
		logger.Error("scan failed", "dir", opts.dir, "error", err)
		return 1
	}
	logger.Info("scan complete", "dir", opts.dir, "scanned", stats.Scanned, "matched", stats.Matched, "failed", stats.Failed)

	sum := &summary{failed: int(stats.Failed)}
	q := async.NewWorkerQueue(func(ctx context.Context, job async.Job) error {
		return process(ctx, a, sum, job.Path, opts.save)
	}, logger, async.WithWorkers(opts.workers), async.WithProcessTimeout(cfg.LLM.Timeout+time.Minute))

	for _, f := range files {
		if f.Err != "" {
			continue
		}
		if err := q.Enqueue(ctx, async.Job{Path: f.Path, TraceID: uuid.NewString()}); err != nil {
			logger.Warn("enqueue stopped", "error", err)
			break
		}
	}
	q.Shutdown(context.Background())

	// Order rows by file name regardless of completion order.
	records := sum.records
	sort.SliceStable(records, func(i, j int) bool {
		return fileName(records[i]) < fileName(records[j])
	})

	if len(records) > 0 {
		path, err := a.Pipeline.Artifacts.Publish(ctx, records, true)
		if err != nil {
			logger.Error("export failed", "error", err)
			return 1
		}
		logger.Info("export written", "path", path, "rows", len(records))
	}

	fmt.Fprintf(stdout, "extracted=%d failed=%d saved=%d duplicates=%d\n", len(records), sum.failed, sum.saved, sum.duplicates)
	if sum.failed > 0 {
		return 1
	}
	return 0
}

func process(ctx context.Context, a *app.App, sum *summary, path string, save bool) error {
	res, err := a.Pipeline.ExtractFile(ctx, path)
	if err == nil && res.Err != nil {
		err = res.Err
	}
	if err != nil {
		sum.mu.Lock()
		sum.failed++
		sum.mu.Unlock()
		return err
	}

	var outcome repository.AppendOutcome
	var saveErr error
	if save {
		outcome, saveErr = a.Store.Append(ctx, res.Record)
	}

	sum.mu.Lock()
	defer sum.mu.Unlock()
	sum.records = append(sum.records, res.Record)
	switch {
	case !save:
	case saveErr != nil:
		sum.failed++
		return fmt.Errorf("save %s: %w", filepath.Base(path), saveErr)
	case outcome == repository.Duplicate:
		sum.duplicates++
	default:
		sum.saved++
	}
	return nil
}

func fileName(r *entity.KpiRecord) string {
	v, _ := r.Get(constants.FileNameField)
	return v.String()
}

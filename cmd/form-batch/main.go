package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/form-digitizer/constants"
	"github.com/joseph-ayodele/form-digitizer/internal/app"
	"github.com/joseph-ayodele/form-digitizer/internal/async"
	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/ingest"
	"github.com/joseph-ayodele/form-digitizer/internal/pipeline"
	"github.com/joseph-ayodele/form-digitizer/internal/records"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// summary collects the records saved by the queue workers.
type summary struct {
	mu      sync.Mutex
	saved   []*entity.FormView
	failed  int
	partial int
}

func main() {
	var (
		dir        = pflag.String("dir", "", "directory of form scans (required)")
		tplName    = pflag.StringP("template", "t", "", "template the scans are filled on (required)")
		owner      = pflag.String("owner", "local-batch", "owner id for saved records")
		out        = pflag.String("out", "", "output XLSX path (defaults to forms.xlsx next to --dir)")
		watch      = pflag.Bool("watch", false, "keep running and extract scans as they appear")
		skipHidden = pflag.Bool("skip-hidden", true, "ignore dot files and directories")
	)
	pflag.String("db-url", "", "record store DSN (env DB_URL)")
	pflag.String("provider", "", "gemini, openai or offline (env LLM_PROVIDER)")
	pflag.Int("workers", 0, "concurrent extractions (env BATCH_WORKERS)")
	pflag.Parse()

	if *dir == "" || *tplName == "" {
		printError("Error: --dir and --template are required\n")
		pflag.Usage()
		os.Exit(2)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "forms.xlsx")
	}

	v, err := common.NewViper()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(2)
	}
	_ = v.BindPFlag("db_url", pflag.Lookup("db-url"))
	_ = v.BindPFlag("llm_provider", pflag.Lookup("provider"))
	_ = v.BindPFlag("batch_workers", pflag.Lookup("workers"))
	cfg := common.FromViper(v)
	logger := common.NewLogger(os.Stdout, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, true)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	if _, err := a.Registry.Get(*tplName); err != nil {
		logger.Error("unknown template", "template", *tplName, "known", a.Registry.Names())
		os.Exit(2)
	}

	sum := &summary{}
	queue := async.NewExtractQueue(a.Processor, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.JobTimeout),
		async.WithMaxFileBytes(cfg.LLM.MaxImageBytes),
		async.WithResultHandler(saveResult(a.Records, *owner, sum, logger)),
	)

	enqueue := func(path string) {
		if _, err := queue.Enqueue(ctx, async.Job{Path: path, TemplateName: *tplName}); err != nil {
			logger.Warn("failed to enqueue file", "path", path, "error", err)
		}
	}

	if *watch {
		paths, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
			Roots:       []string{*dir},
			InitialScan: true,
			SkipHidden:  *skipHidden,
			Debounce:    500 * time.Millisecond,
			Logger:      logger,
		})
		if err != nil {
			logger.Error("failed to watch directory", "dir", *dir, "error", err)
			os.Exit(1)
		}
		logger.Info("watching for scans", "dir", *dir, "template", *tplName)
		for paths != nil || errs != nil {
			select {
			case p, ok := <-paths:
				if !ok {
					paths = nil
					continue
				}
				enqueue(p)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Warn("watcher error", "error", err)
			}
		}
	} else {
		results, stats, err := ingest.Scan(ctx, *dir, *skipHidden)
		if err != nil {
			logger.Error("failed to scan directory", "error", err)
			os.Exit(1)
		}
		logger.Info("scan complete",
			"scanned", stats.Scanned,
			"matched", stats.Matched,
			"deduplicated", stats.Deduplicated,
			"failed", stats.Failed)
		for _, r := range results {
			if r.Err != "" || r.Deduplicated {
				continue
			}
			enqueue(r.Path)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.JobTimeout+cfg.Server.ShutdownTimeout)
	defer cancel()
	queue.Shutdown(shutdownCtx)

	sum.mu.Lock()
	defer sum.mu.Unlock()
	xlsx, err := a.Exporter.RecordsXLSX(sum.saved)
	if err != nil {
		logger.Error("failed to export records", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		logger.Error("failed to write output file", "path", *out, "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		"saved", len(sum.saved),
		"degraded", sum.partial,
		"failures", sum.failed,
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Records saved: %d\n", len(sum.saved))
	fmt.Printf("- Fallback parses: %d\n", sum.partial)
	fmt.Printf("- Failures: %d\n", sum.failed)
	fmt.Printf("- Output: %s\n", *out)
}

// saveResult stores each successful extraction as a record for owner.
func saveResult(recs *records.Service, owner string, sum *summary, logger *slog.Logger) async.ResultHandler {
	return func(ctx context.Context, job *entity.ExtractJob, res *pipeline.Result) {
		if res == nil {
			sum.mu.Lock()
			sum.failed++
			sum.mu.Unlock()
			return
		}
		view, err := recs.Save(ctx, records.SaveRequest{
			OwnerID:        owner,
			TemplateName:   res.Template,
			SourceFilename: filepath.Base(job.Path),
			Fields:         res.Fields.AsMap(),
		})
		sum.mu.Lock()
		defer sum.mu.Unlock()
		if err != nil {
			sum.failed++
			job.Status = constants.JobStatusFailed
			job.ErrorMessage = err.Error()
			logger.Error("failed to save record", "path", job.Path, "error", err)
			return
		}
		job.Status = constants.JobStatusSaved
		job.RecordID = &view.ID
		if res.Degraded {
			sum.partial++
		}
		sum.saved = append(sum.saved, view)
	}
}

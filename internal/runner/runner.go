package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/acquire"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/autopager"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/browser"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/classify"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/config"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/csvio"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/detect"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/fetcher"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/judge"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/robots"
	"github.com/Priyansh-03/url-pagination-bucket-detection/pkg/types"
)

// Engine owns the batch run: it reads the input table, fans URLs out to a
// fixed pool of workers (one browser each), and persists the ordered result
// table after every completed row.
type Engine struct {
	cfg        config.Config
	logger     *slog.Logger
	classifier *classify.Classifier

	mu    sync.Mutex
	table *csvio.Table
}

// NewEngine wires the classifier stack from configuration.
func NewEngine(cfg config.Config) (*Engine, error) {
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	limiter := judge.NewLimiter(cfg.Judge.MinInterval.Duration)
	aiJudge := judge.New(cfg.Judge, limiter, logger)
	if aiJudge != nil {
		logger.Info("AI judge enabled", "model", cfg.Judge.Model, "min_interval", cfg.Judge.MinInterval.String())
	} else {
		logger.Info("AI judge disabled, heuristics only")
	}

	var robotsAgent *robots.Agent
	if cfg.Robots.Respect {
		httpFetcher := fetcher.New(fetcher.Options{
			UserAgent: cfg.Robots.UserAgent,
			Timeout:   10 * time.Second,
		})
		robotsAgent = robots.NewAgent(cfg.Robots, httpFetcher)
	}

	machine := acquire.New(acquire.ScheduleFromConfig(cfg.Acquire), logger)
	engine := detect.NewEngine(autopager.New(), detect.ThresholdsFromConfig(cfg.Detect), logger)
	classifier := classify.New(machine, engine, aiJudge, robotsAgent, cfg.Judge.SnippetMax, logger)

	return &Engine{
		cfg:        cfg,
		logger:     logger,
		classifier: classifier,
	}, nil
}

// Run executes the batch until every pending row is classified or the
// context is cancelled. Shutdown is cooperative: workers finish the URL they
// hold, release their browser, and exit.
func (e *Engine) Run(ctx context.Context) error {
	table, err := csvio.ReadInput(e.cfg.Input)
	if err != nil {
		return err
	}
	e.table = table

	if !e.cfg.Worker.Reprocess {
		if merged := table.MergeExisting(e.cfg.Output); merged > 0 {
			e.logger.Info("resuming from existing output", "output", e.cfg.Output, "finished_rows", merged)
		}
	}

	tasks := table.Pending(e.cfg.Worker.Reprocess)
	if len(tasks) == 0 {
		e.logger.Info("all rows already classified; use reprocess to force a full run")
		return e.flush()
	}

	workers := e.cfg.Worker.Count
	if workers > len(tasks) {
		workers = len(tasks)
	}
	e.logger.Info("starting classification",
		"pending", len(tasks), "total_rows", len(table.Rows), "workers", workers)

	// Preserve already-finished rows before any worker touches the table.
	if err := e.flush(); err != nil {
		return err
	}

	queue := make(chan types.ClassificationRequest)
	go func() {
		defer close(queue)
		for _, task := range tasks {
			select {
			case queue <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.worker(ctx, id, queue)
		}(i)
	}
	wg.Wait()

	if err := e.flush(); err != nil {
		return err
	}
	e.logger.Info("classification complete", "output", e.cfg.Output)
	return ctx.Err()
}

// worker claims rows until the queue drains or the run is cancelled. The
// browser is created once per worker and released on every exit path.
func (e *Engine) worker(ctx context.Context, id int, queue <-chan types.ClassificationRequest) {
	logger := e.logger.With("worker", id)

	drv, err := browser.NewChrome(context.Background(), browser.Options{
		Headless:     e.cfg.Browser.Headless,
		UserAgent:    e.cfg.Browser.UserAgent,
		WindowWidth:  e.cfg.Browser.WindowWidth,
		WindowHeight: e.cfg.Browser.WindowHeight,
	})
	if err != nil {
		logger.Error("browser startup failed, worker exiting", "error", err)
		return
	}
	defer drv.Close()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping on shutdown")
			return
		case req, ok := <-queue:
			if !ok {
				return
			}
			logger.Info("classifying", "row", req.RowIndex, "url", req.URL)
			row := e.classifier.Classify(ctx, drv, req)
			if err := e.record(row); err != nil {
				logger.Error("persist failed", "row", row.Index, "error", err)
			}
			logger.Info("classified",
				"row", row.Index,
				"flow", strings.ToUpper(row.Flow),
				"elapsed", row.Elapsed.Round(10*time.Millisecond).String())
		}
	}
}

// record writes one result into the shared table and flushes the whole
// ordered table to disk inside a single critical section, so partial
// progress survives a crash and writers never interleave.
func (e *Engine) record(row types.ResultRow) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.table.SetFlow(row.Index, row.Flow)
	return e.table.WriteAtomic(e.cfg.Output)
}

func (e *Engine) flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.WriteAtomic(e.cfg.Output)
}

func buildLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler), nil
}

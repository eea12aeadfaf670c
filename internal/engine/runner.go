package engine

import (
	"ashare-backtester/types"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "ashare-backtester/engine"

// Failure is a job that produced no result.
type Failure struct {
	Index int
	JobID string
	Err   error
}

// Batch holds what a runner call produced. Results and Failures are in job order.
type Batch struct {
	Results  []*Result
	Failures []Failure
}

// collector is the only shared state between concurrent runs.
type collector struct {
	mu       sync.Mutex
	results  map[int]*Result
	failures []Failure
}

func (c *collector) addResult(i int, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[i] = r
}

func (c *collector) addFailure(f Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, f)
}

func (c *collector) batch() *Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := make([]int, 0, len(c.results))
	for i := range c.results {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	b := &Batch{Results: make([]*Result, 0, len(idx))}
	for _, i := range idx {
		b.Results = append(b.Results, c.results[i])
	}
	b.Failures = append([]Failure(nil), c.failures...)
	sort.Slice(b.Failures, func(i, j int) bool { return b.Failures[i].Index < b.Failures[j].Index })
	return b
}

type RunnerConfig struct {
	// Workers bounds concurrent runs; zero means runtime.NumCPU().
	Workers      int
	ShowProgress bool
	Logger       *zap.Logger
}

// Runner fans jobs out over a bounded worker pool.
type Runner struct {
	workers      int
	showProgress bool
	log          *zap.Logger
	progressOut  io.Writer
	backtest     func(ctx context.Context, job Job, log *zap.Logger) (*Result, error)
}

func NewRunner(cfg RunnerConfig) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		workers:      workers,
		showProgress: cfg.ShowProgress,
		log:          log,
		progressOut:  os.Stderr,
		backtest:     Backtest,
	}
}

// Run executes every job and collects results. Input errors, an invalid
// config included, fail only their own job. A consistency fault fails its
// job and cancels the rest of the batch: pending jobs never start and
// running jobs stop at their next bar. The fault is also returned as the
// error. Completed results are always kept.
func (r *Runner) Run(ctx context.Context, jobs []Job) (*Batch, error) {
	col := &collector{results: make(map[int]*Result, len(jobs))}
	bar := r.progress(len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			defer bar.Add(1)
			if err := gctx.Err(); err != nil {
				col.addFailure(Failure{Index: i, JobID: job.Name(), Err: fmt.Errorf("run %s not started: %w", job.Name(), err)})
				return nil
			}
			res, err := r.runJob(gctx, job)
			if err != nil {
				col.addFailure(Failure{Index: i, JobID: job.Name(), Err: err})
				if IsConsistencyFault(err) {
					return err
				}
				return nil
			}
			col.addResult(i, res)
			return nil
		})
	}

	err := g.Wait()
	_ = bar.Finish()
	b := col.batch()
	if err == nil && ctx.Err() != nil && len(b.Failures) > 0 {
		err = ctx.Err()
	}
	r.log.Info("batch finished",
		zap.Int("jobs", len(jobs)),
		zap.Int("results", len(b.Results)),
		zap.Int("failures", len(b.Failures)),
	)
	return b, err
}

func (r *Runner) runJob(ctx context.Context, job Job) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "backtest.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("job", job.Name()),
		attribute.StringSlice("symbols", job.Symbols()),
	)

	res, err := r.backtest(ctx, job, r.log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch {
		case IsConsistencyFault(err):
			r.log.Error("run aborted by consistency fault", zap.String("job", job.Name()), zap.Error(err))
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			r.log.Warn("run cancelled", zap.String("job", job.Name()), zap.Error(err))
		default:
			r.log.Warn("run failed", zap.String("job", job.Name()), zap.Error(err))
		}
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("fills", len(res.Fills)),
		attribute.String("final_equity", res.FinalEquity().String()),
	)
	r.log.Info("run finished",
		zap.String("job", job.Name()),
		zap.Int("fills", len(res.Fills)),
		zap.Stringer("final_equity", res.FinalEquity()),
	)
	return res, nil
}

func (r *Runner) progress(total int) *progressbar.ProgressBar {
	if !r.showProgress {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.progressOut),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// Cross builds one single-feed job per (symbol, strategy) pair, ordered by
// symbol then strategy name. Strategies keep their state in the value they
// return from Decide, so one Strategy can serve several jobs.
func Cross(cfg RunConfig, bars map[string]types.BarSeries, strategies ...Strategy) []Job {
	symbols := make([]string, 0, len(bars))
	for symbol := range bars {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	ordered := append([]Strategy(nil), strategies...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Name() < ordered[j].Name() })

	jobs := make([]Job, 0, len(symbols)*len(ordered))
	for _, symbol := range symbols {
		for _, s := range ordered {
			jobs = append(jobs, Job{
				ID:     symbol + "/" + s.Name(),
				Feeds:  []Feed{{Symbol: symbol, Strategy: s, Bars: bars[symbol]}},
				Config: cfg,
			})
		}
	}
	return jobs
}

// Portfolio builds one job in which every (symbol, strategy) pair trades
// against a single cash balance.
func Portfolio(cfg RunConfig, bars map[string]types.BarSeries, strategies ...Strategy) Job {
	crossed := Cross(cfg, bars, strategies...)
	feeds := make([]Feed, 0, len(crossed))
	for _, j := range crossed {
		feeds = append(feeds, j.Feeds...)
	}
	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	return Job{
		ID:     "portfolio/" + strings.Join(names, "+"),
		Feeds:  feeds,
		Config: cfg,
	}
}

// Unloaded builds one job per (symbol, strategy) pair for symbols whose bars
// failed to load, in the same order as Cross. Each job fails with its load
// error, so the batch reports it next to the runs that did load.
func Unloaded(cfg RunConfig, failed map[string]error, strategies ...Strategy) []Job {
	symbols := make([]string, 0, len(failed))
	for symbol := range failed {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	ordered := append([]Strategy(nil), strategies...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Name() < ordered[j].Name() })

	jobs := make([]Job, 0, len(symbols)*len(ordered))
	for _, symbol := range symbols {
		for _, s := range ordered {
			jobs = append(jobs, Job{
				ID:     symbol + "/" + s.Name(),
				Feeds:  []Feed{{Symbol: symbol, Strategy: s, Err: failed[symbol]}},
				Config: cfg,
			})
		}
	}
	return jobs
}

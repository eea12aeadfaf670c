package main

import (
	"ashare-backtester/internal/config"
	"ashare-backtester/internal/engine"
	"ashare-backtester/internal/logger"
	"ashare-backtester/internal/repository"
	"ashare-backtester/strategies"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := cli.NewApp()
	app.Name = "backtester"
	app.Usage = "replay daily A-share bars through long-only strategies under T+1 settlement"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "config.yaml",
			Usage:   "path to the batch config file",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "directory for result CSV files, overrides output_dir",
		},
		&cli.BoolFlag{
			Name:  "progress",
			Value: true,
			Usage: "show a progress bar while runs execute",
		},
		&cli.BoolFlag{
			Name:  "no-files",
			Usage: "print reports only, skip writing CSV files",
		},
	}
	app.Action = runBatch
	app.Commands = []*cli.Command{
		{
			Name:  "strategies",
			Usage: "list the built-in strategies",
			Action: func(c *cli.Context) error {
				for _, name := range strategies.Names() {
					fmt.Fprintln(c.App.Writer, name)
				}
				return nil
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func runBatch(c *cli.Context) error {
	_ = godotenv.Load()

	logCfg := logger.LoadConfigFromEnv()
	lg, err := logger.New(logCfg)
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()

	ctx := c.Context
	shutdown, err := logger.InitTracing(ctx, logCfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if out := c.String("out"); out != "" {
		cfg.OutputDir = out
	}

	src, closeSrc, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSrc()

	feedCfg, err := cfg.DataFeed()
	if err != nil {
		return err
	}
	start := time.Now()
	bars, failed, err := engine.LoadBars(ctx, src, feedCfg)
	if err != nil {
		return err
	}
	for symbol, ferr := range failed {
		lg.Warn("bars not loaded", zap.String("symbol", symbol), zap.Error(ferr))
	}
	lg.Info("bars loaded",
		zap.Int("symbols", len(bars)),
		zap.Int("failed", len(failed)),
		zap.Duration("took", time.Since(start)),
	)

	strats := make([]engine.Strategy, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		s, err := strategies.New(sc.Name, sc.Params)
		if err != nil {
			return err
		}
		strats = append(strats, s)
	}

	var jobs []engine.Job
	switch {
	case len(bars) == 0:
	case cfg.Run.SharedCash:
		jobs = []engine.Job{engine.Portfolio(cfg.RunConfig(), bars, strats...)}
	default:
		jobs = engine.Cross(cfg.RunConfig(), bars, strats...)
	}
	jobs = append(jobs, engine.Unloaded(cfg.RunConfig(), failed, strats...)...)

	runner := engine.NewRunner(engine.RunnerConfig{
		Workers:      cfg.Workers,
		ShowProgress: c.Bool("progress"),
		Logger:       lg,
	})
	batch, runErr := runner.Run(ctx, jobs)
	if batch == nil {
		return runErr
	}

	riskFree := decimal.NewFromFloat(cfg.RiskFree)
	for _, res := range batch.Results {
		engine.PrintReport(c.App.Writer, engine.GenerateReport(res, riskFree))
		if c.Bool("no-files") {
			continue
		}
		dir, err := engine.WriteResultFiles(cfg.OutputDir, res)
		if err != nil {
			return err
		}
		lg.Info("result written", zap.String("run", res.Name), zap.String("dir", dir), zap.Stringer("id", res.ID))
	}
	for _, f := range batch.Failures {
		lg.Warn("run failed", zap.String("run", f.JobID), zap.Error(f.Err))
	}

	if runErr != nil {
		return runErr
	}
	if len(batch.Failures) > 0 {
		return fmt.Errorf("%d of %d runs failed", len(batch.Failures), len(jobs))
	}
	return nil
}

func openSource(ctx context.Context, cfg *config.Config) (engine.BarSource, func(), error) {
	switch cfg.Data.Source {
	case config.SourcePostgres:
		db, err := repository.NewDatabase(ctx, cfg.Data.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		return db, db.Close, nil
	case config.SourceCSV:
		return repository.NewCSVSource(cfg.Data.Dir), func() {}, nil
	}
	return nil, nil, errors.New("unknown data source " + cfg.Data.Source)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"noiseband/internal/app"
	nbcfg "noiseband/internal/config"
	"noiseband/internal/data"
	"noiseband/internal/logger"
	"noiseband/internal/server"
)

const usage = `usage: noiseband [-config path] <command> [options]

commands:
  fetch    pull bars from a remote source into the local cache
  import   load bars from a CSV file into the local cache
  bounds   compute the volatility bound table from cached bars
  run      backtest a strategy profile over cached bars
  serve    start the HTTP API
`

func main() {
	cfgPath := flag.String("config", "", "config file path (default $NOISEBAND_CONFIG or configs/config.yaml)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("opening log file failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)

	cmd := flag.Arg(0)
	args := flag.Args()[1:]
	ctx := context.Background()

	switch cmd {
	case "fetch":
		err = cmdFetch(ctx, cfg, args)
	case "import":
		err = cmdImport(ctx, cfg, args)
	case "bounds":
		err = cmdBounds(ctx, cfg, args)
	case "run":
		err = cmdRun(ctx, cfg, args)
	case "serve":
		err = cmdServe(cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func loadConfig(path string) (*nbcfg.Config, error) {
	if path == "" {
		path = os.Getenv("NOISEBAND_CONFIG")
	}
	if path == "" {
		path = "configs/config.yaml"
		if _, err := os.Stat(path); err != nil {
			logger.Warnf("no config file found, using built-in defaults")
			return nbcfg.Default(), nil
		}
	}
	return nbcfg.Load(path)
}

// components wires the cache, fetch service, and runner from config.
func components(cfg *nbcfg.Config) (*data.Store, *data.Service, *app.Runner, error) {
	store, err := data.NewStore(cfg.Data.CacheRoot)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening bar cache: %w", err)
	}
	svc, err := data.NewService(data.ServiceConfig{
		Store: store,
		Sources: map[string]data.Source{
			"yahoo": data.NewYahooSource(cfg.Data.ProxyURL),
		},
		DefaultSource:   cfg.Data.Source,
		RateLimitPerMin: cfg.Data.RateLimitPerMin,
		MaxConcurrent:   cfg.Data.MaxConcurrent,
	})
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	runner := app.NewRunner(cfg, store, cfg.Data.MaxConcurrent)
	return store, svc, runner, nil
}

func cmdFetch(ctx context.Context, cfg *nbcfg.Config, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	symbol := fs.String("symbol", cfg.Data.Symbol, "instrument symbol")
	interval := fs.String("interval", cfg.Data.Interval, "bar interval, e.g. 30m")
	rng := fs.String("range", cfg.Data.Range, "lookback range, e.g. 60d")
	source := fs.String("source", "", "data source name")
	start := fs.Int64("start", 0, "start unix timestamp (overrides -range)")
	end := fs.Int64("end", 0, "end unix timestamp")
	fs.Parse(args)

	store, svc, _, err := components(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := svc.FetchSync(ctx, *source, data.FetchRequest{
		Symbol:   *symbol,
		Interval: *interval,
		Range:    *rng,
		Start:    *start,
		End:      *end,
	})
	if err != nil {
		return err
	}
	logger.Infof("cached %d bars for %s@%s", n, *symbol, *interval)
	return nil
}

func cmdImport(ctx context.Context, cfg *nbcfg.Config, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("file", "", "CSV file with time,open,high,low,close columns")
	symbol := fs.String("symbol", cfg.Data.Symbol, "instrument symbol")
	interval := fs.String("interval", cfg.Data.Interval, "bar interval")
	fs.Parse(args)
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	bars, dropped, err := data.ReadBarsCSV(*file)
	if err != nil {
		return err
	}
	if dropped > 0 {
		logger.Warnf("dropped %d malformed rows from %s", dropped, *file)
	}
	store, _, _, err := components(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.InsertBars(ctx, *symbol, *interval, bars)
	if err != nil {
		return err
	}
	logger.Infof("imported %d bars for %s@%s", n, *symbol, *interval)
	return nil
}

func cmdBounds(ctx context.Context, cfg *nbcfg.Config, args []string) error {
	fs := flag.NewFlagSet("bounds", flag.ExitOnError)
	symbol := fs.String("symbol", cfg.Data.Symbol, "instrument symbol")
	interval := fs.String("interval", cfg.Data.Interval, "bar interval")
	mode := fs.String("mode", "daily", "daily or intraday")
	out := fs.String("out", "", "write the table to this CSV file")
	fs.Parse(args)

	store, _, runner, err := components(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	switch *mode {
	case "daily":
		table, report, err := runner.ComputeDailyBounds(ctx, *symbol, *interval)
		if err != nil {
			return err
		}
		logger.Infof("daily bounds: %d emitted, %d skipped of %d candidate days",
			report.Emitted, report.Skipped, report.Candidates)
		for _, b := range table {
			logger.Infof("%s sigma=%.6f upper=%.4f lower=%.4f",
				b.Date.Format("2006-01-02"), b.Sigma, b.Upper, b.Lower)
		}
		if *out != "" {
			return data.WriteDailyBoundsCSV(*out, table)
		}
	case "intraday":
		table, report, err := runner.ComputeIntradayBounds(ctx, *symbol, *interval)
		if err != nil {
			return err
		}
		logger.Infof("intraday bounds: %d emitted, %d skipped of %d candidate buckets",
			report.Emitted, report.Skipped, report.Candidates)
		for _, b := range table {
			logger.Infof("%s sigma=%.6f upper=%.4f lower=%.4f",
				b.TimeOfDay, b.Sigma, b.Upper, b.Lower)
		}
		if *out != "" {
			return data.WriteBucketBoundsCSV(*out, table)
		}
	default:
		return fmt.Errorf("unknown mode: %s", *mode)
	}
	return nil
}

func cmdRun(ctx context.Context, cfg *nbcfg.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	symbol := fs.String("symbol", cfg.Data.Symbol, "instrument symbol")
	interval := fs.String("interval", cfg.Data.Interval, "bar interval")
	profile := fs.String("profile", "baseline", "strategy profile name")
	start := fs.Int64("start", 0, "start unix timestamp")
	end := fs.Int64("end", 0, "end unix timestamp")
	fs.Parse(args)

	store, _, runner, err := components(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := runner.RunSync(ctx, app.RunParams{
		Symbol:   *symbol,
		Interval: *interval,
		Profile:  *profile,
		Start:    *start,
		End:      *end,
	})
	if err != nil {
		return err
	}
	printRun(run)
	return nil
}

func printRun(run app.Run) {
	res, perf := run.Result, run.Performance
	if res == nil || perf == nil {
		logger.Warnf("run %s finished without results", run.ID)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "run %s  %s@%s  profile=%s\n", run.ID, run.Params.Symbol, run.Params.Interval, run.Params.Profile)
	fmt.Fprintf(&b, "  bound days: %d emitted, %d skipped; %d bar-days without bounds\n",
		run.BoundsUsed.Emitted, run.BoundsUsed.Skipped, run.DroppedDays)
	fmt.Fprintf(&b, "  initial AUM: %.2f  final AUM: %.2f  return: %.2f%%\n",
		res.InitialAUM, res.FinalAUM, perf.TotalReturnPct)
	fmt.Fprintf(&b, "  trades: %d  win rate: %.1f%%  profit factor: %.2f\n",
		perf.NumTrades, perf.WinRate, perf.ProfitFactor)
	fmt.Fprintf(&b, "  max drawdown: %.2f%%  avg pnl: %.2f  best: %.2f  worst: %.2f\n",
		perf.MaxDrawdownPct, perf.AvgPnL, perf.BestTrade, perf.WorstTrade)
	fmt.Fprintf(&b, "  stop-loss exits: %d", perf.StopLossExits)
	logger.InfoBlock(b.String())
}

func cmdServe(cfg *nbcfg.Config) error {
	store, svc, runner, err := components(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	svc.SetContext(ctx)
	runner.SetContext(ctx)

	srv, err := server.New(server.Config{
		Addr:   cfg.Server.Addr,
		Svc:    svc,
		Store:  store,
		Runner: runner,
	})
	if err != nil {
		return err
	}
	logger.Infof("HTTP API listening on %s", cfg.Server.Addr)
	return srv.Start(ctx)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

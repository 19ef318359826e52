// Package main is the Frontier command line tool. It optimizes a ticker
// universe once and writes the report:
//
//	frontier [flags] [tickers] [window_size] [total_portfolio_value] [result_file]
//
// Prices come from the sqlite store, or from -prices when given. -import
// loads a wide CSV of closes into the store first.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/report"
	"github.com/aristath/frontier/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	importPath := flag.String("import", "", "CSV of closes (date,TICKER,...) to upsert into the price store before running")
	importOnly := flag.Bool("import-only", false, "stop after -import")
	pricesPath := flag.String("prices", "", "read prices from this CSV instead of the store")
	noStore := flag.Bool("no-store", false, "do not record the run in the price store")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: %s [flags] [tickers] [window_size] [total_portfolio_value] [result_file]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *pricesPath != "" {
		cfg.PriceCSVPath = *pricesPath
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Args(), *importPath, *importOnly, !*noStore, log); err != nil {
		log.Error().Err(err).Msg("Frontier failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, importPath string, importOnly, store bool, log zerolog.Logger) error {
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}

	// No background jobs in one-shot mode
	cfg.Schedule = config.ScheduleConfig{}
	cfg.Backup = config.BackupConfig{}

	container, err := di.Wire(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to wire dependencies: %w", err)
	}
	defer container.Close()

	if importPath != "" {
		if err := importPrices(ctx, container, importPath, log); err != nil {
			return err
		}
		if importOnly {
			return nil
		}
	}

	parsed, err := parseArgs(args, cfg.Run)
	if err != nil {
		return err
	}

	rep, err := container.OptimizerService.Run(ctx, parsed.Input)
	if err != nil {
		return err
	}

	out, err := report.NewSink(ctx, parsed.ResultFile, di.S3Options(cfg), log)
	if err != nil {
		return err
	}
	sinks := report.MultiSink{out}
	if store {
		sinks = append(sinks, container.RunRepo)
	}

	return sinks.Write(ctx, rep)
}

// importPrices cleans the CSV with the price validator and upserts it.
func importPrices(ctx context.Context, container *di.Container, path string, log zerolog.Logger) error {
	history, err := universe.NewCSVPriceSource(path, log).Load()
	if err != nil {
		return err
	}

	cleaned, fixes := container.PriceValidator.Clean(history)
	if err := container.HistoryDBClient.SaveHistory(ctx, cleaned); err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}

	log.Info().
		Str("path", path).
		Strs("tickers", cleaned.Tickers).
		Int("dates", cleaned.Len()).
		Int("interpolated", len(fixes)).
		Msg("Prices imported")

	return nil
}

// Command reconcile runs the daily inventory reconciliation from the
// command line, for cron jobs and one-off fixes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"restopos/backend/internal/aggregation"
	"restopos/backend/internal/config"
	pgstore "restopos/backend/internal/store/postgres"
)

func main() {
	var (
		dates    = flag.String("date", "", "comma-separated YYYY-MM-DD dates to reconcile (default: the open days)")
		allDates = flag.Bool("all", false, "reconcile every recorded date")
		fixStart = flag.Bool("fix-start", false, "realign start quantities with the previous day's end")
		fixEnd   = flag.Bool("fix-end", false, "realign open-day end quantities with live stock")
		backfill = flag.Bool("backfill", false, "create missing records for products with movements")
		dryRun   = flag.Bool("dry-run", false, "report changes without persisting them")
		closeDay = flag.String("close", "", "close the given business day after reconciling")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	repo, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres unavailable")
	}
	defer func() { _ = repo.Close() }()

	opts := aggregation.Options{
		AllDates: *allDates,
		FixStart: *fixStart,
		FixEnd:   *fixEnd,
		Backfill: *backfill,
		DryRun:   *dryRun,
	}
	if *dates != "" {
		for _, d := range strings.Split(*dates, ",") {
			if trimmed := strings.TrimSpace(d); trimmed != "" {
				opts.Dates = append(opts.Dates, trimmed)
			}
		}
	}
	engine := aggregation.NewEngine(repo)

	// With no -date and no -all the engine reconciles the open days.
	report, err := engine.Run(ctx, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("reconciliation failed")
	}
	for _, dateResult := range report.Dates {
		for _, integrityErr := range dateResult.Integrity {
			log.Error().Str("date", dateResult.Date).Msg(integrityErr.Error())
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		log.Fatal().Err(err).Msg("report encoding failed")
	}
	if report.Changed() && *dryRun {
		log.Info().Msg("dry run: differences found, nothing persisted")
	}

	if *closeDay != "" {
		if *dryRun {
			log.Fatal().Msg("-close cannot be combined with -dry-run")
		}
		if err := engine.CloseBusinessDay(ctx, *closeDay); err != nil {
			log.Fatal().Err(err).Str("date", *closeDay).Msg("close failed")
		}
	}
}

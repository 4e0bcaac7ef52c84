// Backfill runs the extract over an explicit crawl window, for re-pulling a
// date range after a vendor outage or a transform fix.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/icefdata/pear-pipeline/internal/classify"
	"github.com/icefdata/pear-pipeline/internal/config"
	"github.com/icefdata/pear-pipeline/internal/gcs"
	"github.com/icefdata/pear-pipeline/internal/logger"
	"github.com/icefdata/pear-pipeline/internal/pear"
	"github.com/icefdata/pear-pipeline/internal/pipeline"
	"github.com/icefdata/pear-pipeline/internal/roster"
	"github.com/icefdata/pear-pipeline/internal/secrets"
	"github.com/icefdata/pear-pipeline/internal/transform"
	"github.com/icefdata/pear-pipeline/internal/warehouse"
)

func main() {
	log := logger.New()

	envFile := flag.String("env-file", "", "Optional .env file to load before reading the environment")
	startStr := flag.String("start", "", "Crawl window start, YYYY-MM-DD (required)")
	endStr := flag.String("end", "", "Crawl window end, YYYY-MM-DD (default: today)")
	dryRun := flag.Bool("dry-run", false, "Transform and report but do not publish")
	flag.Parse()

	if *startStr == "" {
		log.Fatal().Msg("Error: -start is required")
	}
	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -start date")
	}
	end := time.Now()
	if *endStr != "" {
		end, err = time.Parse("2006-01-02", *endStr)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -end date")
		}
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Hour)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	password, err := secrets.AccessSecretVersion(ctx, cfg.ProjectID, cfg.PasswordSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Fetching vendor credential failed")
	}

	wh, err := warehouse.New(ctx, cfg.ProjectID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Creating warehouse client failed")
	}
	defer wh.Close()

	sink, err := gcs.NewSink(ctx, cfg.Bucket, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Creating storage sink failed")
	}
	defer sink.Close()

	titles, err := transform.NewTitleFilter(cfg.TitleInclude, cfg.TitleExclude)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid title filter pattern")
	}

	deps := &pipeline.Deps{
		Vendor:     pear.NewClient(cfg.VendorBaseURL, cfg.Username, password, cfg.RequestDelay, log),
		Warehouse:  wh,
		Roster:     roster.NewService(wh, 6*time.Hour, log),
		Sink:       sink,
		Classifier: classify.New(classify.DefaultConfig()),
		Titles:     titles,
		Log:        log,
	}

	opts := pipeline.Options{
		Year:                   cfg.Year,
		CrawlStart:             start,
		CrawlEnd:               end,
		ExceptionAssignmentIDs: cfg.ExceptionAssignmentIDs,
		DryRun:                 *dryRun,
	}

	log.Info().Str("start", *startStr).Str("end", end.Format("2006-01-02")).Msg("Starting backfill")
	if _, err := pipeline.Run(ctx, deps, opts); err != nil {
		log.Fatal().Err(err).Msg("Backfill run failed")
	}
}

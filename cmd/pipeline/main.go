// Daily Pear assessment extract: crawls the vendor's updated-assignment list
// for the academic year, transforms responses and summaries, and publishes
// the canonical views to GCS and BigQuery.
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
	year := flag.String("year", "", "Academic year, e.g. 25-26 (default: derived from today)")
	dryRun := flag.Bool("dry-run", false, "Transform and report but do not publish")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}
	if *year != "" {
		cfg.Year = *year
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Hour)
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
		CrawlStart:             cfg.CrawlStart,
		CrawlEnd:               time.Now(),
		ExceptionAssignmentIDs: cfg.ExceptionAssignmentIDs,
		DryRun:                 *dryRun,
	}

	if _, err := pipeline.Run(ctx, deps, opts); err != nil {
		log.Fatal().Err(err).Msg("Pipeline run failed")
	}
}

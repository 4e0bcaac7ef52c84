// Package config loads the pipeline's runtime settings from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything a pipeline run needs. All values come from the
// environment; only ProjectID, Bucket, and Username have no defaults.
type Config struct {
	// GCP
	ProjectID string
	Bucket    string

	// Vendor API
	VendorBaseURL  string
	Username       string
	PasswordSecret string
	RequestDelay   time.Duration

	// Run scope
	Year       string
	CrawlStart time.Time

	// Assignments the vendor's assignment-list endpoint omits because they
	// carry no standards; always fetched in addition to the crawl result.
	ExceptionAssignmentIDs []string

	// Summary title heuristic, overridable pending a stronger vendor signal.
	TitleInclude string
	TitleExclude string
}

// Load reads configuration from the environment. envFile, when non-empty,
// is loaded first; a missing file is an error since it was asked for
// explicitly.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("config.Load: loading %s: %w", envFile, err)
		}
	}

	cfg := Config{
		ProjectID:      os.Getenv("PEAR_PROJECT_ID"),
		Bucket:         os.Getenv("PEAR_GCS_BUCKET"),
		VendorBaseURL:  getenvDefault("PEAR_API_BASE_URL", "https://data.edulastic.com"),
		Username:       os.Getenv("PEAR_API_USERNAME"),
		PasswordSecret: getenvDefault("PEAR_PASSWORD_SECRET", "pear_password"),
		Year:           getenvDefault("PEAR_YEAR", defaultYear(time.Now())),
		TitleInclude:   getenvDefault("PEAR_TITLE_INCLUDE", `test|assessment|interim`),
		TitleExclude:   getenvDefault("PEAR_TITLE_EXCLUDE", `review`),
	}

	if cfg.ProjectID == "" {
		return Config{}, fmt.Errorf("config.Load: PEAR_PROJECT_ID is required")
	}
	if cfg.Bucket == "" {
		return Config{}, fmt.Errorf("config.Load: PEAR_GCS_BUCKET is required")
	}
	if cfg.Username == "" {
		return Config{}, fmt.Errorf("config.Load: PEAR_API_USERNAME is required")
	}

	delaySec, err := strconv.Atoi(getenvDefault("PEAR_REQUEST_DELAY_SECONDS", "2"))
	if err != nil {
		return Config{}, fmt.Errorf("config.Load: PEAR_REQUEST_DELAY_SECONDS: %w", err)
	}
	cfg.RequestDelay = time.Duration(delaySec) * time.Second

	start := getenvDefault("PEAR_CRAWL_START", defaultCrawlStart(time.Now()))
	cfg.CrawlStart, err = time.Parse("2006-01-02", start)
	if err != nil {
		return Config{}, fmt.Errorf("config.Load: PEAR_CRAWL_START: %w", err)
	}

	if raw := os.Getenv("PEAR_EXCEPTION_ASSIGNMENT_IDS"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.ExceptionAssignmentIDs = append(cfg.ExceptionAssignmentIDs, id)
			}
		}
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// defaultYear renders the academic year the given time falls in, in the
// district's "25-26" form. The year rolls over on August 1.
func defaultYear(now time.Time) string {
	start := now.Year()
	if now.Month() < time.August {
		start--
	}
	return fmt.Sprintf("%02d-%02d", start%100, (start+1)%100)
}

// defaultCrawlStart is August 1 of the current academic year.
func defaultCrawlStart(now time.Time) string {
	year := now.Year()
	if now.Month() < time.August {
		year--
	}
	return fmt.Sprintf("%d-08-01", year)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("PEAR_PROJECT_ID", "icef-437920")
	t.Setenv("PEAR_GCS_BUCKET", "pearbucket-icefschools-1")
	t.Setenv("PEAR_API_USERNAME", "icefdata@icefps.org")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://data.edulastic.com", cfg.VendorBaseURL)
	assert.Equal(t, "pear_password", cfg.PasswordSecret)
	assert.Equal(t, 2*time.Second, cfg.RequestDelay)
	assert.Equal(t, `test|assessment|interim`, cfg.TitleInclude)
	assert.Equal(t, `review`, cfg.TitleExclude)
	assert.Equal(t, time.August, cfg.CrawlStart.Month())
	assert.Equal(t, 1, cfg.CrawlStart.Day())
	assert.Empty(t, cfg.ExceptionAssignmentIDs)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("PEAR_PROJECT_ID", "")
	t.Setenv("PEAR_GCS_BUCKET", "b")
	t.Setenv("PEAR_API_USERNAME", "u")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_ExceptionIDs(t *testing.T) {
	setRequired(t)
	t.Setenv("PEAR_EXCEPTION_ASSIGNMENT_IDS", "68c0991821a3b97a63808f7a, 689bb78d965cf7826eb6444d ,")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"68c0991821a3b97a63808f7a", "689bb78d965cf7826eb6444d"}, cfg.ExceptionAssignmentIDs)
}

func TestDefaultYear(t *testing.T) {
	tests := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC), "25-26"},
		{time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "25-26"},
		{time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), "26-27"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, defaultYear(tt.now), "now=%v", tt.now)
	}
}

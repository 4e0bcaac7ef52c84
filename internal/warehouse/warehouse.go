// Package warehouse wraps the BigQuery client behind the queries the
// pipeline issues: the latest-roster-snapshot-per-student lookup, the
// per-year grade lookup, run bookkeeping, and the canonical view load.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/icefdata/pear-pipeline/internal/roster"
	"github.com/icefdata/pear-pipeline/internal/views"
)

// Client holds a shared BigQuery connection so a run does not reconnect per
// query.
type Client struct {
	bq        *bigquery.Client
	projectID string
	log       zerolog.Logger
}

// New creates a Client for the given project.
func New(ctx context.Context, projectID string, log zerolog.Logger) (*Client, error) {
	bq, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("warehouse.New: creating client: %w", err)
	}
	return &Client{bq: bq, projectID: projectID, log: log}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.bq != nil {
		return c.bq.Close()
	}
	return nil
}

type rosterRow struct {
	ID            string    `bigquery:"id"`
	StudentNumber string    `bigquery:"student_number"`
	PartitionTime time.Time `bigquery:"partitiontime"`
}

// RosterEntries returns the latest demographics row per student across all
// partitions. Windowed per id, not filtered to the single newest partition:
// students onboarded between snapshots must still resolve.
func (c *Client) RosterEntries(ctx context.Context) ([]roster.Entry, error) {
	query := fmt.Sprintf(`
		SELECT
			CAST(id AS STRING) AS id,
			CAST(student_number AS STRING) AS student_number,
			partitiontime
		FROM `+"`%s.powerschool.pq_StudentDemos`"+`
		WHERE TRUE
		QUALIFY ROW_NUMBER() OVER (
			PARTITION BY id ORDER BY partitiontime DESC
		) = 1
	`, c.projectID)

	it, err := c.bq.Query(query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("RosterEntries: reading query: %w", err)
	}

	var entries []roster.Entry
	for {
		var row rosterRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("RosterEntries: iterating: %w", err)
		}
		entries = append(entries, roster.Entry{
			InternalID:    row.ID,
			StudentNumber: row.StudentNumber,
			PartitionTime: row.PartitionTime,
		})
	}

	return entries, nil
}

type gradeRow struct {
	LocalStudentID string `bigquery:"local_student_id"`
	Grade          string `bigquery:"grade"`
}

// GradeLookup returns the canonical-id-to-grade mapping for one academic
// year.
func (c *Client) GradeLookup(ctx context.Context, year string) (map[string]string, error) {
	query := fmt.Sprintf(`
		SELECT
			CAST(student_number AS STRING) AS local_student_id,
			CAST(grade_level AS STRING) AS grade
		FROM `+"`%s.views.student_to_teacher`"+`
		WHERE year = @year
	`, c.projectID)

	q := c.bq.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "year", Value: year},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GradeLookup: reading query: %w", err)
	}

	grades := make(map[string]string)
	for {
		var row gradeRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("GradeLookup: iterating: %w", err)
		}
		grades[roster.CanonicalID(row.LocalStudentID)] = row.Grade
	}

	c.log.Info().Str("year", year).Int("students", len(grades)).Msg("Grade lookup loaded")
	return grades, nil
}

// RunRow records one pipeline execution in pear.etl_runs.
type RunRow struct {
	RunID        string                 `bigquery:"run_id"`
	Year         string                 `bigquery:"year"`
	StartedTS    time.Time              `bigquery:"started_ts"`
	FinishedTS   bigquery.NullTimestamp `bigquery:"finished_ts"`
	Status       string                 `bigquery:"status"`
	ErrorMessage string                 `bigquery:"error_message"`
	ResponseRows bigquery.NullInt64     `bigquery:"response_rows"`
	SummaryRows  bigquery.NullInt64     `bigquery:"summary_rows"`
}

// StartRun inserts a RUNNING run record and returns its id.
func (c *Client) StartRun(ctx context.Context, year string) (string, error) {
	runID := uuid.NewString()
	row := &RunRow{
		RunID:     runID,
		Year:      year,
		StartedTS: time.Now(),
		Status:    "RUNNING",
	}

	inserter := c.bq.Dataset("pear").Table("etl_runs").Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return "", fmt.Errorf("StartRun: inserting row: %w", err)
	}
	return runID, nil
}

// FinishRun marks a run SUCCESS with its output row counts.
func (c *Client) FinishRun(ctx context.Context, runID string, responseRows, summaryRows int) error {
	q := c.bq.Query(fmt.Sprintf(`
		UPDATE `+"`%s.pear.etl_runs`"+`
		SET status = @status,
		    finished_ts = @finished_ts,
		    response_rows = @response_rows,
		    summary_rows = @summary_rows
		WHERE run_id = @run_id
	`, c.projectID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: "SUCCESS"},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "response_rows", Value: int64(responseRows)},
		{Name: "summary_rows", Value: int64(summaryRows)},
		{Name: "run_id", Value: runID},
	}
	return c.runToCompletion(ctx, q, "FinishRun")
}

// FailRun marks a run FAILED. Errors here are logged, not propagated: the
// original failure is what the caller needs to see.
func (c *Client) FailRun(ctx context.Context, runID string, runErr error) {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		const maxLen = 2000
		if len(errMsg) > maxLen {
			errMsg = errMsg[:maxLen]
		}
	}

	q := c.bq.Query(fmt.Sprintf(`
		UPDATE `+"`%s.pear.etl_runs`"+`
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, c.projectID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: "FAILED"},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	if err := c.runToCompletion(ctx, q, "FailRun"); err != nil {
		c.log.Error().Err(err).Str("run_id", runID).Msg("Failed to record run failure")
	}
}

// LoadView streams canonical rows into the given table in the pear dataset.
func (c *Client) LoadView(ctx context.Context, table string, rows []views.Row) error {
	if len(rows) == 0 {
		return nil
	}
	inserter := c.bq.Dataset("pear").Table(table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("LoadView: inserting %d rows into %s: %w", len(rows), table, err)
	}
	c.log.Info().Str("table", table).Int("rows", len(rows)).Msg("View loaded to warehouse")
	return nil
}

func (c *Client) runToCompletion(ctx context.Context, q *bigquery.Query, op string) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}
	return nil
}

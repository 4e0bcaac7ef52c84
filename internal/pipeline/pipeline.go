// Package pipeline orchestrates the daily Pear extract: crawl the updated
// assignment list, fetch responses and summaries, transform and reconcile
// them, assemble the canonical views, and publish.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/icefdata/pear-pipeline/internal/classify"
	"github.com/icefdata/pear-pipeline/internal/pear"
	"github.com/icefdata/pear-pipeline/internal/roster"
	"github.com/icefdata/pear-pipeline/internal/transform"
	"github.com/icefdata/pear-pipeline/internal/views"
)

// VendorClient is the slice of the Pear API client the pipeline consumes.
type VendorClient interface {
	CollectDailyAssignments(ctx context.Context, start, end time.Time) ([]string, error)
	CollectResponses(ctx context.Context, assignmentIDs []string) ([]pear.ResponseRecord, error)
	CollectSummaries(ctx context.Context, assignmentIDs []string) ([]pear.SummaryRecord, error)
}

// Warehouse is the slice of the BigQuery client the pipeline consumes.
type Warehouse interface {
	GradeLookup(ctx context.Context, year string) (map[string]string, error)
	StartRun(ctx context.Context, year string) (string, error)
	FinishRun(ctx context.Context, runID string, responseRows, summaryRows int) error
	FailRun(ctx context.Context, runID string, runErr error)
	LoadView(ctx context.Context, table string, rows []views.Row) error
}

// RosterService resolves the student id mapping, memoized per run.
type RosterService interface {
	Mapper(ctx context.Context) (*roster.Mapper, error)
}

// Sink publishes CSV tables.
type Sink interface {
	UploadCSV(ctx context.Context, objectName string, header []string, records [][]string) error
}

// Deps are the external collaborators a run needs.
type Deps struct {
	Vendor     VendorClient
	Warehouse  Warehouse
	Roster     RosterService
	Sink       Sink
	Classifier *classify.Classifier
	Titles     *transform.TitleFilter
	Log        zerolog.Logger
}

// Options scope a single run.
type Options struct {
	Year                   string
	CrawlStart             time.Time
	CrawlEnd               time.Time
	ExceptionAssignmentIDs []string

	// DryRun skips publication; transforms still execute and report.
	DryRun bool
}

// State is the shared state threaded through the steps.
type State struct {
	Opts Options

	AssignmentIDs []string
	RawResponses  []pear.ResponseRecord
	RawSummaries  []pear.SummaryRecord

	ResponseRows   []transform.ResponseRow
	ResponseReport transform.ResponseReport
	SummaryRows    []transform.SummaryRow
	SummaryReport  transform.SummaryReport

	Grades map[string]string

	ResponsesView       []views.Row
	ResponsesDropReport views.DropReport
	SummariesView       []views.Row
	SummariesDropReport views.DropReport
}

// Step is a single stage of the run.
type Step interface {
	Name() string
	Execute(ctx context.Context, deps *Deps, state *State) error
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	deps  *Deps
	steps []Step
}

// New creates a pipeline with the given steps.
func New(deps *Deps, steps ...Step) *Pipeline {
	return &Pipeline{deps: deps, steps: steps}
}

// Execute runs all steps sequentially against the state.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for _, step := range p.steps {
		if err := step.Execute(ctx, p.deps, state); err != nil {
			return fmt.Errorf("pipeline step %s: %w", step.Name(), err)
		}
	}
	return nil
}

// NewDailyPipeline wires the standard step order for a daily extract.
func NewDailyPipeline(deps *Deps) *Pipeline {
	return New(deps,
		&CollectAssignmentsStep{},
		&FetchResponsesStep{},
		&TransformResponsesStep{},
		&FetchSummariesStep{},
		&TransformSummariesStep{},
		&LoadGradesStep{},
		&AssembleViewsStep{},
		&PublishStep{},
	)
}

// Run executes the daily pipeline with run bookkeeping in the warehouse.
func Run(ctx context.Context, deps *Deps, opts Options) (*State, error) {
	runID, err := deps.Warehouse.StartRun(ctx, opts.Year)
	if err != nil {
		return nil, fmt.Errorf("pipeline.Run: starting run record: %w", err)
	}
	deps.Log.Info().Str("run_id", runID).Str("year", opts.Year).Msg("Pipeline run started")

	state := &State{Opts: opts}
	if err := NewDailyPipeline(deps).Execute(ctx, state); err != nil {
		deps.Warehouse.FailRun(ctx, runID, err)
		return nil, err
	}

	if err := deps.Warehouse.FinishRun(ctx, runID, len(state.ResponsesView), len(state.SummariesView)); err != nil {
		return nil, fmt.Errorf("pipeline.Run: finishing run record: %w", err)
	}

	deps.Log.Info().
		Str("run_id", runID).
		Int("responses_view", len(state.ResponsesView)).
		Int("summaries_view", len(state.SummariesView)).
		Msg("Pipeline run finished")
	return state, nil
}

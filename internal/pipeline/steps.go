package pipeline

import (
	"context"
	"fmt"

	"github.com/icefdata/pear-pipeline/internal/transform"
	"github.com/icefdata/pear-pipeline/internal/views"
)

// CollectAssignmentsStep crawls the assignment-list endpoint day by day and
// appends the configured exception ids the endpoint never returns.
type CollectAssignmentsStep struct{}

func (s *CollectAssignmentsStep) Name() string { return "collect-assignments" }

func (s *CollectAssignmentsStep) Execute(ctx context.Context, deps *Deps, state *State) error {
	ids, err := deps.Vendor.CollectDailyAssignments(ctx, state.Opts.CrawlStart, state.Opts.CrawlEnd)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, id := range state.Opts.ExceptionAssignmentIDs {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
			seen[id] = struct{}{}
		}
	}

	state.AssignmentIDs = ids
	deps.Log.Info().Int("assignments", len(ids)).Msg("Assignment id list assembled")
	return nil
}

// FetchResponsesStep pulls item-level responses for every assignment id.
type FetchResponsesStep struct{}

func (s *FetchResponsesStep) Name() string { return "fetch-responses" }

func (s *FetchResponsesStep) Execute(ctx context.Context, deps *Deps, state *State) error {
	records, err := deps.Vendor.CollectResponses(ctx, state.AssignmentIDs)
	if err != nil {
		return err
	}
	state.RawResponses = records
	return nil
}

// TransformResponsesStep filters, explodes, scores, and reconciles the raw
// response records.
type TransformResponsesStep struct{}

func (s *TransformResponsesStep) Name() string { return "transform-responses" }

func (s *TransformResponsesStep) Execute(ctx context.Context, deps *Deps, state *State) error {
	mapper, err := deps.Roster.Mapper(ctx)
	if err != nil {
		return err
	}
	state.ResponseRows, state.ResponseReport = transform.Responses(state.RawResponses, mapper, deps.Log)
	return nil
}

// FetchSummariesStep pulls per-assignment rollups for every assignment id.
type FetchSummariesStep struct{}

func (s *FetchSummariesStep) Name() string { return "fetch-summaries" }

func (s *FetchSummariesStep) Execute(ctx context.Context, deps *Deps, state *State) error {
	records, err := deps.Vendor.CollectSummaries(ctx, state.AssignmentIDs)
	if err != nil {
		return err
	}
	state.RawSummaries = records
	return nil
}

// TransformSummariesStep filters, scores, de-duplicates, and reconciles the
// raw summary records.
type TransformSummariesStep struct{}

func (s *TransformSummariesStep) Name() string { return "transform-summaries" }

func (s *TransformSummariesStep) Execute(ctx context.Context, deps *Deps, state *State) error {
	mapper, err := deps.Roster.Mapper(ctx)
	if err != nil {
		return err
	}
	state.SummaryRows, state.SummaryReport = transform.Summaries(state.RawSummaries, mapper, deps.Titles, deps.Log)
	return nil
}

// LoadGradesStep fetches this year's grade lookup once for both views. A
// failure is fatal: the grade join is mandatory.
type LoadGradesStep struct{}

func (s *LoadGradesStep) Name() string { return "load-grades" }

func (s *LoadGradesStep) Execute(ctx context.Context, deps *Deps, state *State) error {
	grades, err := deps.Warehouse.GradeLookup(ctx, state.Opts.Year)
	if err != nil {
		return fmt.Errorf("loading grade lookup for %s: %w", state.Opts.Year, err)
	}
	state.Grades = grades
	return nil
}

// AssembleViewsStep builds both canonical views with drop accounting.
type AssembleViewsStep struct{}

func (s *AssembleViewsStep) Name() string { return "assemble-views" }

func (s *AssembleViewsStep) Execute(ctx context.Context, deps *Deps, state *State) error {
	state.ResponsesView, state.ResponsesDropReport = views.FromResponses(
		state.ResponseRows, state.Opts.Year, state.Grades, deps.Classifier, deps.Log)
	state.SummariesView, state.SummariesDropReport = views.FromSummaries(
		state.SummaryRows, state.Opts.Year, state.Grades, deps.Classifier, deps.Log)
	return nil
}

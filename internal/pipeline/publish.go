package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/icefdata/pear-pipeline/internal/pear"
	"github.com/icefdata/pear-pipeline/internal/transform"
	"github.com/icefdata/pear-pipeline/internal/views"
)

// Published object names, one set per run. Raw extracts go out alongside the
// canonical views so analysts can audit the transformations.
const (
	ObjectResponsesRaw  = "pear_assignment_responses_raw.csv"
	ObjectResponses     = "pear_assignment_responses.csv"
	ObjectResponsesView = "pear_assignment_responses_view.csv"
	ObjectSummariesRaw  = "pear_assignment_summaries_raw.csv"
	ObjectSummaries     = "pear_assignment_summaries.csv"
	ObjectSummariesView = "pear_assignment_summaries_view.csv"

	TableResponsesView = "assignment_responses_view"
	TableSummariesView = "assignment_summaries_view"
)

// PublishStep writes the six CSV objects to GCS and loads both canonical
// views into the warehouse. Skipped entirely under DryRun.
type PublishStep struct{}

func (s *PublishStep) Name() string { return "publish" }

func (s *PublishStep) Execute(ctx context.Context, deps *Deps, state *State) error {
	if state.Opts.DryRun {
		deps.Log.Info().Msg("Dry run, skipping publication")
		return nil
	}

	uploads := []struct {
		object  string
		header  []string
		records [][]string
	}{
		{ObjectResponsesRaw, rawResponseHeader, rawResponseRecords(state.RawResponses)},
		{ObjectResponses, responseRowHeader, responseRowRecords(state.ResponseRows)},
		{ObjectResponsesView, views.Header, views.CSVRecords(state.ResponsesView)},
		{ObjectSummariesRaw, rawSummaryHeader, rawSummaryRecords(state.RawSummaries)},
		{ObjectSummaries, summaryRowHeader, summaryRowRecords(state.SummaryRows)},
		{ObjectSummariesView, views.Header, views.CSVRecords(state.SummariesView)},
	}
	for _, u := range uploads {
		if err := deps.Sink.UploadCSV(ctx, u.object, u.header, u.records); err != nil {
			return fmt.Errorf("uploading %s: %w", u.object, err)
		}
	}

	if err := deps.Warehouse.LoadView(ctx, TableResponsesView, state.ResponsesView); err != nil {
		return err
	}
	return deps.Warehouse.LoadView(ctx, TableSummariesView, state.SummariesView)
}

var rawResponseHeader = []string{
	"test_type", "assessment_id", "assignment_name", "standard_notation",
	"student_sis_id", "question_index", "score", "max_score",
	"grading_status", "timestamp",
}

func rawResponseRecords(records []pear.ResponseRecord) [][]string {
	out := make([][]string, 0, len(records))
	for _, r := range records {
		out = append(out, []string{
			r.TestType, r.AssessmentID, r.AssignmentName, r.StandardNotation,
			r.StudentSISID, strconv.FormatInt(r.QuestionIndex, 10),
			formatFloat(r.Score), formatFloat(r.MaxScore),
			r.GradingStatus, r.Timestamp,
		})
	}
	return out
}

var rawSummaryHeader = []string{
	"assignment_name", "assessment_id", "assessment_group_id",
	"classsection_sis_id", "user_id", "total_points", "max_points",
	"submitted_date", "studentsisid", "status",
}

func rawSummaryRecords(records []pear.SummaryRecord) [][]string {
	out := make([][]string, 0, len(records))
	for _, r := range records {
		out = append(out, []string{
			r.AssignmentName, r.AssessmentID, r.AssessmentGroupID,
			r.ClassSectionSISID, r.UserID,
			formatFloat(r.TotalPoints), formatFloat(r.MaxPoints),
			r.SubmittedDate, r.StudentSISID, r.Status,
		})
	}
	return out
}

var responseRowHeader = []string{
	"assessment_id", "title", "standard_code", "local_student_id",
	"question_index", "percent_score", "date_taken",
}

func responseRowRecords(rows []transform.ResponseRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.AssessmentID, r.Title, r.StandardCode, r.LocalStudentID,
			strconv.FormatInt(r.QuestionIndex, 10),
			formatPercent(r.Score, r.ScoreValid),
			formatTime(r.DateTaken),
		})
	}
	return out
}

var summaryRowHeader = []string{
	"assessment_id", "title", "local_student_id", "percent_score", "date_taken",
}

func summaryRowRecords(rows []transform.SummaryRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.AssessmentID, r.Title, r.LocalStudentID,
			formatPercent(r.Score, r.ScoreValid),
			formatTime(r.DateTaken),
		})
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatPercent(score float64, valid bool) string {
	if !valid {
		return ""
	}
	return strconv.FormatFloat(score, 'f', 2, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

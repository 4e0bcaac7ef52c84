package transform

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icefdata/pear-pipeline/internal/pear"
	"github.com/icefdata/pear-pipeline/internal/roster"
)

func testMapper() *roster.Mapper {
	return roster.NewMapper([]roster.Entry{
		{InternalID: "v1", StudentNumber: "1001", PartitionTime: time.Unix(100, 0)},
		{InternalID: "v2", StudentNumber: "1002", PartitionTime: time.Unix(100, 0)},
	})
}

func TestPercent(t *testing.T) {
	tests := []struct {
		name      string
		num, den  float64
		want      float64
		wantValid bool
	}{
		{"simple", 3, 4, 75, true},
		{"rounds to 2 decimals", 1, 3, 33.33, true},
		{"full credit", 4, 4, 100, true},
		{"zero denominator undefined", 5, 0, 0, false},
		{"negative denominator undefined", 5, -1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Percent(tt.num, tt.den)
			assert.Equal(t, tt.wantValid, ok)
			if ok {
				assert.InDelta(t, tt.want, got, 0.0001)
			}
		})
	}
}

func TestParseStandards(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"json array", `["A.1","A.2"]`, []string{"A.1", "A.2"}},
		{"string-encoded python list", `"['7.RP.1', '7.RP.2']"`, []string{"7.RP.1", "7.RP.2"}},
		{"empty string", ``, nil},
		{"empty array", `[]`, nil},
		{"null", `null`, nil},
		{"malformed never raises", `"[broken"`, nil},
		{"scalar is not a list", `"7.RP.1`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStandards(tt.raw))
		})
	}
}

func respRecord(mutate func(*pear.ResponseRecord)) pear.ResponseRecord {
	rec := pear.ResponseRecord{
		TestType:         "common assessment",
		AssessmentID:     "as1",
		AssignmentName:   "Algebra I Unit 1 Test",
		StandardNotation: `["A.1","A.2","A.3"]`,
		StudentSISID:     "v1",
		QuestionIndex:    2,
		Score:            3,
		MaxScore:         4,
		GradingStatus:    "GRADED",
		Timestamp:        "1735689600000",
	}
	if mutate != nil {
		mutate(&rec)
	}
	return rec
}

func TestResponses_ExplodesPerStandard(t *testing.T) {
	rows, report := Responses([]pear.ResponseRecord{respRecord(nil)}, testMapper(), zerolog.Nop())

	require.Len(t, rows, 3, "3 standard tags yield 3 rows")
	assert.Equal(t, 3, report.Exploded)

	for i, std := range []string{"A.1", "A.2", "A.3"} {
		assert.Equal(t, std, rows[i].StandardCode)
		assert.Equal(t, "1001", rows[i].LocalStudentID)
		assert.InDelta(t, 75.0, rows[i].Score, 0.0001)
		assert.True(t, rows[i].ScoreValid)
		require.NotNil(t, rows[i].DateTaken)
		assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), rows[i].DateTaken.UTC())
	}
}

func TestResponses_Filters(t *testing.T) {
	records := []pear.ResponseRecord{
		respRecord(nil),
		respRecord(func(r *pear.ResponseRecord) { r.GradingStatus = "IN_GRADING" }),
		respRecord(func(r *pear.ResponseRecord) { r.TestType = "practice" }),
		respRecord(func(r *pear.ResponseRecord) { r.TestType = "school common assessment" }),
	}

	rows, report := Responses(records, testMapper(), zerolog.Nop())

	assert.Equal(t, 4, report.Input)
	assert.Equal(t, 2, report.AfterFilter, "ungraded and non-common rows filtered")
	assert.Len(t, rows, 6)
}

func TestResponses_EmptyStandardsDropped(t *testing.T) {
	records := []pear.ResponseRecord{
		respRecord(func(r *pear.ResponseRecord) { r.StandardNotation = "" }),
		respRecord(func(r *pear.ResponseRecord) { r.StandardNotation = `"[broken"` }),
		respRecord(nil),
	}

	rows, report := Responses(records, testMapper(), zerolog.Nop())

	assert.Equal(t, 2, report.NoStandards)
	assert.Len(t, rows, 3, "only the well-tagged response survives")
}

func TestResponses_ZeroMaxScore(t *testing.T) {
	records := []pear.ResponseRecord{
		respRecord(func(r *pear.ResponseRecord) { r.MaxScore = 0 }),
	}

	rows, _ := Responses(records, testMapper(), zerolog.Nop())

	require.Len(t, rows, 3)
	assert.False(t, rows[0].ScoreValid, "undefined percent, not a crash")
}

func TestResponses_UnmatchedIDBecomesEmpty(t *testing.T) {
	records := []pear.ResponseRecord{
		respRecord(func(r *pear.ResponseRecord) { r.StudentSISID = "unknown" }),
	}

	rows, report := Responses(records, testMapper(), zerolog.Nop())

	require.Len(t, rows, 3)
	assert.Empty(t, rows[0].LocalStudentID)
	assert.Equal(t, 3, report.Reconciliation.Unmatched)
	assert.Equal(t, []string{"unknown"}, report.Reconciliation.UnmatchedIDs)
}

func TestResponses_EmptyInput(t *testing.T) {
	rows, report := Responses(nil, testMapper(), zerolog.Nop())

	assert.Empty(t, rows)
	assert.Equal(t, 0, report.Input)
}

func sumRecord(mutate func(*pear.SummaryRecord)) pear.SummaryRecord {
	rec := pear.SummaryRecord{
		AssignmentName:    "Geometry Unit 2 Assessment",
		AssessmentID:      "as2",
		AssessmentGroupID: "g1",
		ClassSectionSISID: "c1",
		UserID:            "u1",
		TotalPoints:       18,
		MaxPoints:         20,
		SubmittedDate:     "1735689600",
		StudentSISID:      "v2",
		Status:            "GRADED",
	}
	if mutate != nil {
		mutate(&rec)
	}
	return rec
}

func TestSummaries_Basic(t *testing.T) {
	rows, report := Summaries([]pear.SummaryRecord{sumRecord(nil)}, testMapper(), DefaultTitleFilter(), zerolog.Nop())

	require.Len(t, rows, 1)
	assert.Equal(t, "1002", rows[0].LocalStudentID)
	assert.InDelta(t, 90.0, rows[0].Score, 0.0001)
	assert.Equal(t, 1, report.AfterTitle)
	require.NotNil(t, rows[0].DateTaken)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), rows[0].DateTaken.UTC())
}

func TestSummaries_TitleHeuristic(t *testing.T) {
	tests := []struct {
		title string
		kept  bool
	}{
		{"Geometry Unit 2 Assessment", true},
		{"Algebra I Interim #1", true},
		{"Grade 7 Unit 2 Protest March DBQ", true}, // substring matches are intentional
		{"Unit 3 Review", false},
		{"Algebra I Test Review", false},
		{"Daily Warmup", false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			records := []pear.SummaryRecord{sumRecord(func(r *pear.SummaryRecord) { r.AssignmentName = tt.title })}
			rows, _ := Summaries(records, testMapper(), DefaultTitleFilter(), zerolog.Nop())
			assert.Equal(t, tt.kept, len(rows) == 1)
		})
	}
}

func TestSummaries_UngradedDropped(t *testing.T) {
	records := []pear.SummaryRecord{
		sumRecord(func(r *pear.SummaryRecord) { r.Status = "IN_PROGRESS" }),
		sumRecord(nil),
	}

	rows, report := Summaries(records, testMapper(), DefaultTitleFilter(), zerolog.Nop())

	assert.Len(t, rows, 1)
	assert.Equal(t, 1, report.AfterStatus)
}

func TestSummaries_DedupeKeepsNewest(t *testing.T) {
	records := []pear.SummaryRecord{
		sumRecord(func(r *pear.SummaryRecord) { r.SubmittedDate = "1735689600"; r.TotalPoints = 10 }),
		sumRecord(func(r *pear.SummaryRecord) { r.SubmittedDate = "1735776000"; r.TotalPoints = 16 }),
		sumRecord(func(r *pear.SummaryRecord) { r.UserID = "u2" }),
	}

	rows, report := Summaries(records, testMapper(), DefaultTitleFilter(), zerolog.Nop())

	require.Len(t, rows, 2)
	assert.Equal(t, 1, report.Duplicates)
	assert.InDelta(t, 80.0, rows[0].Score, 0.0001, "newest submission wins")
}

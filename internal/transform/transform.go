// Package transform turns raw Pear payloads into scored, reconciled rows:
// graded common-assessment responses exploded per standard, and graded
// summary rollups filtered to genuine assessments.
package transform

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/icefdata/pear-pipeline/internal/epoch"
	"github.com/icefdata/pear-pipeline/internal/pear"
	"github.com/icefdata/pear-pipeline/internal/roster"
)

// commonAssessmentTypes are the only test types that feed the responses view.
var commonAssessmentTypes = map[string]bool{
	"school common assessment": true,
	"common assessment":        true,
}

// ResponseRow is one (response, standard) pair ready for view assembly.
type ResponseRow struct {
	AssessmentID   string
	Title          string
	StandardCode   string
	LocalStudentID string
	QuestionIndex  int64
	Score          float64
	ScoreValid     bool
	DateTaken      *time.Time
}

// SummaryRow is one graded assignment rollup ready for view assembly.
type SummaryRow struct {
	AssessmentID   string
	Title          string
	LocalStudentID string
	Score          float64
	ScoreValid     bool
	DateTaken      *time.Time
}

// ResponseReport tallies every row the response transformer discarded.
type ResponseReport struct {
	Input          int
	AfterFilter    int
	NoStandards    int
	Exploded       int
	Reconciliation roster.Report
}

// SummaryReport tallies every row the summary transformer discarded.
type SummaryReport struct {
	Input          int
	AfterStatus    int
	AfterTitle     int
	Duplicates     int
	Reconciliation roster.Report
}

// Percent computes round(numerator/denominator*100, 2). A denominator that
// is zero, negative, or NaN makes the percentage undefined; callers drop
// such rows downstream rather than crash.
func Percent(numerator, denominator float64) (float64, bool) {
	if denominator <= 0 || math.IsNaN(numerator) || math.IsNaN(denominator) {
		return 0, false
	}
	return math.Round(numerator/denominator*100*100) / 100, true
}

// ParseStandards decodes the vendor's standard_notation field. The value
// arrives either as a JSON array, a string wrapping a Python-style list, or
// nothing. Anything unparseable is an empty list, never an error.
func ParseStandards(raw string) []string {
	s := strings.TrimSpace(raw)
	if s == "" || s == "null" || s == `""` || s == "[]" {
		return nil
	}

	doc := gjson.Parse(s)
	// A string-encoded list: unwrap and normalize Python quoting.
	if doc.Type == gjson.String {
		inner := strings.ReplaceAll(doc.String(), "'", `"`)
		if !gjson.Valid(inner) {
			return nil
		}
		doc = gjson.Parse(inner)
	}
	if !doc.IsArray() {
		return nil
	}

	var standards []string
	doc.ForEach(func(_, item gjson.Result) bool {
		if v := strings.TrimSpace(item.String()); v != "" {
			standards = append(standards, v)
		}
		return true
	})
	return standards
}

// Responses filters raw response records to graded common-assessment rows,
// explodes multi-standard responses into one row per standard, attaches the
// percent score, and reconciles student ids through the mapper.
func Responses(records []pear.ResponseRecord, mapper *roster.Mapper, log zerolog.Logger) ([]ResponseRow, ResponseReport) {
	report := ResponseReport{Input: len(records)}

	var kept []pear.ResponseRecord
	for _, rec := range records {
		if rec.GradingStatus != pear.GradingStatusGraded {
			continue
		}
		if !commonAssessmentTypes[strings.ToLower(rec.TestType)] {
			continue
		}
		kept = append(kept, rec)
	}
	report.AfterFilter = len(kept)

	timestamps := make([]string, len(kept))
	for i, rec := range kept {
		timestamps[i] = rec.Timestamp
	}
	dates := epoch.ConvertColumn(timestamps)

	var rows []ResponseRow
	var sourceIDs []string
	for i, rec := range kept {
		standards := ParseStandards(rec.StandardNotation)
		if len(standards) == 0 {
			report.NoStandards++
			continue
		}
		score, ok := Percent(rec.Score, rec.MaxScore)
		for _, std := range standards {
			rows = append(rows, ResponseRow{
				AssessmentID:  rec.AssessmentID,
				Title:         rec.AssignmentName,
				StandardCode:  std,
				QuestionIndex: rec.QuestionIndex,
				Score:         score,
				ScoreValid:    ok,
				DateTaken:     dates[i],
			})
			sourceIDs = append(sourceIDs, rec.StudentSISID)
		}
	}
	report.Exploded = len(rows)

	resolved, recReport := mapper.Resolve(sourceIDs)
	for i := range rows {
		rows[i].LocalStudentID = resolved[i]
	}
	report.Reconciliation = recReport

	log.Info().
		Int("input", report.Input).
		Int("graded_common", report.AfterFilter).
		Int("no_standards", report.NoStandards).
		Int("exploded", report.Exploded).
		Msg("Transformed assignment responses")
	roster.LogReport(log, "assignment_responses", recReport)

	return rows, report
}

// TitleFilter is the summary view's heuristic for telling real assessments
// from practice work. Patterns are configurable pending a stronger vendor
// signal; the defaults match test/assessment/interim and exclude review.
type TitleFilter struct {
	include *regexp.Regexp
	exclude *regexp.Regexp
}

// NewTitleFilter compiles case-insensitive include and exclude patterns.
func NewTitleFilter(include, exclude string) (*TitleFilter, error) {
	inc, err := regexp.Compile("(?i)" + include)
	if err != nil {
		return nil, err
	}
	exc, err := regexp.Compile("(?i)" + exclude)
	if err != nil {
		return nil, err
	}
	return &TitleFilter{include: inc, exclude: exc}, nil
}

// DefaultTitleFilter returns the standing include/exclude patterns. The
// substring match is intentional: "Grade 8 Unit 1 T" counts as a test.
func DefaultTitleFilter() *TitleFilter {
	f, _ := NewTitleFilter(`test|assessment|interim`, `review`)
	return f
}

// Match reports whether an assignment title denotes a real assessment.
func (f *TitleFilter) Match(title string) bool {
	return f.include.MatchString(title) && !f.exclude.MatchString(title)
}

// Summaries filters raw rollups to graded rows with assessment-like titles,
// attaches percent scores, reconciles student ids, and keeps only the newest
// submission per (assessment group, class section, user).
func Summaries(records []pear.SummaryRecord, mapper *roster.Mapper, filter *TitleFilter, log zerolog.Logger) ([]SummaryRow, SummaryReport) {
	report := SummaryReport{Input: len(records)}

	var graded []pear.SummaryRecord
	for _, rec := range records {
		if rec.Status == pear.GradingStatusGraded {
			graded = append(graded, rec)
		}
	}
	report.AfterStatus = len(graded)

	graded, dropped := dedupeSummaries(graded)
	report.Duplicates = dropped

	submitted := make([]string, len(graded))
	for i, rec := range graded {
		submitted[i] = rec.SubmittedDate
	}
	dates := epoch.ConvertColumn(submitted)

	var rows []SummaryRow
	var sourceIDs []string
	for i, rec := range graded {
		if !filter.Match(rec.AssignmentName) {
			continue
		}
		score, ok := Percent(rec.TotalPoints, rec.MaxPoints)
		rows = append(rows, SummaryRow{
			AssessmentID: rec.AssessmentID,
			Title:        rec.AssignmentName,
			Score:        score,
			ScoreValid:   ok,
			DateTaken:    dates[i],
		})
		sourceIDs = append(sourceIDs, rec.StudentSISID)
	}
	report.AfterTitle = len(rows)

	resolved, recReport := mapper.Resolve(sourceIDs)
	for i := range rows {
		rows[i].LocalStudentID = resolved[i]
	}
	report.Reconciliation = recReport

	log.Info().
		Int("input", report.Input).
		Int("graded", report.AfterStatus).
		Int("duplicates_dropped", report.Duplicates).
		Int("assessment_titled", report.AfterTitle).
		Msg("Transformed assignment summaries")
	roster.LogReport(log, "assignment_summaries", recReport)

	return rows, report
}

// dedupeSummaries keeps the newest submitted_date row per
// (assessment_group_id, classsection_sis_id, user_id). Rows without a
// parseable submitted date lose to rows with one.
func dedupeSummaries(records []pear.SummaryRecord) ([]pear.SummaryRecord, int) {
	type keyed struct {
		rec  pear.SummaryRecord
		when *time.Time
		idx  int
	}

	submitted := make([]string, len(records))
	for i, rec := range records {
		submitted[i] = rec.SubmittedDate
	}
	dates := epoch.ConvertColumn(submitted)

	best := make(map[string]keyed)
	for i, rec := range records {
		k := rec.AssessmentGroupID + "\x00" + rec.ClassSectionSISID + "\x00" + rec.UserID
		cur, ok := best[k]
		if !ok || newer(dates[i], cur.when) {
			best[k] = keyed{rec: rec, when: dates[i], idx: i}
		}
	}

	kept := make([]keyed, 0, len(best))
	for _, k := range best {
		kept = append(kept, k)
	}
	// Restore input order; stable output regardless of map iteration.
	sort.Slice(kept, func(i, j int) bool { return kept[i].idx < kept[j].idx })

	out := make([]pear.SummaryRecord, len(kept))
	for i, k := range kept {
		out[i] = k.rec
	}
	return out, len(records) - len(out)
}

func newer(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

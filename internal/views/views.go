// Package views assembles the two canonical assessment tables: per-standard
// item responses and per-assignment summaries. Both converge on the same
// 15-column shape.
package views

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/icefdata/pear-pipeline/internal/classify"
	"github.com/icefdata/pear-pipeline/internal/roster"
	"github.com/icefdata/pear-pipeline/internal/transform"
)

// DataSource is the constant source tag for every row this pipeline emits.
const DataSource = "pear"

// TestType is the constant record type; other vendors fill other values.
const TestType = "assessment"

// SummaryStandardCode marks summary rows, which carry a whole-assignment
// percent instead of a per-standard score.
const SummaryStandardCode = "percent"

// Row is one canonical assessment record. Field order mirrors the published
// column order.
type Row struct {
	DataSource           string     `bigquery:"data_source"`
	AssessmentID         string     `bigquery:"assessment_id"`
	Year                 string     `bigquery:"year"`
	DateTaken            *time.Time `bigquery:"date_taken"`
	Grade                string     `bigquery:"grade"`
	LocalStudentID       string     `bigquery:"local_student_id"`
	TestType             string     `bigquery:"test_type"`
	Curriculum           string     `bigquery:"curriculum"`
	Unit                 string     `bigquery:"unit"`
	Title                string     `bigquery:"title"`
	StandardCode         string     `bigquery:"standard_code"`
	Score                float64    `bigquery:"score"`
	PerformanceBandLevel int        `bigquery:"performance_band_level"`
	PerformanceBandLabel string     `bigquery:"performance_band_label"`
	Proficiency          string     `bigquery:"proficiency"`
}

// Header is the canonical CSV column order.
var Header = []string{
	"data_source", "assessment_id", "year", "date_taken", "grade",
	"local_student_id", "test_type", "curriculum", "unit", "title",
	"standard_code", "score", "performance_band_level",
	"performance_band_label", "proficiency",
}

// DropReport accounts for every assembled row that did not make the view.
// MissingID and NoGrade are disjoint causes: MissingID counts rows the API
// sent without a usable student id, NoGrade counts reconciled ids absent
// from this year's roster.
type DropReport struct {
	Input     int
	Kept      int
	MissingID int
	NoGrade   int
	NoScore   int
}

// Dropped is the total number of rows removed from the view.
func (r DropReport) Dropped() int {
	return r.MissingID + r.NoGrade + r.NoScore
}

// record is the converged pre-view shape both transformers feed in.
type record struct {
	assessmentID   string
	title          string
	standardCode   string
	localStudentID string
	score          float64
	scoreValid     bool
	dateTaken      *time.Time
}

// FromResponses assembles the per-standard responses view.
func FromResponses(rows []transform.ResponseRow, year string, grades map[string]string, cls *classify.Classifier, log zerolog.Logger) ([]Row, DropReport) {
	records := make([]record, len(rows))
	for i, r := range rows {
		records[i] = record{
			assessmentID:   r.AssessmentID,
			title:          r.Title,
			standardCode:   r.StandardCode,
			localStudentID: r.LocalStudentID,
			score:          r.Score,
			scoreValid:     r.ScoreValid,
			dateTaken:      r.DateTaken,
		}
	}
	return assemble(records, year, grades, cls, "responses_view", log)
}

// FromSummaries assembles the summaries view; every row carries the
// "percent" standard code.
func FromSummaries(rows []transform.SummaryRow, year string, grades map[string]string, cls *classify.Classifier, log zerolog.Logger) ([]Row, DropReport) {
	records := make([]record, len(rows))
	for i, r := range rows {
		records[i] = record{
			assessmentID:   r.AssessmentID,
			title:          r.Title,
			standardCode:   SummaryStandardCode,
			localStudentID: r.LocalStudentID,
			score:          r.Score,
			scoreValid:     r.ScoreValid,
			dateTaken:      r.DateTaken,
		}
	}
	return assemble(records, year, grades, cls, "summaries_view", log)
}

func assemble(records []record, year string, grades map[string]string, cls *classify.Classifier, label string, log zerolog.Logger) ([]Row, DropReport) {
	report := DropReport{Input: len(records)}
	out := make([]Row, 0, len(records))

	for _, rec := range records {
		id := roster.CanonicalID(rec.localStudentID)
		if id == "" {
			report.MissingID++
			continue
		}
		grade, ok := grades[id]
		if !ok || grade == "" {
			report.NoGrade++
			continue
		}
		if !rec.scoreValid {
			report.NoScore++
			continue
		}

		curriculum, unit := cls.Classify(rec.title, rec.assessmentID)
		if g, err := strconv.Atoi(grade); err == nil {
			curriculum = classify.GradeFallback(curriculum, rec.title, g)
		}
		level, bandLabel := classify.Band(rec.score)

		out = append(out, Row{
			DataSource:           DataSource,
			AssessmentID:         rec.assessmentID,
			Year:                 year,
			DateTaken:            rec.dateTaken,
			Grade:                grade,
			LocalStudentID:       id,
			TestType:             TestType,
			Curriculum:           curriculum,
			Unit:                 unit,
			Title:                rec.title,
			StandardCode:         rec.standardCode,
			Score:                rec.score,
			PerformanceBandLevel: level,
			PerformanceBandLabel: bandLabel,
			Proficiency:          classify.Proficiency(level, bandLabel),
		})
	}
	report.Kept = len(out)

	log.Info().
		Str("view", label).
		Int("input", report.Input).
		Int("kept", report.Kept).
		Int("dropped_missing_id", report.MissingID).
		Int("dropped_no_grade", report.NoGrade).
		Int("dropped_no_score", report.NoScore).
		Msg("Assembled canonical view")

	return out, report
}

// CSVRecords renders rows in the canonical column order for the GCS sink.
func CSVRecords(rows []Row) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		date := ""
		if r.DateTaken != nil {
			date = r.DateTaken.UTC().Format(time.RFC3339)
		}
		out = append(out, []string{
			r.DataSource,
			r.AssessmentID,
			r.Year,
			date,
			r.Grade,
			r.LocalStudentID,
			r.TestType,
			r.Curriculum,
			r.Unit,
			r.Title,
			r.StandardCode,
			strconv.FormatFloat(r.Score, 'f', 2, 64),
			strconv.Itoa(r.PerformanceBandLevel),
			r.PerformanceBandLabel,
			r.Proficiency,
		})
	}
	return out
}

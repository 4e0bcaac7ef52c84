// Package classify derives curriculum, unit, and performance-band columns
// from assignment titles and scores.
package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// KeywordRule maps a title substring to a curriculum label. Rules are checked
// in order and the first match wins: "algebra ii" must come before
// "algebra i" or every Algebra II title would classify as Algebra I.
type KeywordRule struct {
	Keyword    string
	Curriculum string
}

// Override pins the classification of a single assessment id, bypassing the
// title heuristics. Empty fields leave that dimension to the heuristics.
type Override struct {
	Curriculum string
	Unit       string
}

// Config is the immutable classification table set. Construct one with
// DefaultConfig and adjust per run; the Classifier never mutates it.
type Config struct {
	Keywords  []KeywordRule
	Overrides map[string]Override
}

// DefaultConfig returns the district's standing keyword order and the manual
// override list for titles the heuristics get wrong.
func DefaultConfig() Config {
	return Config{
		Keywords: []KeywordRule{
			{"algebra ii", "Algebra II"},
			{"algebra i", "Algebra I"},
			{"geometry", "Geometry"},
			{"science", "Science"},
			{"math", "Math"},
		},
		Overrides: map[string]Override{
			// "10th Grade Science Interim" assessments are Chemistry, not
			// the keyword match.
			"68b22e718bbeb32951baaddf": {Curriculum: "Chemistry"},
		},
	}
}

var (
	unitRe    = regexp.MustCompile(`(?i)unit\s*(\d+)`)
	interimRe = regexp.MustCompile(`(?i)interim\s*#?\s*(\d+)`)
)

// Classifier resolves (title, assessment id) pairs to curriculum and unit
// labels. It is a pure lookup over its Config and safe for concurrent use.
type Classifier struct {
	cfg Config
}

// New returns a Classifier over the given tables.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify returns the curriculum and unit for an assignment title. An
// override keyed by assessment id wins over either heuristic independently.
// Unit is "" when no unit or interim pattern matches.
func (c *Classifier) Classify(title, assessmentID string) (curriculum, unit string) {
	curriculum = c.categorize(title)
	unit = extractUnit(title)

	if ov, ok := c.cfg.Overrides[assessmentID]; ok {
		if ov.Curriculum != "" {
			curriculum = ov.Curriculum
		}
		if ov.Unit != "" {
			unit = ov.Unit
		}
	}
	return curriculum, unit
}

func (c *Classifier) categorize(title string) string {
	lower := strings.ToLower(title)
	for _, rule := range c.cfg.Keywords {
		if strings.Contains(lower, rule.Keyword) {
			return rule.Curriculum
		}
	}
	return "Other"
}

func extractUnit(title string) string {
	if m := unitRe.FindStringSubmatch(title); m != nil {
		return "Unit " + m[1]
	}
	if m := interimRe.FindStringSubmatch(title); m != nil {
		return "Interim " + m[1]
	}
	return ""
}

// GradeFallback resolves curricula still "Other" once the grade is known.
// Middle-school assignments default to Math, except the 8th-grade science
// interims, which stay Science. Runs after the grade join, never before.
func GradeFallback(curriculum, title string, grade int) string {
	if curriculum != "Other" {
		return curriculum
	}
	if grade < 6 || grade > 8 {
		return curriculum
	}
	lower := strings.ToLower(title)
	if grade == 8 && strings.Contains(lower, "science") && strings.Contains(lower, "interim") {
		return "Science"
	}
	return "Math"
}

// Band maps a percent score (0-100 scale, not range-checked) to the district's
// 4-level performance band.
func Band(score float64) (level int, label string) {
	switch {
	case score >= 90:
		return 4, "Exceeds Expectations"
	case score >= 70:
		return 3, "Meets Expectations"
	case score >= 60:
		return 2, "Approaching Expectations"
	default:
		return 1, "Does Not Meet Expectations"
	}
}

// Proficiency is the combined band column, e.g. "4 Exceeds Expectations".
func Proficiency(level int, label string) string {
	return fmt.Sprintf("%d %s", level, label)
}

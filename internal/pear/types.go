package pear

// ResponseRecord is one student-question-response row as returned by the
// assignment-responses endpoint. Epoch-like fields stay raw strings until the
// epoch package normalizes them.
type ResponseRecord struct {
	TestType         string
	AssessmentID     string
	AssignmentName   string
	StandardNotation string
	StudentSISID     string
	QuestionIndex    int64
	Score            float64
	MaxScore         float64
	GradingStatus    string
	Timestamp        string
}

// SummaryRecord is one student-per-assignment rollup from the
// assignment-summary endpoint.
type SummaryRecord struct {
	AssignmentName    string
	AssessmentID      string
	AssessmentGroupID string
	ClassSectionSISID string
	UserID            string
	TotalPoints       float64
	MaxPoints         float64
	SubmittedDate     string
	StudentSISID      string
	Status            string
}

// TestInfo is the subset of the test-info endpoint the pipeline consumes,
// used when resolving assignments absent from the assignment-list endpoint.
type TestInfo struct {
	TestID   string
	Title    string
	TestType string
}

// GradingStatusGraded is the vendor's terminal grading state. Rows in any
// other state are filtered out by the transformers.
const GradingStatusGraded = "GRADED"

// Package pear is the HTTP client for the Pear (Edulastic) data API: the
// rate-limited daily assignment crawl plus the per-assignment responses and
// summaries fetches.
package pear

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the production Pear data API endpoint.
const DefaultBaseURL = "https://data.edulastic.com"

// StatusError reports a non-200 response, distinct from a transport failure.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pear: %s returned status %d", e.URL, e.Code)
}

// Client calls the Pear data API with precomputed Basic auth. Delay is the
// fixed sleep between crawl requests; the vendor throttles aggressive
// clients.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	delay      time.Duration
	log        zerolog.Logger
}

// NewClient builds a Client. The Basic auth header is computed once up front.
func NewClient(baseURL, username, password string, delay time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		baseURL:    baseURL,
		authHeader: BasicAuthHeader(username, password),
		delay:      delay,
		log:        log,
	}
}

// BasicAuthHeader computes the Authorization header value for the vendor's
// Basic auth scheme.
func BasicAuthHeader(username, password string) string {
	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + token
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (gjson.Result, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("pear: building request for %s: %w", u, err)
	}
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("pear: requesting %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, &StatusError{URL: u, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("pear: reading body from %s: %w", u, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("pear: %s returned invalid JSON", u)
	}
	return gjson.ParseBytes(body), nil
}

// UpdatedAssignments returns the ids of assignments updated on the given day.
func (c *Client) UpdatedAssignments(ctx context.Context, date time.Time) ([]string, error) {
	params := url.Values{"date": {fmt.Sprintf("%d", date.Unix())}}
	doc, err := c.get(ctx, "/assignment-list", params)
	if err != nil {
		return nil, err
	}

	var ids []string
	doc.ForEach(func(_, item gjson.Result) bool {
		if id := item.Get("assignment_id").String(); id != "" {
			ids = append(ids, id)
		} else if item.Type == gjson.String {
			ids = append(ids, item.String())
		}
		return true
	})
	return ids, nil
}

// CollectDailyAssignments crawls the assignment-list endpoint one day at a
// time from start through end, sleeping between calls, and returns the
// de-duplicated id list. A failed or empty day logs and continues; partial
// coverage is acceptable, a dead vendor is not the crawl's problem to solve.
func (c *Client) CollectDailyAssignments(ctx context.Context, start, end time.Time) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	total := 0

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dayIDs, err := c.UpdatedAssignments(ctx, day)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn().Err(err).Str("date", day.Format("2006-01-02")).Msg("Assignment list fetch failed, skipping day")
		} else {
			total += len(dayIDs)
			for _, id := range dayIDs {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}

		if err := sleepCtx(ctx, c.delay); err != nil {
			return nil, err
		}
	}

	c.log.Info().Int("updated", total).Int("distinct", len(ids)).Msg("Daily assignment crawl complete")
	return ids, nil
}

// AssignmentResponses fetches the per-question student responses for one
// assignment. An empty payload is an empty slice, not an error.
func (c *Client) AssignmentResponses(ctx context.Context, assignmentID string) ([]ResponseRecord, error) {
	params := url.Values{"assignment_id": {assignmentID}}
	doc, err := c.get(ctx, "/assignment-responses", params)
	if err != nil {
		return nil, err
	}

	var records []ResponseRecord
	doc.ForEach(func(_, item gjson.Result) bool {
		records = append(records, ResponseRecord{
			TestType:         item.Get("test_type").String(),
			AssessmentID:     assignmentID,
			AssignmentName:   item.Get("assignment_name").String(),
			StandardNotation: item.Get("standard_notation").Raw,
			StudentSISID:     item.Get("student_sis_id").String(),
			QuestionIndex:    item.Get("question_index").Int(),
			Score:            item.Get("score").Float(),
			MaxScore:         item.Get("max_score").Float(),
			GradingStatus:    item.Get("grading_status").String(),
			Timestamp:        item.Get("timestamp").String(),
		})
		return true
	})
	return records, nil
}

// AssignmentSummaries fetches the per-student rollups for one assignment.
func (c *Client) AssignmentSummaries(ctx context.Context, assignmentID string) ([]SummaryRecord, error) {
	params := url.Values{"assignment_id": {assignmentID}}
	doc, err := c.get(ctx, "/assignment-summary", params)
	if err != nil {
		return nil, err
	}

	var records []SummaryRecord
	doc.ForEach(func(_, item gjson.Result) bool {
		records = append(records, SummaryRecord{
			AssignmentName:    item.Get("assignment_name").String(),
			AssessmentID:      assignmentID,
			AssessmentGroupID: item.Get("assessment_group_id").String(),
			ClassSectionSISID: item.Get("classsection_sis_id").String(),
			UserID:            item.Get("user_id").String(),
			TotalPoints:       item.Get("total_points").Float(),
			MaxPoints:         item.Get("max_points").Float(),
			SubmittedDate:     item.Get("submitted_date").String(),
			StudentSISID:      item.Get("studentsisid").String(),
			Status:            item.Get("status").String(),
		})
		return true
	})
	return records, nil
}

// FetchTestInfo resolves metadata for a single test, used for the exception
// assignments the assignment-list endpoint omits.
func (c *Client) FetchTestInfo(ctx context.Context, testID string) (*TestInfo, error) {
	params := url.Values{"test_id": {testID}}
	doc, err := c.get(ctx, "/test-info", params)
	if err != nil {
		return nil, err
	}
	return &TestInfo{
		TestID:   testID,
		Title:    doc.Get("title").String(),
		TestType: doc.Get("test_type").String(),
	}, nil
}

// CollectResponses loops an id list through AssignmentResponses with the
// configured delay. Per-id failures log and skip; the run only sees the rows
// that arrived.
func (c *Client) CollectResponses(ctx context.Context, assignmentIDs []string) ([]ResponseRecord, error) {
	var all []ResponseRecord
	for i, id := range assignmentIDs {
		records, err := c.AssignmentResponses(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn().Err(err).Str("assignment_id", id).Msg("Responses fetch failed, skipping")
		} else {
			all = append(all, records...)
			c.log.Debug().Str("assignment_id", id).Int("rows", len(records)).
				Msgf("Collected responses (%d/%d)", i+1, len(assignmentIDs))
		}
		if err := sleepCtx(ctx, c.delay); err != nil {
			return nil, err
		}
	}
	return all, nil
}

// CollectSummaries is CollectResponses for the summary endpoint.
func (c *Client) CollectSummaries(ctx context.Context, assignmentIDs []string) ([]SummaryRecord, error) {
	var all []SummaryRecord
	for i, id := range assignmentIDs {
		records, err := c.AssignmentSummaries(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn().Err(err).Str("assignment_id", id).Msg("Summary fetch failed, skipping")
		} else {
			all = append(all, records...)
			c.log.Debug().Str("assignment_id", id).Int("rows", len(records)).
				Msgf("Collected summaries (%d/%d)", i+1, len(assignmentIDs))
		}
		if err := sleepCtx(ctx, c.delay); err != nil {
			return nil, err
		}
	}
	return all, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

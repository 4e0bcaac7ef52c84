// Package roster resolves vendor-local student identifiers to the district's
// canonical student numbers using the PowerSchool demographics snapshots.
package roster

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// Entry is one row of the time-partitioned student demographics table.
type Entry struct {
	InternalID    string
	StudentNumber string
	PartitionTime time.Time
}

// Querier fetches roster entries from the warehouse. Implemented by
// warehouse.Client; faked in tests.
type Querier interface {
	RosterEntries(ctx context.Context) ([]Entry, error)
}

// Report accounts for every input id that did not resolve, split by cause so
// data-quality incidents can be triaged: ids the API never sent versus ids
// missing from the roster.
type Report struct {
	Total         int
	MissingSource int
	Unmatched     int
	UnmatchedIDs  []string
}

// CanonicalID normalizes an id to its canonical string form so that
// numeric-looking ids compare equal regardless of source typing
// ("123" vs "123.0" vs " 123 ").
func CanonicalID(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return ""
	}
	s = strings.TrimSuffix(s, ".0")
	return s
}

// Mapper maps vendor internal ids to canonical student numbers. The mapping
// is keyed strictly by internal id; student numbers appearing on the input
// side never re-map.
type Mapper struct {
	byInternal map[string]string
}

// NewMapper builds the mapping from roster entries, keeping only the entry
// with the latest partition time per internal id. Windowing per id, not a
// single global max partition: a student onboarded between snapshots still
// resolves.
func NewMapper(entries []Entry) *Mapper {
	latest := make(map[string]Entry, len(entries))
	for _, e := range entries {
		key := CanonicalID(e.InternalID)
		if key == "" {
			continue
		}
		cur, ok := latest[key]
		if !ok || e.PartitionTime.After(cur.PartitionTime) {
			latest[key] = e
		}
	}

	byInternal := make(map[string]string, len(latest))
	for key, e := range latest {
		byInternal[key] = CanonicalID(e.StudentNumber)
	}
	return &Mapper{byInternal: byInternal}
}

// Lookup resolves a single vendor id. The second return is false both for
// empty source ids and for ids absent from the roster.
func (m *Mapper) Lookup(id string) (string, bool) {
	canonical := CanonicalID(id)
	if canonical == "" {
		return "", false
	}
	num, ok := m.byInternal[canonical]
	return num, ok
}

// Resolve maps a batch of vendor ids to canonical student numbers, "" where
// no mapping exists. Misses are never errors; they are tallied in the Report.
func (m *Mapper) Resolve(ids []string) ([]string, Report) {
	out := make([]string, len(ids))
	report := Report{Total: len(ids)}
	unmatched := make(map[string]struct{})

	for i, id := range ids {
		canonical := CanonicalID(id)
		if canonical == "" {
			report.MissingSource++
			continue
		}
		num, ok := m.byInternal[canonical]
		if !ok {
			report.Unmatched++
			unmatched[canonical] = struct{}{}
			continue
		}
		out[i] = num
	}

	for id := range unmatched {
		report.UnmatchedIDs = append(report.UnmatchedIDs, id)
	}
	sort.Strings(report.UnmatchedIDs)
	return out, report
}

// Size returns the number of distinct internal ids in the mapping.
func (m *Mapper) Size() int {
	return len(m.byInternal)
}

const mapperCacheKey = "roster-mapper"

// Service wraps a Querier with per-run memoization so the responses view and
// the summaries view share one roster query.
type Service struct {
	querier Querier
	cache   *gocache.Cache
	log     zerolog.Logger
}

// NewService creates a Service. ttl bounds how long a fetched mapping is
// reused; a daily batch run passes something comfortably above its own
// runtime.
func NewService(querier Querier, ttl time.Duration, log zerolog.Logger) *Service {
	return &Service{
		querier: querier,
		cache:   gocache.New(ttl, 2*ttl),
		log:     log,
	}
}

// Mapper returns the roster mapping, fetching it on first use. A roster
// query failure is fatal to the caller: reconciliation is mandatory.
func (s *Service) Mapper(ctx context.Context) (*Mapper, error) {
	if cached, ok := s.cache.Get(mapperCacheKey); ok {
		return cached.(*Mapper), nil
	}

	entries, err := s.querier.RosterEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("roster.Service.Mapper: querying roster: %w", err)
	}

	m := NewMapper(entries)
	s.log.Info().
		Int("roster_rows", len(entries)).
		Int("distinct_students", m.Size()).
		Msg("Roster mapping loaded")

	s.cache.Set(mapperCacheKey, m, gocache.DefaultExpiration)
	return m, nil
}

// LogReport emits the reconciliation counts as structured fields, including
// the sorted unmatched id list when any exist.
func LogReport(log zerolog.Logger, label string, report Report) {
	ev := log.Info().
		Str("table", label).
		Int("rows", report.Total).
		Int("missing_source_id", report.MissingSource).
		Int("unmatched_id", report.Unmatched)
	if len(report.UnmatchedIDs) > 0 {
		ev = ev.Strs("unmatched_ids", report.UnmatchedIDs)
	}
	ev.Msg("Student id reconciliation")
}

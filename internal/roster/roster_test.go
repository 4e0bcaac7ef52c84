package roster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2025, 9, d, 0, 0, 0, 0, time.UTC)
}

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"123", "123"},
		{"123.0", "123"},
		{" 123 ", "123"},
		{"", ""},
		{"nan", ""},
		{"NaN", ""},
		{"null", ""},
		{"abc007", "abc007"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalID(tt.input))
		})
	}
}

func TestNewMapper_LatestPartitionPerID(t *testing.T) {
	entries := []Entry{
		{InternalID: "a1", StudentNumber: "100", PartitionTime: day(1)},
		{InternalID: "a1", StudentNumber: "101", PartitionTime: day(3)},
		{InternalID: "a1", StudentNumber: "999", PartitionTime: day(2)},
		// b2 only appears in an older partition than a1's newest; a global
		// max-partition filter would drop it.
		{InternalID: "b2", StudentNumber: "200", PartitionTime: day(1)},
	}

	m := NewMapper(entries)

	got, ok := m.Lookup("a1")
	require.True(t, ok)
	assert.Equal(t, "101", got, "latest partition per id wins")

	got, ok = m.Lookup("b2")
	require.True(t, ok)
	assert.Equal(t, "200", got, "student present only in older partition still resolves")
}

func TestMapper_Resolve(t *testing.T) {
	m := NewMapper([]Entry{
		{InternalID: "a1", StudentNumber: "100", PartitionTime: day(1)},
		{InternalID: "777.0", StudentNumber: "300.0", PartitionTime: day(1)},
	})

	out, report := m.Resolve([]string{"a1", "", "zz", "777", "nan", "zz"})

	assert.Equal(t, []string{"100", "", "", "300", "", ""}, out)
	assert.Equal(t, 6, report.Total)
	assert.Equal(t, 2, report.MissingSource, "empty and nan ids count as missing source")
	assert.Equal(t, 2, report.Unmatched)
	assert.Equal(t, []string{"zz"}, report.UnmatchedIDs, "distinct sorted unmatched ids")
}

func TestMapper_DoesNotMapByStudentNumber(t *testing.T) {
	// "100" is a canonical student number in the roster but not an internal
	// id; resolving it must miss, not double-map.
	m := NewMapper([]Entry{
		{InternalID: "a1", StudentNumber: "100", PartitionTime: day(1)},
	})

	_, ok := m.Lookup("100")
	assert.False(t, ok)
}

type fakeQuerier struct {
	entries []Entry
	err     error
	calls   int
}

func (f *fakeQuerier) RosterEntries(ctx context.Context) ([]Entry, error) {
	f.calls++
	return f.entries, f.err
}

func TestService_MapperCached(t *testing.T) {
	q := &fakeQuerier{entries: []Entry{
		{InternalID: "a1", StudentNumber: "100", PartitionTime: day(1)},
	}}
	s := NewService(q, time.Hour, zerolog.Nop())

	first, err := s.Mapper(context.Background())
	require.NoError(t, err)
	second, err := s.Mapper(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, q.calls, "roster queried once per run")
}

func TestService_QueryFailureIsFatal(t *testing.T) {
	q := &fakeQuerier{err: errors.New("bigquery unreachable")}
	s := NewService(q, time.Hour, zerolog.Nop())

	_, err := s.Mapper(context.Background())
	require.Error(t, err)
}

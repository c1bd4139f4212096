package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func closedAt(t time.Time) *time.Time { return &t }

var fixture = []Span{
	{Created: date(2024, 3, 10)},
	{Created: date(2024, 1, 5), Closed: closedAt(date(2024, 1, 20))},
	{Created: date(2024, 1, 25), Closed: closedAt(date(2024, 3, 2))},
	{Created: date(2024, 3, 1)},
}

func TestCumulative(t *testing.T) {
	s := Cumulative(fixture)

	require.Len(t, s, 2)
	assert.Equal(t, Point{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Value: 2}, s[0])
	assert.Equal(t, Point{Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Value: 4}, s[1])
	assert.True(t, s.NonDecreasing())
	assert.Empty(t, Cumulative(nil))
}

func TestMonthlyNew_NoGaps(t *testing.T) {
	now := date(2024, 5, 15)
	s := MonthlyNew(fixture, now)

	require.Len(t, s, 5)
	assert.Equal(t, []float64{2, 0, 2, 0, 0}, s.Values())
	for i, p := range s {
		assert.Equal(t, 1, p.Date.Day(), "point %d", i)
	}
	assert.Equal(t, time.February, s[1].Date.Month())
	assert.Equal(t, len(fixture), s.Sum())
}

func TestOpenOverTime(t *testing.T) {
	now := date(2024, 4, 10)
	s := OpenOverTime(fixture, now)

	require.Len(t, s, 4)
	assert.Equal(t, "2024-01-31", s[0].Date.Format(DateLayout))
	assert.Equal(t, 1, s[0].Value) // opened 5th closed 20th; opened 25th still open
	assert.Equal(t, 1, s[1].Value) // february
	assert.Equal(t, 2, s[2].Value) // 25th closed on 2 Mar, two new in March
	assert.Equal(t, now, s[3].Date)
	assert.Equal(t, 2, s[3].Value)
	assert.Nil(t, OpenOverTime(nil, now))
}

func TestOpenOverTime_LastSubSecondOfMonth(t *testing.T) {
	late := time.Date(2024, 1, 31, 23, 59, 59, 500_000_000, time.UTC)
	spans := []Span{
		{Created: late},
		{Created: date(2024, 1, 10), Closed: closedAt(late)},
	}

	s := OpenOverTime(spans, date(2024, 2, 10))
	require.Len(t, s, 2)
	assert.Equal(t, "2024-01-31", s[0].Date.Format(DateLayout))
	assert.Equal(t, 1, s[0].Value)
}

func TestOpenAt(t *testing.T) {
	closed := date(2024, 1, 20)
	spans := []Span{{Created: date(2024, 1, 5), Closed: &closed}}

	assert.Equal(t, 0, OpenAt(spans, date(2024, 1, 4)))
	assert.Equal(t, 1, OpenAt(spans, date(2024, 1, 5)))
	assert.Equal(t, 1, OpenAt(spans, date(2024, 1, 19)))
	assert.Equal(t, 0, OpenAt(spans, closed))
}

func TestCumulativeNonDecreasingAndMonthlySum(t *testing.T) {
	var spans []Span
	start := date(2020, 6, 1)
	for i := 0; i < 500; i++ {
		spans = append(spans, Span{Created: start.Add(time.Duration(i*i) * time.Hour)})
	}
	now := start.Add(time.Duration(500*500) * time.Hour)

	assert.True(t, Cumulative(spans).NonDecreasing())
	assert.Equal(t, 500, Cumulative(spans)[len(Cumulative(spans))-1].Value)
	assert.Equal(t, 500, MonthlyNew(spans, now).Sum())
}

func TestSeriesHelpers(t *testing.T) {
	s := Series{{Value: 1}, {Value: 3}, {Value: 2}}
	assert.False(t, s.NonDecreasing())
	assert.Equal(t, 6, s.Sum())
	assert.True(t, Series{}.NonDecreasing())

	// 23:00 at UTC-1 is already March in UTC
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		MonthStart(time.Date(2024, 2, 29, 23, 0, 0, 0, time.FixedZone("x", -3600))))
}

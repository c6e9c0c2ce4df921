package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dates(times []time.Time) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = t.Format(time.DateOnly)
	}
	return out
}

func TestExpand(t *testing.T) {
	t.Parallel()

	// 2024-03-03 is a Sunday.
	sunday := time.Date(2024, time.March, 3, 9, 30, 0, 0, time.UTC)

	t.Run("weekly weekday set anchored on a non matching day", func(t *testing.T) {
		t.Parallel()

		rule := Rule{
			Frequency: FrequencyWeekly,
			Interval:  1,
			Weekdays:  []time.Weekday{time.Monday, time.Wednesday},
			End:       Count{N: 4},
		}

		got, err := Expand(rule, sunday, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-03-04", "2024-03-06", "2024-03-11", "2024-03-13"}, dates(got))
		for _, occ := range got {
			assert.Equal(t, 9, occ.Hour())
			assert.Equal(t, 30, occ.Minute())
		}
	})

	t.Run("weekly weeks are counted from the anchor week", func(t *testing.T) {
		t.Parallel()

		// Wednesday anchor, every second week on Monday and Thursday.
		anchor := time.Date(2024, time.March, 6, 8, 0, 0, 0, time.UTC)
		rule := Rule{
			Frequency: FrequencyWeekly,
			Interval:  2,
			Weekdays:  []time.Weekday{time.Thursday, time.Monday},
			End:       Count{N: 4},
		}

		got, err := Expand(rule, anchor, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-03-07", "2024-03-18", "2024-03-21", "2024-04-01"}, dates(got))
	})

	t.Run("weekly interval starts at the next matching weekday", func(t *testing.T) {
		t.Parallel()

		// Wednesday anchor with only Monday selected: the anchor week has no
		// candidate, so the fortnightly cadence starts the following Monday.
		anchor := time.Date(2024, time.March, 6, 8, 0, 0, 0, time.UTC)
		rule := Rule{
			Frequency: FrequencyWeekly,
			Interval:  2,
			Weekdays:  []time.Weekday{time.Monday},
			End:       Count{N: 3},
		}

		got, err := Expand(rule, anchor, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-03-11", "2024-03-25", "2024-04-08"}, dates(got))
	})

	t.Run("weekly without a weekday set repeats the anchor weekday", func(t *testing.T) {
		t.Parallel()

		anchor := time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC)
		got, err := Expand(Rule{Frequency: FrequencyWeekly, End: Count{N: 3}}, anchor, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-03-05", "2024-03-12", "2024-03-19"}, dates(got))
	})

	t.Run("daily respects interval and until inclusive", func(t *testing.T) {
		t.Parallel()

		rule := Rule{
			Frequency: FrequencyDaily,
			Interval:  3,
			End:       Until{Date: Date{Year: 2024, Month: time.March, Day: 12}},
		}
		got, err := Expand(rule, sunday, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-03-03", "2024-03-06", "2024-03-09", "2024-03-12"}, dates(got))
	})

	t.Run("horizon cuts a count bound short", func(t *testing.T) {
		t.Parallel()

		rule := Rule{Frequency: FrequencyDaily, End: Count{N: 10}}
		horizon := sunday.AddDate(0, 0, 2)
		got, err := Expand(rule, sunday, horizon)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-03-03", "2024-03-04", "2024-03-05"}, dates(got))
	})

	t.Run("never requires a horizon", func(t *testing.T) {
		t.Parallel()

		_, err := Expand(Rule{Frequency: FrequencyDaily}, sunday, time.Time{})
		require.ErrorIs(t, err, ErrUnboundedRecurrence)

		got, err := Expand(Rule{Frequency: FrequencyDaily, End: Never{}}, sunday, sunday.AddDate(0, 0, 6))
		require.NoError(t, err)
		assert.Len(t, got, 7)
	})

	t.Run("exceptions do not consume count slots", func(t *testing.T) {
		t.Parallel()

		rule := Rule{
			Frequency:  FrequencyDaily,
			End:        Count{N: 3},
			Exceptions: []Date{{Year: 2024, Month: time.March, Day: 4}},
		}
		got, err := Expand(rule, sunday, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-03-03", "2024-03-05", "2024-03-06"}, dates(got))
	})

	t.Run("exceptions match by calendar date regardless of time", func(t *testing.T) {
		t.Parallel()

		late := time.Date(2024, time.March, 3, 23, 45, 0, 0, time.UTC)
		rule := Rule{
			Frequency:  FrequencyWeekly,
			End:        Count{N: 2},
			Exceptions: []Date{{Year: 2024, Month: time.March, Day: 10}},
		}
		got, err := Expand(rule, late, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-03-03", "2024-03-17"}, dates(got))
	})

	t.Run("monthly clamps to the last day by default", func(t *testing.T) {
		t.Parallel()

		anchor := time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC)
		got, err := Expand(Rule{Frequency: FrequencyMonthly, End: Count{N: 4}}, anchor, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}, dates(got))
	})

	t.Run("monthly skip drops short months", func(t *testing.T) {
		t.Parallel()

		anchor := time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC)
		rule := Rule{Frequency: FrequencyMonthly, End: Count{N: 4}, MonthOverflow: MonthOverflowSkip}
		got, err := Expand(rule, anchor, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-01-31", "2024-03-31", "2024-05-31", "2024-07-31"}, dates(got))
	})

	t.Run("monthly day before the anchor starts next month", func(t *testing.T) {
		t.Parallel()

		anchor := time.Date(2024, time.January, 20, 10, 0, 0, 0, time.UTC)
		rule := Rule{Frequency: FrequencyMonthly, MonthDay: 5, End: Count{N: 2}}
		got, err := Expand(rule, anchor, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-02-05", "2024-03-05"}, dates(got))
	})

	t.Run("yearly leap day follows the overflow policy", func(t *testing.T) {
		t.Parallel()

		anchor := time.Date(2024, time.February, 29, 12, 0, 0, 0, time.UTC)

		clamped, err := Expand(Rule{Frequency: FrequencyYearly, End: Count{N: 3}}, anchor, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-02-29", "2025-02-28", "2026-02-28"}, dates(clamped))

		skipped, err := Expand(Rule{Frequency: FrequencyYearly, End: Count{N: 2}, MonthOverflow: MonthOverflowSkip}, anchor, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-02-29", "2028-02-29"}, dates(skipped))
	})

	t.Run("rule that can never emit is rejected", func(t *testing.T) {
		t.Parallel()

		anchor := time.Date(2024, time.February, 1, 12, 0, 0, 0, time.UTC)
		rule := Rule{Frequency: FrequencyMonthly, Interval: 12, MonthDay: 30, MonthOverflow: MonthOverflowSkip, End: Count{N: 1}}
		_, err := Expand(rule, anchor, time.Time{})
		require.ErrorIs(t, err, ErrInvalidRule)
	})

	t.Run("safety cap", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(nil).WithMaxOccurrences(10)
		_, err := engine.Expand(Rule{Frequency: FrequencyDaily, End: Count{N: 11}}, sunday, time.Time{})
		require.ErrorIs(t, err, ErrTooManyOccurrences)

		got, err := engine.Expand(Rule{Frequency: FrequencyDaily, End: Count{N: 10}}, sunday, time.Time{})
		require.NoError(t, err)
		assert.Len(t, got, 10)
	})

	t.Run("engine location drives calendar arithmetic", func(t *testing.T) {
		t.Parallel()

		tokyo := time.FixedZone("JST", 9*60*60)
		// Monday 2024-03-04 00:30 in Tokyo is still Sunday in UTC.
		anchor := time.Date(2024, time.March, 3, 15, 30, 0, 0, time.UTC)
		rule := Rule{Frequency: FrequencyWeekly, Weekdays: []time.Weekday{time.Monday}, End: Count{N: 2}}

		got, err := NewEngine(tokyo).Expand(rule, anchor, time.Time{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, time.Monday, got[0].Weekday())
		assert.True(t, got[0].Equal(anchor))
		assert.True(t, got[1].Equal(anchor.AddDate(0, 0, 7)))
	})
}

func TestExpandProperties(t *testing.T) {
	t.Parallel()

	anchor := time.Date(2023, time.November, 15, 7, 0, 0, 0, time.UTC)
	freqs := []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly}

	for _, freq := range freqs {
		for _, n := range []int{1, 2, 7, 40} {
			for _, interval := range []int{1, 3} {
				rule := Rule{Frequency: freq, Interval: interval, End: Count{N: n}}
				got, err := Expand(rule, anchor, time.Time{})
				require.NoError(t, err, "freq=%s n=%d", freq, n)
				assert.Len(t, got, n, "freq=%s n=%d interval=%d", freq, n, interval)
				for i := 1; i < len(got); i++ {
					assert.True(t, got[i].After(got[i-1]), "not strictly ascending at %d", i)
				}
			}
		}
	}

	sets := [][]time.Weekday{
		{time.Monday},
		{time.Tuesday, time.Thursday},
		{time.Saturday, time.Sunday},
		{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
	for _, set := range sets {
		rule := Rule{Frequency: FrequencyWeekly, Interval: 2, Weekdays: set, End: Count{N: 25}}
		got, err := Expand(rule, anchor, time.Time{})
		require.NoError(t, err)
		require.Len(t, got, 25)
		for _, occ := range got {
			assert.Contains(t, set, occ.Weekday())
			assert.False(t, occ.Before(anchor))
		}
	}
}

func TestRuleValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]Rule{
		"missing frequency":     {End: Count{N: 1}},
		"negative interval":     {Frequency: FrequencyDaily, Interval: -1},
		"weekday out of range":  {Frequency: FrequencyWeekly, Weekdays: []time.Weekday{7}},
		"weekdays on daily":     {Frequency: FrequencyDaily, Weekdays: []time.Weekday{time.Monday}},
		"month day too large":   {Frequency: FrequencyMonthly, MonthDay: 32},
		"zero count":            {Frequency: FrequencyDaily, End: Count{N: 0}},
		"negative count":        {Frequency: FrequencyDaily, End: Count{N: -2}},
		"until without a date":  {Frequency: FrequencyDaily, End: Until{}},
		"unknown overflow mode": {Frequency: FrequencyMonthly, MonthOverflow: MonthOverflow(9)},
	}

	for name, rule := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			err := rule.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRule))
		})
	}

	require.NoError(t, Rule{Frequency: FrequencyWeekly, Interval: 1, Weekdays: []time.Weekday{time.Sunday, time.Saturday}}.Validate())
}

func TestEngine_GenerateOccurrences(t *testing.T) {
	t.Parallel()

	tokyo := time.FixedZone("JST", 9*60*60)
	baseStart := time.Date(2024, time.March, 4, 9, 0, 0, 0, tokyo)
	baseEnd := baseStart.Add(90 * time.Minute)
	rule := Rule{
		Frequency: FrequencyWeekly,
		Weekdays:  []time.Weekday{time.Monday, time.Wednesday, time.Friday},
		End:       Until{Date: Date{Year: 2024, Month: time.March, Day: 31}},
	}

	t.Run("keeps the base duration in UTC", func(t *testing.T) {
		t.Parallel()

		occurrences, err := NewEngine(nil).GenerateOccurrences(rule, baseStart, baseEnd, GenerateOptions{})
		require.NoError(t, err)
		require.Len(t, occurrences, 12)
		for i, occ := range occurrences {
			assert.Equal(t, time.UTC, occ.Start.Location())
			assert.Equal(t, 90*time.Minute, occ.End.Sub(occ.Start))
			assert.Equal(t, i, occ.Index)
		}
	})

	t.Run("clips to the requested range", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, time.March, 16, 0, 0, 0, 0, time.UTC)
		occurrences, err := NewEngine(nil).GenerateOccurrences(rule, baseStart, baseEnd, GenerateOptions{RangeStart: &from, RangeEnd: &to})
		require.NoError(t, err)
		require.Len(t, occurrences, 3)
		assert.Equal(t, 3, occurrences[0].Index)
		for _, occ := range occurrences {
			assert.True(t, occ.End.After(from))
			assert.True(t, occ.Start.Before(to))
		}
	})

	t.Run("rejects empty durations", func(t *testing.T) {
		t.Parallel()

		_, err := NewEngine(nil).GenerateOccurrences(rule, baseStart, baseStart, GenerateOptions{})
		require.ErrorIs(t, err, ErrInvalidDuration)
	})

	t.Run("range start does not count against the cap", func(t *testing.T) {
		t.Parallel()

		anchor := time.Date(2010, time.January, 4, 9, 0, 0, 0, time.UTC)
		from := time.Date(2024, time.April, 8, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(0, 0, 7)
		daily := Rule{Frequency: FrequencyDaily}

		engine := NewEngine(nil).WithMaxOccurrences(100)
		occurrences, err := engine.GenerateOccurrences(daily, anchor, anchor.Add(15*time.Minute), GenerateOptions{RangeStart: &from, RangeEnd: &to})
		require.NoError(t, err)
		require.Len(t, occurrences, 7)
		assert.Equal(t, "2024-04-08", occurrences[0].Start.Format(time.DateOnly))
		days := int(from.Sub(time.Date(2010, time.January, 4, 0, 0, 0, 0, time.UTC)).Hours() / 24)
		assert.Equal(t, days, occurrences[0].Index)
	})

	t.Run("range start still consumes count", func(t *testing.T) {
		t.Parallel()

		anchor := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
		from := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
		occurrences, err := ExpandIntervalsFrom(Rule{Frequency: FrequencyDaily, End: Count{N: 5}}, anchor, anchor.Add(time.Hour), from, time.Time{})
		require.NoError(t, err)
		require.Len(t, occurrences, 2)
		assert.Equal(t, 3, occurrences[0].Index)
		assert.Equal(t, "2024-03-05", occurrences[1].Start.Format(time.DateOnly))
	})

	t.Run("ExpandIntervals uses the horizon", func(t *testing.T) {
		t.Parallel()

		open := Rule{Frequency: FrequencyDaily}
		horizon := baseStart.AddDate(0, 0, 3)
		occurrences, err := ExpandIntervals(open, baseStart, baseEnd, horizon)
		require.NoError(t, err)
		assert.Len(t, occurrences, 4)
	})
}

func TestDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2024, Month: time.February, Day: 29}, d)
	assert.Equal(t, "2024-02-29", d.String())
	assert.True(t, d.Before(Date{Year: 2024, Month: time.March, Day: 1}))
	assert.True(t, d.After(Date{Year: 2023, Month: time.December, Day: 31}))
	assert.False(t, d.IsZero())

	_, err = ParseDate("2024-02-30")
	require.ErrorIs(t, err, ErrInvalidRule)
}

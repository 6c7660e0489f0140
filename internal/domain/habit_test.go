package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDayOfTruncatesToUTCMidnight(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	got := DayOf(time.Date(2024, time.January, 4, 2, 30, 0, 0, tokyo))
	require.Equal(t, time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC), got)
	require.Equal(t, time.UTC, got.Location())
}

func TestEligibleOn(t *testing.T) {
	habit := Habit{
		ID:        "h1",
		Title:     "Drink water",
		CreatedAt: time.Date(2024, time.January, 1, 18, 0, 0, 0, time.UTC),
		WeekDays:  []int{int(time.Monday), int(time.Wednesday)},
	}

	cases := []struct {
		name string
		date time.Time
		want bool
	}{
		{"creation day counts", time.Date(2024, time.January, 1, 6, 0, 0, 0, time.UTC), true},
		{"matching weekday after creation", time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC), true},
		{"weekday outside recurrence", time.Date(2024, time.January, 4, 0, 0, 0, 0, time.UTC), false},
		{"matching weekday before creation", time.Date(2023, time.December, 27, 0, 0, 0, 0, time.UTC), false},
		{"day before creation", time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, habit.EligibleOn(tc.date))
		})
	}
}

func TestNormalizeWeekDays(t *testing.T) {
	got, err := NormalizeWeekDays([]int{6, 0, 3, 0, 6})
	require.NoError(t, err)
	require.Equal(t, []int{0, 3, 6}, got)

	_, err = NormalizeWeekDays(nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "weekDays", verr.Field)

	for _, bad := range [][]int{{7}, {-1}, {1, 2, 9}} {
		_, err := NormalizeWeekDays(bad)
		require.ErrorAs(t, err, &verr, "input %v", bad)
	}
}

func TestNormalizeTitle(t *testing.T) {
	title, err := normalizeTitle("  Read 10 pages ")
	require.NoError(t, err)
	require.Equal(t, "Read 10 pages", title)

	_, err = normalizeTitle(" \t ")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "title: title is required", verr.Error())
}

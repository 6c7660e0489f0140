// Package persistencetest holds the behavioural contract every domain.Repository implementation must satisfy.
package persistencetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/habitledger/internal/domain"
)

// Factory returns a fresh, empty repository for a single subtest.
type Factory func(t *testing.T) domain.Repository

// Clock is a settable time source for domain.WithClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts the clock at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current clock value.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock.
func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Date builds a UTC midnight instant.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Run executes the repository contract against repositories built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, repo domain.Repository)
	}{
		{"DrinkWaterScenario", testDrinkWaterScenario},
		{"EligibilityUsesUTCDay", testEligibilityUsesUTCDay},
		{"ToggleTwiceRestoresState", testToggleTwiceRestoresState},
		{"ReadsNeverCreateDays", testReadsNeverCreateDays},
		{"SummaryAmountMatchesDayDetail", testSummaryAmountMatchesDayDetail},
		{"DeleteCascades", testDeleteCascades},
		{"ToggleUnknownHabit", testToggleUnknownHabit},
		{"DuplicateWeekDaysCollapse", testDuplicateWeekDaysCollapse},
		{"ConcurrentTogglesShareOneDay", testConcurrentTogglesShareOneDay},
		{"ListHabitsOrderedByCreation", testListHabitsOrderedByCreation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newRepo(t))
		})
	}
}

func testDrinkWaterScenario(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	clock := NewClock(Date(2024, time.January, 1).Add(9 * time.Hour))
	service := domain.NewService(repo, domain.WithClock(clock.Now))

	habit, err := service.CreateHabit(ctx, domain.CreateHabitInput{
		Title:    "Drink water",
		WeekDays: []int{int(time.Monday), int(time.Wednesday)},
	})
	require.NoError(t, err)
	require.Equal(t, Date(2024, time.January, 1), habit.CreatedAt)

	wednesday, err := service.GetDay(ctx, Date(2024, time.January, 3))
	require.NoError(t, err)
	require.Len(t, wednesday.PossibleHabits, 1)
	require.Equal(t, habit.ID, wednesday.PossibleHabits[0].ID)
	require.Equal(t, "Drink water", wednesday.PossibleHabits[0].Title)
	require.Equal(t, []int{1, 3}, wednesday.PossibleHabits[0].WeekDays)
	require.Empty(t, wednesday.CompletedHabits)

	// Before creation, even on a matching weekday.
	for _, before := range []time.Time{Date(2023, time.December, 31), Date(2023, time.December, 25), Date(2023, time.December, 27)} {
		detail, err := service.GetDay(ctx, before)
		require.NoError(t, err)
		require.Empty(t, detail.PossibleHabits, "habit must not be eligible on %s", before.Format(time.DateOnly))
	}

	thursday, err := service.GetDay(ctx, Date(2024, time.January, 4))
	require.NoError(t, err)
	require.Empty(t, thursday.PossibleHabits)

	date := Date(2024, time.January, 3).Add(15 * time.Hour)
	result, err := service.ToggleHabit(ctx, habit.ID, &date)
	require.NoError(t, err)
	require.True(t, result.Completed)
	require.Equal(t, Date(2024, time.January, 3), result.Date)

	summary, err := service.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	require.NotEmpty(t, summary[0].ID)
	require.True(t, summary[0].Date.Equal(Date(2024, time.January, 3)))
	require.Equal(t, 1, summary[0].Completed)
	require.Equal(t, 1, summary[0].Amount)

	wednesday, err = service.GetDay(ctx, Date(2024, time.January, 3))
	require.NoError(t, err)
	require.Equal(t, []string{habit.ID}, wednesday.CompletedHabits)
}

func testEligibilityUsesUTCDay(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	clock := NewClock(Date(2024, time.January, 1))
	service := domain.NewService(repo, domain.WithClock(clock.Now))

	habit, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Stretch", WeekDays: []int{int(time.Wednesday)}})
	require.NoError(t, err)

	// 23:30 on Wednesday in New York is already Thursday in UTC.
	newYork := time.FixedZone("EST", -5*60*60)
	lateWednesday := time.Date(2024, time.January, 3, 23, 30, 0, 0, newYork)
	detail, err := service.GetDay(ctx, lateWednesday)
	require.NoError(t, err)
	require.Empty(t, detail.PossibleHabits)

	// 20:00 on Wednesday in Tokyo is still Wednesday in UTC.
	tokyo := time.FixedZone("JST", 9*60*60)
	wednesdayEvening := time.Date(2024, time.January, 3, 20, 0, 0, 0, tokyo)
	detail, err = service.GetDay(ctx, wednesdayEvening)
	require.NoError(t, err)
	require.Len(t, detail.PossibleHabits, 1)

	result, err := service.ToggleHabit(ctx, habit.ID, &lateWednesday)
	require.NoError(t, err)
	require.Equal(t, Date(2024, time.January, 4), result.Date)
	require.Equal(t, time.UTC, result.Date.Location())
}

func testToggleTwiceRestoresState(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	clock := NewClock(Date(2024, time.March, 4))
	service := domain.NewService(repo, domain.WithClock(clock.Now))

	habit, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Read", WeekDays: []int{0, 1, 2, 3, 4, 5, 6}})
	require.NoError(t, err)

	first, err := service.ToggleHabit(ctx, habit.ID, nil)
	require.NoError(t, err)
	require.True(t, first.Completed)
	require.Equal(t, Date(2024, time.March, 4), first.Date)

	second, err := service.ToggleHabit(ctx, habit.ID, nil)
	require.NoError(t, err)
	require.False(t, second.Completed)

	detail, err := service.GetDay(ctx, Date(2024, time.March, 4))
	require.NoError(t, err)
	require.Empty(t, detail.CompletedHabits)

	// The Day created by the first toggle stays behind with zero completions.
	summary, err := service.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	require.Equal(t, 0, summary[0].Completed)
	require.Equal(t, 1, summary[0].Amount)
}

func testReadsNeverCreateDays(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	clock := NewClock(Date(2024, time.February, 1))
	service := domain.NewService(repo, domain.WithClock(clock.Now))

	_, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Walk", WeekDays: []int{0, 1, 2, 3, 4, 5, 6}})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := service.GetDay(ctx, Date(2024, time.February, 1).AddDate(0, 0, i))
		require.NoError(t, err)
	}

	summary, err := service.Summary(ctx)
	require.NoError(t, err)
	require.Empty(t, summary)
}

func testSummaryAmountMatchesDayDetail(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	clock := NewClock(Date(2024, time.April, 1))
	service := domain.NewService(repo, domain.WithClock(clock.Now))

	everyday, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Meditate", WeekDays: []int{0, 1, 2, 3, 4, 5, 6}})
	require.NoError(t, err)
	weekdays, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Commute by bike", WeekDays: []int{1, 2, 3, 4, 5}})
	require.NoError(t, err)

	clock.Set(Date(2024, time.April, 10))
	weekends, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Long run", WeekDays: []int{0, 6}})
	require.NoError(t, err)

	toggles := []struct {
		habit string
		date  time.Time
	}{
		{everyday.ID, Date(2024, time.April, 2)},
		{weekdays.ID, Date(2024, time.April, 2)},
		{everyday.ID, Date(2024, time.April, 6)},
		{weekends.ID, Date(2024, time.April, 13)},
		{everyday.ID, Date(2024, time.April, 13)},
		{weekdays.ID, Date(2024, time.April, 15)},
	}
	for _, tg := range toggles {
		date := tg.date
		_, err := service.ToggleHabit(ctx, tg.habit, &date)
		require.NoError(t, err)
	}

	summary, err := service.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 4)

	for i, entry := range summary {
		if i > 0 {
			require.True(t, summary[i-1].Date.Before(entry.Date), "summary must be ordered by date")
		}
		detail, err := service.GetDay(ctx, entry.Date)
		require.NoError(t, err)
		require.Equal(t, len(detail.PossibleHabits), entry.Amount, "amount for %s", entry.Date.Format(time.DateOnly))
		require.Equal(t, len(detail.CompletedHabits), entry.Completed, "completed for %s", entry.Date.Format(time.DateOnly))
	}

	expected := map[string][2]int{
		"2024-04-02": {2, 2}, // Tuesday: meditate + bike
		"2024-04-06": {1, 1}, // Saturday before the long-run habit existed
		"2024-04-13": {2, 2}, // Saturday: meditate + long run
		"2024-04-15": {1, 2}, // Monday: meditate + bike
	}
	for _, entry := range summary {
		want, ok := expected[entry.Date.Format(time.DateOnly)]
		require.True(t, ok, "unexpected day %s", entry.Date)
		require.Equal(t, want[0], entry.Completed, "completed for %s", entry.Date.Format(time.DateOnly))
		require.Equal(t, want[1], entry.Amount, "amount for %s", entry.Date.Format(time.DateOnly))
	}
}

func testDeleteCascades(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	clock := NewClock(Date(2024, time.May, 1))
	service := domain.NewService(repo, domain.WithClock(clock.Now))

	keep, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Journal", WeekDays: []int{0, 1, 2, 3, 4, 5, 6}})
	require.NoError(t, err)
	drop, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Cold shower", WeekDays: []int{0, 1, 2, 3, 4, 5, 6}})
	require.NoError(t, err)

	for _, id := range []string{keep.ID, drop.ID} {
		_, err := service.ToggleHabit(ctx, id, nil)
		require.NoError(t, err)
	}

	require.NoError(t, service.DeleteHabit(ctx, drop.ID))

	detail, err := service.GetDay(ctx, Date(2024, time.May, 1))
	require.NoError(t, err)
	require.Len(t, detail.PossibleHabits, 1)
	require.Equal(t, keep.ID, detail.PossibleHabits[0].ID)
	require.Equal(t, []string{keep.ID}, detail.CompletedHabits)

	future, err := service.GetDay(ctx, Date(2025, time.May, 1))
	require.NoError(t, err)
	for _, h := range future.PossibleHabits {
		require.NotEqual(t, drop.ID, h.ID)
	}

	summary, err := service.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	require.Equal(t, 1, summary[0].Completed)
	require.Equal(t, 1, summary[0].Amount)

	require.ErrorIs(t, service.DeleteHabit(ctx, drop.ID), domain.ErrHabitNotFound)

	_, err = service.ToggleHabit(ctx, drop.ID, nil)
	require.ErrorIs(t, err, domain.ErrHabitNotFound)

	stored, err := repo.GetHabit(ctx, drop.ID)
	require.NoError(t, err)
	require.Nil(t, stored)
}

func testToggleUnknownHabit(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	service := domain.NewService(repo, domain.WithClock(NewClock(Date(2024, time.June, 1)).Now))

	_, err := service.ToggleHabit(ctx, uuid.NewString(), nil)
	require.ErrorIs(t, err, domain.ErrHabitNotFound)

	// The repository itself must refuse dangling completions.
	_, err = repo.ToggleCompletion(ctx, uuid.NewString(), Date(2024, time.June, 1))
	require.ErrorIs(t, err, domain.ErrHabitNotFound)

	summary, err := service.Summary(ctx)
	require.NoError(t, err)
	for _, entry := range summary {
		require.Zero(t, entry.Completed)
	}
}

func testDuplicateWeekDaysCollapse(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	clock := NewClock(Date(2024, time.July, 1))
	service := domain.NewService(repo, domain.WithClock(clock.Now))

	habit, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: "  Floss  ", WeekDays: []int{3, 1, 3, 1}})
	require.NoError(t, err)
	require.Equal(t, "Floss", habit.Title)
	require.Equal(t, []int{1, 3}, habit.WeekDays)

	date := Date(2024, time.July, 3)
	_, err = service.ToggleHabit(ctx, habit.ID, &date)
	require.NoError(t, err)

	summary, err := service.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	require.Equal(t, 1, summary[0].Amount)

	detail, err := service.GetDay(ctx, date)
	require.NoError(t, err)
	require.Len(t, detail.PossibleHabits, 1)
}

func testConcurrentTogglesShareOneDay(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	clock := NewClock(Date(2024, time.August, 1))
	service := domain.NewService(repo, domain.WithClock(clock.Now))

	const habits = 8
	ids := make([]string, 0, habits)
	for i := 0; i < habits; i++ {
		h, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: fmt.Sprintf("habit-%d", i), WeekDays: []int{0, 1, 2, 3, 4, 5, 6}})
		require.NoError(t, err)
		ids = append(ids, h.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, habits)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := service.ToggleHabit(ctx, id, nil); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	summary, err := service.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1, "concurrent first toggles must share a single Day")
	require.Equal(t, habits, summary[0].Completed)
	require.Equal(t, habits, summary[0].Amount)
}

func testListHabitsOrderedByCreation(t *testing.T, repo domain.Repository) {
	ctx := context.Background()
	clock := NewClock(Date(2024, time.September, 2))
	service := domain.NewService(repo, domain.WithClock(clock.Now))

	_, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Yoga", WeekDays: []int{1}})
	require.NoError(t, err)
	clock.Set(Date(2024, time.September, 1))
	_, err = service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Piano", WeekDays: []int{2}})
	require.NoError(t, err)
	clock.Set(Date(2024, time.September, 2))
	_, err = service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Archery", WeekDays: []int{3}})
	require.NoError(t, err)

	habits, err := service.ListHabits(ctx)
	require.NoError(t, err)
	require.Len(t, habits, 3)
	require.Equal(t, "Piano", habits[0].Title)
	require.Equal(t, "Archery", habits[1].Title)
	require.Equal(t, "Yoga", habits[2].Title)
	require.Equal(t, []int{2}, habits[0].WeekDays)
}

package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/habitledger/internal/domain"
	"example.com/habitledger/internal/persistence/memory"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreateHabitRejectsInvalidInput(t *testing.T) {
	repo := memory.NewRepository()
	service := domain.NewService(repo)
	ctx := context.Background()

	cases := []struct {
		name  string
		input domain.CreateHabitInput
		field string
	}{
		{"blank title", domain.CreateHabitInput{Title: "  ", WeekDays: []int{1}}, "title"},
		{"no week days", domain.CreateHabitInput{Title: "Run"}, "weekDays"},
		{"week day out of range", domain.CreateHabitInput{Title: "Run", WeekDays: []int{7}}, "weekDays"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.CreateHabit(ctx, tc.input)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.field, verr.Field)
		})
	}

	habits, err := repo.ListHabits(ctx)
	require.NoError(t, err)
	require.Empty(t, habits, "invalid input must not reach storage")
}

func TestCreateHabitStampsTodayInUTC(t *testing.T) {
	lateEvening := time.Date(2024, time.January, 1, 22, 0, 0, 0, time.FixedZone("PST", -8*60*60))
	service := domain.NewService(memory.NewRepository(), domain.WithClock(fixedClock(lateEvening)))

	habit, err := service.CreateHabit(context.Background(), domain.CreateHabitInput{Title: "Walk", WeekDays: []int{2}})
	require.NoError(t, err)
	require.NoError(t, uuid.Validate(habit.ID))
	require.Equal(t, time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), habit.CreatedAt)
}

func TestGetDayRequiresDate(t *testing.T) {
	service := domain.NewService(memory.NewRepository())

	_, err := service.GetDay(context.Background(), time.Time{})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "date", verr.Field)
}

func TestGetDayReturnsEmptyListsNotNil(t *testing.T) {
	service := domain.NewService(memory.NewRepository())

	detail, err := service.GetDay(context.Background(), time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, detail.PossibleHabits)
	require.NotNil(t, detail.CompletedHabits)
	require.Empty(t, detail.PossibleHabits)
}

func TestToggleHabitValidatesID(t *testing.T) {
	service := domain.NewService(memory.NewRepository())

	_, err := service.ToggleHabit(context.Background(), "not-a-uuid", nil)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "id", verr.Field)

	err = service.DeleteHabit(context.Background(), "")
	require.ErrorAs(t, err, &verr)
}

func TestDeleteUnknownHabit(t *testing.T) {
	service := domain.NewService(memory.NewRepository())
	err := service.DeleteHabit(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, domain.ErrHabitNotFound)
}

func TestSummaryIsNeverNil(t *testing.T) {
	service := domain.NewService(memory.NewRepository())
	summary, err := service.Summary(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)
	require.Empty(t, summary)
}

type failingRepository struct {
	domain.Repository
	err error
}

func (f failingRepository) GetHabit(context.Context, string) (*domain.Habit, error) {
	return nil, f.err
}

func (f failingRepository) Summary(context.Context) ([]domain.DaySummary, error) {
	return nil, f.err
}

func TestStorageErrorsPropagate(t *testing.T) {
	boom := errors.New("connection reset")
	service := domain.NewService(failingRepository{Repository: memory.NewRepository(), err: boom})
	ctx := context.Background()

	_, err := service.ToggleHabit(ctx, uuid.NewString(), nil)
	require.ErrorIs(t, err, boom)

	require.ErrorIs(t, service.DeleteHabit(ctx, uuid.NewString()), boom)

	_, err = service.Summary(ctx)
	require.ErrorIs(t, err, boom)
}

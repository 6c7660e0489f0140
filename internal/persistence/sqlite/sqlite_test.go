package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/habitledger/internal/domain"
	"example.com/habitledger/internal/persistence/persistencetest"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepositoryContract(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) domain.Repository {
		return newTestRepository(t)
	})
}

func TestRepositoryPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	repo, err := New(path)
	require.NoError(t, err)

	clock := persistencetest.NewClock(persistencetest.Date(2024, time.January, 1))
	service := domain.NewService(repo, domain.WithClock(clock.Now))
	habit, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Drink water", WeekDays: []int{1, 3}})
	require.NoError(t, err)
	_, err = service.ToggleHabit(ctx, habit.ID, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	stored, err := reopened.GetHabit(ctx, habit.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, habit.Title, stored.Title)
	require.Equal(t, []int{1, 3}, stored.WeekDays)
	require.True(t, stored.CreatedAt.Equal(persistencetest.Date(2024, time.January, 1)))

	completed, err := reopened.CompletedHabitIDs(ctx, persistencetest.Date(2024, time.January, 1))
	require.NoError(t, err)
	require.Equal(t, []string{habit.ID}, completed)
}

func TestDeleteRemovesCompletionRows(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	service := domain.NewService(repo, domain.WithClock(persistencetest.NewClock(persistencetest.Date(2024, time.February, 5)).Now))

	habit, err := service.CreateHabit(ctx, domain.CreateHabitInput{Title: "Run", WeekDays: []int{1}})
	require.NoError(t, err)
	_, err = service.ToggleHabit(ctx, habit.ID, nil)
	require.NoError(t, err)
	require.NoError(t, service.DeleteHabit(ctx, habit.ID))

	var remaining int
	require.NoError(t, repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM day_habits").Scan(&remaining))
	require.Zero(t, remaining)
	require.NoError(t, repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM habit_week_days").Scan(&remaining))
	require.Zero(t, remaining)
}

func TestPing(t *testing.T) {
	require.NoError(t, newTestRepository(t).Ping(context.Background()))
}

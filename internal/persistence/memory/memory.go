// Package memory provides an in-process habit ledger repository for local development and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/habitledger/internal/domain"
)

var _ domain.Repository = (*Repository)(nil)

// Repository stores habits, days and completion records in maps guarded by a single lock.
type Repository struct {
	mu          sync.RWMutex
	habits      map[string]domain.Habit
	days        map[string]domain.Day
	completions map[string]map[string]struct{}
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		habits:      make(map[string]domain.Habit),
		days:        make(map[string]domain.Day),
		completions: make(map[string]map[string]struct{}),
	}
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }

// CreateHabit implements domain.Repository.
func (r *Repository) CreateHabit(ctx context.Context, habit domain.Habit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.habits[habit.ID] = cloneHabit(habit)
	return nil
}

// GetHabit returns nil when the habit does not exist.
func (r *Repository) GetHabit(ctx context.Context, id string) (*domain.Habit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	habit, ok := r.habits[id]
	if !ok {
		return nil, nil
	}
	out := cloneHabit(habit)
	return &out, nil
}

// ListHabits implements domain.Repository.
func (r *Repository) ListHabits(ctx context.Context) ([]domain.Habit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Habit, 0, len(r.habits))
	for _, habit := range r.habits {
		out = append(out, cloneHabit(habit))
	}
	sortHabits(out)
	return out, nil
}

// EligibleHabits implements domain.Repository.
func (r *Repository) EligibleHabits(ctx context.Context, day time.Time) ([]domain.Habit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Habit, 0)
	for _, habit := range r.habits {
		if habit.EligibleOn(day) {
			out = append(out, cloneHabit(habit))
		}
	}
	sortHabits(out)
	return out, nil
}

// CompletedHabitIDs implements domain.Repository.
func (r *Repository) CompletedHabitIDs(ctx context.Context, day time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.days[dateKey(day)]
	if !ok {
		return []string{}, nil
	}
	ids := make([]string, 0, len(r.completions[stored.ID]))
	for id := range r.completions[stored.ID] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// ToggleCompletion implements domain.Repository.
func (r *Repository) ToggleCompletion(ctx context.Context, habitID string, day time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.habits[habitID]; !ok {
		return false, domain.ErrHabitNotFound
	}

	key := dateKey(day)
	stored, ok := r.days[key]
	if !ok {
		stored = domain.Day{ID: uuid.NewString(), Date: domain.DayOf(day)}
		r.days[key] = stored
		r.completions[stored.ID] = make(map[string]struct{})
	}

	set := r.completions[stored.ID]
	if _, done := set[habitID]; done {
		delete(set, habitID)
		return false, nil
	}
	set[habitID] = struct{}{}
	return true, nil
}

// Summary implements domain.Repository.
func (r *Repository) Summary(ctx context.Context) ([]domain.DaySummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.DaySummary, 0, len(r.days))
	for _, day := range r.days {
		amount := 0
		for _, habit := range r.habits {
			if habit.EligibleOn(day.Date) {
				amount++
			}
		}
		out = append(out, domain.DaySummary{
			ID:        day.ID,
			Date:      day.Date,
			Completed: len(r.completions[day.ID]),
			Amount:    amount,
		})
	}
	slices.SortFunc(out, func(a, b domain.DaySummary) int {
		return a.Date.Compare(b.Date)
	})
	return out, nil
}

// DeleteHabit implements domain.Repository.
func (r *Repository) DeleteHabit(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.habits[id]; !ok {
		return domain.ErrHabitNotFound
	}
	for _, set := range r.completions {
		delete(set, id)
	}
	delete(r.habits, id)
	return nil
}

func dateKey(day time.Time) string {
	return domain.DayOf(day).Format(time.DateOnly)
}

func cloneHabit(h domain.Habit) domain.Habit {
	h.WeekDays = slices.Clone(h.WeekDays)
	return h
}

func sortHabits(habits []domain.Habit) {
	slices.SortFunc(habits, func(a, b domain.Habit) int {
		return cmp.Or(
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.Title, b.Title),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

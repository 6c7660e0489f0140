// Package domain defines the habit ledger: which habits are due on a day and how daily completions aggregate.
package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"example.com/habitledger/internal/observability"
)

var (
	// ErrHabitNotFound is returned when an operation references a habit that does not exist.
	ErrHabitNotFound = errors.New("habit not found")
)

// Repository captures persistence operations. Dates passed in are already truncated with DayOf.
type Repository interface {
	CreateHabit(ctx context.Context, habit Habit) error
	GetHabit(ctx context.Context, id string) (*Habit, error)
	ListHabits(ctx context.Context) ([]Habit, error)
	EligibleHabits(ctx context.Context, day time.Time) ([]Habit, error)
	CompletedHabitIDs(ctx context.Context, day time.Time) ([]string, error)
	// ToggleCompletion creates the Day for day if needed, then flips the completion record and returns the new state.
	// It returns ErrHabitNotFound when the habit vanished before the record could be written.
	ToggleCompletion(ctx context.Context, habitID string, day time.Time) (bool, error)
	Summary(ctx context.Context) ([]DaySummary, error)
	// DeleteHabit removes completions, recurrence entries and the habit, or returns ErrHabitNotFound.
	DeleteHabit(ctx context.Context, id string) error
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the source of "now", used for habit creation days and default toggle dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service orchestrates habit ledger workflows. It holds no state besides its repository.
type Service struct {
	repo   Repository
	now    func() time.Time
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current UTC calendar day.
func (s *Service) Today() time.Time {
	return DayOf(s.now())
}

// CreateHabit validates the input and persists the habit with created_at set to today.
func (s *Service) CreateHabit(ctx context.Context, input CreateHabitInput) (Habit, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return Habit{}, err
	}
	weekDays, err := NormalizeWeekDays(input.WeekDays)
	if err != nil {
		return Habit{}, err
	}

	habit := Habit{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: s.Today(),
		WeekDays:  weekDays,
	}
	if err := s.repo.CreateHabit(ctx, habit); err != nil {
		return Habit{}, err
	}

	observability.RecordHabitCreated()
	s.logger.DebugContext(ctx, "habit created", "habit_id", habit.ID, "week_days", habit.WeekDays)
	return habit, nil
}

// ListHabits returns every habit.
func (s *Service) ListHabits(ctx context.Context) ([]Habit, error) {
	habits, err := s.repo.ListHabits(ctx)
	if err != nil {
		return nil, err
	}
	if habits == nil {
		habits = []Habit{}
	}
	return habits, nil
}

// GetDay returns the habits eligible on date and the ids completed on it. It never creates a Day.
func (s *Service) GetDay(ctx context.Context, date time.Time) (DayDetail, error) {
	if date.IsZero() {
		return DayDetail{}, &ValidationError{Field: "date", Reason: "date is required"}
	}
	day := DayOf(date)

	possible, err := s.repo.EligibleHabits(ctx, day)
	if err != nil {
		return DayDetail{}, err
	}
	completed, err := s.repo.CompletedHabitIDs(ctx, day)
	if err != nil {
		return DayDetail{}, err
	}

	if possible == nil {
		possible = []Habit{}
	}
	if completed == nil {
		completed = []string{}
	}
	return DayDetail{PossibleHabits: possible, CompletedHabits: completed}, nil
}

// ToggleHabit flips the completion of a habit on date, or today when date is nil.
func (s *Service) ToggleHabit(ctx context.Context, habitID string, date *time.Time) (ToggleResult, error) {
	if err := validateID(habitID); err != nil {
		return ToggleResult{}, err
	}

	day := s.Today()
	if date != nil {
		day = DayOf(*date)
	}

	habit, err := s.repo.GetHabit(ctx, habitID)
	if err != nil {
		return ToggleResult{}, err
	}
	if habit == nil {
		return ToggleResult{}, ErrHabitNotFound
	}

	completed, err := s.repo.ToggleCompletion(ctx, habitID, day)
	if err != nil {
		return ToggleResult{}, err
	}

	observability.RecordCompletionToggled(completed, s.now())
	s.logger.DebugContext(ctx, "habit toggled", "habit_id", habitID, "date", day.Format(time.DateOnly), "completed", completed)
	return ToggleResult{HabitID: habitID, Date: day, Completed: completed}, nil
}

// Summary returns one aggregate per existing Day ordered by date.
func (s *Service) Summary(ctx context.Context) ([]DaySummary, error) {
	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		summary = []DaySummary{}
	}
	observability.RecordSummaryDays(len(summary))
	return summary, nil
}

// DeleteHabit removes a habit together with its recurrence entries and completion records.
func (s *Service) DeleteHabit(ctx context.Context, habitID string) error {
	if err := validateID(habitID); err != nil {
		return err
	}
	habit, err := s.repo.GetHabit(ctx, habitID)
	if err != nil {
		return err
	}
	if habit == nil {
		return ErrHabitNotFound
	}
	if err := s.repo.DeleteHabit(ctx, habitID); err != nil {
		return err
	}

	observability.RecordHabitDeleted()
	s.logger.DebugContext(ctx, "habit deleted", "habit_id", habitID)
	return nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &ValidationError{Field: "id", Reason: "must be a valid uuid"}
	}
	return nil
}

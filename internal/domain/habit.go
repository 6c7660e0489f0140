package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Weekday bounds, 0=Sunday through 6=Saturday.
const (
	MinWeekDay = 0
	MaxWeekDay = 6
)

// Habit is a user-defined recurring task together with its weekly recurrence set.
type Habit struct {
	ID        string
	Title     string
	CreatedAt time.Time
	WeekDays  []int
}

// EligibleOn reports whether the habit counts toward the given calendar day: the day's UTC weekday must be in the
// recurrence set and the habit must not have been created after that day.
func (h Habit) EligibleOn(date time.Time) bool {
	day := DayOf(date)
	if DayOf(h.CreatedAt).After(day) {
		return false
	}
	return slices.Contains(h.WeekDays, int(day.Weekday()))
}

// Day is the storage record for a calendar date that has seen completion activity.
type Day struct {
	ID   string
	Date time.Time
}

// DayDetail lists the habits due on a day and the ids of those marked done.
type DayDetail struct {
	PossibleHabits  []Habit
	CompletedHabits []string
}

// DaySummary aggregates one existing Day. Amount counts eligible habits whether or not they were completed.
type DaySummary struct {
	ID        string
	Date      time.Time
	Completed int
	Amount    int
}

// ToggleResult is the completion state left behind by a toggle.
type ToggleResult struct {
	HabitID   string
	Date      time.Time
	Completed bool
}

// CreateHabitInput captures the payload from the API layer.
type CreateHabitInput struct {
	Title    string
	WeekDays []int
}

// ValidationError reports malformed input. It is always returned before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// DayOf truncates t to the start of its UTC calendar day.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NormalizeWeekDays validates the recurrence set and returns it sorted without duplicates.
func NormalizeWeekDays(days []int) ([]int, error) {
	if len(days) == 0 {
		return nil, &ValidationError{Field: "weekDays", Reason: "at least one week day is required"}
	}
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < MinWeekDay || d > MaxWeekDay {
			return nil, &ValidationError{Field: "weekDays", Reason: fmt.Sprintf("week day %d out of range [%d,%d]", d, MinWeekDay, MaxWeekDay)}
		}
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return out, nil
}

func normalizeTitle(title string) (string, error) {
	clean := strings.TrimSpace(title)
	if clean == "" {
		return "", &ValidationError{Field: "title", Reason: "title is required"}
	}
	return clean, nil
}

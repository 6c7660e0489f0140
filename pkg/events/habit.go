// Package events defines the habit ledger event payloads published through the outbox.
package events

import "time"

// Event types carried in the outbox and the event_type Kafka header.
const (
	HabitCreatedType           = "habit.created"
	HabitCompletionToggledType = "habit.completion_toggled"
	HabitDeletedType           = "habit.deleted"
)

// HabitCreated is emitted when a habit and its recurrence set are stored.
type HabitCreated struct {
	HabitID   string    `json:"habit_id"`
	Title     string    `json:"title"`
	WeekDays  []int     `json:"week_days"`
	CreatedAt time.Time `json:"created_at"`
}

// HabitCompletionToggled records the completion state left behind by a toggle.
type HabitCompletionToggled struct {
	HabitID    string    `json:"habit_id"`
	DayID      string    `json:"day_id"`
	Date       string    `json:"date"`
	Completed  bool      `json:"completed"`
	OccurredAt time.Time `json:"occurred_at"`
}

// HabitDeleted is emitted after a habit and its completions are removed.
type HabitDeleted struct {
	HabitID    string    `json:"habit_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

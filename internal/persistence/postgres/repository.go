// Package postgres stores the habit ledger in PostgreSQL and records outbox events in the same transactions.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/habitledger/internal/domain"
	"example.com/habitledger/internal/outbox"
	"example.com/habitledger/pkg/events"
)

const foreignKeyViolation = "23503"

var _ domain.Repository = (*Repository)(nil)

// Option configures the Repository.
type Option func(*Repository)

// WithOutbox toggles writing outbox rows alongside mutations. Enabled by default.
func WithOutbox(enabled bool) Option {
	return func(r *Repository) {
		r.outbox = enabled
	}
}

// Repository provides Postgres-backed persistence for habits, days and completions.
type Repository struct {
	pool   *pgxpool.Pool
	outbox bool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{pool: pool, outbox: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CreateHabit persists the habit with its recurrence set.
func (r *Repository) CreateHabit(ctx context.Context, habit domain.Habit) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `INSERT INTO habits (habit_id, title, created_at) VALUES ($1,$2,$3)`,
		habit.ID, habit.Title, habit.CreatedAt); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, `INSERT INTO habit_week_days (habit_id, week_day)
        SELECT $1, unnest($2::smallint[])`, habit.ID, habit.WeekDays); err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, habit.ID, events.HabitCreatedType, events.HabitCreated{
		HabitID:   habit.ID,
		Title:     habit.Title,
		WeekDays:  habit.WeekDays,
		CreatedAt: habit.CreatedAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const selectHabits = `SELECT h.habit_id::text, h.title, h.created_at,
        array_agg(w.week_day::int ORDER BY w.week_day)
    FROM habits h
    JOIN habit_week_days w ON w.habit_id = h.habit_id`

const habitsGrouping = ` GROUP BY h.habit_id ORDER BY h.created_at, h.title, h.habit_id`

// GetHabit retrieves a habit by id, returning nil when it does not exist.
func (r *Repository) GetHabit(ctx context.Context, id string) (*domain.Habit, error) {
	habits, err := r.queryHabits(ctx, selectHabits+` WHERE h.habit_id = $1`+habitsGrouping, id)
	if err != nil {
		return nil, err
	}
	if len(habits) == 0 {
		return nil, nil
	}
	return &habits[0], nil
}

// ListHabits returns every habit ordered by creation day.
func (r *Repository) ListHabits(ctx context.Context) ([]domain.Habit, error) {
	return r.queryHabits(ctx, selectHabits+habitsGrouping)
}

// EligibleHabits returns habits created on or before day whose recurrence set contains day's weekday.
func (r *Repository) EligibleHabits(ctx context.Context, day time.Time) ([]domain.Habit, error) {
	query := selectHabits + `
    WHERE h.created_at <= $1
      AND EXISTS (SELECT 1 FROM habit_week_days e WHERE e.habit_id = h.habit_id AND e.week_day = $2)` + habitsGrouping
	return r.queryHabits(ctx, query, day, int(day.Weekday()))
}

func (r *Repository) queryHabits(ctx context.Context, query string, args ...any) ([]domain.Habit, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	habits := make([]domain.Habit, 0)
	for rows.Next() {
		var h domain.Habit
		if err := rows.Scan(&h.ID, &h.Title, &h.CreatedAt, &h.WeekDays); err != nil {
			return nil, err
		}
		h.CreatedAt = domain.DayOf(h.CreatedAt)
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return habits, nil
}

// CompletedHabitIDs lists the habits marked done on day. Days that were never toggled yield an empty list.
func (r *Repository) CompletedHabitIDs(ctx context.Context, day time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT dh.habit_id::text
        FROM day_habits dh
        JOIN days d ON d.day_id = dh.day_id
        WHERE d.date = $1
        ORDER BY dh.habit_id::text`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ToggleCompletion upserts the Day for day, then deletes the completion record if present or inserts it otherwise.
func (r *Repository) ToggleCompletion(ctx context.Context, habitID string, day time.Time) (completed bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	dayID, err := upsertDay(ctx, tx, day)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM day_habits WHERE day_id = $1 AND habit_id = $2`, dayID, habitID)
	if err != nil {
		return false, err
	}
	completed = tag.RowsAffected() == 0

	if completed {
		if _, err = tx.Exec(ctx, `INSERT INTO day_habits (day_id, habit_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, dayID, habitID); err != nil {
			if isForeignKeyViolation(err) {
				err = domain.ErrHabitNotFound
			}
			return false, err
		}
	}

	if err = r.insertOutbox(ctx, tx, habitID, events.HabitCompletionToggledType, events.HabitCompletionToggled{
		HabitID:    habitID,
		DayID:      dayID,
		Date:       day.Format(time.DateOnly),
		Completed:  completed,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return completed, nil
}

// upsertDay creates the Day row for day unless a concurrent writer already did, and returns its id.
func upsertDay(ctx context.Context, tx pgx.Tx, day time.Time) (string, error) {
	var dayID string
	err := tx.QueryRow(ctx, `INSERT INTO days (day_id, date) VALUES ($1,$2)
        ON CONFLICT (date) DO NOTHING
        RETURNING day_id::text`, uuid.NewString(), day).Scan(&dayID)
	if err == nil {
		return dayID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	if err := tx.QueryRow(ctx, `SELECT day_id::text FROM days WHERE date = $1`, day).Scan(&dayID); err != nil {
		return "", err
	}
	return dayID, nil
}

// Summary aggregates every existing Day. Amount is derived from the recurrence sets, not from completions.
func (r *Repository) Summary(ctx context.Context) ([]domain.DaySummary, error) {
	const query = `SELECT d.day_id::text, d.date,
        (SELECT COUNT(*) FROM day_habits dh WHERE dh.day_id = d.day_id) AS completed,
        (SELECT COUNT(*)
           FROM habits h
           JOIN habit_week_days w ON w.habit_id = h.habit_id
          WHERE w.week_day = EXTRACT(DOW FROM d.date)::int
            AND h.created_at <= d.date) AS amount
    FROM days d
    ORDER BY d.date`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := make([]domain.DaySummary, 0)
	for rows.Next() {
		var s domain.DaySummary
		if err := rows.Scan(&s.ID, &s.Date, &s.Completed, &s.Amount); err != nil {
			return nil, err
		}
		s.Date = domain.DayOf(s.Date)
		summary = append(summary, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summary, nil
}

// DeleteHabit removes the habit; recurrence entries and completion records go with it through ON DELETE CASCADE.
func (r *Repository) DeleteHabit(ctx context.Context, id string) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM habits WHERE habit_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHabitNotFound
	}

	if err = r.insertOutbox(ctx, tx, id, events.HabitDeletedType, events.HabitDeleted{
		HabitID:    id,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, habitID, eventType string, payload any) error {
	if !r.outbox {
		return nil
	}

	route, ok := outbox.RouteFor(eventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		"habit",
		habitID,
		eventType,
		route.Topic,
		route.SchemaSubject,
		habitID,
		body,
	)
	return err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

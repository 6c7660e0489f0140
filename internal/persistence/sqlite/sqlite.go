// Package sqlite provides a single-file habit ledger store for local runs without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	driver "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	"example.com/habitledger/internal/domain"
)

var _ domain.Repository = (*Repository)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS habits (
    habit_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS habit_week_days (
    habit_id TEXT NOT NULL,
    week_day INTEGER NOT NULL CHECK (week_day BETWEEN 0 AND 6),
    PRIMARY KEY (habit_id, week_day),
    FOREIGN KEY (habit_id) REFERENCES habits(habit_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS days (
    day_id TEXT PRIMARY KEY,
    date TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS day_habits (
    day_id TEXT NOT NULL,
    habit_id TEXT NOT NULL,
    PRIMARY KEY (day_id, habit_id),
    FOREIGN KEY (day_id) REFERENCES days(day_id) ON DELETE CASCADE,
    FOREIGN KEY (habit_id) REFERENCES habits(habit_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_day_habits_habit_id ON day_habits(habit_id);
`

// Repository implements domain.Repository on SQLite.
type Repository struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// PRAGMAs are per connection; a single connection also serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks the database handle.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateHabit implements domain.Repository.
func (r *Repository) CreateHabit(ctx context.Context, habit domain.Habit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO habits (habit_id, title, created_at) VALUES (?, ?, ?)",
		habit.ID, habit.Title, dateKey(habit.CreatedAt),
	); err != nil {
		return fmt.Errorf("failed to insert habit: %w", err)
	}

	for _, wd := range habit.WeekDays {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO habit_week_days (habit_id, week_day) VALUES (?, ?)",
			habit.ID, wd,
		); err != nil {
			return fmt.Errorf("failed to insert week day: %w", err)
		}
	}

	return tx.Commit()
}

// GetHabit returns nil when the habit does not exist.
func (r *Repository) GetHabit(ctx context.Context, id string) (*domain.Habit, error) {
	habits, err := r.loadHabits(ctx, "WHERE habit_id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(habits) == 0 {
		return nil, nil
	}
	return &habits[0], nil
}

// ListHabits implements domain.Repository.
func (r *Repository) ListHabits(ctx context.Context) ([]domain.Habit, error) {
	return r.loadHabits(ctx, "")
}

// EligibleHabits implements domain.Repository.
func (r *Repository) EligibleHabits(ctx context.Context, day time.Time) ([]domain.Habit, error) {
	habits, err := r.loadHabits(ctx, "WHERE created_at <= ?", dateKey(day))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Habit, 0, len(habits))
	for _, h := range habits {
		if h.EligibleOn(day) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *Repository) loadHabits(ctx context.Context, where string, args ...any) ([]domain.Habit, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT habit_id, title, created_at FROM habits "+where+" ORDER BY created_at, title, habit_id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query habits: %w", err)
	}
	defer rows.Close()

	habits := make([]domain.Habit, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			h       domain.Habit
			created string
		)
		if err := rows.Scan(&h.ID, &h.Title, &created); err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		if h.CreatedAt, err = time.Parse(time.DateOnly, created); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
		}
		index[h.ID] = len(habits)
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(habits) == 0 {
		return habits, nil
	}

	wdRows, err := r.db.QueryContext(ctx, "SELECT habit_id, week_day FROM habit_week_days ORDER BY habit_id, week_day")
	if err != nil {
		return nil, fmt.Errorf("failed to query week days: %w", err)
	}
	defer wdRows.Close()

	for wdRows.Next() {
		var (
			habitID string
			wd      int
		)
		if err := wdRows.Scan(&habitID, &wd); err != nil {
			return nil, fmt.Errorf("failed to scan week day: %w", err)
		}
		if i, ok := index[habitID]; ok {
			habits[i].WeekDays = append(habits[i].WeekDays, wd)
		}
	}
	return habits, wdRows.Err()
}

// CompletedHabitIDs implements domain.Repository.
func (r *Repository) CompletedHabitIDs(ctx context.Context, day time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT dh.habit_id FROM day_habits dh
         JOIN days d ON d.day_id = dh.day_id
         WHERE d.date = ?
         ORDER BY dh.habit_id`, dateKey(day))
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
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
	return ids, rows.Err()
}

// ToggleCompletion implements domain.Repository.
func (r *Repository) ToggleCompletion(ctx context.Context, habitID string, day time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM habits WHERE habit_id = ?", habitID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrHabitNotFound
		}
		return false, err
	}

	key := dateKey(day)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO days (day_id, date) VALUES (?, ?) ON CONFLICT (date) DO NOTHING",
		uuid.NewString(), key,
	); err != nil {
		return false, fmt.Errorf("failed to upsert day: %w", err)
	}

	var dayID string
	if err := tx.QueryRowContext(ctx, "SELECT day_id FROM days WHERE date = ?", key).Scan(&dayID); err != nil {
		return false, fmt.Errorf("failed to load day: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM day_habits WHERE day_id = ? AND habit_id = ?", dayID, habitID)
	if err != nil {
		return false, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	completed := removed == 0
	if completed {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO day_habits (day_id, habit_id) VALUES (?, ?)", dayID, habitID,
		); err != nil {
			if isForeignKeyViolation(err) {
				return false, domain.ErrHabitNotFound
			}
			return false, fmt.Errorf("failed to insert completion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return completed, nil
}

// Summary implements domain.Repository. Amount is computed in Go from the recurrence sets.
func (r *Repository) Summary(ctx context.Context) ([]domain.DaySummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT d.day_id, d.date, COUNT(dh.habit_id)
         FROM days d
         LEFT JOIN day_habits dh ON dh.day_id = d.day_id
         GROUP BY d.day_id, d.date
         ORDER BY d.date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query days: %w", err)
	}
	defer rows.Close()

	summary := make([]domain.DaySummary, 0)
	for rows.Next() {
		var (
			s    domain.DaySummary
			date string
		)
		if err := rows.Scan(&s.ID, &date, &s.Completed); err != nil {
			return nil, err
		}
		if s.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, fmt.Errorf("invalid day date %q: %w", date, err)
		}
		summary = append(summary, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(summary) == 0 {
		return summary, nil
	}

	habits, err := r.loadHabits(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range summary {
		for _, h := range habits {
			if h.EligibleOn(summary[i].Date) {
				summary[i].Amount++
			}
		}
	}
	return summary, nil
}

// DeleteHabit implements domain.Repository.
func (r *Repository) DeleteHabit(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM habits WHERE habit_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrHabitNotFound
	}
	return nil
}

func dateKey(t time.Time) string {
	return domain.DayOf(t).Format(time.DateOnly)
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *driver.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

// Package tasks is a durable deferred task queue. Tasks are written to SQLite with the time
// they are due, so work scheduled before a restart still runs after it.
package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	_ "modernc.org/sqlite"
)

// Task kinds used by the bot.
const (
	KindDeleteTicketChannel = "ticket.delete_channel"
	KindDeleteMessage       = "message.delete"
	KindUnban               = "moderation.unban"
)

// DefaultPollInterval is how often the runner looks for due tasks.
const DefaultPollInterval = time.Second

const (
	// MaxAttempts is the number of runs after which a failing task is given up on.
	MaxAttempts = 8

	// RetryBaseDelay is the wait before the first retry. It doubles on every failure.
	RetryBaseDelay = 5 * time.Second

	// MaxRetryDelay caps the wait between retries.
	MaxRetryDelay = 10 * time.Minute
)

var (
	// tasksExecuted is the number of executed tasks by kind and result.
	tasksExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_executed_total",
			Help: "Total number of executed deferred tasks",
		},
		[]string{"kind", "result"},
	)
)

// ErrNoHandler is returned when a due task has no registered handler.
var ErrNoHandler = errors.New("no handler registered for task kind")

// Task is a unit of deferred work.
type Task struct {
	ID      string
	Kind    string
	Payload json.RawMessage
	DueAt   time.Time

	// Attempts is the number of failed runs so far.
	Attempts int
}

// Handler executes a task. Handlers must be idempotent: a task whose handler succeeded but
// whose completion was not recorded runs again after a restart.
type Handler func(ctx context.Context, t *Task) error

// Scheduler schedules deferred tasks.
type Scheduler interface {
	// Schedule stores a task that becomes due after delay. The payload is JSON encoded.
	Schedule(ctx context.Context, kind string, delay time.Duration, payload any) (string, error)

	// Cancel removes a pending task.
	Cancel(ctx context.Context, id string) error
}

// Queue is the SQLite backed task queue.
type Queue struct {
	l  *slog.Logger
	db *sql.DB

	now      func() time.Time
	interval time.Duration

	mut      sync.RWMutex
	handlers map[string]Handler
}

// Open opens (creating if needed) the task database at path.
func Open(l *slog.Logger, path string) (*Queue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating task database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening task database: %w", err)
	}

	// SQLite only allows one writer; a single connection avoids SQLITE_BUSY between goroutines.
	db.SetMaxOpenConns(1)

	q := &Queue{
		l:        l.With(slog.String(logging.KeyComponent, "tasks")),
		db:       db,
		now:      time.Now,
		interval: DefaultPollInterval,
		handlers: make(map[string]Handler),
	}

	if err := q.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error migrating task database: %w", err)
	}
	return q, nil
}

func (q *Queue) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			payload    TEXT NOT NULL,
			due_at     INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			attempts   INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			done_at    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(done_at, due_at)`,
	}

	for _, m := range migrations {
		if _, err := q.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Ping checks the database.
func (q *Queue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// Handle registers the handler for a task kind.
func (q *Queue) Handle(kind string, h Handler) {
	q.mut.Lock()
	defer q.mut.Unlock()
	q.handlers[kind] = h
}

// Schedule implements Scheduler.
func (q *Queue) Schedule(ctx context.Context, kind string, delay time.Duration, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error encoding task payload: %w", err)
	}

	id := uuid.NewString()
	now := q.now()
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO tasks (id, kind, payload, due_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, kind, string(data), now.Add(delay).UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("error inserting task: %w", err)
	}

	q.l.Debug("Scheduled task",
		slog.String("task_id", id),
		slog.String("kind", kind),
		slog.Duration("delay", delay),
	)
	return id, nil
}

// Cancel implements Scheduler.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND done_at IS NULL`, id); err != nil {
		return fmt.Errorf("error cancelling task: %w", err)
	}
	return nil
}

// Pending returns the tasks not yet completed, ordered by due time.
func (q *Queue) Pending(ctx context.Context) ([]*Task, error) {
	return q.query(ctx, `SELECT id, kind, payload, due_at, attempts FROM tasks WHERE done_at IS NULL ORDER BY due_at`)
}

// Failed returns the tasks that were given up on.
func (q *Queue) Failed(ctx context.Context) ([]*Task, error) {
	return q.query(ctx,
		`SELECT id, kind, payload, due_at, attempts FROM tasks WHERE done_at IS NOT NULL AND last_error != '' ORDER BY due_at`,
	)
}

func (q *Queue) due(ctx context.Context) ([]*Task, error) {
	return q.query(ctx,
		`SELECT id, kind, payload, due_at, attempts FROM tasks WHERE done_at IS NULL AND due_at <= ? ORDER BY due_at`,
		q.now().UnixMilli(),
	)
}

func (q *Queue) query(ctx context.Context, query string, args ...any) ([]*Task, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		var (
			t       Task
			payload string
			dueAt   int64
		)
		if err := rows.Scan(&t.ID, &t.Kind, &payload, &dueAt, &t.Attempts); err != nil {
			return nil, fmt.Errorf("error scanning task: %w", err)
		}
		t.Payload = json.RawMessage(payload)
		t.DueAt = time.UnixMilli(dueAt)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// RunDue executes every due task once. A failed task is retried with exponential backoff until
// MaxAttempts runs have failed. Tasks without a handler are given up on immediately.
func (q *Queue) RunDue(ctx context.Context) error {
	due, err := q.due(ctx)
	if err != nil {
		return err
	}

	for _, t := range due {
		q.mut.RLock()
		h, ok := q.handlers[t.Kind]
		q.mut.RUnlock()

		if !ok {
			q.fail(ctx, t, ErrNoHandler)
			continue
		}

		if err := h(ctx, t); err != nil {
			q.fail(ctx, t, err)
			continue
		}

		if _, err := q.db.ExecContext(ctx, `UPDATE tasks SET done_at = ?, last_error = '' WHERE id = ?`,
			q.now().UnixMilli(), t.ID); err != nil {
			return fmt.Errorf("error completing task: %w", err)
		}
		tasksExecuted.WithLabelValues(t.Kind, "success").Inc()
	}
	return nil
}

// retryDelay is the backoff after the given number of failed runs.
func retryDelay(failures int) time.Duration {
	d := RetryBaseDelay
	for n := 1; n < failures; n++ {
		d *= 2
		if d >= MaxRetryDelay {
			return MaxRetryDelay
		}
	}
	return d
}

func (q *Queue) fail(ctx context.Context, t *Task, cause error) {
	failures := t.Attempts + 1
	l := q.l.With(
		slog.String("task_id", t.ID),
		slog.String("kind", t.Kind),
		slog.Int("attempts", failures),
		slog.String(logging.KeyError, cause.Error()),
	)

	if errors.Is(cause, ErrNoHandler) || failures >= MaxAttempts {
		tasksExecuted.WithLabelValues(t.Kind, "failed").Inc()
		l.Error("Giving up on task")

		if _, err := q.db.ExecContext(ctx, `UPDATE tasks SET attempts = ?, last_error = ?, done_at = ? WHERE id = ?`,
			failures, cause.Error(), q.now().UnixMilli(), t.ID); err != nil {
			q.l.Error("Error recording task failure", slog.String(logging.KeyError, err.Error()))
		}
		return
	}

	tasksExecuted.WithLabelValues(t.Kind, "error").Inc()
	delay := retryDelay(failures)
	l.Warn("Error executing task, retrying", slog.Duration("delay", delay))

	if _, err := q.db.ExecContext(ctx, `UPDATE tasks SET attempts = ?, last_error = ?, due_at = ? WHERE id = ?`,
		failures, cause.Error(), q.now().Add(delay).UnixMilli(), t.ID); err != nil {
		q.l.Error("Error recording task failure", slog.String(logging.KeyError, err.Error()))
	}
}

// Run executes due tasks until the context is cancelled. Tasks that became due while the
// process was down run on the first pass.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		if err := q.RunDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
			q.l.Error("Error running due tasks", slog.String(logging.KeyError, err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Decode decodes the task payload into v.
func (t *Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("error decoding task payload: %w", err)
	}
	return nil
}

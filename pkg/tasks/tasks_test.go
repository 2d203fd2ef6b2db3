package tasks

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type deletePayload struct {
	ChannelID string `json:"channelId"`
}

func openTestQueue(t *testing.T, path string) *Queue {
	t.Helper()
	q, err := Open(slog.Default(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueue_RunsOnlyDueTasks(t *testing.T) {
	q := openTestQueue(t, filepath.Join(t.TempDir(), "tasks.db"))
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	var ran []string
	q.Handle(KindDeleteTicketChannel, func(_ context.Context, task *Task) error {
		p := new(deletePayload)
		require.NoError(t, task.Decode(p))
		ran = append(ran, p.ChannelID)
		return nil
	})

	ctx := context.Background()
	_, err := q.Schedule(ctx, KindDeleteTicketChannel, 10*time.Second, deletePayload{ChannelID: "c1"})
	require.NoError(t, err)

	require.NoError(t, q.RunDue(ctx))
	require.Empty(t, ran)

	now = now.Add(10 * time.Second)
	require.NoError(t, q.RunDue(ctx))
	require.Equal(t, []string{"c1"}, ran)

	// Completed tasks never run twice.
	require.NoError(t, q.RunDue(ctx))
	require.Equal(t, []string{"c1"}, ran)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestQueue_FailedTaskRetries(t *testing.T) {
	q := openTestQueue(t, filepath.Join(t.TempDir(), "tasks.db"))
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	attempts := 0
	q.Handle(KindDeleteMessage, func(context.Context, *Task) error {
		attempts++
		if attempts == 1 {
			return errors.New("discord unavailable")
		}
		return nil
	})

	ctx := context.Background()
	_, err := q.Schedule(ctx, KindDeleteMessage, 0, map[string]string{"messageId": "m1"})
	require.NoError(t, err)

	require.NoError(t, q.RunDue(ctx))
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].Attempts)

	now = now.Add(RetryBaseDelay)
	require.NoError(t, q.RunDue(ctx))
	pending, err = q.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
	require.Equal(t, 2, attempts)

	failed, err := q.Failed(ctx)
	require.NoError(t, err)
	require.Empty(t, failed)
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"first failure", 1, RetryBaseDelay},
		{"second failure", 2, 2 * RetryBaseDelay},
		{"third failure", 3, 4 * RetryBaseDelay},
		{"capped", 20, MaxRetryDelay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, retryDelay(tt.failures))
		})
	}
}

func TestQueue_BackoffAndAttemptCap(t *testing.T) {
	q := openTestQueue(t, filepath.Join(t.TempDir(), "tasks.db"))
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	runs := 0
	q.Handle(KindUnban, func(context.Context, *Task) error {
		runs++
		return errors.New("discord unavailable")
	})

	ctx := context.Background()
	id, err := q.Schedule(ctx, KindUnban, 0, map[string]string{"userId": "u1"})
	require.NoError(t, err)

	for i := 1; i < MaxAttempts; i++ {
		require.NoError(t, q.RunDue(ctx))
		require.Equal(t, i, runs)

		pending, err := q.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, i, pending[0].Attempts)
		require.Equal(t, now.Add(retryDelay(i)).UnixMilli(), pending[0].DueAt.UnixMilli())

		// Not retried before the backoff has passed.
		now = now.Add(retryDelay(i) - time.Millisecond)
		require.NoError(t, q.RunDue(ctx))
		require.Equal(t, i, runs)

		now = now.Add(time.Millisecond)
	}

	// The last allowed run fails and the task is given up on.
	require.NoError(t, q.RunDue(ctx))
	require.Equal(t, MaxAttempts, runs)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	failed, err := q.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, id, failed[0].ID)
	require.Equal(t, MaxAttempts, failed[0].Attempts)

	now = now.Add(24 * time.Hour)
	require.NoError(t, q.RunDue(ctx))
	require.Equal(t, MaxAttempts, runs)
}

func TestQueue_NoHandlerGivesUp(t *testing.T) {
	q := openTestQueue(t, filepath.Join(t.TempDir(), "tasks.db"))
	ctx := context.Background()

	id, err := q.Schedule(ctx, "unknown.kind", 0, map[string]string{})
	require.NoError(t, err)
	require.NoError(t, q.RunDue(ctx))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	failed, err := q.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, id, failed[0].ID)
	require.Equal(t, 1, failed[0].Attempts)

	var lastError string
	require.NoError(t, q.db.QueryRow(`SELECT last_error FROM tasks WHERE id = ?`, id).Scan(&lastError))
	require.Equal(t, ErrNoHandler.Error(), lastError)
}

func TestQueue_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	ctx := context.Background()

	q := openTestQueue(t, path)
	id, err := q.Schedule(ctx, KindUnban, time.Hour, map[string]string{"userId": "u1"})
	require.NoError(t, err)
	require.NoError(t, q.Close())

	reopened := openTestQueue(t, path)
	reopened.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	var got string
	reopened.Handle(KindUnban, func(_ context.Context, task *Task) error {
		got = task.ID
		return nil
	})

	require.NoError(t, reopened.RunDue(ctx))
	require.Equal(t, id, got)
}

func TestQueue_Cancel(t *testing.T) {
	q := openTestQueue(t, filepath.Join(t.TempDir(), "tasks.db"))
	ctx := context.Background()

	id, err := q.Schedule(ctx, KindDeleteTicketChannel, 0, deletePayload{ChannelID: "c1"})
	require.NoError(t, err)
	require.NoError(t, q.Cancel(ctx, id))

	called := false
	q.Handle(KindDeleteTicketChannel, func(context.Context, *Task) error {
		called = true
		return nil
	})
	require.NoError(t, q.RunDue(ctx))
	require.False(t, called)
}

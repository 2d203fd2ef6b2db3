package dataaccess

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Jacobbrewer1/hound/pkg/logging"
)

// SaveFunc produces and writes a snapshot.
type SaveFunc func(ctx context.Context) error

// Debouncer batches saves: each Trigger restarts the quiet period and the save only runs
// once no trigger has arrived for the whole period.
type Debouncer struct {
	l     *slog.Logger
	delay time.Duration
	save  SaveFunc

	mut     sync.Mutex
	timer   *time.Timer
	pending bool
}

// NewDebouncer creates a debouncer that calls save after delay of quiet.
func NewDebouncer(l *slog.Logger, delay time.Duration, save SaveFunc) *Debouncer {
	return &Debouncer{
		l:     l,
		delay: delay,
		save:  save,
	}
}

// Trigger schedules a save.
func (d *Debouncer) Trigger() {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mut.Lock()
	if !d.pending {
		d.mut.Unlock()
		return
	}
	d.pending = false
	d.mut.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Persistence failures are not fatal, the in memory state stays authoritative.
	if err := d.save(ctx); err != nil {
		d.l.Error("Error saving debounced snapshot", slog.String(logging.KeyError, err.Error()))
	}
}

// Flush runs a pending save immediately.
func (d *Debouncer) Flush(ctx context.Context) error {
	d.mut.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	pending := d.pending
	d.pending = false
	d.mut.Unlock()

	if !pending {
		return nil
	}
	return d.save(ctx)
}

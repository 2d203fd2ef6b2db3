// Package events names the live events pushed to dashboard clients.
package events

import "sync"

// Event names.
const (
	TicketCreated    = "ticketCreated"
	TicketClosed     = "ticketClosed"
	ModerationAction = "moderationAction"
	AutoModAction    = "autoModAction"
	CommandUsed      = "commandUsed"
	StatsUpdate      = "statsUpdate"
	BotStatus        = "botStatus"
)

// Emitter publishes an event to every connected dashboard client. Emit must not block.
type Emitter interface {
	Emit(event string, data any)
}

// Nop discards events.
type Nop struct{}

// Emit does nothing.
func (Nop) Emit(string, any) {}

// Recorder keeps emitted events, for tests.
type Recorder struct {
	mut    sync.Mutex
	events []Recorded
}

// Recorded is an event captured by a Recorder.
type Recorded struct {
	Name string
	Data any
}

// Emit records the event.
func (r *Recorder) Emit(event string, data any) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.events = append(r.events, Recorded{Name: event, Data: data})
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []Recorded {
	r.mut.Lock()
	defer r.mut.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Names returns the names of the recorded events in order.
func (r *Recorder) Names() []string {
	evs := r.Events()
	names := make([]string, 0, len(evs))
	for _, e := range evs {
		names = append(names, e.Name)
	}
	return names
}

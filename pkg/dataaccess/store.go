package dataaccess

import (
	"context"
	"errors"
)

// Document names, one per concern.
const (
	DocumentTickets        = "tickets"
	DocumentRoleAutomation = "roleautomation"
	DocumentModeration     = "moderation"
	DocumentNotifications  = "notifications"
	DocumentCommands       = "commands"
)

// ErrNotFound is returned when a document has never been saved.
var ErrNotFound = errors.New("document not found")

// DocumentStore loads and saves whole documents. A document is a flat JSON object holding
// every record of one concern; callers snapshot their in-memory state into it.
type DocumentStore interface {
	// Load decodes the named document into v. ErrNotFound is returned if it does not exist.
	Load(ctx context.Context, name string, v any) error

	// Save replaces the named document with v.
	Save(ctx context.Context, name string, v any) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

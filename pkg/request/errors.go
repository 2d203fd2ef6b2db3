package request

import "errors"

var (
	// ErrInternalServer is the message returned when a handler fails unexpectedly.
	ErrInternalServer = errors.New("internal server error")

	// ErrUnauthorized is returned when the request carries no valid token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTooManyRequests is returned when the client is rate limited.
	ErrTooManyRequests = errors.New("too many requests")
)

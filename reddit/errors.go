package reddit

import "errors"

// Sentinel errors for the platform call outcomes the bot cares about.
// Everything else surfaces as a plain wrapped error.
var (
	ErrDelivery   = errors.New("reddit: message could not be delivered")
	ErrPermission = errors.New("reddit: permission denied")
	ErrNotFound   = errors.New("reddit: not found")
	ErrRateLimit  = errors.New("reddit: rate limited")
)

package sync

import "time"

// Adapter is a pluggable sync transport: HTTP/REST, WebSocket, or any
// caller-supplied push mechanism. The core only defines what it pushes and
// how failures affect adapter state — it knows nothing about wire formats
// or device discovery.
type Adapter interface {
	Name() string
	// Push delivers records, in order, to the remote peer. Push must be
	// idempotent: the same record may be redelivered after a crash before
	// the caller's ack watermark advanced.
	Push(records []Record) error
}

// State is one state in the sync adapter state machine: idle → syncing →
// {idle, error}; stop returns to idle from any state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// backoffState tracks one adapter's retry schedule after a transport
// failure: exponential, capped at maxBackoff, reset to baseBackoff on the
// next successful flush.
type backoffState struct {
	attempt   int
	nextRetry time.Time
	lastErr   error
}

func (b *backoffState) reset() {
	b.attempt = 0
	b.nextRetry = time.Time{}
	b.lastErr = nil
}

// schedule advances the backoff after a failure at now and returns the
// delay until nextRetry, capped at maxBackoff.
func (b *backoffState) schedule(now time.Time, base, maxBackoff time.Duration, err error) time.Duration {
	b.attempt++
	delay := base << uint(b.attempt-1)
	if delay <= 0 || delay > maxBackoff {
		delay = maxBackoff
	}
	b.nextRetry = now.Add(delay)
	b.lastErr = err
	return delay
}

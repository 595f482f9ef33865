// session/stamps.go
package session

import (
	"context"
	"time"
)

// Stamps records one timestamp per session ID. It is kept apart from the
// session data so that writing a stamp never races with Manager.Save
// rewriting the whole session record.
type Stamps interface {
	// Get returns the recorded time and true, or false when nothing is recorded.
	Get(ctx context.Context, sessionID string) (time.Time, bool, error)

	// Set overwrites the recorded time (last writer wins).
	Set(ctx context.Context, sessionID string, at time.Time) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// pantry/email/memory.go
package email

import (
	"context"
	"sync"
)

// MemoryTransport records messages instead of sending them. Set Err to
// make every Send fail. Useful in tests and for dry runs.
type MemoryTransport struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

// Name implements Transport.
func (t *MemoryTransport) Name() string { return "memory" }

// Send records msg, or returns Err.
func (t *MemoryTransport) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.sent = append(t.sent, msg)
	return nil
}

// Check returns Err.
func (t *MemoryTransport) Check(context.Context) error { return t.Err }

// Sent returns a copy of the recorded messages.
func (t *MemoryTransport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.sent...)
}

package contact

import (
	"context"
	"time"

	"github.com/dalemusser/contactrelay/pantry/session"
)

// DefaultMinInterval is the minimum time between sends from one session.
const DefaultMinInterval = 60 * time.Second

// Gate enforces the minimum interval between successful submissions from
// one session.
type Gate struct {
	stamps   session.Stamps
	interval time.Duration
}

// NewGate returns a gate over stamps. A non-positive interval means
// DefaultMinInterval.
func NewGate(stamps session.Stamps, interval time.Duration) *Gate {
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	return &Gate{stamps: stamps, interval: interval}
}

// Allow reports whether sessionID may submit at now. It has no side effects.
func (g *Gate) Allow(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	last, ok, err := g.stamps.Get(ctx, sessionID)
	if err != nil || !ok {
		return true, err
	}
	return now.Sub(last) >= g.interval, nil
}

// Record marks a successful send at now.
func (g *Gate) Record(ctx context.Context, sessionID string, now time.Time) error {
	return g.stamps.Set(ctx, sessionID, now)
}

package client

import "time"

// Backoff computes the delay before reconnect attempt n as
// min(Base*(n+1), Max). It is deliberately linear: the server is expected
// back quickly, and the cap keeps a long outage from stretching the retry
// interval unboundedly.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff matches the documented reconnect schedule.
var DefaultBackoff = Backoff{Base: time.Second, Max: 5 * time.Second}

// Delay returns the wait before zero-based attempt n.
func (b Backoff) Delay(n int) time.Duration {
	d := b.Base * time.Duration(n+1)
	if d > b.Max {
		return b.Max
	}
	return d
}

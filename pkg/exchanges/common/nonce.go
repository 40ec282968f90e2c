package common

import (
	"strconv"
	"sync"
	"time"
)

// NonceSource issues strictly increasing nonces derived from wall-clock milliseconds.
// When the clock has not advanced (or went backwards) the previous value is bumped by one.
type NonceSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewNonceSource creates a nonce source reading the given clock (time.Now when nil).
func NewNonceSource(now func() time.Time) *NonceSource {
	if now == nil {
		now = time.Now
	}
	return &NonceSource{now: now}
}

// Next returns the next nonce.
func (n *NonceSource) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	v := n.now().UnixMilli()
	if v <= n.last {
		v = n.last + 1
	}
	n.last = v
	return v
}

// NextString is Next formatted for request parameters.
func (n *NonceSource) NextString() string {
	return strconv.FormatInt(n.Next(), 10)
}

// Last returns the most recently issued nonce (0 before the first call).
func (n *NonceSource) Last() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

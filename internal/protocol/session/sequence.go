package session

import "sync"

// MaxSequence is the largest sequence number handed out before wrapping.
const MaxSequence uint32 = 0x7FFFFFFF

// Sequencer numbers outgoing packets. Zero is reserved for "unassigned".
type Sequencer interface {
	Next() uint32
}

// Counter counts from 1 to MaxSequence and wraps back to 1.
type Counter struct {
	mu   sync.Mutex
	next uint32
}

func NewCounter() *Counter {
	return &Counter{next: 1}
}

func (c *Counter) Next() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.next
	if n == 0 || n > MaxSequence {
		n = 1
	}
	c.next = n + 1
	return n
}

// Reset sets the next number handed out.
func (c *Counter) Reset(start uint32) {
	c.mu.Lock()
	c.next = start
	c.mu.Unlock()
}

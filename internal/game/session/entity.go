// Package session provides per-connection player state, the outbound line
// queue, and the registry that indexes live sessions by character and map.
package session

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrOutboxClosed is returned by Push after Close.
	ErrOutboxClosed = errors.New("outbox closed")
	// ErrOutboxFull is returned by Push when the buffer has no room.
	ErrOutboxFull = errors.New("outbox buffer full")
)

// Outbox is a bounded queue of outbound lines drained by the transport writer.
type Outbox struct {
	owner  string
	lines  chan string
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox with room for bufferSize lines.
//
// Postcondition: Returns an open Outbox; bufferSize <= 0 selects 64.
func NewOutbox(owner string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		owner: owner,
		lines: make(chan string, bufferSize),
	}
}

// Push enqueues line without blocking.
//
// Postcondition: line is queued, or an error wrapping ErrOutboxClosed or ErrOutboxFull.
func (o *Outbox) Push(line string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("session %s: %w", o.owner, ErrOutboxClosed)
	}
	select {
	case o.lines <- line:
		return nil
	default:
		return fmt.Errorf("session %s: %w", o.owner, ErrOutboxFull)
	}
}

// Lines returns the channel the transport writer drains. It is closed by
// Close once every queued line has been handed over.
func (o *Outbox) Lines() <-chan string {
	return o.lines
}

// Close stops accepting lines. Lines already queued stay readable.
// Calling Close more than once is a no-op.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.lines)
}

// IsClosed reports whether Close has been called.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

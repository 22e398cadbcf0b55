// Package link moves whole packets over a byte stream. A link owns the
// connection lifecycle, the read and write buffers and the optional read
// timeout; it knows nothing about session state.
package link

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

var (
	ErrNotConnected       = errors.New("link: not connected")
	ErrReadTimeout        = errors.New("link: read timeout")
	ErrTimeoutUnsupported = errors.New("link: read timeout not supported")
	ErrPartialRead        = errors.New("link: stream interrupted inside packet")
)

// Link is the transport a session talks through. Read is only ever called
// from a single receiver goroutine; Write may be called concurrently.
type Link interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	Write(ctx context.Context, p *pdu.Packet, withOptional bool) error
	Read() (*pdu.Packet, error)
	// Timeout reports the read timeout. Zero means reads block.
	Timeout() (time.Duration, error)
	SetTimeout(d time.Duration) error
}

// Flusher is implemented by links that buffer writes.
type Flusher interface {
	Flush() error
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

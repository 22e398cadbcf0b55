package link

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/observability"
	"github.com/danmuck/smppctl/internal/protocol/frame"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// StreamLink is a Link over any byte stream. Reads use a receive buffer
// owned by the single reader; writes encode into a separate buffer under
// the write lock so concurrent senders never interleave.
type StreamLink struct {
	cfg     Config
	factory *pdu.Factory
	dial    Dialer
	rng     *rand.Rand

	mu        sync.Mutex
	conn      io.ReadWriteCloser
	reader    *bufio.Reader
	writer    *bufio.Writer
	snoopIn   io.Writer
	snoopOut  io.Writer
	connected atomic.Bool

	wmu      sync.Mutex
	writeBuf []byte

	readBuf []byte
	counter countingReader

	timeout atomic.Int64
}

// NewStreamLink builds an unconnected link. A nil factory uses the standard
// command set.
func NewStreamLink(dial Dialer, factory *pdu.Factory, cfg Config) *StreamLink {
	if factory == nil {
		factory = pdu.NewFactory(nil)
	}
	cfg = cfg.WithDefaults()
	return &StreamLink{
		cfg:     cfg,
		factory: factory,
		dial:    dial,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		readBuf: make([]byte, cfg.ReadBufferSize),
	}
}

// NewTCPLink dials cfg.Address on Connect.
func NewTCPLink(cfg Config, factory *pdu.Factory) *StreamLink {
	return NewStreamLink(TCPDialer(cfg.WithDefaults()), factory, cfg)
}

func (l *StreamLink) Config() Config {
	return l.cfg
}

// Connect opens the stream, retrying with backoff up to
// MaxConnectAttempts. Connecting an open link is a no-op.
func (l *StreamLink) Connect(ctx context.Context) error {
	if l.connected.Load() {
		return nil
	}
	var attempt int
	for {
		attempt++
		conn, err := l.dial(ctx)
		if err == nil {
			l.attach(conn)
			logs.Debugf("link.Connect addr=%q attempt=%d", l.cfg.Address, attempt)
			return nil
		}
		logs.Warnf("link.Connect dial attempt=%d addr=%q err=%v", attempt, l.cfg.Address, err)
		if !l.shouldRetry(attempt) || ctx.Err() != nil {
			return err
		}
		if err := waitBackoff(ctx, l.cfg.Backoff.Delay(attempt, l.rng)); err != nil {
			return err
		}
	}
}

func (l *StreamLink) shouldRetry(attempt int) bool {
	if l.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < l.cfg.MaxConnectAttempts
}

func (l *StreamLink) attach(conn io.ReadWriteCloser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = conn
	l.reader = bufio.NewReaderSize(conn, l.cfg.ReadBufferSize)
	l.writer = bufio.NewWriterSize(conn, l.cfg.WriteBufferSize)
	l.connected.Store(true)
}

// Disconnect flushes pending writes and closes the stream. It is safe to
// call more than once and unblocks a pending Read.
func (l *StreamLink) Disconnect() error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	l.connected.Store(false)
	if wd, ok := l.conn.(writeDeadliner); ok {
		_ = wd.SetWriteDeadline(time.Now().Add(time.Second))
	}
	if err := l.writer.Flush(); err != nil {
		logs.Debugf("link.Disconnect flush err=%v", err)
	}
	err := l.conn.Close()
	l.conn = nil
	l.reader = nil
	l.writer = nil
	return err
}

func (l *StreamLink) IsConnected() bool {
	return l.connected.Load()
}

// SetSnoop installs writers that receive a copy of every inbound and
// outbound packet. Either may be nil.
func (l *StreamLink) SetSnoop(in, out io.Writer) {
	l.mu.Lock()
	l.snoopIn = in
	l.snoopOut = out
	l.mu.Unlock()
}

func (l *StreamLink) timeoutSupported() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return true
	}
	_, ok := l.conn.(readDeadliner)
	return ok
}

func (l *StreamLink) Timeout() (time.Duration, error) {
	if !l.timeoutSupported() {
		return 0, ErrTimeoutUnsupported
	}
	return time.Duration(l.timeout.Load()), nil
}

// SetTimeout sets the read timeout applied to every subsequent Read. Zero
// disables it.
func (l *StreamLink) SetTimeout(d time.Duration) error {
	if !l.timeoutSupported() {
		return ErrTimeoutUnsupported
	}
	if d < 0 {
		d = 0
	}
	l.timeout.Store(int64(d))
	return nil
}

// Write encodes p and writes it. Optional parameters are written only when
// withOptional is set.
func (l *StreamLink) Write(ctx context.Context, p *pdu.Packet, withOptional bool) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	l.mu.Lock()
	conn, w, snoop := l.conn, l.writer, l.snoopOut
	l.mu.Unlock()
	if w == nil {
		return ErrNotConnected
	}

	buf, err := p.AppendTo(l.writeBuf[:0], withOptional)
	if err != nil {
		return err
	}
	l.writeBuf = buf

	if wd, ok := conn.(writeDeadliner); ok {
		deadline := time.Time{}
		if l.cfg.WriteTimeout > 0 {
			deadline = time.Now().Add(l.cfg.WriteTimeout)
		}
		if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
			deadline = ctxDeadline
		}
		_ = wd.SetWriteDeadline(deadline)
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("link: write %s: %w", p.CommandID, err)
	}
	if l.cfg.AutoFlush {
		if err := w.Flush(); err != nil {
			return fmt.Errorf("link: flush %s: %w", p.CommandID, err)
		}
	}
	if snoop != nil {
		_, _ = snoop.Write(buf)
	}
	observability.RecordPacketWritten(p.CommandID.String())
	logs.Tracef("link.Write %s", p)
	return nil
}

// Flush pushes buffered writes to the stream.
func (l *StreamLink) Flush() error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	l.mu.Lock()
	w := l.writer
	l.mu.Unlock()
	if w == nil {
		return ErrNotConnected
	}
	return w.Flush()
}

// Read blocks for one whole packet. It returns ErrReadTimeout when the
// timeout expires before any byte of the next packet arrived. A timeout
// after part of a packet was consumed leaves the stream unusable and is
// reported as ErrPartialRead. Undecodable packets are consumed and returned
// as errors so the caller may continue reading.
func (l *StreamLink) Read() (*pdu.Packet, error) {
	l.mu.Lock()
	conn, r, snoop := l.conn, l.reader, l.snoopIn
	l.mu.Unlock()
	if r == nil {
		return nil, ErrNotConnected
	}

	if rd, ok := conn.(readDeadliner); ok {
		deadline := time.Time{}
		if d := time.Duration(l.timeout.Load()); d > 0 {
			deadline = time.Now().Add(d)
		}
		_ = rd.SetReadDeadline(deadline)
	}

	l.counter.r = r
	l.counter.n = 0
	buf, err := frame.ReadFrame(&l.counter, l.readBuf, l.cfg.Limits)
	l.readBuf = buf
	if err != nil {
		if isTimeout(err) {
			if l.counter.n == 0 {
				return nil, ErrReadTimeout
			}
			return nil, fmt.Errorf("%w: %d bytes: %v", ErrPartialRead, l.counter.n, err)
		}
		return nil, err
	}
	if snoop != nil {
		_, _ = snoop.Write(buf)
	}

	p, err := l.factory.Decode(buf)
	if err != nil {
		return nil, err
	}
	observability.RecordPacketRead(p.CommandID.String())
	logs.Tracef("link.Read %s", p)
	return p, nil
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

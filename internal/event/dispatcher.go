package event

import (
	"fmt"
	"strings"
	"sync"

	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/observability"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

// Dispatcher fans notifications out to registered observers. Notify calls
// return an error only when the notification could not be accepted;
// observer failures are isolated and logged.
type Dispatcher interface {
	Init() error
	Destroy()
	// AddObserver reports false when o is nil or already registered.
	AddObserver(o Observer) bool
	RemoveObserver(o Observer) bool
	Observers() []Observer
	NotifyEvent(src Source, ev Event) error
	NotifyPacket(src Source, p *pdu.Packet) error
}

const (
	KindSimple   = "simple"
	KindThreaded = "threaded"
	KindExecutor = "executor"
)

type Config struct {
	Kind      string
	PoolSize  int
	QueueSize int
}

func DefaultConfig() Config {
	return Config{
		Kind:      KindSimple,
		PoolSize:  3,
		QueueSize: 100,
	}
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Kind)) {
	case "", KindSimple:
		return nil
	case KindThreaded, KindExecutor:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	if c.PoolSize < 0 || c.QueueSize < 0 {
		return fmt.Errorf("event: negative pool_size=%d or queue_size=%d", c.PoolSize, c.QueueSize)
	}
	return nil
}

// New builds an uninitialized dispatcher of the configured kind.
func New(cfg Config) (Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case KindThreaded:
		return NewThreaded(cfg.PoolSize, cfg.QueueSize), nil
	case KindExecutor:
		return NewExecutor(nil, cfg.PoolSize, cfg.QueueSize), nil
	default:
		return NewSimple(), nil
	}
}

// Transfer initializes next and registers every observer of current on it.
// The caller swaps the two and destroys current.
func Transfer(current, next Dispatcher) error {
	if err := next.Init(); err != nil {
		return err
	}
	if current == nil {
		return nil
	}
	for _, o := range current.Observers() {
		next.AddObserver(o)
	}
	return nil
}

type observerList struct {
	mu   sync.RWMutex
	list []Observer
}

func (l *observerList) AddObserver(o Observer) bool {
	if o == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.list {
		if existing == o {
			logs.Debugf("event.AddObserver already registered observer=%T", o)
			return false
		}
	}
	l.list = append(l.list, o)
	return true
}

func (l *observerList) RemoveObserver(o Observer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.list {
		if existing == o {
			l.list = append(l.list[:i:i], l.list[i+1:]...)
			return true
		}
	}
	return false
}

// Observers returns a snapshot in registration order.
func (l *observerList) Observers() []Observer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Observer, len(l.list))
	copy(out, l.list)
	return out
}

func deliverPacket(dispatcher string, observers []Observer, src Source, p *pdu.Packet) {
	for _, o := range observers {
		if err := callSafely(func() error { return o.PacketReceived(src, p) }); err != nil {
			observerFailed(dispatcher, o, err)
		}
	}
}

func deliverEvent(dispatcher string, observers []Observer, src Source, ev Event) {
	for _, o := range observers {
		if err := callSafely(func() error { return o.Update(src, ev) }); err != nil {
			observerFailed(dispatcher, o, err)
		}
	}
}

func callSafely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrObserverPanic, r)
		}
	}()
	return fn()
}

func observerFailed(dispatcher string, o Observer, err error) {
	observability.RecordObserverFailure(dispatcher)
	logs.Errf("event.deliver dispatcher=%s observer=%T err=%v", dispatcher, o, err)
}

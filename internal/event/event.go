// Package event delivers received packets and receiver lifecycle events to
// session observers. A Dispatcher decides where observer code runs: on the
// receiver goroutine, on a bounded worker queue, or on an executor pool.
package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

var (
	ErrQueueFull        = errors.New("event: dispatch queue full")
	ErrDispatcherClosed = errors.New("event: dispatcher closed")
	ErrPoolFull         = errors.New("event: executor pool full")
	ErrPoolClosed       = errors.New("event: executor pool closed")
	ErrObserverPanic    = errors.New("event: observer panicked")
	ErrUnknownKind      = errors.New("event: unknown dispatcher kind")
)

// Source is the session an observer is notified about.
type Source interface {
	ID() string
	Send(ctx context.Context, p *pdu.Packet) error
}

// Observer receives every packet the receiver reads and every receiver
// lifecycle event. Returned errors and panics are logged and do not stop
// delivery to other observers. Implementations must be comparable; use a
// pointer receiver.
type Observer interface {
	PacketReceived(src Source, p *pdu.Packet) error
	Update(src Source, ev Event) error
}

type Kind uint8

const (
	ReceiverStart Kind = iota + 1
	// ReceiverError reports an I/O failure the receiver survived.
	ReceiverError
	ReceiverExit
)

func (k Kind) String() string {
	switch k {
	case ReceiverStart:
		return "receiver_start"
	case ReceiverError:
		return "receiver_error"
	case ReceiverExit:
		return "receiver_exit"
	default:
		return fmt.Sprintf("kind_%d", uint8(k))
	}
}

// Reason says why the receiver stopped. Only ReceiverExit events carry one.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonNormal
	ReasonBindTimeout
	ReasonException
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNormal:
		return "normal"
	case ReasonBindTimeout:
		return "bind_timeout"
	case ReasonException:
		return "exception"
	default:
		return fmt.Sprintf("reason_%d", uint8(r))
	}
}

type Event struct {
	Kind   Kind
	Reason Reason
	// State is the session state when the event was raised.
	State string
	Err   error
	Time  time.Time
}

func (e Event) String() string {
	if e.Kind == ReceiverExit {
		return fmt.Sprintf("%s(%s state=%s)", e.Kind, e.Reason, e.State)
	}
	return fmt.Sprintf("%s(state=%s)", e.Kind, e.State)
}

// Funcs adapts plain functions to Observer. Register it by pointer so it can
// be removed again.
type Funcs struct {
	OnPacket func(src Source, p *pdu.Packet) error
	OnEvent  func(src Source, ev Event) error
}

func (f *Funcs) PacketReceived(src Source, p *pdu.Packet) error {
	if f.OnPacket == nil {
		return nil
	}
	return f.OnPacket(src, p)
}

func (f *Funcs) Update(src Source, ev Event) error {
	if f.OnEvent == nil {
		return nil
	}
	return f.OnEvent(src, ev)
}

// Mux routes packets to a handler per command id. Unrouted packets go to
// Fallback when set. Events go to OnEvent.
type Mux struct {
	handlers map[pdu.CommandID]func(Source, *pdu.Packet) error
	Fallback func(Source, *pdu.Packet) error
	OnEvent  func(Source, Event) error
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[pdu.CommandID]func(Source, *pdu.Packet) error)}
}

// Handle registers fn for id, replacing any earlier handler. Not safe to
// call once the mux is observing a live session.
func (m *Mux) Handle(id pdu.CommandID, fn func(Source, *pdu.Packet) error) {
	m.handlers[id] = fn
}

func (m *Mux) PacketReceived(src Source, p *pdu.Packet) error {
	if fn, ok := m.handlers[p.CommandID]; ok {
		return fn(src, p)
	}
	if m.Fallback != nil {
		return m.Fallback(src, p)
	}
	return nil
}

func (m *Mux) Update(src Source, ev Event) error {
	if m.OnEvent == nil {
		return nil
	}
	return m.OnEvent(src, ev)
}

package session

import (
	"fmt"
	"sync/atomic"

	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/observability"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

type State uint32

const (
	Unbound State = iota
	Binding
	Bound
	Unbinding
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Binding:
		return "binding"
	case Bound:
		return "bound"
	case Unbinding:
		return "unbinding"
	default:
		return fmt.Sprintf("state_%d", uint32(s))
	}
}

// stateCell only moves by compare-and-set. A failed transition is a race
// in the caller's protocol usage; it is logged and never retried.
type stateCell struct {
	v atomic.Uint32
}

func (c *stateCell) load() State {
	return State(c.v.Load())
}

func (c *stateCell) transition(id string, from, to State) bool {
	ok := c.v.CompareAndSwap(uint32(from), uint32(to))
	observability.RecordStateTransition(from.String(), to.String(), ok)
	if !ok {
		logs.Errf("session.transition race id=%s expected=%s actual=%s target=%s", id, from, c.load(), to)
		return false
	}
	logs.Debugf("session.transition id=%s %s->%s", id, from, to)
	return true
}

// Type is the role a bind establishes.
type Type uint32

const (
	Transmitter Type = iota + 1
	Receiver
	Transceiver
)

func (t Type) String() string {
	switch t {
	case Transmitter:
		return "transmitter"
	case Receiver:
		return "receiver"
	case Transceiver:
		return "transceiver"
	default:
		return "none"
	}
}

// BindCommand returns the bind request for the role.
func (t Type) BindCommand() (pdu.CommandID, bool) {
	switch t {
	case Transmitter:
		return pdu.BindTransmitter, true
	case Receiver:
		return pdu.BindReceiver, true
	case Transceiver:
		return pdu.BindTransceiver, true
	}
	return 0, false
}

func TypeOf(id pdu.CommandID) (Type, bool) {
	switch id {
	case pdu.BindTransmitter:
		return Transmitter, true
	case pdu.BindReceiver:
		return Receiver, true
	case pdu.BindTransceiver:
		return Transceiver, true
	}
	return 0, false
}

// ParseType accepts the role names used in configuration.
func ParseType(s string) (Type, error) {
	switch s {
	case "transmitter", "tx":
		return Transmitter, nil
	case "receiver", "rx":
		return Receiver, nil
	case "transceiver", "trx":
		return Transceiver, nil
	}
	return 0, fmt.Errorf("%w: bind type %q", ErrInvalidConfig, s)
}

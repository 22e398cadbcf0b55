package pdu

import (
	"fmt"
	"sync"

	"github.com/danmuck/smppctl/internal/protocol/frame"
	"github.com/danmuck/smppctl/internal/protocol/tlv"
)

func emptyBody() Body { return &Empty{} }

var standardBodies = map[CommandID]func() Body{
	GenericNack:         emptyBody,
	BindReceiver:        func() Body { return &Bind{InterfaceVersion: DefaultVersion} },
	BindTransmitter:     func() Body { return &Bind{InterfaceVersion: DefaultVersion} },
	BindTransceiver:     func() Body { return &Bind{InterfaceVersion: DefaultVersion} },
	BindReceiverResp:    func() Body { return &BindResp{} },
	BindTransmitterResp: func() Body { return &BindResp{} },
	BindTransceiverResp: func() Body { return &BindResp{} },
	Outbind:             func() Body { return &OutbindBody{} },
	Unbind:              emptyBody,
	UnbindResp:          emptyBody,
	EnquireLink:         emptyBody,
	EnquireLinkResp:     emptyBody,
	SubmitSM:            func() Body { return &ShortMessage{} },
	SubmitSMResp:        func() Body { return &MessageIDResp{} },
	DeliverSM:           func() Body { return &ShortMessage{} },
	DeliverSMResp:       func() Body { return &MessageIDResp{} },
	DataSM:              func() Body { return &DataSMBody{} },
	DataSMResp:          func() Body { return &MessageIDResp{} },
	QuerySM:             func() Body { return &QuerySMBody{} },
	QuerySMResp:         func() Body { return &QuerySMRespBody{} },
	CancelSM:            func() Body { return &CancelSMBody{} },
	CancelSMResp:        emptyBody,
	ReplaceSM:           func() Body { return &ReplaceSMBody{} },
	ReplaceSMResp:       emptyBody,
	AlertNotification:   func() Body { return &AlertNotificationBody{} },
}

// Factory builds packets by command id. Packets it creates share its tag
// registry.
type Factory struct {
	mu       sync.RWMutex
	registry *tlv.Registry
	bodies   map[CommandID]func() Body
}

func NewFactory(registry *tlv.Registry) *Factory {
	if registry == nil {
		registry = tlv.NewStandardRegistry()
	}
	bodies := make(map[CommandID]func() Body, len(standardBodies))
	for id, fn := range standardBodies {
		bodies[id] = fn
	}
	return &Factory{registry: registry, bodies: bodies}
}

func (f *Factory) Registry() *tlv.Registry {
	return f.registry
}

// Register adds a command the standard table does not know.
func (f *Factory) Register(id CommandID, newBody func() Body) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bodies[id]; ok {
		return fmt.Errorf("%w: %s", ErrCommandAlreadyDefined, id)
	}
	f.bodies[id] = newBody
	return nil
}

func (f *Factory) Known(id CommandID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.bodies[id]
	return ok
}

func (f *Factory) New(id CommandID) (*Packet, error) {
	f.mu.RLock()
	newBody, ok := f.bodies[id]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}
	return &Packet{
		CommandID: id,
		Body:      newBody(),
		Params:    tlv.NewTable(f.registry),
	}, nil
}

// Make wraps an existing body. It does not check that body matches id.
func (f *Factory) Make(id CommandID, body Body) *Packet {
	if body == nil {
		body = &Empty{}
	}
	return &Packet{
		CommandID: id,
		Body:      body,
		Params:    tlv.NewTable(f.registry),
	}
}

// ResponseTo builds the status-OK response paired with req, echoing its
// sequence number.
func (f *Factory) ResponseTo(req *Packet) (*Packet, error) {
	if req.IsResponse() {
		return nil, fmt.Errorf("%w: %s is a response", ErrNoResponse, req.CommandID)
	}
	switch req.CommandID {
	case Outbind, AlertNotification:
		return nil, fmt.Errorf("%w: %s", ErrNoResponse, req.CommandID)
	}
	resp, err := f.New(req.CommandID.Response())
	if err != nil {
		return nil, err
	}
	resp.Sequence = req.Sequence
	return resp, nil
}

// Nack builds a generic_nack for a packet that could not be handled.
func (f *Factory) Nack(sequence uint32, status Status) *Packet {
	p := f.Make(GenericNack, nil)
	p.Sequence = sequence
	p.Status = status
	return p
}

// Decode parses one whole encoded packet. Response packets carrying an
// error status may omit their mandatory fields entirely.
func (f *Factory) Decode(b []byte) (*Packet, error) {
	h, err := frame.DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	if int(h.Length) != len(b) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrLengthMismatch, h.Length, len(b))
	}
	p, err := f.New(CommandID(h.CommandID))
	if err != nil {
		return nil, err
	}
	p.Status = Status(h.Status)
	p.Sequence = h.Sequence

	rest := b[frame.HeaderLen:]
	if p.IsResponse() && p.Status != StatusOK && len(rest) == 0 {
		return p, nil
	}
	dec := NewDecoder(rest)
	if err := p.Body.ReadMandatory(dec); err != nil {
		return nil, fmt.Errorf("%s: %w", p.CommandID, err)
	}
	if err := p.Params.DecodeAll(rest[dec.Offset():], dec.Remaining()); err != nil {
		return nil, fmt.Errorf("%s: %w", p.CommandID, err)
	}
	return p, nil
}

// PeekCommandID reads the command id of an encoded packet without decoding
// it.
func PeekCommandID(b []byte) (CommandID, bool) {
	if len(b) < frame.HeaderLen {
		return 0, false
	}
	return commandIDAt(b), true
}

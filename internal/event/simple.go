package event

import "github.com/danmuck/smppctl/internal/protocol/pdu"

// Simple calls every observer in registration order on the notifying
// goroutine.
type Simple struct {
	observerList
}

func NewSimple() *Simple {
	return &Simple{}
}

func (*Simple) Init() error { return nil }
func (*Simple) Destroy()    {}

func (d *Simple) NotifyEvent(src Source, ev Event) error {
	deliverEvent(KindSimple, d.Observers(), src, ev)
	return nil
}

func (d *Simple) NotifyPacket(src Source, p *pdu.Packet) error {
	deliverPacket(KindSimple, d.Observers(), src, p)
	return nil
}

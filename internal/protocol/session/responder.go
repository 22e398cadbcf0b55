package session

import (
	"context"
	"time"

	"github.com/danmuck/smppctl/internal/event"
	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

// AutoResponder answers peer requests that need no application input with
// a status-OK response. Each command can be switched off.
type AutoResponder struct {
	factory     *pdu.Factory
	EnquireLink bool
	Unbind      bool
	DeliverSM   bool
	DataSM      bool
	Timeout     time.Duration
}

func NewAutoResponder(factory *pdu.Factory) *AutoResponder {
	if factory == nil {
		factory = pdu.NewFactory(nil)
	}
	return &AutoResponder{
		factory:     factory,
		EnquireLink: true,
		Unbind:      true,
		DeliverSM:   true,
		DataSM:      true,
		Timeout:     5 * time.Second,
	}
}

func (a *AutoResponder) answers(id pdu.CommandID) bool {
	switch id {
	case pdu.EnquireLink:
		return a.EnquireLink
	case pdu.Unbind:
		return a.Unbind
	case pdu.DeliverSM:
		return a.DeliverSM
	case pdu.DataSM:
		return a.DataSM
	}
	return false
}

func (a *AutoResponder) PacketReceived(src event.Source, p *pdu.Packet) error {
	if !a.answers(p.CommandID) {
		return nil
	}
	resp, err := a.factory.ResponseTo(p)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	logs.Debugf("session.AutoResponder session=%s answering %s", src.ID(), p)
	return src.Send(ctx, resp)
}

func (*AutoResponder) Update(event.Source, event.Event) error {
	return nil
}

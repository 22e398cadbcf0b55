package relay

import (
	"time"

	"github.com/danmuck/smppctl/internal/event"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
	"github.com/danmuck/smppctl/internal/protocol/tlv"
)

// Message is the relayed form of an inbound deliver_sm or data_sm.
type Message struct {
	Session    string         `cbor:"session"`
	Command    string         `cbor:"command"`
	Sequence   uint32         `cbor:"seq"`
	Source     string         `cbor:"source,omitempty"`
	Dest       string         `cbor:"dest,omitempty"`
	ESMClass   uint8          `cbor:"esm_class"`
	DataCoding uint8          `cbor:"data_coding"`
	Text       string         `cbor:"text,omitempty"`
	Payload    []byte         `cbor:"payload,omitempty"`
	Params     map[string]any `cbor:"params,omitempty"`
	ReceivedAt int64          `cbor:"received_at"`
}

// StateRecord is the session snapshot kept in the state store.
type StateRecord struct {
	Session   string `cbor:"session"`
	State     string `cbor:"state"`
	Event     string `cbor:"event"`
	Reason    string `cbor:"reason,omitempty"`
	Error     string `cbor:"error,omitempty"`
	UpdatedAt int64  `cbor:"updated_at"`
}

func relayable(id pdu.CommandID) bool {
	return id == pdu.DeliverSM || id == pdu.DataSM
}

func messageFrom(session string, p *pdu.Packet, now time.Time) Message {
	msg := Message{
		Session:    session,
		Command:    p.CommandID.String(),
		Sequence:   p.Sequence,
		ReceivedAt: now.UnixMilli(),
	}
	switch b := p.Body.(type) {
	case *pdu.ShortMessage:
		msg.Source = b.Source.Addr
		msg.Dest = b.Dest.Addr
		msg.ESMClass = b.ESMClass
		msg.DataCoding = b.DataCoding
		msg.Payload = b.Message
	case *pdu.DataSMBody:
		msg.Source = b.Source.Addr
		msg.Dest = b.Dest.Addr
		msg.ESMClass = b.ESMClass
		msg.DataCoding = b.DataCoding
	}
	if p.Params != nil {
		if v, ok := p.Params.Bytes(tlv.MessagePayload); ok && len(msg.Payload) == 0 {
			msg.Payload = v
		}
		p.Params.Range(func(tag *tlv.Tag, value any) bool {
			if tag.ID == tlv.MessagePayload {
				return true
			}
			if msg.Params == nil {
				msg.Params = make(map[string]any)
			}
			msg.Params[tag.String()] = value
			return true
		})
	}
	if alpha, err := pdu.AlphabetFor(msg.DataCoding); err == nil {
		if text, err := alpha.Decode(msg.Payload); err == nil {
			msg.Text = text
		}
	}
	return msg
}

func stateFrom(session string, ev event.Event) StateRecord {
	rec := StateRecord{
		Session:   session,
		State:     ev.State,
		Event:     ev.Kind.String(),
		UpdatedAt: ev.Time.UnixMilli(),
	}
	if ev.Kind == event.ReceiverExit {
		rec.Reason = ev.Reason.String()
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	return rec
}

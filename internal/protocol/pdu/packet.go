package pdu

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/smppctl/internal/protocol/frame"
	"github.com/danmuck/smppctl/internal/protocol/tlv"
)

// Packet is one SMPP command. A zero Sequence means unassigned; the
// session numbers it on send.
type Packet struct {
	CommandID CommandID
	Status    Status
	Sequence  uint32
	Body      Body
	Params    *tlv.Table
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s(seq=%d status=%s)", p.CommandID, p.Sequence, p.Status)
}

func (p *Packet) IsResponse() bool {
	return p.CommandID.IsResponse()
}

func (p *Packet) IsRequest() bool {
	return !p.CommandID.IsResponse()
}

// Length is the declared total length of the encoded packet.
func (p *Packet) Length(withOptional bool) int {
	n := frame.HeaderLen
	if p.Body != nil {
		n += p.Body.MandatoryLength()
	}
	if withOptional && p.Params != nil {
		n += p.Params.ByteLength()
	}
	return n
}

// AppendTo encodes the packet onto dst. The optional parameter block is
// written only when withOptional is set.
func (p *Packet) AppendTo(dst []byte, withOptional bool) ([]byte, error) {
	start := len(dst)
	dst = append(dst, make([]byte, frame.HeaderLen)...)
	if p.Body != nil {
		enc := NewEncoder(dst)
		if err := p.Body.WriteMandatory(enc); err != nil {
			return dst[:start], fmt.Errorf("%s: %w", p.CommandID, err)
		}
		dst = enc.Bytes()
	}
	if withOptional && p.Params != nil {
		dst = p.Params.AppendTo(dst)
	}
	frame.PutHeader(dst[start:], frame.Header{
		Length:    uint32(len(dst) - start),
		CommandID: uint32(p.CommandID),
		Status:    uint32(p.Status),
		Sequence:  p.Sequence,
	})
	return dst, nil
}

func (p *Packet) Encode(withOptional bool) ([]byte, error) {
	return p.AppendTo(make([]byte, 0, p.Length(withOptional)), withOptional)
}

// commandIDAt reads the command id from an encoded packet.
func commandIDAt(b []byte) CommandID {
	return CommandID(binary.BigEndian.Uint32(b[4:8]))
}

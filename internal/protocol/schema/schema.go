package schema

import (
	"fmt"

	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

type ValidationError struct {
	Command pdu.CommandID
	Field   string
	Reason  string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: command=%s: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("schema: command=%s field=%s: %s", e.Command, e.Field, e.Reason)
}

// Commands introduced after 3.3.
var since = map[pdu.CommandID]pdu.Version{
	pdu.BindTransceiver:     pdu.V34,
	pdu.BindTransceiverResp: pdu.V34,
	pdu.DataSM:              pdu.V34,
	pdu.DataSMResp:          pdu.V34,
	pdu.Outbind:             pdu.V34,
	pdu.AlertNotification:   pdu.V34,
}

type checker struct {
	command pdu.CommandID
	version pdu.Version
	err     error
}

func (c *checker) fail(field, reason string) {
	if c.err == nil {
		c.err = ValidationError{Command: c.command, Field: field, Reason: reason}
	}
}

func (c *checker) required(field, value string) {
	if value == "" {
		c.fail(field, "missing required field")
	}
}

func (c *checker) maxLen(field, value string, max int) {
	if len(value) > max {
		c.fail(field, fmt.Sprintf("length %d exceeds %d", len(value), max))
	}
}

func (c *checker) address(field string, a pdu.Address, max int) {
	c.maxLen(field, a.Addr, max)
}

func (c *checker) messageID(field, value string) {
	max := 64
	if c.version == pdu.V33 {
		max = 8
	}
	c.maxLen(field, value, max)
}

func (c *checker) flag(field string, v uint8) {
	if v > 1 {
		c.fail(field, fmt.Sprintf("flag must be 0 or 1, got %d", v))
	}
}

func (c *checker) shortMessage(msg []byte) {
	if len(msg) > 254 {
		c.fail("short_message", fmt.Sprintf("length %d exceeds 254", len(msg)))
	}
}

// Validate checks an outgoing packet against the limits of version.
// Bodies of unexpected types are left to the encoder.
func Validate(p *pdu.Packet, version pdu.Version) error {
	logs.Tracef("schema.Validate command=%s version=%s", p.CommandID, version)
	c := &checker{command: p.CommandID, version: version}
	if first, ok := since[p.CommandID]; ok && version.IsOlderThan(first) {
		c.fail("", fmt.Sprintf("not supported by %s", version))
	}

	switch b := p.Body.(type) {
	case *pdu.Bind:
		c.maxLen("system_id", b.SystemID, 15)
		c.maxLen("password", b.Password, 8)
		c.maxLen("system_type", b.SystemType, 12)
		c.maxLen("address_range", b.AddressRange, 40)
	case *pdu.BindResp:
		c.maxLen("system_id", b.SystemID, 15)
	case *pdu.ShortMessage:
		c.maxLen("service_type", b.ServiceType, 5)
		c.address("source_addr", b.Source, 20)
		c.required("destination_addr", b.Dest.Addr)
		c.address("destination_addr", b.Dest, 20)
		c.flag("replace_if_present_flag", b.ReplaceIfPresent)
		c.shortMessage(b.Message)
	case *pdu.MessageIDResp:
		c.messageID("message_id", b.MessageID)
	case *pdu.DataSMBody:
		c.maxLen("service_type", b.ServiceType, 5)
		c.required("destination_addr", b.Dest.Addr)
		c.address("source_addr", b.Source, 64)
		c.address("destination_addr", b.Dest, 64)
	case *pdu.QuerySMBody:
		c.required("message_id", b.MessageID)
		c.messageID("message_id", b.MessageID)
		c.address("source_addr", b.Source, 20)
	case *pdu.CancelSMBody:
		c.maxLen("service_type", b.ServiceType, 5)
		c.messageID("message_id", b.MessageID)
		c.address("source_addr", b.Source, 20)
		c.address("destination_addr", b.Dest, 20)
	case *pdu.ReplaceSMBody:
		c.required("message_id", b.MessageID)
		c.messageID("message_id", b.MessageID)
		c.address("source_addr", b.Source, 20)
		c.shortMessage(b.Message)
	}

	if c.err != nil {
		logs.Errf("schema.Validate rejected command=%s version=%s: %v", p.CommandID, version, c.err)
	}
	return c.err
}

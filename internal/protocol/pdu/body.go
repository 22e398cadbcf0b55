package pdu

import "fmt"

// Body is the command-specific mandatory-field block. MandatoryLength is
// exactly the number of bytes WriteMandatory appends.
type Body interface {
	ReadMandatory(d *Decoder) error
	WriteMandatory(e *Encoder) error
	MandatoryLength() int
}

// C-octet string field sizes, terminator included.
const (
	maxSystemID     = 16
	maxPassword     = 9
	maxSystemType   = 13
	maxAddressRange = 41
	maxServiceType  = 6
	maxAddr         = 21
	maxDataSMAddr   = 65
	maxTime         = 17
	maxMessageID    = 65
	maxShortMessage = 254
)

// Address is a ton/npi/address triple.
type Address struct {
	TON  uint8
	NPI  uint8
	Addr string
}

func (a Address) length() int {
	return 2 + len(a.Addr) + 1
}

// Empty is the body of header-only commands.
type Empty struct{}

func (*Empty) ReadMandatory(*Decoder) error  { return nil }
func (*Empty) WriteMandatory(*Encoder) error { return nil }
func (*Empty) MandatoryLength() int          { return 0 }

// Bind is the body of bind_transmitter, bind_receiver and bind_transceiver.
type Bind struct {
	SystemID         string
	Password         string
	SystemType       string
	InterfaceVersion Version
	AddrTON          uint8
	AddrNPI          uint8
	AddressRange     string
}

func (b *Bind) ReadMandatory(d *Decoder) error {
	r := fieldReader{d: d}
	var version uint8
	r.cstring(&b.SystemID)
	r.cstring(&b.Password)
	r.cstring(&b.SystemType)
	r.u8(&version)
	r.u8(&b.AddrTON)
	r.u8(&b.AddrNPI)
	r.cstring(&b.AddressRange)
	b.InterfaceVersion = Version(version)
	return r.err
}

func (b *Bind) WriteMandatory(e *Encoder) error {
	w := fieldWriter{e: e}
	w.cstring(b.SystemID, maxSystemID)
	w.cstring(b.Password, maxPassword)
	w.cstring(b.SystemType, maxSystemType)
	w.u8(uint8(b.InterfaceVersion))
	w.u8(b.AddrTON)
	w.u8(b.AddrNPI)
	w.cstring(b.AddressRange, maxAddressRange)
	return w.err
}

func (b *Bind) MandatoryLength() int {
	return len(b.SystemID) + len(b.Password) + len(b.SystemType) + len(b.AddressRange) + 4 + 3
}

// BindResp carries the SMSC system id.
type BindResp struct {
	SystemID string
}

func (b *BindResp) ReadMandatory(d *Decoder) error {
	var err error
	b.SystemID, err = d.CString()
	return err
}

func (b *BindResp) WriteMandatory(e *Encoder) error {
	return e.CString(b.SystemID, maxSystemID)
}

func (b *BindResp) MandatoryLength() int {
	return len(b.SystemID) + 1
}

type OutbindBody struct {
	SystemID string
	Password string
}

func (b *OutbindBody) ReadMandatory(d *Decoder) error {
	r := fieldReader{d: d}
	r.cstring(&b.SystemID)
	r.cstring(&b.Password)
	return r.err
}

func (b *OutbindBody) WriteMandatory(e *Encoder) error {
	w := fieldWriter{e: e}
	w.cstring(b.SystemID, maxSystemID)
	w.cstring(b.Password, maxPassword)
	return w.err
}

func (b *OutbindBody) MandatoryLength() int {
	return len(b.SystemID) + len(b.Password) + 2
}

// MessageIDResp is the body of submit_sm_resp, deliver_sm_resp and
// data_sm_resp.
type MessageIDResp struct {
	MessageID string
}

func (b *MessageIDResp) ReadMandatory(d *Decoder) error {
	var err error
	b.MessageID, err = d.CString()
	return err
}

func (b *MessageIDResp) WriteMandatory(e *Encoder) error {
	return e.CString(b.MessageID, maxMessageID)
}

func (b *MessageIDResp) MandatoryLength() int {
	return len(b.MessageID) + 1
}

// ShortMessage is the body of submit_sm and deliver_sm.
type ShortMessage struct {
	ServiceType          string
	Source               Address
	Dest                 Address
	ESMClass             uint8
	ProtocolID           uint8
	PriorityFlag         uint8
	ScheduleDeliveryTime string
	ValidityPeriod       string
	RegisteredDelivery   uint8
	ReplaceIfPresent     uint8
	DataCoding           uint8
	SMDefaultMsgID       uint8
	Message              []byte
}

func (b *ShortMessage) ReadMandatory(d *Decoder) error {
	r := fieldReader{d: d}
	var smLength uint8
	r.cstring(&b.ServiceType)
	r.address(&b.Source)
	r.address(&b.Dest)
	r.u8(&b.ESMClass)
	r.u8(&b.ProtocolID)
	r.u8(&b.PriorityFlag)
	r.cstring(&b.ScheduleDeliveryTime)
	r.cstring(&b.ValidityPeriod)
	r.u8(&b.RegisteredDelivery)
	r.u8(&b.ReplaceIfPresent)
	r.u8(&b.DataCoding)
	r.u8(&b.SMDefaultMsgID)
	r.u8(&smLength)
	r.octets(&b.Message, int(smLength))
	return r.err
}

func (b *ShortMessage) WriteMandatory(e *Encoder) error {
	if len(b.Message) > maxShortMessage {
		return fmt.Errorf("%w: short_message of %d octets", ErrFieldTooLong, len(b.Message))
	}
	w := fieldWriter{e: e}
	w.cstring(b.ServiceType, maxServiceType)
	w.address(b.Source, maxAddr)
	w.address(b.Dest, maxAddr)
	w.u8(b.ESMClass)
	w.u8(b.ProtocolID)
	w.u8(b.PriorityFlag)
	w.cstring(b.ScheduleDeliveryTime, maxTime)
	w.cstring(b.ValidityPeriod, maxTime)
	w.u8(b.RegisteredDelivery)
	w.u8(b.ReplaceIfPresent)
	w.u8(b.DataCoding)
	w.u8(b.SMDefaultMsgID)
	w.u8(uint8(len(b.Message)))
	w.octets(b.Message)
	return w.err
}

func (b *ShortMessage) MandatoryLength() int {
	return len(b.ServiceType) + 1 +
		b.Source.length() + b.Dest.length() +
		3 +
		len(b.ScheduleDeliveryTime) + 1 + len(b.ValidityPeriod) + 1 +
		5 + len(b.Message)
}

// SetText encodes text with the alphabet for dataCoding.
func (b *ShortMessage) SetText(dataCoding uint8, text string) error {
	alphabet, err := AlphabetFor(dataCoding)
	if err != nil {
		return err
	}
	msg, err := alphabet.Encode(text)
	if err != nil {
		return err
	}
	b.DataCoding = dataCoding
	b.Message = msg
	return nil
}

func (b *ShortMessage) Text() (string, error) {
	alphabet, err := AlphabetFor(b.DataCoding)
	if err != nil {
		return "", err
	}
	return alphabet.Decode(b.Message)
}

// DataSMBody is the data_sm body. The payload travels in the
// message_payload parameter.
type DataSMBody struct {
	ServiceType        string
	Source             Address
	Dest               Address
	ESMClass           uint8
	RegisteredDelivery uint8
	DataCoding         uint8
}

func (b *DataSMBody) ReadMandatory(d *Decoder) error {
	r := fieldReader{d: d}
	r.cstring(&b.ServiceType)
	r.address(&b.Source)
	r.address(&b.Dest)
	r.u8(&b.ESMClass)
	r.u8(&b.RegisteredDelivery)
	r.u8(&b.DataCoding)
	return r.err
}

func (b *DataSMBody) WriteMandatory(e *Encoder) error {
	w := fieldWriter{e: e}
	w.cstring(b.ServiceType, maxServiceType)
	w.address(b.Source, maxDataSMAddr)
	w.address(b.Dest, maxDataSMAddr)
	w.u8(b.ESMClass)
	w.u8(b.RegisteredDelivery)
	w.u8(b.DataCoding)
	return w.err
}

func (b *DataSMBody) MandatoryLength() int {
	return len(b.ServiceType) + 1 + b.Source.length() + b.Dest.length() + 3
}

type QuerySMBody struct {
	MessageID string
	Source    Address
}

func (b *QuerySMBody) ReadMandatory(d *Decoder) error {
	r := fieldReader{d: d}
	r.cstring(&b.MessageID)
	r.address(&b.Source)
	return r.err
}

func (b *QuerySMBody) WriteMandatory(e *Encoder) error {
	w := fieldWriter{e: e}
	w.cstring(b.MessageID, maxMessageID)
	w.address(b.Source, maxAddr)
	return w.err
}

func (b *QuerySMBody) MandatoryLength() int {
	return len(b.MessageID) + 1 + b.Source.length()
}

type QuerySMRespBody struct {
	MessageID    string
	FinalDate    string
	MessageState uint8
	ErrorCode    uint8
}

func (b *QuerySMRespBody) ReadMandatory(d *Decoder) error {
	r := fieldReader{d: d}
	r.cstring(&b.MessageID)
	r.cstring(&b.FinalDate)
	r.u8(&b.MessageState)
	r.u8(&b.ErrorCode)
	return r.err
}

func (b *QuerySMRespBody) WriteMandatory(e *Encoder) error {
	w := fieldWriter{e: e}
	w.cstring(b.MessageID, maxMessageID)
	w.cstring(b.FinalDate, maxTime)
	w.u8(b.MessageState)
	w.u8(b.ErrorCode)
	return w.err
}

func (b *QuerySMRespBody) MandatoryLength() int {
	return len(b.MessageID) + 1 + len(b.FinalDate) + 1 + 2
}

type CancelSMBody struct {
	ServiceType string
	MessageID   string
	Source      Address
	Dest        Address
}

func (b *CancelSMBody) ReadMandatory(d *Decoder) error {
	r := fieldReader{d: d}
	r.cstring(&b.ServiceType)
	r.cstring(&b.MessageID)
	r.address(&b.Source)
	r.address(&b.Dest)
	return r.err
}

func (b *CancelSMBody) WriteMandatory(e *Encoder) error {
	w := fieldWriter{e: e}
	w.cstring(b.ServiceType, maxServiceType)
	w.cstring(b.MessageID, maxMessageID)
	w.address(b.Source, maxAddr)
	w.address(b.Dest, maxAddr)
	return w.err
}

func (b *CancelSMBody) MandatoryLength() int {
	return len(b.ServiceType) + 1 + len(b.MessageID) + 1 + b.Source.length() + b.Dest.length()
}

type ReplaceSMBody struct {
	MessageID            string
	Source               Address
	ScheduleDeliveryTime string
	ValidityPeriod       string
	RegisteredDelivery   uint8
	SMDefaultMsgID       uint8
	Message              []byte
}

func (b *ReplaceSMBody) ReadMandatory(d *Decoder) error {
	r := fieldReader{d: d}
	var smLength uint8
	r.cstring(&b.MessageID)
	r.address(&b.Source)
	r.cstring(&b.ScheduleDeliveryTime)
	r.cstring(&b.ValidityPeriod)
	r.u8(&b.RegisteredDelivery)
	r.u8(&b.SMDefaultMsgID)
	r.u8(&smLength)
	r.octets(&b.Message, int(smLength))
	return r.err
}

func (b *ReplaceSMBody) WriteMandatory(e *Encoder) error {
	if len(b.Message) > maxShortMessage {
		return fmt.Errorf("%w: short_message of %d octets", ErrFieldTooLong, len(b.Message))
	}
	w := fieldWriter{e: e}
	w.cstring(b.MessageID, maxMessageID)
	w.address(b.Source, maxAddr)
	w.cstring(b.ScheduleDeliveryTime, maxTime)
	w.cstring(b.ValidityPeriod, maxTime)
	w.u8(b.RegisteredDelivery)
	w.u8(b.SMDefaultMsgID)
	w.u8(uint8(len(b.Message)))
	w.octets(b.Message)
	return w.err
}

func (b *ReplaceSMBody) MandatoryLength() int {
	return len(b.MessageID) + 1 + b.Source.length() +
		len(b.ScheduleDeliveryTime) + 1 + len(b.ValidityPeriod) + 1 +
		3 + len(b.Message)
}

type AlertNotificationBody struct {
	Source Address
	ESME   Address
}

func (b *AlertNotificationBody) ReadMandatory(d *Decoder) error {
	r := fieldReader{d: d}
	r.address(&b.Source)
	r.address(&b.ESME)
	return r.err
}

func (b *AlertNotificationBody) WriteMandatory(e *Encoder) error {
	w := fieldWriter{e: e}
	w.address(b.Source, maxDataSMAddr)
	w.address(b.ESME, maxDataSMAddr)
	return w.err
}

func (b *AlertNotificationBody) MandatoryLength() int {
	return b.Source.length() + b.ESME.length()
}

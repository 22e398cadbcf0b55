package tlv

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/danmuck/smppctl/internal/testutil/testlog"
)

func assertLengthIdentity(t *testing.T, table *Table) {
	t.Helper()
	var buf bytes.Buffer
	n, err := table.EncodeAll(&buf)
	if err != nil {
		t.Fatalf("encode all: %v", err)
	}
	if n != table.ByteLength() || buf.Len() != n {
		t.Fatalf("byte length mismatch: wrote=%d buffered=%d ByteLength=%d", n, buf.Len(), table.ByteLength())
	}
}

func populated(t *testing.T) *Table {
	t.Helper()
	table := NewTable(NewStandardRegistry())
	sets := []struct {
		id uint16
		v  any
	}{
		{SCInterfaceVersion, 0x34},
		{ReceiptedMessageID, "abc123"},
		{MessagePayload, []byte("hello payload")},
		{MSMsgWaitFacilities, BitSet(0).Set(7)},
		{AlertOnMessageDelivery, nil},
		{QOSTimeToLive, uint32(3600)},
	}
	for _, s := range sets {
		if err := table.Set(s.id, s.v); err != nil {
			t.Fatalf("set 0x%04x: %v", s.id, err)
		}
	}
	return table
}

func TestTableLengthIdentityBeforeAndAfterForce(t *testing.T) {
	testlog.Start(t)
	table := populated(t)
	assertLengthIdentity(t, table)

	wire := table.AppendTo(nil)
	decoded := NewTable(table.Registry())
	if err := decoded.DecodeAll(wire, len(wire)); err != nil {
		t.Fatalf("decode all: %v", err)
	}
	if !decoded.IsRaw() {
		t.Fatalf("table should stay raw until accessed")
	}
	assertLengthIdentity(t, decoded)
	if decoded.IsRaw() {
		t.Fatalf("byte length should force the parse")
	}
	if !bytes.Equal(decoded.AppendTo(nil), wire) {
		t.Fatalf("re-encode mismatch")
	}
}

func TestTableEmptyLengthIdentity(t *testing.T) {
	testlog.Start(t)
	table := NewTable(NewStandardRegistry())
	assertLengthIdentity(t, table)
	if err := table.DecodeAll(nil, 0); err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if table.IsRaw() {
		t.Fatalf("empty region should not be raw")
	}
	assertLengthIdentity(t, table)
}

func TestTablePreservesInsertionOrder(t *testing.T) {
	testlog.Start(t)
	table := populated(t)
	want := []uint16{SCInterfaceVersion, ReceiptedMessageID, MessagePayload, MSMsgWaitFacilities, AlertOnMessageDelivery, QOSTimeToLive}
	tags := table.Tags()
	if len(tags) != len(want) {
		t.Fatalf("expected %d tags, got %d", len(want), len(tags))
	}
	for i, tag := range tags {
		if tag.ID != want[i] {
			t.Fatalf("order mismatch at %d: got 0x%04x want 0x%04x", i, tag.ID, want[i])
		}
	}
	// overwriting keeps the original position
	if err := table.Set(SCInterfaceVersion, 0x50); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if table.Tags()[0].ID != SCInterfaceVersion {
		t.Fatalf("overwrite moved the tag")
	}
	if v, _ := table.Int(SCInterfaceVersion); v != 0x50 {
		t.Fatalf("overwrite lost value: %d", v)
	}
	assertLengthIdentity(t, table)
}

func TestTableTypedAccessors(t *testing.T) {
	testlog.Start(t)
	table := populated(t)
	wire := table.AppendTo(nil)
	decoded := NewTable(table.Registry())
	if err := decoded.DecodeAll(wire, len(wire)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, ok := decoded.Int(QOSTimeToLive); !ok || v != 3600 {
		t.Fatalf("qos_time_to_live: %v %v", v, ok)
	}
	if v, ok := decoded.String(ReceiptedMessageID); !ok || v != "abc123" {
		t.Fatalf("receipted_message_id: %q %v", v, ok)
	}
	if v, ok := decoded.Bytes(MessagePayload); !ok || string(v) != "hello payload" {
		t.Fatalf("message_payload: %q %v", v, ok)
	}
	if v, ok := decoded.Bits(MSMsgWaitFacilities); !ok || !v.Has(7) {
		t.Fatalf("ms_msg_wait_facilities: %v %v", v, ok)
	}
	if !decoded.Has(AlertOnMessageDelivery) {
		t.Fatalf("no-value tag should be present")
	}
	if _, ok := decoded.String(SCInterfaceVersion); ok {
		t.Fatalf("string accessor on integer tag should miss")
	}
}

func TestTableSetEnforcesBoundsAtExactEdges(t *testing.T) {
	testlog.Start(t)
	table := NewTable(NewStandardRegistry())
	if err := table.Set(NetworkErrorCode, []byte{1, 2, 3}); err != nil {
		t.Fatalf("exact length should fit: %v", err)
	}
	if err := table.Set(NetworkErrorCode, []byte{1, 2}); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
	if err := table.Set(NetworkErrorCode, []byte{1, 2, 3, 4}); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
	if v, _ := table.Bytes(NetworkErrorCode); !bytes.Equal(v, []byte{1, 2, 3}) {
		t.Fatalf("failed set must not replace value: %x", v)
	}
	assertLengthIdentity(t, table)
}

func TestTableUnknownTagSurvivesRoundTrip(t *testing.T) {
	testlog.Start(t)
	wire := []byte{
		0x14, 0x99, 0x00, 0x03, 0xAA, 0xBB, 0xCC, // unknown vendor tag
		0x02, 0x10, 0x00, 0x01, 0x34, // sc_interface_version
	}
	table := NewTable(NewStandardRegistry())
	if err := table.DecodeAll(wire, len(wire)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	v, ok := table.Bytes(0x1499)
	if !ok || !bytes.Equal(v, []byte{0xAA, 0xBB, 0xCC}) {
		t.Fatalf("unknown tag value: %x %v", v, ok)
	}
	if !bytes.Equal(table.AppendTo(nil), wire) {
		t.Fatalf("unknown tag did not re-encode byte-identically")
	}
	assertLengthIdentity(t, table)
}

func TestTableMalformedValueKeptOpaque(t *testing.T) {
	testlog.Start(t)
	// sc_interface_version is a 1-byte integer; a 3-byte value cannot decode
	wire := []byte{0x02, 0x10, 0x00, 0x03, 0x01, 0x02, 0x03}
	table := NewTable(NewStandardRegistry())
	if err := table.DecodeAll(wire, len(wire)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := table.Int(SCInterfaceVersion); ok {
		t.Fatalf("malformed integer should not decode")
	}
	if v, ok := table.Bytes(SCInterfaceVersion); !ok || len(v) != 3 {
		t.Fatalf("expected opaque bytes, got %x %v", v, ok)
	}
	if !bytes.Equal(table.AppendTo(nil), wire) {
		t.Fatalf("opaque value did not re-encode byte-identically")
	}
}

func TestTableDecodeAllTruncated(t *testing.T) {
	testlog.Start(t)
	table := NewTable(NewStandardRegistry())
	wire := []byte{0x02, 0x10, 0x00, 0x02, 0x34}
	if err := table.DecodeAll(wire, len(wire)); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if err := table.DecodeAll(wire, len(wire)+1); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated for short source, got %v", err)
	}
}

func TestTableDecodeAllCopiesSource(t *testing.T) {
	testlog.Start(t)
	wire := []byte{0x04, 0x24, 0x00, 0x02, 'h', 'i'}
	table := NewTable(NewStandardRegistry())
	if err := table.DecodeAll(wire, len(wire)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	wire[4] = 'X'
	if v, _ := table.Bytes(MessagePayload); string(v) != "hi" {
		t.Fatalf("table aliases caller buffer: %q", v)
	}
}

func TestTableOctetValueNotAliased(t *testing.T) {
	testlog.Start(t)
	wire := []byte{0x04, 0x24, 0x00, 0x02, 'h', 'i'}
	table := NewTable(NewStandardRegistry())
	if err := table.DecodeAll(wire, len(wire)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, _ := table.Bytes(MessagePayload)
	got[0] = 'X'
	if v, _ := table.Bytes(MessagePayload); string(v) != "hi" {
		t.Fatalf("decoded value changed through returned slice: %q", v)
	}

	payload := []byte("set")
	if err := table.Set(MessagePayload, payload); err != nil {
		t.Fatalf("set: %v", err)
	}
	payload[0] = 'X'
	v, _ := table.Get(MessagePayload)
	v.([]byte)[1] = 'X'
	if v, _ := table.Bytes(MessagePayload); string(v) != "set" {
		t.Fatalf("stored value changed: %q", v)
	}
	want := []byte{0x04, 0x24, 0x00, 0x03, 's', 'e', 't'}
	if !bytes.Equal(table.AppendTo(nil), want) {
		t.Fatalf("wire form diverged: %x", table.AppendTo(nil))
	}
	assertLengthIdentity(t, table)
}

func TestTableSetOnRawForcesFirst(t *testing.T) {
	testlog.Start(t)
	wire := []byte{0x02, 0x10, 0x00, 0x01, 0x34}
	table := NewTable(NewStandardRegistry())
	if err := table.DecodeAll(wire, len(wire)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := table.Set(SourcePort, 2775); err != nil {
		t.Fatalf("set: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected parsed and inserted tags, got %d", table.Len())
	}
	if v, _ := table.Int(SCInterfaceVersion); v != 0x34 {
		t.Fatalf("raw value lost on set: %d", v)
	}
	assertLengthIdentity(t, table)
}

func TestTableRemoveAndClear(t *testing.T) {
	testlog.Start(t)
	table := populated(t)
	if !table.Remove(MessagePayload) {
		t.Fatalf("remove reported missing tag")
	}
	if table.Remove(MessagePayload) {
		t.Fatalf("second remove should report missing")
	}
	assertLengthIdentity(t, table)
	table.Clear()
	if table.Len() != 0 || table.ByteLength() != 0 {
		t.Fatalf("clear left entries")
	}
}

func TestTableConcurrentFirstAccessParsesOnce(t *testing.T) {
	testlog.Start(t)
	src := populated(t)
	wire := src.AppendTo(nil)
	table := NewTable(src.Registry())
	if err := table.DecodeAll(wire, len(wire)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var wg sync.WaitGroup
	lengths := make([]int, 16)
	for i := range lengths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lengths[i] = table.ByteLength()
		}(i)
	}
	wg.Wait()
	for i, n := range lengths {
		if n != len(wire) {
			t.Fatalf("goroutine %d saw length %d want %d", i, n, len(wire))
		}
	}
	if table.Len() != src.Len() {
		t.Fatalf("parsed %d tags want %d", table.Len(), src.Len())
	}
}

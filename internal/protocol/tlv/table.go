package tlv

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	logs "github.com/danmuck/smppctl/internal/logging"
)

type tableState uint8

const (
	stateDecoded tableState = iota
	stateRaw
)

type entry struct {
	tag   *Tag
	value any
	wire  []byte
	// opaque is set when the wire bytes did not decode under tag's codec;
	// value then holds a copy of the bytes.
	opaque bool
}

// Table is an insertion-ordered set of optional parameters. After DecodeAll
// it holds the raw wire region; the first structured access parses it once
// and the raw bytes are dropped.
type Table struct {
	mu       sync.Mutex
	registry *Registry
	state    tableState
	raw      []byte
	order    []uint16
	entries  map[uint16]*entry
}

func NewTable(registry *Registry) *Table {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Table{
		registry: registry,
		entries:  make(map[uint16]*entry),
	}
}

func (t *Table) Registry() *Registry {
	return t.registry
}

// DecodeAll replaces the table contents with the first length bytes of src.
// Record framing is checked immediately; values are parsed on first access.
func (t *Table) DecodeAll(src []byte, length int) error {
	if length < 0 || length > len(src) {
		return fmt.Errorf("%w: want %d bytes, have %d", ErrTruncated, length, len(src))
	}
	region := src[:length]
	if err := walkRecords(region, nil); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = t.order[:0]
	t.entries = make(map[uint16]*entry)
	if length == 0 {
		t.raw = nil
		t.state = stateDecoded
		return nil
	}
	t.raw = append([]byte(nil), region...)
	t.state = stateRaw
	return nil
}

// IsRaw reports whether the table still holds an unparsed wire region.
func (t *Table) IsRaw() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateRaw
}

// Force parses a raw table. It is a no-op once decoded.
func (t *Table) Force() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.force()
}

func (t *Table) force() {
	if t.state != stateRaw {
		return
	}
	raw := t.raw
	t.raw = nil
	t.state = stateDecoded
	// Framing was validated by DecodeAll.
	_ = walkRecords(raw, func(rec record) error {
		tag := t.registry.Lookup(rec.ID)
		wire := append([]byte(nil), rec.Value...)
		e := &entry{tag: tag, wire: wire}
		v, err := tag.Decode(rec.Value, len(rec.Value))
		if err != nil {
			logs.Debugf("tlv.Table.force tag=%s len=%d keeping opaque: %v", tag, len(wire), err)
			e.value = append([]byte(nil), wire...)
			e.opaque = true
		} else {
			e.value = v
		}
		t.put(e)
		return nil
	})
}

func (t *Table) put(e *entry) {
	if _, ok := t.entries[e.tag.ID]; !ok {
		t.order = append(t.order, e.tag.ID)
	}
	t.entries[e.tag.ID] = e
}

// Get returns the decoded value for id. Octet values are copied so the
// caller cannot drift them away from the cached wire form.
func (t *Table) Get(id uint16) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.force()
	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	if b, isBytes := e.value.([]byte); isBytes {
		return append([]byte(nil), b...), true
	}
	return e.value, true
}

func (t *Table) Has(id uint16) bool {
	_, ok := t.Get(id)
	return ok
}

// Set validates v against the tag registered for id and stores it. For a
// no-value tag pass nil to mark it present.
func (t *Table) Set(id uint16, v any) error {
	tag := t.registry.Lookup(id)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.force()
	wire, err := tag.Encode(v)
	if err != nil {
		return err
	}
	value, _ := tag.Codec.Normalize(v)
	t.put(&entry{tag: tag, value: value, wire: wire})
	return nil
}

func (t *Table) Remove(id uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.force()
	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.raw = nil
	t.state = stateDecoded
	t.order = t.order[:0]
	t.entries = make(map[uint16]*entry)
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.force()
	return len(t.order)
}

// Tags lists the present tags in insertion order.
func (t *Table) Tags() []*Tag {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.force()
	out := make([]*Tag, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.entries[id].tag)
	}
	return out
}

// Range calls fn for each parameter in insertion order until fn returns
// false. fn must not call back into the table.
func (t *Table) Range(fn func(tag *Tag, value any) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.force()
	for _, id := range t.order {
		e := t.entries[id]
		if !fn(e.tag, e.value) {
			return
		}
	}
}

// ByteLength is exactly the number of bytes EncodeAll writes.
func (t *Table) ByteLength() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.force()
	n := 0
	for _, id := range t.order {
		n += HeaderLen + len(t.entries[id].wire)
	}
	return n
}

func (t *Table) AppendTo(dst []byte) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.force()
	for _, id := range t.order {
		e := t.entries[id]
		dst = appendRecord(dst, id, e.wire)
	}
	return dst
}

func (t *Table) EncodeAll(w io.Writer) (int, error) {
	return w.Write(t.AppendTo(nil))
}

// Equal compares parameters by id, order and wire bytes.
func (t *Table) Equal(other *Table) bool {
	if other == nil {
		return t.Len() == 0
	}
	return bytes.Equal(t.AppendTo(nil), other.AppendTo(nil))
}

func (t *Table) Int(id uint16) (uint64, bool) {
	v, ok := t.Get(id)
	n, isInt := v.(uint64)
	return n, ok && isInt
}

func (t *Table) String(id uint16) (string, bool) {
	v, ok := t.Get(id)
	s, isString := v.(string)
	return s, ok && isString
}

func (t *Table) Bytes(id uint16) ([]byte, bool) {
	v, ok := t.Get(id)
	b, isBytes := v.([]byte)
	return b, ok && isBytes
}

func (t *Table) Bits(id uint16) (BitSet, bool) {
	v, ok := t.Get(id)
	b, isBits := v.(BitSet)
	return b, ok && isBits
}

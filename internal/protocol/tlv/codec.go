package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Codec converts between a Go value and the bytes of one TLV value.
// Normalize rejects values of the wrong type and returns the canonical form
// that Encode accepts and Decode produces.
type Codec interface {
	Name() string
	Check(tag *Tag) error
	Normalize(v any) (any, error)
	Encode(tag *Tag, v any) ([]byte, error)
	Decode(tag *Tag, b []byte) (any, error)
}

// BitSet holds up to 64 flags. Bit i is carried in byte i/8, bit i%8,
// least significant bit first.
type BitSet uint64

func (b BitSet) Has(i int) bool {
	return i >= 0 && i < 64 && b&(1<<uint(i)) != 0
}

func (b BitSet) Set(i int) BitSet {
	if i < 0 || i >= 64 {
		return b
	}
	return b | 1<<uint(i)
}

func (b BitSet) Clear(i int) BitSet {
	if i < 0 || i >= 64 {
		return b
	}
	return b &^ (1 << uint(i))
}

var (
	Integer Codec = integerCodec{}
	CString Codec = cstringCodec{}
	Octets  Codec = octetCodec{}
	Bitmask Codec = bitmaskCodec{}
	NoValue Codec = noValueCodec{}
)

var errNilValue = errors.New("nil value for a value-carrying tag")

type integerCodec struct{}

func (integerCodec) Name() string { return "integer" }

func (integerCodec) Check(tag *Tag) error {
	if !tag.Fixed() || !validIntWidth(tag.Min) {
		return fmt.Errorf("integer width must be fixed at 1, 2, 4 or 8 bytes")
	}
	return nil
}

func (integerCodec) Normalize(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return nil, errNilValue
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case uint:
		return uint64(n), nil
	case int8:
		return signed(int64(n))
	case int16:
		return signed(int64(n))
	case int32:
		return signed(int64(n))
	case int64:
		return signed(n)
	case int:
		return signed(int64(n))
	default:
		return nil, fmt.Errorf("want integer, got %T", v)
	}
}

func signed(n int64) (any, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative integer %d", n)
	}
	return uint64(n), nil
}

func (integerCodec) Encode(tag *Tag, v any) ([]byte, error) {
	n := v.(uint64)
	width := tag.Min
	if width < 8 && n>>(8*uint(width)) != 0 {
		return nil, fmt.Errorf("%w: %s value %d overflows %d bytes", ErrInvalidSize, tag, n, width)
	}
	b := make([]byte, width)
	putUint(b, n)
	return b, nil
}

func (integerCodec) Decode(tag *Tag, b []byte) (any, error) {
	if !validIntWidth(len(b)) {
		return nil, fmt.Errorf("%w: %s integer of %d bytes", ErrInvalidSize, tag, len(b))
	}
	return readUint(b), nil
}

func validIntWidth(n int) bool {
	return n == 1 || n == 2 || n == 4 || n == 8
}

func putUint(b []byte, n uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(n)
	case 2:
		binary.BigEndian.PutUint16(b, uint16(n))
	case 4:
		binary.BigEndian.PutUint32(b, uint32(n))
	case 8:
		binary.BigEndian.PutUint64(b, n)
	}
}

func readUint(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(b))
	case 4:
		return uint64(binary.BigEndian.Uint32(b))
	default:
		return binary.BigEndian.Uint64(b)
	}
}

type cstringCodec struct{}

func (cstringCodec) Name() string { return "cstring" }

func (cstringCodec) Check(tag *Tag) error {
	if tag.Max == 0 {
		return fmt.Errorf("cstring needs room for its terminator")
	}
	return nil
}

func (cstringCodec) Normalize(v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, errNilValue
	case string:
		return s, nil
	default:
		return nil, fmt.Errorf("want string, got %T", v)
	}
}

func (cstringCodec) Encode(_ *Tag, v any) ([]byte, error) {
	s := v.(string)
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b, nil
}

// Decode strips exactly one trailing byte, whatever it is.
func (cstringCodec) Decode(_ *Tag, b []byte) (any, error) {
	if len(b) == 0 {
		return "", nil
	}
	return string(b[:len(b)-1]), nil
}

type octetCodec struct{}

func (octetCodec) Name() string { return "octets" }

func (octetCodec) Check(*Tag) error { return nil }

func (octetCodec) Normalize(v any) (any, error) {
	switch b := v.(type) {
	case nil:
		return nil, errNilValue
	case []byte:
		if b == nil {
			return nil, errNilValue
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	default:
		return nil, fmt.Errorf("want []byte, got %T", v)
	}
}

func (octetCodec) Encode(_ *Tag, v any) ([]byte, error) {
	b := v.([]byte)
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (octetCodec) Decode(_ *Tag, b []byte) (any, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

type bitmaskCodec struct{}

func (bitmaskCodec) Name() string { return "bitmask" }

func (bitmaskCodec) Check(tag *Tag) error {
	if tag.Max == Unbounded || tag.Max > 8 {
		return fmt.Errorf("bitmask wider than 8 bytes")
	}
	return nil
}

func (bitmaskCodec) Normalize(v any) (any, error) {
	switch b := v.(type) {
	case nil:
		return nil, errNilValue
	case BitSet:
		return b, nil
	default:
		return nil, fmt.Errorf("want tlv.BitSet, got %T", v)
	}
}

func (bitmaskCodec) Encode(tag *Tag, v any) ([]byte, error) {
	bits := v.(BitSet)
	n := 1
	for i := 63; i >= 0; i-- {
		if bits.Has(i) {
			n = i/8 + 1
			break
		}
	}
	if tag.Fixed() {
		if n > tag.Min {
			return nil, fmt.Errorf("%w: %s bit set beyond %d bytes", ErrInvalidSize, tag, tag.Min)
		}
		n = tag.Min
	}
	b := make([]byte, n)
	for i := 0; i < n*8; i++ {
		if bits.Has(i) {
			b[i/8] |= 1 << uint(i%8)
		}
	}
	return b, nil
}

func (bitmaskCodec) Decode(tag *Tag, b []byte) (any, error) {
	if len(b) > 8 {
		return nil, fmt.Errorf("%w: %s bitmask of %d bytes", ErrInvalidSize, tag, len(b))
	}
	var bits BitSet
	for i := 0; i < len(b)*8; i++ {
		if b[i/8]&(1<<uint(i%8)) != 0 {
			bits = bits.Set(i)
		}
	}
	return bits, nil
}

type noValueCodec struct{}

func (noValueCodec) Name() string { return "novalue" }

func (noValueCodec) Check(tag *Tag) error {
	if tag.Max != 0 {
		return fmt.Errorf("no-value tag must have max length 0")
	}
	return nil
}

func (noValueCodec) Normalize(v any) (any, error) {
	if v != nil {
		return nil, fmt.Errorf("no-value tag given %T", v)
	}
	return nil, nil
}

func (noValueCodec) Encode(*Tag, any) ([]byte, error) {
	return []byte{}, nil
}

func (noValueCodec) Decode(tag *Tag, b []byte) (any, error) {
	if len(b) != 0 {
		return nil, fmt.Errorf("%w: %s carries %d bytes", ErrInvalidSize, tag, len(b))
	}
	return nil, nil
}

package pdu

import (
	"bytes"
	"fmt"
)

// Encoder appends mandatory fields to a packet buffer.
type Encoder struct {
	buf []byte
}

func NewEncoder(dst []byte) *Encoder {
	return &Encoder{buf: dst}
}

func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) U8(v uint8) {
	e.buf = append(e.buf, v)
}

// CString writes s followed by a NUL. max is the field size including the
// terminator; zero means unlimited.
func (e *Encoder) CString(s string, max int) error {
	if max > 0 && len(s)+1 > max {
		return fmt.Errorf("%w: %q exceeds %d octets", ErrFieldTooLong, s, max-1)
	}
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
	return nil
}

func (e *Encoder) Octets(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *Encoder) Address(a Address, max int) error {
	e.U8(a.TON)
	e.U8(a.NPI)
	return e.CString(a.Addr, max)
}

// Decoder reads mandatory fields from the region between the header and
// the optional parameter block.
type Decoder struct {
	b   []byte
	off int
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{b: b}
}

func (d *Decoder) Offset() int {
	return d.off
}

func (d *Decoder) Remaining() int {
	return len(d.b) - d.off
}

func (d *Decoder) U8() (uint8, error) {
	if d.Remaining() < 1 {
		return 0, fmt.Errorf("%w: u8 at offset %d", ErrTruncated, d.off)
	}
	v := d.b[d.off]
	d.off++
	return v, nil
}

func (d *Decoder) CString() (string, error) {
	i := bytes.IndexByte(d.b[d.off:], 0)
	if i < 0 {
		return "", fmt.Errorf("%w: at offset %d", ErrUnterminatedString, d.off)
	}
	s := string(d.b[d.off : d.off+i])
	d.off += i + 1
	return s, nil
}

func (d *Decoder) Octets(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, fmt.Errorf("%w: %d octets at offset %d", ErrTruncated, n, d.off)
	}
	out := make([]byte, n)
	copy(out, d.b[d.off:d.off+n])
	d.off += n
	return out, nil
}

func (d *Decoder) Address() (Address, error) {
	var a Address
	var err error
	if a.TON, err = d.U8(); err != nil {
		return Address{}, err
	}
	if a.NPI, err = d.U8(); err != nil {
		return Address{}, err
	}
	if a.Addr, err = d.CString(); err != nil {
		return Address{}, err
	}
	return a, nil
}

// fieldReader chains reads so body decoders stay linear; the first error
// sticks.
type fieldReader struct {
	d   *Decoder
	err error
}

func (r *fieldReader) u8(dst *uint8) {
	if r.err != nil {
		return
	}
	*dst, r.err = r.d.U8()
}

func (r *fieldReader) cstring(dst *string) {
	if r.err != nil {
		return
	}
	*dst, r.err = r.d.CString()
}

func (r *fieldReader) address(dst *Address) {
	if r.err != nil {
		return
	}
	*dst, r.err = r.d.Address()
}

func (r *fieldReader) octets(dst *[]byte, n int) {
	if r.err != nil {
		return
	}
	*dst, r.err = r.d.Octets(n)
}

type fieldWriter struct {
	e   *Encoder
	err error
}

func (w *fieldWriter) u8(v uint8) {
	if w.err != nil {
		return
	}
	w.e.U8(v)
}

func (w *fieldWriter) cstring(s string, max int) {
	if w.err != nil {
		return
	}
	w.err = w.e.CString(s, max)
}

func (w *fieldWriter) address(a Address, max int) {
	if w.err != nil {
		return
	}
	w.err = w.e.Address(a, max)
}

func (w *fieldWriter) octets(b []byte) {
	if w.err != nil {
		return
	}
	w.e.Octets(b)
}

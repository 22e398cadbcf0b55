package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderLen is the fixed packet header: length, command id, status and
// sequence number, each a big-endian u32.
const HeaderLen = 16

var (
	ErrShortHeader    = errors.New("frame: short header")
	ErrShortBody      = errors.New("frame: stream ended inside packet")
	ErrLengthTooSmall = errors.New("frame: declared length smaller than header")
	ErrPacketTooLarge = errors.New("frame: packet too large")
)

// Header is the fixed wire header. Length counts the whole packet,
// header included.
type Header struct {
	Length    uint32
	CommandID uint32
	Status    uint32
	Sequence  uint32
}

// Limits constrains decode memory use.
type Limits struct {
	MaxPacketBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPacketBytes: 64 * 1024,
	}
}

// ReadFrame reads one whole packet into buf and returns the filled slice.
// buf is grown when the declared length exceeds its capacity; bytes already
// read are carried over. The returned slice may alias buf.
func ReadFrame(r io.Reader, buf []byte, limits Limits) ([]byte, error) {
	if cap(buf) < HeaderLen {
		buf = make([]byte, HeaderLen)
	}
	buf = buf[:cap(buf)]

	if _, err := io.ReadFull(r, buf[:4]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return buf[:0], ErrShortHeader
		}
		return buf[:0], err
	}
	length := binary.BigEndian.Uint32(buf[:4])
	if length < HeaderLen {
		return buf[:0], fmt.Errorf("%w: %d", ErrLengthTooSmall, length)
	}
	if limits.MaxPacketBytes > 0 && length > limits.MaxPacketBytes {
		return buf[:0], fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, length, limits.MaxPacketBytes)
	}

	if int(length) > len(buf) {
		grown := make([]byte, length)
		copy(grown, buf[:4])
		buf = grown
	}
	if _, err := io.ReadFull(r, buf[4:length]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return buf[:0], fmt.Errorf("%w: %v", ErrShortBody, err)
		}
		return buf[:0], err
	}
	return buf[:length], nil
}

func PutHeader(b []byte, h Header) {
	binary.BigEndian.PutUint32(b[0:4], h.Length)
	binary.BigEndian.PutUint32(b[4:8], h.CommandID)
	binary.BigEndian.PutUint32(b[8:12], h.Status)
	binary.BigEndian.PutUint32(b[12:16], h.Sequence)
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	PutHeader(buf, h)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	return Header{
		Length:    binary.BigEndian.Uint32(b[0:4]),
		CommandID: binary.BigEndian.Uint32(b[4:8]),
		Status:    binary.BigEndian.Uint32(b[8:12]),
		Sequence:  binary.BigEndian.Uint32(b[12:16]),
	}, nil
}

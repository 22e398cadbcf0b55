package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is the per-record wire header: tag id (u16) and value length (u16).
const HeaderLen = 4

// MaxValueLen is the largest value a record length prefix can carry.
const MaxValueLen = 0xFFFF

var (
	ErrTruncated         = errors.New("tlv: truncated record")
	ErrTagAlreadyDefined = errors.New("tlv: tag already defined")
	ErrInvalidBounds     = errors.New("tlv: invalid tag length bounds")
	ErrBadValueType      = errors.New("tlv: bad value type")
	ErrInvalidSize       = errors.New("tlv: invalid value size")
)

// record is one undecoded tag/length/value triple. Value aliases the
// source buffer.
type record struct {
	ID    uint16
	Value []byte
}

func appendRecord(dst []byte, id uint16, value []byte) []byte {
	var hdr [HeaderLen]byte
	binary.BigEndian.PutUint16(hdr[0:2], id)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(value)))
	dst = append(dst, hdr[:]...)
	return append(dst, value...)
}

// walkRecords visits each record in payload in wire order. A record whose
// header or value runs past the end of payload fails with ErrTruncated.
func walkRecords(payload []byte, fn func(record) error) error {
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return fmt.Errorf("%w: %d header bytes at offset %d", ErrTruncated, len(payload)-i, i)
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		l := int(binary.BigEndian.Uint16(payload[i+2 : i+4]))
		i += HeaderLen
		if len(payload)-i < l {
			return fmt.Errorf("%w: tag 0x%04x wants %d value bytes, %d left", ErrTruncated, id, l, len(payload)-i)
		}
		if fn != nil {
			if err := fn(record{ID: id, Value: payload[i : i+l]}); err != nil {
				return err
			}
		}
		i += l
	}
	return nil
}

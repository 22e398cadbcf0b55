package pdu

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the interface_version byte exchanged at bind time.
type Version uint8

const (
	V33 Version = 0x33
	V34 Version = 0x34
	V50 Version = 0x50

	DefaultVersion = V34
)

func (v Version) String() string {
	switch v {
	case V33:
		return "SMPP 3.3"
	case V34:
		return "SMPP 3.4"
	case V50:
		return "SMPP 5.0"
	default:
		return fmt.Sprintf("SMPP 0x%02x", uint8(v))
	}
}

// SupportsOptionalParams is false for 3.3, which predates TLVs.
func (v Version) SupportsOptionalParams() bool {
	return v >= V34
}

func (v Version) IsOlderThan(other Version) bool {
	return v < other
}

func LookupVersion(id uint64) (Version, error) {
	if id <= 0xFF {
		switch v := Version(id); v {
		case V33, V34, V50:
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: 0x%x", ErrUnknownVersion, id)
}

// ParseVersion accepts "3.4", "34" or "0x34" style names.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "smpp")
	s = strings.TrimSpace(s)
	var (
		id  uint64
		err error
	)
	switch {
	case strings.HasPrefix(s, "0x"):
		id, err = strconv.ParseUint(s[2:], 16, 8)
	default:
		id, err = strconv.ParseUint(strings.ReplaceAll(s, ".", ""), 16, 8)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownVersion, s)
	}
	return LookupVersion(id)
}

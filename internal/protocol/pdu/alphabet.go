package pdu

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Data coding values with a registered alphabet.
const (
	CodingDefault uint8 = 0x00
	CodingIA5     uint8 = 0x01
	CodingLatin1  uint8 = 0x03
	CodingUCS2    uint8 = 0x08
)

// Alphabet transcodes short message text for one data coding.
type Alphabet interface {
	Name() string
	Encode(text string) ([]byte, error)
	Decode(b []byte) (string, error)
}

var alphabets = map[uint8]Alphabet{
	CodingDefault: asciiAlphabet{name: "default"},
	CodingIA5:     asciiAlphabet{name: "ia5"},
	CodingLatin1:  textAlphabet{name: "latin1", enc: charmap.ISO8859_1},
	CodingUCS2:    textAlphabet{name: "ucs2", enc: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
}

func AlphabetFor(dataCoding uint8) (Alphabet, error) {
	a, ok := alphabets[dataCoding]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownDataCoding, dataCoding)
	}
	return a, nil
}

// asciiAlphabet covers the 7-bit IA5 range, one character per octet.
type asciiAlphabet struct {
	name string
}

func (a asciiAlphabet) Name() string { return a.name }

func (a asciiAlphabet) Encode(text string) ([]byte, error) {
	out := make([]byte, 0, len(text))
	for i, r := range text {
		if r >= utf8.RuneSelf {
			return nil, fmt.Errorf("%w: %q at byte %d in %s", ErrUnencodable, r, i, a.name)
		}
		out = append(out, byte(r))
	}
	return out, nil
}

func (a asciiAlphabet) Decode(b []byte) (string, error) {
	for i, c := range b {
		if c >= utf8.RuneSelf {
			return "", fmt.Errorf("%w: octet 0x%02x at %d in %s", ErrUnencodable, c, i, a.name)
		}
	}
	return string(b), nil
}

type textAlphabet struct {
	name string
	enc  encoding.Encoding
}

func (a textAlphabet) Name() string { return a.name }

func (a textAlphabet) Encode(text string) ([]byte, error) {
	out, err := a.enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnencodable, a.name, err)
	}
	return out, nil
}

func (a textAlphabet) Decode(b []byte) (string, error) {
	out, err := a.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnencodable, a.name, err)
	}
	return string(out), nil
}

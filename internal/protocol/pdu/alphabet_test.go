package pdu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/smppctl/internal/testutil/testlog"
)

func TestAlphabetsRoundTrip(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		coding uint8
		text   string
		want   []byte
	}{
		{CodingDefault, "hello", []byte("hello")},
		{CodingIA5, "a=b", []byte("a=b")},
		{CodingLatin1, "café", []byte{'c', 'a', 'f', 0xE9}},
		{CodingUCS2, "hé€", []byte{0x00, 'h', 0x00, 0xE9, 0x20, 0xAC}},
	}
	for _, tc := range cases {
		a, err := AlphabetFor(tc.coding)
		if err != nil {
			t.Fatalf("alphabet 0x%02x: %v", tc.coding, err)
		}
		b, err := a.Encode(tc.text)
		if err != nil {
			t.Fatalf("%s encode: %v", a.Name(), err)
		}
		if !bytes.Equal(b, tc.want) {
			t.Fatalf("%s encode got=%x want=%x", a.Name(), b, tc.want)
		}
		text, err := a.Decode(b)
		if err != nil || text != tc.text {
			t.Fatalf("%s decode got=%q err=%v", a.Name(), text, err)
		}
	}
}

func TestAlphabetRejectsUnencodable(t *testing.T) {
	testlog.Start(t)
	ascii, _ := AlphabetFor(CodingDefault)
	if _, err := ascii.Encode("naïve"); !errors.Is(err, ErrUnencodable) {
		t.Fatalf("expected ErrUnencodable, got %v", err)
	}
	latin1, _ := AlphabetFor(CodingLatin1)
	if _, err := latin1.Encode("€"); !errors.Is(err, ErrUnencodable) {
		t.Fatalf("expected ErrUnencodable for euro in latin1, got %v", err)
	}
	if _, err := AlphabetFor(0x42); !errors.Is(err, ErrUnknownDataCoding) {
		t.Fatalf("expected ErrUnknownDataCoding, got %v", err)
	}
}

func TestShortMessageText(t *testing.T) {
	testlog.Start(t)
	sm := &ShortMessage{}
	if err := sm.SetText(CodingUCS2, "привет"); err != nil {
		t.Fatalf("set text: %v", err)
	}
	if sm.DataCoding != CodingUCS2 || len(sm.Message) != 12 {
		t.Fatalf("unexpected encoding dc=%d len=%d", sm.DataCoding, len(sm.Message))
	}
	text, err := sm.Text()
	if err != nil || text != "привет" {
		t.Fatalf("text got=%q err=%v", text, err)
	}
}

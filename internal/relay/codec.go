package relay

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Payloads use core deterministic encoding so the same message always
// produces identical bytes on the bus.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("relay: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("relay: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// DecodeMessage parses a payload published by a Relay.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	err := decMode.Unmarshal(data, &msg)
	return msg, err
}

// DecodeState parses a record written by a RedisStore.
func DecodeState(data []byte) (StateRecord, error) {
	var rec StateRecord
	err := decMode.Unmarshal(data, &rec)
	return rec, err
}

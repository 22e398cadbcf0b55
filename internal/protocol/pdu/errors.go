package pdu

import "errors"

var (
	ErrTruncated             = errors.New("pdu: truncated mandatory fields")
	ErrUnterminatedString    = errors.New("pdu: c-octet string without terminator")
	ErrFieldTooLong          = errors.New("pdu: field too long")
	ErrUnknownCommand        = errors.New("pdu: unknown command id")
	ErrCommandAlreadyDefined = errors.New("pdu: command already defined")
	ErrNoResponse            = errors.New("pdu: command has no response")
	ErrLengthMismatch        = errors.New("pdu: declared length does not match packet")
	ErrUnknownVersion        = errors.New("pdu: unknown protocol version")
	ErrUnknownDataCoding     = errors.New("pdu: unknown data coding")
	ErrUnencodable           = errors.New("pdu: text not representable in alphabet")
)

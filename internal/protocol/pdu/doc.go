// Package pdu owns SMPP packet shapes.
//
// Ownership boundary:
// - command ids, command statuses and protocol versions
// - mandatory-field encoding for each supported command
// - the command-id keyed factory used on decode
// - data-coding keyed alphabets for short message text
package pdu

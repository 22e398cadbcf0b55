// Package session drives one client connection to an SMSC.
//
// Ownership boundary:
// - bind/unbind state machine and its compare-and-set transitions
// - sequence numbering and version negotiation
// - the receiver goroutine that feeds the event dispatcher
// - pending request tracking and the auto responder
//
// Framing and transport live in the frame and link packages; packet bodies
// in pdu; observer fan-out in event.
package session

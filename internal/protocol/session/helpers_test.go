package session

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/smppctl/internal/event"
	"github.com/danmuck/smppctl/internal/protocol/frame"
	"github.com/danmuck/smppctl/internal/protocol/link"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
	"github.com/danmuck/smppctl/internal/protocol/tlv"
)

// smsc is a scripted peer on the far end of a net.Pipe. Writes go through
// their own goroutine so the peer never blocks the session's receiver.
type smsc struct {
	conn net.Conn
	f    *pdu.Factory
	out  chan *pdu.Packet
	done chan struct{}

	mu  sync.Mutex
	got []*pdu.Packet

	bindStatus pdu.Status
	version    *uint64
	silent     bool
}

func uptr(v uint64) *uint64 { return &v }

func startSMSC(conn net.Conn, configure func(*smsc)) *smsc {
	m := &smsc{
		conn:    conn,
		f:       pdu.NewFactory(nil),
		out:     make(chan *pdu.Packet, 16),
		done:    make(chan struct{}),
		version: uptr(uint64(pdu.V34)),
	}
	if configure != nil {
		configure(m)
	}
	go m.readLoop()
	go m.writeLoop()
	return m
}

func (m *smsc) stop() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	_ = m.conn.Close()
}

func (m *smsc) readLoop() {
	for {
		buf, err := frame.ReadFrame(m.conn, nil, frame.DefaultLimits())
		if err != nil {
			return
		}
		p, err := m.f.Decode(buf)
		if err != nil {
			continue
		}
		m.mu.Lock()
		m.got = append(m.got, p)
		m.mu.Unlock()
		for _, resp := range m.answer(p) {
			m.push(resp)
		}
	}
}

func (m *smsc) writeLoop() {
	for {
		select {
		case <-m.done:
			return
		case p := <-m.out:
			b, err := p.Encode(true)
			if err != nil {
				continue
			}
			if _, err := m.conn.Write(b); err != nil {
				return
			}
		}
	}
}

func (m *smsc) push(p *pdu.Packet) {
	select {
	case m.out <- p:
	case <-m.done:
	}
}

func (m *smsc) answer(p *pdu.Packet) []*pdu.Packet {
	switch {
	case p.CommandID.IsBind():
		if m.silent {
			return nil
		}
		resp := m.f.Make(p.CommandID.Response(), &pdu.BindResp{SystemID: "smsc"})
		resp.Sequence = p.Sequence
		resp.Status = m.bindStatus
		if m.version != nil {
			_ = resp.Params.Set(tlv.SCInterfaceVersion, *m.version)
		}
		return []*pdu.Packet{resp}
	case p.CommandID == pdu.SubmitSM:
		resp, _ := m.f.ResponseTo(p)
		resp.Body.(*pdu.MessageIDResp).MessageID = fmt.Sprintf("msg-%d", p.Sequence)
		return []*pdu.Packet{resp}
	case p.CommandID == pdu.Unbind, p.CommandID == pdu.EnquireLink:
		resp, _ := m.f.ResponseTo(p)
		return []*pdu.Packet{resp}
	}
	return nil
}

func (m *smsc) received() []*pdu.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*pdu.Packet(nil), m.got...)
}

func (m *smsc) waitFor(t *testing.T, id pdu.CommandID) *pdu.Packet {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range m.received() {
			if p.CommandID == id {
				return p
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("smsc never received %s", id)
	return nil
}

func pipeSession(t *testing.T, cfg Config, configure func(*smsc)) (*Session, *smsc) {
	t.Helper()
	client, server := net.Pipe()
	l := link.NewStreamLink(link.ConnDialer(client), nil, link.DefaultConfig())
	s, err := New(l, nil, cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	m := startSMSC(server, configure)
	t.Cleanup(func() {
		m.stop()
		_ = l.Disconnect()
	})
	return s, m
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state=%s want=%s", s.State(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitDone(t *testing.T, s *Session) event.Event {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("receiver did not exit")
	}
	ev, ok := s.ExitEvent()
	if !ok {
		t.Fatalf("no exit event recorded")
	}
	return ev
}

// tape records everything an observer sees.
type tape struct {
	mu      sync.Mutex
	packets []pdu.CommandID
	events  []event.Event
}

func (r *tape) PacketReceived(_ event.Source, p *pdu.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, p.CommandID)
	return nil
}

func (r *tape) Update(_ event.Source, ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *tape) snapshot() ([]pdu.CommandID, []event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pdu.CommandID(nil), r.packets...), append([]event.Event(nil), r.events...)
}

func (r *tape) count(kind event.Kind) int {
	_, events := r.snapshot()
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func submitPacket(f *pdu.Factory) *pdu.Packet {
	return f.Make(pdu.SubmitSM, &pdu.ShortMessage{
		Source:  pdu.Address{TON: 1, NPI: 1, Addr: "447700900001"},
		Dest:    pdu.Address{TON: 1, NPI: 1, Addr: "447700900002"},
		Message: []byte("hello"),
	})
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/smppctl/internal/event"
	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/protocol/link"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
	"github.com/danmuck/smppctl/internal/protocol/schema"
	"github.com/danmuck/smppctl/internal/protocol/tlv"
)

var (
	ErrAlreadyBound    = errors.New("session: already binding or bound")
	ErrIllegalState    = errors.New("session: illegal state")
	ErrReceiverRole    = errors.New("session: receiver session cannot send request")
	ErrNotBound        = errors.New("session: not bound")
	ErrNotBindRequest  = errors.New("session: not a bind request")
	ErrReceiverStopped = errors.New("session: receiver stopped before response")
)

var sessionSeq atomic.Uint64

// Credentials are the mandatory bind fields.
type Credentials struct {
	SystemID     string
	Password     string
	SystemType   string
	AddrTON      uint8
	AddrNPI      uint8
	AddressRange string
}

// Session is one client connection to an SMSC. It owns its link and runs
// one receiver goroutine per bind. Send, Bind and Unbind may be called from
// any goroutine.
type Session struct {
	id      string
	cfg     Config
	link    link.Link
	factory *pdu.Factory
	pending *pendingTable

	state       stateCell
	bindType    atomic.Uint32
	version     atomic.Uint32
	useOptional atomic.Bool
	validating  atomic.Bool

	seqMu sync.RWMutex
	seq   Sequencer

	dmu        sync.RWMutex
	dispatcher event.Dispatcher
	spent      bool

	bmu      sync.Mutex
	receiver atomic.Pointer[receiverLoop]
}

// New builds an unbound session over l. A nil factory uses the standard
// command set.
func New(l link.Link, factory *pdu.Factory, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		factory = pdu.NewFactory(nil)
	}
	d, err := event.New(cfg.Dispatcher)
	if err != nil {
		return nil, err
	}
	if err := d.Init(); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = fmt.Sprintf("session-%d", sessionSeq.Add(1))
	}
	s := &Session{
		id:         cfg.ID,
		cfg:        cfg,
		link:       l,
		factory:    factory,
		pending:    newPendingTable(),
		seq:        NewCounter(),
		dispatcher: d,
	}
	s.SetVersion(cfg.Version)
	s.validating.Store(cfg.Validating)
	return s, nil
}

func (s *Session) ID() string { return s.id }
func (s *Session) Link() link.Link { return s.link }
func (s *Session) Factory() *pdu.Factory { return s.factory }
func (s *Session) State() State { return s.state.load() }
func (s *Session) Type() Type { return Type(s.bindType.Load()) }
func (s *Session) Version() pdu.Version { return pdu.Version(s.version.Load()) }
func (s *Session) OptionalParams() bool { return s.useOptional.Load() }
func (s *Session) Validating() bool { return s.validating.Load() }
func (s *Session) SetValidating(on bool) { s.validating.Store(on) }
func (s *Session) Pending() []PendingRequest { return s.pending.list() }

// SetVersion sets the protocol version offered on bind and re-evaluates
// optional parameter support.
func (s *Session) SetVersion(v pdu.Version) {
	s.version.Store(uint32(v))
	s.useOptional.Store(v.SupportsOptionalParams())
}

func (s *Session) Sequencer() Sequencer {
	s.seqMu.RLock()
	defer s.seqMu.RUnlock()
	return s.seq
}

func (s *Session) SetSequencer(seq Sequencer) {
	s.seqMu.Lock()
	s.seq = seq
	s.seqMu.Unlock()
}

func (s *Session) nextSequence() uint32 {
	seq := s.Sequencer()
	if seq == nil {
		return 0
	}
	return seq.Next()
}

// Dispatcher returns the current dispatcher.
func (s *Session) Dispatcher() event.Dispatcher {
	s.dmu.RLock()
	defer s.dmu.RUnlock()
	return s.dispatcher
}

// SetDispatcher initializes next, moves every registered observer onto it,
// swaps it in and destroys the previous dispatcher unless a finished
// receiver already retired it.
func (s *Session) SetDispatcher(next event.Dispatcher) error {
	s.dmu.Lock()
	old, spent := s.dispatcher, s.spent
	if err := event.Transfer(old, next); err != nil {
		s.dmu.Unlock()
		return err
	}
	s.dispatcher = next
	s.spent = false
	s.dmu.Unlock()
	if old != nil && !spent {
		old.Destroy()
	}
	return nil
}

func (s *Session) AddObserver(o event.Observer) bool {
	return s.Dispatcher().AddObserver(o)
}

func (s *Session) RemoveObserver(o event.Observer) bool {
	return s.Dispatcher().RemoveObserver(o)
}

// renewDispatcher replaces a dispatcher retired by a finished receiver
// with a fresh one of the configured kind. The retired one is left to the
// receiver that detached it.
func (s *Session) renewDispatcher() error {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if !s.spent {
		return nil
	}
	next, err := event.New(s.cfg.Dispatcher)
	if err != nil {
		return err
	}
	if err := event.Transfer(s.dispatcher, next); err != nil {
		return err
	}
	s.dispatcher = next
	s.spent = false
	return nil
}

// detachDispatcher marks the current dispatcher spent and hands it to the
// caller, which must destroy it.
func (s *Session) detachDispatcher() event.Dispatcher {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	s.spent = true
	return s.dispatcher
}

func (s *Session) notifyPacket(p *pdu.Packet) {
	if err := s.Dispatcher().NotifyPacket(s, p); err != nil {
		logs.Warnf("session.notifyPacket id=%s packet=%s err=%v", s.id, p, err)
	}
}

func (s *Session) notifyEvent(ev event.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if err := s.Dispatcher().NotifyEvent(s, ev); err != nil {
		logs.Warnf("session.notifyEvent id=%s event=%s err=%v", s.id, ev, err)
	}
}

// Bind builds a bind request for typ and sends it.
func (s *Session) Bind(ctx context.Context, typ Type, c Credentials) error {
	cmd, ok := typ.BindCommand()
	if !ok {
		return fmt.Errorf("%w: bind type %d", ErrIllegalState, typ)
	}
	p := s.factory.Make(cmd, &pdu.Bind{
		SystemID:         c.SystemID,
		Password:         c.Password,
		SystemType:       c.SystemType,
		InterfaceVersion: s.Version(),
		AddrTON:          c.AddrTON,
		AddrNPI:          c.AddrNPI,
		AddressRange:     c.AddressRange,
	})
	return s.BindPacket(ctx, p)
}

// BindPacket sends a prepared bind request. The link is connected first if
// needed, the bind timeout is installed and the receiver is started once
// the request is written. Binding a session that is not Unbound fails
// without touching its state. It may be called from a ReceiverExit
// observer.
func (s *Session) BindPacket(ctx context.Context, p *pdu.Packet) error {
	typ, ok := TypeOf(p.CommandID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotBindRequest, p.CommandID)
	}
	s.bmu.Lock()
	defer s.bmu.Unlock()
	if st := s.State(); st != Unbound {
		return fmt.Errorf("%w: state=%s", ErrAlreadyBound, st)
	}
	if prev := s.receiver.Load(); prev != nil {
		prev.Stop()
		select {
		case <-prev.finished:
		default:
			// still parked in a blocking read
			_ = s.link.Disconnect()
			select {
			case <-prev.finished:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if !s.link.IsConnected() {
		if err := s.link.Connect(ctx); err != nil {
			return err
		}
	}
	if err := s.renewDispatcher(); err != nil {
		return err
	}
	s.bindType.Store(uint32(typ))
	s.setLinkTimeout(s.cfg.BindTimeout, "bind")

	logs.Debugf("session.Bind id=%s type=%s version=%s", s.id, typ, s.Version())
	if err := s.send(ctx, p); err != nil {
		return err
	}
	r := newReceiver(s, s.cfg.IOFailureLimit)
	s.receiver.Store(r)
	go r.run()
	return nil
}

// Unbind sends an unbind request. The session reaches Unbound when the
// peer answers.
func (s *Session) Unbind(ctx context.Context) error {
	if st := s.State(); st == Unbound {
		return fmt.Errorf("%w: state=%s", ErrNotBound, st)
	}
	return s.send(ctx, s.factory.Make(pdu.Unbind, nil))
}

// Send writes p. Bind requests are routed through BindPacket. A receiver
// session may only send unbind and enquire_link requests, and any response.
func (s *Session) Send(ctx context.Context, p *pdu.Packet) error {
	if p.CommandID.IsBind() {
		return s.BindPacket(ctx, p)
	}
	if s.Type() == Receiver && p.IsRequest() {
		switch p.CommandID {
		case pdu.Unbind, pdu.EnquireLink:
		default:
			return fmt.Errorf("%w: %s", ErrReceiverRole, p.CommandID)
		}
	}
	return s.send(ctx, p)
}

// Request sends req and waits for the response carrying its sequence
// number. A generic_nack with that number also completes the request.
func (s *Session) Request(ctx context.Context, req *pdu.Packet) (*pdu.Packet, error) {
	if !req.IsRequest() {
		return nil, fmt.Errorf("%w: %s is a response", pdu.ErrNoResponse, req.CommandID)
	}
	switch req.CommandID {
	case pdu.Outbind, pdu.AlertNotification:
		return nil, fmt.Errorf("%w: %s", pdu.ErrNoResponse, req.CommandID)
	}
	if req.Sequence == 0 {
		req.Sequence = s.nextSequence()
	}
	w, err := s.pending.add(req.Sequence, req.CommandID)
	if err != nil {
		return nil, err
	}
	if err := s.Send(ctx, req); err != nil {
		s.pending.remove(req.Sequence)
		return nil, err
	}
	select {
	case resp, ok := <-w.done:
		if !ok {
			return nil, ErrReceiverStopped
		}
		return resp, nil
	case <-ctx.Done():
		s.pending.remove(req.Sequence)
		return nil, ctx.Err()
	}
}

func (s *Session) send(ctx context.Context, p *pdu.Packet) error {
	if p.Sequence == 0 {
		p.Sequence = s.nextSequence()
	}
	if s.validating.Load() {
		if err := schema.Validate(p, s.Version()); err != nil {
			return err
		}
	}
	undo := s.beforeWrite(p)
	if err := s.link.Write(ctx, p, s.useOptional.Load()); err != nil {
		if undo != nil {
			undo()
		}
		return err
	}
	s.processSent(p)
	return nil
}

// beforeWrite applies the transition a request causes before it reaches
// the wire, so a fast response always finds the state it expects. The
// returned func reverts it when the write fails.
func (s *Session) beforeWrite(p *pdu.Packet) func() {
	switch {
	case p.CommandID.IsBind():
		if s.state.transition(s.id, Unbound, Binding) {
			return func() { s.state.transition(s.id, Binding, Unbound) }
		}
	case p.CommandID == pdu.Unbind:
		if s.state.transition(s.id, Bound, Unbinding) {
			return func() { s.state.transition(s.id, Unbinding, Bound) }
		}
	}
	return nil
}

// processSent completes a peer-initiated unbind once our answer is on the
// wire. The receiver may already be parked in the next read, so the link is
// closed to release it.
func (s *Session) processSent(p *pdu.Packet) {
	if p.CommandID != pdu.UnbindResp || p.Status != pdu.StatusOK {
		return
	}
	if !s.state.transition(s.id, Unbinding, Unbound) {
		return
	}
	if r := s.receiver.Load(); r != nil {
		r.Stop()
	}
	if err := s.link.Disconnect(); err != nil {
		logs.Debugf("session.processSent id=%s disconnect err=%v", s.id, err)
	}
}

// ProcessReceived applies an inbound packet to the state machine and
// completes any request waiting on it. The receiver calls it before
// notifying observers.
func (s *Session) ProcessReceived(p *pdu.Packet) {
	switch {
	case p.CommandID.IsBindResponse():
		if p.Status == pdu.StatusOK {
			if s.state.transition(s.id, Binding, Bound) {
				s.negotiateVersion(p)
				s.setLinkTimeout(s.cfg.LinkTimeout, "link")
			}
		} else {
			logs.Warnf("session.ProcessReceived id=%s bind rejected status=%s", s.id, p.Status)
			s.state.transition(s.id, Binding, Unbound)
		}
	case p.CommandID == pdu.Unbind:
		s.state.transition(s.id, Bound, Unbinding)
	case p.CommandID == pdu.UnbindResp:
		if p.Status == pdu.StatusOK {
			s.state.transition(s.id, Unbinding, Unbound)
		} else {
			logs.Warnf("session.ProcessReceived id=%s unbind_resp status=%s", s.id, p.Status)
		}
	}
	if p.IsResponse() {
		s.pending.resolve(p)
	}
}

func (s *Session) negotiateVersion(p *pdu.Packet) {
	if !p.Params.Has(tlv.SCInterfaceVersion) {
		logs.Infof("session.negotiateVersion id=%s peer sent no sc_interface_version; optional parameters disabled", s.id)
		s.useOptional.Store(false)
		return
	}
	id, ok := p.Params.Int(tlv.SCInterfaceVersion)
	if !ok {
		logs.Debugf("session.negotiateVersion id=%s unreadable sc_interface_version", s.id)
		return
	}
	peer, err := pdu.LookupVersion(id)
	if err != nil {
		logs.Debugf("session.negotiateVersion id=%s unknown peer version=0x%x", s.id, id)
		return
	}
	logs.Infof("session.negotiateVersion id=%s peer=%s local=%s", s.id, peer, s.Version())
	if peer.IsOlderThan(s.Version()) {
		s.SetVersion(peer)
	}
}

func (s *Session) setLinkTimeout(d time.Duration, phase string) {
	if _, err := s.link.Timeout(); errors.Is(err, link.ErrTimeoutUnsupported) {
		logs.Infof("session.setLinkTimeout id=%s link does not support timeouts", s.id)
		return
	}
	if err := s.link.SetTimeout(d); err != nil {
		logs.Warnf("session.setLinkTimeout id=%s phase=%s err=%v", s.id, phase, err)
		return
	}
	logs.Debugf("session.setLinkTimeout id=%s phase=%s timeout=%s", s.id, phase, d)
}

// Done is closed when the current receiver exits. It is closed already when
// no receiver was ever started.
func (s *Session) Done() <-chan struct{} {
	r := s.receiver.Load()
	if r == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return r.Done()
}

// ExitEvent returns the terminal event of the last receiver to finish.
func (s *Session) ExitEvent() (event.Event, bool) {
	r := s.receiver.Load()
	if r == nil {
		return event.Event{}, false
	}
	select {
	case <-r.Done():
		return r.exit, true
	default:
		return event.Event{}, false
	}
}

// Close stops the receiver and disconnects the link. Only an Unbound
// session may be closed.
func (s *Session) Close() error {
	if st := s.State(); st != Unbound {
		return fmt.Errorf("%w: cannot close while %s", ErrIllegalState, st)
	}
	if r := s.receiver.Load(); r != nil {
		r.Stop()
	}
	return s.link.Disconnect()
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danmuck/smppctl/internal/event"
	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/observability"
	"github.com/danmuck/smppctl/internal/protocol/link"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

// receiverLoop owns the inbound side of a session for one bind. It reads
// until the session is Unbound, it is stopped, or consecutive I/O failures
// reach the limit, then raises exactly one ReceiverExit event on the
// dispatcher it retires.
//
// finished closes once reading has ended and the dispatcher is detached, so
// a ReceiverExit observer may bind again. done closes after the retired
// dispatcher has delivered the exit event and been destroyed.
type receiverLoop struct {
	s        *Session
	limit    int
	ctx      context.Context
	cancel   context.CancelFunc
	running  atomic.Bool
	finished chan struct{}
	done     chan struct{}
	exit     event.Event
}

func newReceiver(s *Session, limit int) *receiverLoop {
	if limit < 1 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &receiverLoop{
		s:        s,
		limit:    limit,
		ctx:      ctx,
		cancel:   cancel,
		finished: make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.running.Store(true)
	return r
}

// Stop asks the loop to finish. A read already in progress is not
// interrupted; the loop exits when it returns.
func (r *receiverLoop) Stop() {
	r.running.Store(false)
	r.cancel()
}

func (r *receiverLoop) Done() <-chan struct{} {
	return r.done
}

func (r *receiverLoop) active() bool {
	return r.running.Load() && r.ctx.Err() == nil
}

func (r *receiverLoop) run() {
	defer close(r.done)
	defer r.cancel()
	s := r.s
	logs.Debugf("session.Receiver start id=%s", s.id)
	s.notifyEvent(event.Event{Kind: event.ReceiverStart, State: s.State().String()})

	ev := r.loop()
	ev.Time = time.Now()
	r.exit = ev
	observability.RecordReceiverExit(ev.Reason.String())
	logs.Infof("session.Receiver exit id=%s reason=%s state=%s err=%v", s.id, ev.Reason, ev.State, ev.Err)

	s.pending.failAll()
	d := s.detachDispatcher()
	close(r.finished)

	if err := d.NotifyEvent(s, ev); err != nil {
		logs.Warnf("session.Receiver exit notify id=%s err=%v", s.id, err)
	}
	d.Destroy()
}

func (r *receiverLoop) exitEvent(reason event.Reason, state State, err error) event.Event {
	return event.Event{
		Kind:   event.ReceiverExit,
		Reason: reason,
		State:  state.String(),
		Err:    err,
	}
}

func (r *receiverLoop) loop() (ev event.Event) {
	s := r.s
	defer func() {
		if rec := recover(); rec != nil {
			ev = r.exitEvent(event.ReasonException, s.State(), fmt.Errorf("session: receiver panic: %v", rec))
		}
	}()

	failures := 0
	for r.active() && s.State() != Unbound {
		p, err := s.link.Read()
		if err == nil {
			s.ProcessReceived(p)
			s.notifyPacket(p)
			failures = 0
			continue
		}
		if !r.active() {
			break
		}

		switch {
		case errors.Is(err, link.ErrReadTimeout):
			st := s.State()
			observability.RecordReadTimeout(st.String())
			if st == Binding {
				logs.Debugf("session.Receiver bind timeout id=%s", s.id)
				s.state.transition(s.id, Binding, Unbound)
				return r.exitEvent(event.ReasonBindTimeout, st, err)
			}
			continue
		case errors.Is(err, pdu.ErrUnknownCommand):
			logs.Warnf("session.Receiver skipping packet id=%s err=%v", s.id, err)
			continue
		}

		failures++
		observability.RecordIOFailure()
		logs.Warnf("session.Receiver io failure id=%s count=%d limit=%d err=%v", s.id, failures, r.limit, err)
		if failures >= r.limit {
			return r.exitEvent(event.ReasonException, s.State(), err)
		}
		s.notifyEvent(event.Event{Kind: event.ReceiverError, State: s.State().String(), Err: err})
	}
	return r.exitEvent(event.ReasonNormal, s.State(), nil)
}

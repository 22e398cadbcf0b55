package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

var ErrDuplicateSequence = errors.New("session: sequence already pending")

// PendingRequest describes one request awaiting its response.
type PendingRequest struct {
	Sequence uint32
	Command  pdu.CommandID
	SentAt   time.Time
}

type waiter struct {
	info PendingRequest
	done chan *pdu.Packet
}

// pendingTable matches responses to outstanding requests by sequence
// number.
type pendingTable struct {
	mu    sync.Mutex
	items map[uint32]*waiter
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		items: make(map[uint32]*waiter),
	}
}

func (t *pendingTable) add(seq uint32, cmd pdu.CommandID) (*waiter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.items[seq]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateSequence, seq)
	}
	w := &waiter{
		info: PendingRequest{Sequence: seq, Command: cmd, SentAt: time.Now()},
		done: make(chan *pdu.Packet, 1),
	}
	t.items[seq] = w
	return w, nil
}

// resolve hands p to the request with the same sequence number. It
// reports false when nothing was waiting.
func (t *pendingTable) resolve(p *pdu.Packet) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.items[p.Sequence]
	if !ok {
		return false
	}
	delete(t.items, p.Sequence)
	w.done <- p
	close(w.done)
	return true
}

func (t *pendingTable) remove(seq uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, seq)
}

// failAll releases every waiter without a response.
func (t *pendingTable) failAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for seq, w := range t.items {
		close(w.done)
		delete(t.items, seq)
	}
}

func (t *pendingTable) list() []PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PendingRequest, 0, len(t.items))
	for _, w := range t.items {
		out = append(out, w.info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

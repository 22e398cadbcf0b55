package event

import (
	"sync"

	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/observability"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

const (
	DefaultPoolSize  = 3
	DefaultQueueSize = 100
)

type notification struct {
	observers []Observer
	src       Source
	packet    *pdu.Packet
	event     Event
}

func (n notification) deliver(dispatcher string) {
	if n.packet != nil {
		deliverPacket(dispatcher, n.observers, n.src, n.packet)
		return
	}
	deliverEvent(dispatcher, n.observers, n.src, n.event)
}

// Threaded queues notifications on a fixed-capacity queue drained by a
// fixed set of workers. A full queue rejects the notification at once so
// the receiver never blocks on slow observers. Packets are queued in read
// order but workers may run them concurrently.
type Threaded struct {
	observerList
	workers  int
	capacity int

	mu     sync.RWMutex
	queue  chan notification
	closed bool
	wg     sync.WaitGroup
}

func NewThreaded(workers, capacity int) *Threaded {
	if workers <= 0 {
		workers = DefaultPoolSize
	}
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Threaded{workers: workers, capacity: capacity}
}

func (d *Threaded) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if d.queue != nil {
		return nil
	}
	d.queue = make(chan notification, d.capacity)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	logs.Debugf("event.Threaded.Init workers=%d capacity=%d", d.workers, d.capacity)
	return nil
}

func (d *Threaded) work() {
	defer d.wg.Done()
	for n := range d.queue {
		n.deliver(KindThreaded)
	}
}

// Destroy stops accepting notifications, lets the workers drain what is
// already queued and waits for them.
func (d *Threaded) Destroy() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.queue != nil {
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Pending reports how many notifications are waiting for a worker.
func (d *Threaded) Pending() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.queue)
}

func (d *Threaded) NotifyEvent(src Source, ev Event) error {
	return d.enqueue(notification{observers: d.Observers(), src: src, event: ev})
}

func (d *Threaded) NotifyPacket(src Source, p *pdu.Packet) error {
	return d.enqueue(notification{observers: d.Observers(), src: src, packet: p})
}

func (d *Threaded) enqueue(n notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || d.queue == nil {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- n:
		return nil
	default:
		observability.RecordDispatchRejected(KindThreaded)
		return ErrQueueFull
	}
}

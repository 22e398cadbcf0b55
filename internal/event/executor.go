package event

import (
	"sync"

	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/observability"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

// Pool runs submitted tasks. Submit must not block.
type Pool interface {
	Submit(task func()) error
}

// FixedPool is a Pool with a fixed number of workers and a bounded task
// queue.
type FixedPool struct {
	mu     sync.RWMutex
	tasks  chan func()
	closed bool
	wg     sync.WaitGroup
}

func NewFixedPool(workers, queue int) *FixedPool {
	if workers <= 0 {
		workers = DefaultPoolSize
	}
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	p := &FixedPool{tasks: make(chan func(), queue)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *FixedPool) work() {
	defer p.wg.Done()
	for task := range p.tasks {
		if err := callSafely(func() error { task(); return nil }); err != nil {
			logs.Errf("event.FixedPool task err=%v", err)
		}
	}
}

func (p *FixedPool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// Stop rejects new tasks, runs the queued ones and waits for the workers.
func (p *FixedPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// Executor submits one task per notification to a Pool. A pool supplied by
// the caller is left running on Destroy; one created by Init is stopped.
type Executor struct {
	observerList
	workers int
	queue   int

	mu     sync.RWMutex
	pool   Pool
	owned  *FixedPool
	closed bool
}

func NewExecutor(pool Pool, workers, queue int) *Executor {
	return &Executor{pool: pool, workers: workers, queue: queue}
}

func (d *Executor) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if d.pool == nil {
		d.owned = NewFixedPool(d.workers, d.queue)
		d.pool = d.owned
	}
	return nil
}

func (d *Executor) Destroy() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	owned := d.owned
	d.mu.Unlock()
	if owned != nil {
		owned.Stop()
	}
}

func (d *Executor) NotifyEvent(src Source, ev Event) error {
	return d.submit(notification{observers: d.Observers(), src: src, event: ev})
}

func (d *Executor) NotifyPacket(src Source, p *pdu.Packet) error {
	return d.submit(notification{observers: d.Observers(), src: src, packet: p})
}

func (d *Executor) submit(n notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || d.pool == nil {
		return ErrDispatcherClosed
	}
	if err := d.pool.Submit(func() { n.deliver(KindExecutor) }); err != nil {
		observability.RecordDispatchRejected(KindExecutor)
		return err
	}
	return nil
}

package transport

import "sync"

// dispatcher runs submitted callbacks one at a time, in submission order, on
// its own goroutine.
//
// The backlog is unbounded so that submitting never blocks: a delegate
// waiting inside one callback must not stall the goroutine that would
// complete it.
type dispatcher struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{} // buffered, size 1
	done   chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		tasks:  make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Do schedules fn. Returns false if the dispatcher is closed.
func (d *dispatcher) Do(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	d.tasks = append(d.tasks, fn)

	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

// Flush waits until every callback scheduled before the call has run.
func (d *dispatcher) Flush() {
	ran := make(chan struct{})
	if !d.Do(func() { close(ran) }) {
		<-d.done
		return
	}
	<-ran
}

// Close stops accepting work. Already scheduled callbacks still run.
func (d *dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	close(d.signal)
}

// Done is closed once the backlog has drained after Close.
func (d *dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		if len(d.tasks) == 0 {
			closed := d.closed
			d.mu.Unlock()
			if closed {
				return
			}
			<-d.signal
			continue
		}
		fn := d.tasks[0]
		d.tasks[0] = nil
		d.tasks = d.tasks[1:]
		d.mu.Unlock()

		fn()
	}
}

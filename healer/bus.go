package healer

import "sync"

const defaultBusCapacity = 256

// Lagged is returned by Receiver.Recv when the caller fell behind and the
// ring buffer had to drop events out from under it. N is how many events
// were skipped. It is never fatal: the caller simply resumes from the
// oldest event still retained.
type Lagged struct{ N int }

func (Lagged) Error() string { return "subscriber lagged behind the bus" }

// Bus is a multi-producer, multi-consumer broadcast channel of ProcessEvent,
// backed by a fixed-size ring buffer with a cursor per subscriber. A slow
// subscriber never blocks a publisher: it just misses events and is told so
// via Lagged.
type Bus struct {
	mu     sync.Mutex
	buf    []ProcessEvent
	cap    int
	head   int64 // index of the next slot to write; total events ever published
	closed bool

	subs map[*Receiver]struct{}
}

// NewBus creates a Bus with the given ring capacity. Capacities below 1 are
// rejected in favor of defaultBusCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = defaultBusCapacity
	}
	return &Bus{
		buf:  make([]ProcessEvent, capacity),
		cap:  capacity,
		subs: make(map[*Receiver]struct{}),
	}
}

// Publish fans ev out to every live subscriber. It never blocks: subscribers
// read from the shared ring at their own pace and are notified via a
// per-subscriber channel that is itself never allowed to back up a
// publisher (sends are non-blocking; see Receiver).
func (b *Bus) Publish(ev ProcessEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	b.buf[b.head%int64(b.cap)] = ev
	b.head++

	subs := make([]*Receiver, 0, len(b.subs))
	for r := range b.subs {
		subs = append(subs, r)
	}
	b.mu.Unlock()

	for _, r := range subs {
		r.notify()
	}
}

// Subscribe registers a new Receiver starting at the current head, i.e. it
// will only observe events published after Subscribe returns.
func (b *Bus) Subscribe() *Receiver {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := &Receiver{
		bus:    b,
		cursor: b.head,
		notifyCh: make(chan struct{}, 1),
	}
	b.subs[r] = struct{}{}
	return r
}

// Close marks the bus closed; subscribers observe end-of-stream once they
// drain whatever is left in the ring. This is the graceful-stop path: no
// new events are accepted after Close.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Receiver, 0, len(b.subs))
	for r := range b.subs {
		subs = append(subs, r)
	}
	b.mu.Unlock()

	for _, r := range subs {
		r.notify()
	}
}

func (b *Bus) unsubscribe(r *Receiver) {
	b.mu.Lock()
	delete(b.subs, r)
	b.mu.Unlock()
}

// Receiver is a single subscriber's view of the Bus.
type Receiver struct {
	bus      *Bus
	cursor   int64
	notifyCh chan struct{}
}

func (r *Receiver) notify() {
	select {
	case r.notifyCh <- struct{}{}:
	default:
	}
}

// Recv blocks until an event is available, the bus is closed and drained
// (ok=false, err=nil), or done fires (also ok=false, err=nil). If the
// subscriber fell too far behind for the ring to still hold its cursor, err
// is a Lagged and cursor is fast-forwarded to the oldest retained event.
func (r *Receiver) Recv(done <-chan struct{}) (ev ProcessEvent, err error, ok bool) {
	for {
		r.bus.mu.Lock()
		head := r.bus.head
		closed := r.bus.closed
		oldest := head - int64(r.bus.cap)
		if oldest < 0 {
			oldest = 0
		}

		if r.cursor < oldest {
			lagged := r.cursor
			r.cursor = oldest
			r.bus.mu.Unlock()
			return ProcessEvent{}, Lagged{N: int(oldest - lagged)}, true
		}

		if r.cursor < head {
			ev := r.bus.buf[r.cursor%int64(r.bus.cap)]
			r.cursor++
			r.bus.mu.Unlock()
			return ev, nil, true
		}

		r.bus.mu.Unlock()

		if closed {
			return ProcessEvent{}, nil, false
		}

		select {
		case <-r.notifyCh:
		case <-done:
			return ProcessEvent{}, nil, false
		}
	}
}

// Close unsubscribes the receiver from its bus.
func (r *Receiver) Close() {
	r.bus.unsubscribe(r)
}

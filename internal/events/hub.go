package events

import "sync"

// DefaultBuffer is the number of droppable events a subscription queues
// before it starts discarding the oldest ones.
const DefaultBuffer = 256

// Hub fans published events out to subscriptions. Publish never blocks:
// each subscription owns a queue drained by its own goroutine.
type Hub struct {
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
	mu     sync.Mutex
}

// NewHub creates a hub whose subscriptions queue up to buffer droppable
// events each
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Publish queues e on every subscription
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.push(e)
	}
}

// Subscribe registers a new consumer. The caller must Close it when done.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{
		hub:    h,
		limit:  h.buffer,
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.stop()
		close(s.out)
		return s
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go s.pump()
	return s
}

// Count returns the number of live subscriptions
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.closed = true
	h.mu.Unlock()

	for s := range subs {
		s.stop()
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Subscription is one consumer's view of the hub
type Subscription struct {
	hub *Hub

	queue   []Event
	limit   int
	dropped int
	mu      sync.Mutex

	signal   chan struct{}
	out      chan Event
	done     chan struct{}
	stopOnce sync.Once
}

// C returns the channel events are delivered on. It is closed after Close.
func (s *Subscription) C() <-chan Event {
	return s.out
}

// Dropped returns how many droppable events were discarded
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unregisters the subscription and closes its channel
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// push queues e. When the queue holds limit events a droppable e evicts the
// oldest droppable event; non-droppable events are always queued.
func (s *Subscription) push(e Event) {
	s.mu.Lock()
	if len(s.queue) >= s.limit && e.Droppable() {
		evicted := false
		for i, queued := range s.queue {
			if queued.Droppable() {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				evicted = true
				break
			}
		}
		s.dropped++
		if !evicted {
			// Queue is all lifecycle events; the new one is the oldest droppable
			s.mu.Unlock()
			return
		}
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		var next Event
		ok := len(s.queue) > 0
		if ok {
			next = s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if !ok {
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}

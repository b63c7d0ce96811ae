package download

import "sync"

// Broadcaster fans Updates out to every registered subscriber.
//
// There is no replay: a subscriber only receives updates published after it
// subscribed. Publishing with no subscribers drops the update. Publish never
// waits for a subscriber: each one has an unbounded pending queue drained
// into its channel by a dedicated goroutine, so a slow reader delays only
// itself and still receives every update in publish order.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	ch   chan Update
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	pending []Update
	wake    chan struct{}
}

func newSubscriber(buffer int) *subscriber {
	return &subscriber{
		ch:   make(chan Update, buffer),
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) push(update Update) {
	s.mu.Lock()
	s.pending = append(s.pending, update)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump forwards queued updates to the channel until the subscriber stops,
// then closes the channel. It is the only sender on ch.
func (s *subscriber) pump() {
	defer close(s.ch)

	for {
		s.mu.Lock()
		queued := s.pending
		s.pending = nil
		s.mu.Unlock()

		if len(queued) == 0 {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}

		for _, update := range queued {
			select {
			case s.ch <- update:
			case <-s.done:
				return
			}
		}
	}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscriber)}
}

// Subscribe registers a subscriber with the given channel buffer size.
// The returned function unsubscribes; the channel is closed shortly after.
// It is safe to call more than once.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer < 0 {
		buffer = 0
	}
	sub := newSubscriber(buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go sub.pump()

	return sub.ch, func() { b.unsubscribe(id, sub) }
}

func (b *Broadcaster) unsubscribe(id int, sub *subscriber) {
	b.mu.Lock()
	if current, ok := b.subs[id]; ok && current == sub {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	sub.stop()
}

// Publish queues the update for all current subscribers and returns immediately.
func (b *Broadcaster) Publish(update Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		sub.push(update)
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unsubscribes everyone; their channels are closed once their pumps exit.
// Subscribing after Close yields an already closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[int]*subscriber)
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

package orchestrator

import (
	"sync"
	"time"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// bus fans events out to subscribers. Publishing never blocks: each subscriber has its
// own queue drained by a pump goroutine, so events reach every subscriber in publish
// order even when a consumer is slow.
type bus struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	next   int
	closed bool
}

// drainTimeout bounds how long a closing bus waits for a subscriber to take its
// remaining events
const drainTimeout = 2 * time.Second

type subscriber struct {
	out    chan models.Event
	mu     sync.Mutex
	queue  []models.Event
	flush  bool
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newBus() *bus {
	return &bus{subs: make(map[int]*subscriber)}
}

func (b *bus) subscribe(buffer int) (<-chan models.Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	s := &subscriber{
		out:    make(chan models.Event, buffer),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.out)
		return s.out, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = s
	b.mu.Unlock()

	go s.pump()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		s.stop()
	}
	return s.out, cancel
}

func (b *bus) publish(e models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.enqueue(e)
	}
}

func (b *bus) close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[int]*subscriber)
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		s.flush = true
		s.mu.Unlock()
		s.stop()
	}
}

func (s *subscriber) enqueue(e models.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) take() ([]models.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q, s.flush
}

// pump delivers queued events in order and closes out when stopped. When the bus
// closes, events still queued are handed over before out closes; an unsubscribe
// drops them.
func (s *subscriber) pump() {
	defer close(s.out)
	for {
		pending, _ := s.take()
		for i, e := range pending {
			select {
			case s.out <- e:
			case <-s.done:
				rest, flush := s.take()
				if flush {
					s.drain(append(pending[i:], rest...))
				}
				return
			}
		}

		select {
		case <-s.signal:
		case <-s.done:
			if rest, flush := s.take(); flush {
				s.drain(rest)
			}
			return
		}
	}
}

func (s *subscriber) drain(rest []models.Event) {
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	for _, e := range rest {
		select {
		case s.out <- e:
		case <-timer.C:
			return
		}
	}
}

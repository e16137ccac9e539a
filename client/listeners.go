package client

import (
	"sync"
)

// Listeners fans changes out to subscribers. Publish never blocks on a slow
// subscriber: each subscriber drains its own queue on its own goroutine, in the
// order changes were published.
type Listeners struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	fn    func(Change)
	mu    sync.Mutex
	queue []Change
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// Add registers fn and returns a func that unregisters it.
func (l *Listeners) Add(fn func(Change)) (cancel func()) {
	s := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	l.mu.Lock()
	if l.subs == nil {
		l.subs = make(map[int]*subscriber)
	}
	id := l.nextID
	l.nextID++
	l.subs[id] = s
	l.mu.Unlock()

	go s.run()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
		s.stop()
	}
}

// Publish queues c for every current subscriber.
func (l *Listeners) Publish(c Change) {
	l.mu.Lock()
	subs := make([]*subscriber, 0, len(l.subs))
	for _, s := range l.subs {
		subs = append(subs, s)
	}
	l.mu.Unlock()

	for _, s := range subs {
		s.push(c)
	}
}

// Len returns the number of active subscribers
func (l *Listeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Close stops all subscribers.
func (l *Listeners) Close() {
	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	l.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (s *subscriber) push(c Change) {
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			c := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.fn(c)
		}
	}
}

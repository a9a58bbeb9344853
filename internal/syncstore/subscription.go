package syncstore

import "sync"

// Subscription delivers every state published for one key, in publish
// order, starting with the state current when Observe was called. Delivery
// never blocks the store; undelivered states queue until read.
type Subscription struct {
	C <-chan State

	out    chan State
	store  *Store
	key    string
	notify chan struct{}
	closed chan struct{}
	once   sync.Once

	mu    sync.Mutex
	queue []State
}

func (s *Store) Observe(key QueryKey) *Subscription {
	out := make(chan State)
	sub := &Subscription{
		C:      out,
		out:    out,
		store:  s,
		key:    key.String(),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.once.Do(func() { close(sub.closed) })
		close(out)
		return sub
	}
	e := s.entryLocked(key)
	e.subs[sub] = struct{}{}
	sub.push(e.state)
	s.mu.Unlock()

	go sub.pump()
	return sub
}

// Close stops delivery and closes C. It is safe to call more than once.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		if e, ok := sub.store.entries[sub.key]; ok {
			delete(e.subs, sub)
		}
		sub.store.mu.Unlock()
		close(sub.closed)
	})
}

func (sub *Subscription) push(state State) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, state)
	sub.mu.Unlock()
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

func (sub *Subscription) pump() {
	defer close(sub.out)
	for {
		sub.mu.Lock()
		pending := sub.queue
		sub.queue = nil
		sub.mu.Unlock()

		for _, state := range pending {
			select {
			case sub.out <- state:
			case <-sub.closed:
				return
			}
		}
		if len(pending) > 0 {
			continue
		}
		select {
		case <-sub.notify:
		case <-sub.closed:
			return
		}
	}
}

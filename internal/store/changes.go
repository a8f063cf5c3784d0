package store

import "sync"

// Change identifies a table whose contents changed in a committed write.
type Change struct {
	Table string
}

// ChangeFunc receives the set of tables touched by one committed write.
type ChangeFunc func(changes []Change)

// subscribers is the change-notification list. Callbacks run synchronously
// on the writing goroutine, after the transaction has committed, so a
// subscriber always observes the post-commit state when it re-reads.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]ChangeFunc
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[int]ChangeFunc)}
}

// OnChanges registers a callback invoked after every committed write with
// the list of tables it touched. The returned function unsubscribes.
func (s *Store) OnChanges(fn ChangeFunc) func() {
	s.subs.mu.Lock()
	defer s.subs.mu.Unlock()

	id := s.subs.nextID
	s.subs.nextID++
	s.subs.subs[id] = fn

	return func() {
		s.subs.mu.Lock()
		defer s.subs.mu.Unlock()
		delete(s.subs.subs, id)
	}
}

// notify fans a committed change set out to all subscribers.
func (s *Store) notify(tables ...string) {
	if len(tables) == 0 {
		return
	}

	changes := make([]Change, 0, len(tables))
	for _, t := range tables {
		changes = append(changes, Change{Table: t})
	}

	s.subs.mu.Lock()
	fns := make([]ChangeFunc, 0, len(s.subs.subs))
	for _, fn := range s.subs.subs {
		fns = append(fns, fn)
	}
	s.subs.mu.Unlock()

	// Outside the lock so a callback can unsubscribe itself.
	for _, fn := range fns {
		fn(changes)
	}
}

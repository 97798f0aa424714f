package store

import (
	"sync"

	"moodlog-go/internal/moodlog"
)

// hub is the in-process fan-out for live queries. Each subscription owns a
// latest-value mailbox drained by its own goroutine, so a slow consumer
// coalesces intermediate snapshots instead of blocking writers, and always
// ends up observing the newest state.
type hub struct {
	mu   sync.Mutex
	subs map[uint64]*subscription
	next uint64
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*subscription)}
}

// subscription implements moodlog.Subscription.
type subscription struct {
	hub        *hub
	id         uint64
	collection string
	startKey   string // empty means unbounded
	endKey     string

	mu     sync.Mutex
	latest *moodlog.QuerySnapshot
	notify chan struct{}
	out    chan moodlog.QuerySnapshot
	done   chan struct{}
	cancel sync.Once
}

var _ moodlog.Subscription = (*subscription)(nil)

// subscribe registers a live query and queues its initial snapshot.
func (h *hub) subscribe(collection, startKey, endKey string, initial moodlog.QuerySnapshot) *subscription {
	s := &subscription{
		hub:        h,
		collection: collection,
		startKey:   startKey,
		endKey:     endKey,
		notify:     make(chan struct{}, 1),
		out:        make(chan moodlog.QuerySnapshot),
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	h.next++
	s.id = h.next
	h.subs[s.id] = s
	h.mu.Unlock()

	go s.run()
	s.deliver(initial)
	return s
}

// matching returns the subscriptions a change to (collection, key) affects.
func (h *hub) matching(collection, key string) []*subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*subscription
	for _, s := range h.subs {
		if s.collection != collection {
			continue
		}
		if s.startKey != "" && key < s.startKey {
			continue
		}
		if s.endKey != "" && key > s.endKey {
			continue
		}
		out = append(out, s)
	}
	return out
}

// broadcast returns every subscription on a collection regardless of key,
// for transport-error deliveries.
func (h *hub) broadcast(collection string) []*subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*subscription
	for _, s := range h.subs {
		if s.collection == collection {
			out = append(out, s)
		}
	}
	return out
}

func (s *subscription) deliver(snap moodlog.QuerySnapshot) {
	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		s.mu.Lock()
		snap := s.latest
		s.latest = nil
		s.mu.Unlock()
		if snap == nil {
			continue
		}

		select {
		case <-s.done:
			return
		case s.out <- *snap:
		}
	}
}

func (s *subscription) Snapshots() <-chan moodlog.QuerySnapshot { return s.out }

func (s *subscription) Cancel() {
	s.cancel.Do(func() {
		close(s.done)
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
}

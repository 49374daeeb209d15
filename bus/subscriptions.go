package bus

import "sync"

// member is one subscription entry. It pins the mailbox that was live when
// the endpoint subscribed, so a re-registered endpoint never inherits the
// entries of its previous registration.
type member struct {
	id EndpointID
	mb *mailbox
}

// rotation is the ordered subscriber list of a request topic.
// next is the index of the next candidate.
type rotation struct {
	mu      sync.Mutex
	members []member
	next    int
}

// add appends m unless its id is already present. A present entry that
// points at a closed mailbox is refreshed in place.
func (r *rotation) add(m member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.members {
		if existing.id != m.id {
			continue
		}
		if existing.mb != m.mb && existing.mb.isClosed() {
			r.members[i].mb = m.mb
			return true
		}
		return false
	}
	r.members = append(r.members, m)
	return true
}

// remove drops the entry for id. If mb is non-nil, only an entry pinned to
// that mailbox is removed. Relative order of the rest is preserved and the
// cursor keeps pointing at the same next candidate.
func (r *rotation) remove(id EndpointID, mb *mailbox) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.members {
		if existing.id != id || (mb != nil && existing.mb != mb) {
			continue
		}
		r.members = append(r.members[:i], r.members[i+1:]...)
		if i < r.next {
			r.next--
		}
		if r.next >= len(r.members) {
			r.next = 0
		}
		return true
	}
	return false
}

func (r *rotation) ids() []EndpointID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memberIDs(r.members)
}

// listeners is the subscriber set of a notification topic, kept in
// subscription order.
type listeners struct {
	mu      sync.Mutex
	members []member
}

func (l *listeners) add(m member) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, existing := range l.members {
		if existing.id != m.id {
			continue
		}
		if existing.mb != m.mb && existing.mb.isClosed() {
			l.members[i].mb = m.mb
			return true
		}
		return false
	}
	l.members = append(l.members, m)
	return true
}

func (l *listeners) remove(id EndpointID, mb *mailbox) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, existing := range l.members {
		if existing.id != id || (mb != nil && existing.mb != mb) {
			continue
		}
		l.members = append(l.members[:i], l.members[i+1:]...)
		return true
	}
	return false
}

// snapshot copies the current members.
func (l *listeners) snapshot() []member {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]member, len(l.members))
	copy(out, l.members)
	return out
}

func (l *listeners) ids() []EndpointID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return memberIDs(l.members)
}

// memberIDs lists the ids of members whose mailbox is still open.
func memberIDs(members []member) []EndpointID {
	ids := make([]EndpointID, 0, len(members))
	for _, m := range members {
		if !m.mb.isClosed() {
			ids = append(ids, m.id)
		}
	}
	return ids
}

// subscriptions holds the request and notification tables.
// The maps only grow; per-topic entries carry their own locks.
type subscriptions struct {
	mu            sync.RWMutex
	requests      map[string]*rotation
	notifications map[string]*listeners
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		requests:      make(map[string]*rotation),
		notifications: make(map[string]*listeners),
	}
}

func (s *subscriptions) rotation(topic string, create bool) *rotation {
	s.mu.RLock()
	r := s.requests[topic]
	s.mu.RUnlock()
	if r != nil || !create {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r = s.requests[topic]; r == nil {
		r = &rotation{}
		s.requests[topic] = r
	}
	return r
}

func (s *subscriptions) listeners(topic string, create bool) *listeners {
	s.mu.RLock()
	l := s.notifications[topic]
	s.mu.RUnlock()
	if l != nil || !create {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l = s.notifications[topic]; l == nil {
		l = &listeners{}
		s.notifications[topic] = l
	}
	return l
}

// removeEverywhere drops every entry pinned to mb.
func (s *subscriptions) removeEverywhere(id EndpointID, mb *mailbox) {
	s.mu.RLock()
	rotations := make([]*rotation, 0, len(s.requests))
	for _, r := range s.requests {
		rotations = append(rotations, r)
	}
	sets := make([]*listeners, 0, len(s.notifications))
	for _, l := range s.notifications {
		sets = append(sets, l)
	}
	s.mu.RUnlock()

	for _, r := range rotations {
		r.remove(id, mb)
	}
	for _, l := range sets {
		l.remove(id, mb)
	}
}

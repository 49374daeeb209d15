package bus

import "sync"

// pendingTable maps an in-flight request (by pointer identity) to its future.
// Values are *future.Future[T] for the request's T.
type pendingTable struct {
	mu      sync.Mutex
	entries map[Message]any
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[Message]any)}
}

// insert records f for req. It returns false if req is already in flight.
func (p *pendingTable) insert(req Message, f any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[req]; exists {
		return false
	}
	p.entries[req] = f
	return true
}

// take removes and returns the future for req. If accept is non-nil, the
// entry is removed only when accept reports true for it; a rejected entry
// stays pending and take returns it with ok == false.
func (p *pendingTable) take(req Message, accept func(any) bool) (f any, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok = p.entries[req]
	if !ok {
		return nil, false
	}
	if accept != nil && !accept(f) {
		return f, false
	}
	delete(p.entries, req)
	return f, true
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

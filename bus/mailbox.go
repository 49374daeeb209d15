package bus

import (
	"context"
	"sync"
)

// mailbox is an unbounded FIFO queue with many producers and one consumer.
// A closed mailbox refuses new messages and releases its waiter.
type mailbox struct {
	mu     sync.Mutex
	queue  []Message
	head   int
	closed bool

	notify chan struct{} // capacity 1, signalled on put
	done   chan struct{} // closed on close
}

func newMailbox(capacity int) *mailbox {
	if capacity <= 0 {
		capacity = DefaultConfig().MailboxCapacity
	}
	return &mailbox{
		queue:  make([]Message, 0, capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// put appends msg. It returns false if the mailbox is closed.
func (m *mailbox) put(msg Message) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// take pops the head message without blocking.
func (m *mailbox) take() (msg Message, ok bool, closed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, true
	}
	if m.head == len(m.queue) {
		return nil, false, false
	}

	msg = m.queue[m.head]
	m.queue[m.head] = nil
	m.head++

	switch {
	case m.head == len(m.queue):
		m.queue = m.queue[:0]
		m.head = 0
	case m.head > 64 && m.head*2 > len(m.queue):
		n := copy(m.queue, m.queue[m.head:])
		clear(m.queue[n:])
		m.queue = m.queue[:n]
		m.head = 0
	}
	return msg, true, false
}

// wait blocks until a message is available, the mailbox closes, or ctx ends.
func (m *mailbox) wait(ctx context.Context) (Message, error) {
	for {
		msg, ok, closed := m.take()
		if closed {
			return nil, ErrNotRegistered
		}
		if ok {
			return msg, nil
		}

		select {
		case <-m.notify:
		case <-m.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// close marks the mailbox closed and returns how many messages were dropped.
func (m *mailbox) close() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0
	}
	m.closed = true
	dropped := len(m.queue) - m.head
	m.queue = nil
	m.head = 0
	close(m.done)
	return dropped
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) - m.head
}

func (m *mailbox) isClosed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

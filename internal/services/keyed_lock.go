package services

import (
	"context"
	"sync"
)

// keyedLock hands out per-key exclusive access in arrival order.
type keyedLock struct {
	mu     sync.Mutex
	queues map[string][]chan struct{}
}

func newKeyedLock() *keyedLock {
	return &keyedLock{queues: map[string][]chan struct{}{}}
}

// Lock blocks until the caller holds key or ctx is done. The returned func releases it.
func (l *keyedLock) Lock(ctx context.Context, key string) (func(), error) {
	ticket := make(chan struct{})

	l.mu.Lock()
	l.queues[key] = append(l.queues[key], ticket)
	if len(l.queues[key]) == 1 {
		close(ticket)
	}
	l.mu.Unlock()

	select {
	case <-ticket:
		return func() { l.release(key, ticket) }, nil
	case <-ctx.Done():
		l.abandon(key, ticket)
		return nil, ctx.Err()
	}
}

func (l *keyedLock) release(key string, ticket chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.queues[key]
	if len(q) == 0 || q[0] != ticket {
		return
	}
	q = q[1:]
	if len(q) == 0 {
		delete(l.queues, key)
		return
	}
	l.queues[key] = q
	close(q[0])
}

// abandon removes a waiter. If the ticket was granted in the meantime it is released.
func (l *keyedLock) abandon(key string, ticket chan struct{}) {
	l.mu.Lock()
	q := l.queues[key]
	if len(q) > 0 && q[0] == ticket {
		l.mu.Unlock()
		l.release(key, ticket)
		return
	}
	for i, t := range q {
		if t == ticket {
			l.queues[key] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
}

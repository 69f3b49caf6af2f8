package redis

import (
	"sync"

	"smatrader/internal/ringbuf"
)

// pendingWrite is a publish rejected while the breaker was open.
type pendingWrite struct {
	channel string
	key     string
	data    []byte
}

// backlog keeps the most recent rejected writes; once full the oldest is dropped.
type backlog struct {
	mu  sync.Mutex
	buf *ringbuf.Ring[pendingWrite]
}

func newBacklog(capacity int) *backlog {
	return &backlog{buf: ringbuf.MustNew[pendingWrite](capacity)}
}

func (b *backlog) push(w pendingWrite) {
	b.mu.Lock()
	b.buf.Push(w)
	b.mu.Unlock()
}

func (b *backlog) drain() []pendingWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.buf.Items()
	b.buf.Clear()
	return out
}

func (b *backlog) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

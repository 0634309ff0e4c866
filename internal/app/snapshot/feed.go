// Package snapshot fans immutable state snapshots out to readers.
// A presenter is the single writer; views subscribe or poll Latest.
package snapshot

import "sync"

const DefaultBuffer = 32

type Feed[S any] struct {
	mu     sync.Mutex
	latest S
	subs   map[int]chan S
	nextID int
	buffer int
	closed bool
}

func NewFeed[S any](initial S, buffer int) *Feed[S] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Feed[S]{
		latest: initial,
		subs:   make(map[int]chan S),
		buffer: buffer,
	}
}

func (f *Feed[S]) Latest() S {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

// Publish records s as the latest snapshot and offers it to every
// subscriber without blocking. It returns how many subscribers had a
// full buffer and missed s.
func (f *Feed[S]) Publish(s S) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0
	}
	f.latest = s
	dropped := 0
	for _, ch := range f.subs {
		select {
		case ch <- s:
		default:
			dropped++
		}
	}
	return dropped
}

// Subscribe returns a stream that starts with the latest snapshot. The
// stream is closed by Close or by the returned cancel func.
func (f *Feed[S]) Subscribe() (<-chan S, func()) {
	ch := make(chan S, f.buffer)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		ch <- f.latest
		close(ch)
		return ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	ch <- f.latest
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(c)
		}
	}
}

func (f *Feed[S]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
}

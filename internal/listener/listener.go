// Package listener is a small typed publish/subscribe registry. Every
// subscription returns a Handle that removes exactly that subscription.
package listener

import (
	"sync"
	"sync/atomic"
)

type Handle interface{ Dispose() }

type HandleFunc func()

func (fn HandleFunc) Dispose() { fn() }

type entry[T any] struct {
	id   uint64
	fn   func(T)
	once bool
}

// Set holds the listeners for one event. The zero value is ready to use.
type Set[T any] struct {
	ʘ    sync.RWMutex
	seq  uint64
	list []entry[T]
}

func (s *Set[T]) On(fn func(T)) Handle   { return s.add(fn, false) }
func (s *Set[T]) Once(fn func(T)) Handle { return s.add(fn, true) }

func (s *Set[T]) add(fn func(T), once bool) Handle {
	s.ʘ.Lock()
	s.seq++
	id := s.seq
	s.list = append(s.list, entry[T]{id: id, fn: fn, once: once})
	s.ʘ.Unlock()

	var disposed int32
	return HandleFunc(func() {
		if atomic.CompareAndSwapInt32(&disposed, 0, 1) {
			s.remove(id)
		}
	})
}

func (s *Set[T]) remove(id uint64) {
	s.ʘ.Lock()
	defer s.ʘ.Unlock()

	for i, e := range s.list {
		if e.id == id {
			s.list = append(s.list[:i:i], s.list[i+1:]...)
			return
		}
	}
}

// Emit calls every listener in registration order. Listeners are called
// from a snapshot, so they may subscribe or dispose while being called.
func (s *Set[T]) Emit(v T) {
	s.ʘ.Lock()
	snapshot := make([]entry[T], len(s.list))
	copy(snapshot, s.list)

	kept := s.list[:0:0]
	for _, e := range s.list {
		if !e.once {
			kept = append(kept, e)
		}
	}
	s.list = kept
	s.ʘ.Unlock()

	for _, e := range snapshot {
		e.fn(v)
	}
}

func (s *Set[T]) Len() int {
	s.ʘ.RLock()
	defer s.ʘ.RUnlock()
	return len(s.list)
}

func (s *Set[T]) Clear() {
	s.ʘ.Lock()
	s.list = nil
	s.ʘ.Unlock()
}

// Handles collects handles so an owner can drop all of its subscriptions
// in its teardown path.
type Handles []Handle

func (hs *Handles) Add(h ...Handle) { *hs = append(*hs, h...) }

func (hs *Handles) Dispose() {
	for _, h := range *hs {
		h.Dispose()
	}
	*hs = nil
}

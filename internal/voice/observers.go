package voice

import (
	"log"
	"sync"
)

// observers is an ordered multi-subscriber registry. Callbacks fire in
// registration order; a panicking callback is recovered so the remaining
// subscribers still run.
type observers[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

func (o *observers[T]) Add(fn func(T)) int {
	if fn == nil {
		return -1
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	o.subs = append(o.subs, subscriber[T]{id: o.nextID, fn: fn})
	return o.nextID
}

func (o *observers[T]) Remove(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s.id == id {
			o.subs = append(o.subs[:i], o.subs[i+1:]...)
			return
		}
	}
}

func (o *observers[T]) Emit(v T) {
	o.mu.Lock()
	snapshot := make([]subscriber[T], len(o.subs))
	copy(snapshot, o.subs)
	o.mu.Unlock()

	for _, s := range snapshot {
		invoke(s.fn, v)
	}
}

func invoke[T any](fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("voice: observer panic recovered: %v", r)
		}
	}()
	fn(v)
}

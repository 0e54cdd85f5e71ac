// Package observable provides a minimal current-value container with
// synchronous change listeners.
package observable

import "sync"

type listener[T any] struct {
	id int
	fn func(T)
}

// Value holds the most recent value of T and invokes every registered
// listener, in registration order, each time Set is called.
//
// Listeners run on the goroutine that called Set, after the value has been
// stored, and outside Value's own lock, so a listener may call Current.
// Callers that need ordered delivery across goroutines must serialize their
// calls to Set.
type Value[T any] struct {
	mu        sync.RWMutex
	current   T
	hasValue  bool
	nextID    int
	listeners []listener[T]
}

// Set stores v and notifies listeners.
func (o *Value[T]) Set(v T) {
	o.mu.Lock()
	o.current = v
	o.hasValue = true
	ls := make([]listener[T], len(o.listeners))
	copy(ls, o.listeners)
	o.mu.Unlock()

	for _, l := range ls {
		l.fn(v)
	}
}

// Current returns the last value passed to Set. ok is false if Set has never
// been called.
func (o *Value[T]) Current() (v T, ok bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current, o.hasValue
}

// Subscribe registers fn and returns a function that removes it. The
// returned function is safe to call more than once.
func (o *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners = append(o.listeners, listener[T]{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, l := range o.listeners {
				if l.id == id {
					o.listeners = append(o.listeners[:i:i], o.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Len reports how many listeners are registered.
func (o *Value[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.listeners)
}

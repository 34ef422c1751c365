// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import "sync"

// observerList is a subscriber registry for one event type. Callbacks
// run synchronously on the notifying goroutine, outside the registry
// lock, so a callback may subscribe or unsubscribe freely.
type observerList[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(T)
}

func newObserverList[T any]() *observerList[T] {
	return &observerList[T]{subs: make(map[int]func(T))}
}

// subscribe registers a callback and returns its unsubscribe func.
func (l *observerList[T]) subscribe(fn func(T)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

func (l *observerList[T]) notify(v T) {
	l.mu.Lock()
	fns := make([]func(T), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

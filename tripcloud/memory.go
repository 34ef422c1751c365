// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripcloud

import (
	"context"
	"fmt"
	"sync"
)

// MemoryProvider is an in-process Provider. All sessions created for
// the same user id share one MemoryStore, so two engine instances over
// one MemoryProvider behave like two devices of the same account.
type MemoryProvider struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{stores: make(map[string]*MemoryStore)}
}

// ForUser returns the user's store, creating it on first use.
func (p *MemoryProvider) ForUser(_ context.Context, userID string) (Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	store, ok := p.stores[userID]
	if !ok {
		store = NewMemoryStore()
		p.stores[userID] = store
	}
	return store, nil
}

// MemoryStore is an in-memory document store with live change feeds.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
	subs        map[string][]*memorySub
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
		subs:        make(map[string][]*memorySub),
	}
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// GetAll implements Store.
func (m *MemoryStore) GetAll(_ context.Context, collection string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var docs []Document
	for id, data := range m.collections[collection] {
		docs = append(docs, Document{ID: id, Data: cloneData(data)})
	}
	return docs, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, collection, id string, data map[string]any) error {
	m.mu.Lock()
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		m.collections[collection] = coll
	}
	_, existed := coll[id]
	coll[id] = cloneData(data)
	subs := append([]*memorySub(nil), m.subs[collection]...)
	m.mu.Unlock()

	eventType := EventAdded
	if existed {
		eventType = EventModified
	}
	broadcast(subs, ChangeEvent{Type: eventType, ID: id, Data: cloneData(data)})
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	coll := m.collections[collection]
	_, existed := coll[id]
	delete(coll, id)
	subs := append([]*memorySub(nil), m.subs[collection]...)
	m.mu.Unlock()

	if existed {
		broadcast(subs, ChangeEvent{Type: EventRemoved, ID: id})
	}
	return nil
}

// Commit implements Store. The batch is applied atomically under the
// store lock; change events are emitted after the whole batch landed.
func (m *MemoryStore) Commit(ctx context.Context, ops []Op) error {
	if len(ops) > MaxBatchOps {
		return fmt.Errorf("tripcloud: batch of %d exceeds limit of %d", len(ops), MaxBatchOps)
	}

	type pendingEvent struct {
		subs []*memorySub
		ev   ChangeEvent
	}

	m.mu.Lock()
	var events []pendingEvent
	for _, op := range ops {
		coll, ok := m.collections[op.Collection]
		if !ok {
			coll = make(map[string]map[string]any)
			m.collections[op.Collection] = coll
		}
		subs := append([]*memorySub(nil), m.subs[op.Collection]...)
		if op.Delete {
			if _, existed := coll[op.ID]; existed {
				delete(coll, op.ID)
				events = append(events, pendingEvent{subs, ChangeEvent{Type: EventRemoved, ID: op.ID}})
			}
			continue
		}
		_, existed := coll[op.ID]
		coll[op.ID] = cloneData(op.Data)
		eventType := EventAdded
		if existed {
			eventType = EventModified
		}
		events = append(events, pendingEvent{subs, ChangeEvent{Type: eventType, ID: op.ID, Data: cloneData(op.Data)}})
	}
	m.mu.Unlock()

	for _, pe := range events {
		broadcast(pe.subs, pe.ev)
	}
	return nil
}

// QueryByField implements Store.
func (m *MemoryStore) QueryByField(_ context.Context, collection, field, value string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var docs []Document
	for id, data := range m.collections[collection] {
		if s, ok := data[field].(string); ok && s == value {
			docs = append(docs, Document{ID: id, Data: cloneData(data)})
		}
	}
	return docs, nil
}

// Subscribe implements Store.
func (m *MemoryStore) Subscribe(ctx context.Context, collection string) (Subscription, error) {
	sub := &memorySub{
		store:      m,
		collection: collection,
		ch:         make(chan ChangeEvent, 256),
		done:       make(chan struct{}),
	}
	m.mu.Lock()
	m.subs[collection] = append(m.subs[collection], sub)
	m.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Close()
			case <-sub.done:
			}
		}()
	}
	return sub, nil
}

func broadcast(subs []*memorySub, ev ChangeEvent) {
	for _, sub := range subs {
		sub.send(ev)
	}
}

type memorySub struct {
	store      *MemoryStore
	collection string
	ch         chan ChangeEvent
	closeOnce  sync.Once
	done       chan struct{}

	sendMu sync.Mutex
	closed bool
}

func (s *memorySub) Events() <-chan ChangeEvent { return s.ch }

// send delivers an event unless the subscription is closed. A stalled
// consumer with a full buffer loses the event; the transport is
// at-least-once only while the consumer keeps up, which the engine's
// reconciliation pass tolerates.
func (s *memorySub) send(ev ChangeEvent) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
	}
}

func (s *memorySub) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.store.mu.Lock()
		subs := s.store.subs[s.collection]
		for i, sub := range subs {
			if sub == s {
				s.store.subs[s.collection] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.store.mu.Unlock()

		s.sendMu.Lock()
		s.closed = true
		close(s.ch)
		s.sendMu.Unlock()
	})
}

// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import "sync"

// suppressor holds one-shot "ignore the next notification for this
// key" markers. Every outbound write or delete arms a marker before
// the remote commit; the first matching incoming change event consumes
// it. Markers are session-scoped.
type suppressor struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newSuppressor() *suppressor {
	return &suppressor{keys: make(map[string]struct{})}
}

func suppressKey(collection, remoteID string) string {
	return collection + "/" + remoteID
}

func (s *suppressor) arm(collection, remoteID string) {
	s.mu.Lock()
	s.keys[suppressKey(collection, remoteID)] = struct{}{}
	s.mu.Unlock()
}

// consume reports whether a marker existed for the key, removing it.
func (s *suppressor) consume(collection, remoteID string) bool {
	key := suppressKey(collection, remoteID)
	s.mu.Lock()
	_, ok := s.keys[key]
	if ok {
		delete(s.keys, key)
	}
	s.mu.Unlock()
	return ok
}

func (s *suppressor) clear() {
	s.mu.Lock()
	s.keys = make(map[string]struct{})
	s.mu.Unlock()
}

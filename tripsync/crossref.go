// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import "sync"

// crossRefs is the bidirectional map between local integer ids and
// remote string ids, kept per collection. The two id spaces are
// unrelated; neither can be derived from the other.
type crossRefs struct {
	mu       sync.RWMutex
	byLocal  map[string]map[int64]string
	byRemote map[string]map[string]int64
}

func newCrossRefs() *crossRefs {
	return &crossRefs{
		byLocal:  make(map[string]map[int64]string),
		byRemote: make(map[string]map[string]int64),
	}
}

func (r *crossRefs) put(collection string, localID int64, remoteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byLocal[collection] == nil {
		r.byLocal[collection] = make(map[int64]string)
		r.byRemote[collection] = make(map[string]int64)
	}
	// Drop a stale pairing before inserting the new one.
	if old, ok := r.byLocal[collection][localID]; ok {
		delete(r.byRemote[collection], old)
	}
	if old, ok := r.byRemote[collection][remoteID]; ok {
		delete(r.byLocal[collection], old)
	}
	r.byLocal[collection][localID] = remoteID
	r.byRemote[collection][remoteID] = localID
}

func (r *crossRefs) localFor(collection, remoteID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byRemote[collection][remoteID]
	return id, ok
}

func (r *crossRefs) remoteFor(collection string, localID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byLocal[collection][localID]
	return id, ok
}

func (r *crossRefs) deleteByRemote(collection, remoteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if localID, ok := r.byRemote[collection][remoteID]; ok {
		delete(r.byLocal[collection], localID)
		delete(r.byRemote[collection], remoteID)
	}
}

func (r *crossRefs) deleteByLocal(collection string, localID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if remoteID, ok := r.byLocal[collection][localID]; ok {
		delete(r.byRemote[collection], remoteID)
		delete(r.byLocal[collection], localID)
	}
}

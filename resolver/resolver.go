// Copyright (C) 2026 Perfkit Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package resolver implements the per-connection registry mapping a
// source id to the latest Manifest received for it. It is consulted
// once per incoming sample.
package resolver

import (
	"sync"

	"github.com/perfkit/perfkit-go/manifest"
)

// Resolver maps source id to the most recently inserted Manifest for
// that id. It is safe for concurrent use: inserts (writes) and lookups
// (reads) may come from different goroutines when a connection is
// driven by a single-writer/many-reader embedder.
//
// A Resolver is owned by exactly one connection; it is never shared
// across connections.
type Resolver struct {
	mu      sync.RWMutex
	entries map[uint64]*manifest.Manifest
}

// New returns an empty Resolver.
func New() *Resolver {
	return &Resolver{entries: make(map[uint64]*manifest.Manifest)}
}

// Insert atomically replaces any previous manifest registered for
// m.SourceID. Samples already in flight against the old manifest may
// still complete decoding against it; this is simply a consequence of
// Resolver never mutating a Manifest value in place.
func (r *Resolver) Insert(m *manifest.Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[m.SourceID] = m
}

// Lookup returns the manifest currently registered for sourceID, if any.
func (r *Resolver) Lookup(sourceID uint64) (*manifest.Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.entries[sourceID]
	return m, ok
}

// Remove drops the manifest registered for sourceID, if any. Used when a
// source is torn down and its schema should no longer resolve.
func (r *Resolver) Remove(sourceID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sourceID)
}

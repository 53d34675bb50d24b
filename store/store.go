// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

// Package store implements the store role of the Store protocol:
// get, put, and delete of opaque business objects, with optional
// predicate selection on get.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/drillstream/drillstream/wire"
)

// ErrNotFound reports a uri with no stored object.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the persistence collaborator behind the Store
// protocol. The handler never inspects object bodies; it moves them.
type ObjectStore interface {
	// Get returns the object at uri, or ErrNotFound.
	Get(ctx context.Context, uri string) (wire.DataObject, error)

	// List returns every object whose uri starts with prefix, ordered
	// by uri.
	List(ctx context.Context, prefix string) ([]wire.DataObject, error)

	// Put upserts keyed by uri identity: insert when absent, replace
	// preserving identity when present.
	Put(ctx context.Context, object wire.DataObject) error

	// Delete removes the object at uri, or returns ErrNotFound.
	Delete(ctx context.Context, uri string) error
}

// MemoryStore is an in-process ObjectStore for tests and the demo
// daemon.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]wire.DataObject
}

var _ ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]wire.DataObject)}
}

func (m *MemoryStore) Get(ctx context.Context, uri string) (wire.DataObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	object, ok := m.objects[uri]
	if !ok {
		return wire.DataObject{}, ErrNotFound
	}
	return object, nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]wire.DataObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []wire.DataObject
	for uri, object := range m.objects {
		if strings.HasPrefix(uri, prefix) {
			matched = append(matched, object)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].URI < matched[j].URI })
	return matched, nil
}

func (m *MemoryStore) Put(ctx context.Context, object wire.DataObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.objects[object.URI]; ok {
		// Replace preserves identity fields the writer left blank.
		if object.Name == "" {
			object.Name = existing.Name
		}
		if object.ContentType == "" {
			object.ContentType = existing.ContentType
		}
	}
	m.objects[object.URI] = object
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[uri]; !ok {
		return ErrNotFound
	}
	delete(m.objects, uri)
	return nil
}

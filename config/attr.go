// Package config implements the process-wide option and attribute key
// registries (spec §6 "Option and attribute keys") and the per-channel
// configuration surface built from them (spec §3 Channel, §4.3). It has no
// dependency on the reactor, pipeline or channel packages: those packages
// depend on it, not the reverse, which is what lets a Channel (which owns a
// Pipeline) and a Pipeline (whose head/tail need Config/Attr access) share
// these types without an import cycle.
package config

import (
	"fmt"
	"sync"
)

var (
	keyMu    sync.Mutex
	keyNames = map[string]struct{}{}
	keySeq   uint64
)

func registerKeyName(name string) uint64 {
	keyMu.Lock()
	defer keyMu.Unlock()
	if _, exists := keyNames[name]; exists {
		panic(fmt.Sprintf("config: key %q already registered", name))
	}
	keyNames[name] = struct{}{}
	keySeq++
	return keySeq
}

// AttrKey identifies an entry in an AttrMap. Two keys with the same name are
// never distinct objects: NewAttrKey panics if name was already registered,
// which is how the registry enforces process-wide uniqueness (spec §6).
type AttrKey struct {
	name string
	id   uint64
}

// NewAttrKey registers and returns a new, globally unique attribute key.
func NewAttrKey(name string) AttrKey {
	return AttrKey{name: name, id: registerKeyName("attr:" + name)}
}

// Name returns the key's registered name.
func (k AttrKey) Name() string { return k.name }

// AttrMap is a per-channel, concurrency-safe map keyed by AttrKey. Setting a
// key to nil removes it.
type AttrMap struct {
	mu     sync.RWMutex
	values map[uint64]any
}

// NewAttrMap constructs an empty attribute map.
func NewAttrMap() *AttrMap {
	return &AttrMap{values: make(map[uint64]any)}
}

// Get returns the value stored under key, and whether it was present.
func (m *AttrMap) Get(key AttrKey) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key.id]
	return v, ok
}

// Set stores value under key. Setting a nil value removes the key.
func (m *AttrMap) Set(key AttrKey, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == nil {
		delete(m.values, key.id)
		return
	}
	m.values[key.id] = value
}

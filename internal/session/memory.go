package session

import (
	"sync"
)

// slotCount is the number of MemStore slots, entries are dropped by whole slot.
const slotCount = 16

// slot holds the entries whose keys were issued during tick.
type slot[K comparable, V any] struct {
	mut     sync.RWMutex
	tick    int64
	entries map[K]V
}

// MemStore is an in memory session store.
// Entries expire with their key, no cleanup goroutine is needed.
type MemStore[K comparable, V any] struct {
	keys  KeyFactory[K]
	slots [slotCount]slot[K, V]
}

// NewMemStore returns a MemStore using kf to issue and validate keys.
// It errors if kf is nil.
func NewMemStore[K comparable, V any](kf KeyFactory[K]) (*MemStore[K, V], error) {
	if nil == kf {
		return nil, newError("nil KeyFactory")
	}
	return &MemStore[K, V]{keys: kf}, nil
}

// Save stores data under a newly issued key and returns that key.
func (self *MemStore[K, V]) Save(data V) K {
	key := self.keys.New()
	tick := self.keys.Tick(key)
	s := &self.slots[tick%slotCount]

	s.mut.Lock()
	defer s.mut.Unlock()
	if tick != s.tick || nil == s.entries {
		// entries of an older tick are expired
		s.tick = tick
		s.entries = make(map[K]V)
	}
	s.entries[key] = data

	return key
}

// Get returns the data stored under key.
// The bool flag is false if key is unknown, forged or expired.
func (self *MemStore[K, V]) Get(key K) (V, bool) {
	var data V
	if nil != self.keys.Check(key) {
		return data, false
	}
	tick := self.keys.Tick(key)
	s := &self.slots[tick%slotCount]

	s.mut.RLock()
	defer s.mut.RUnlock()
	if tick != s.tick {
		return data, false
	}
	data, found := s.entries[key]

	return data, found
}

// Delete removes the data stored under key.
// It returns false if key was not found.
func (self *MemStore[K, V]) Delete(key K) bool {
	if nil != self.keys.Check(key) {
		return false
	}
	tick := self.keys.Tick(key)
	s := &self.slots[tick%slotCount]

	s.mut.Lock()
	defer s.mut.Unlock()
	if tick != s.tick {
		return false
	}
	_, found := s.entries[key]
	delete(s.entries, key)

	return found
}

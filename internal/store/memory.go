package store

import "sync"

// MemoryStore is an in-memory implementation of the KV interface. It also
// implements Notifier, so two engine instances sharing one MemoryStore
// observe each other's writes the way two tabs share browser storage.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]string
	subs   map[int]func(Change)
	nextID int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]string),
		subs: make(map[int]func(Change)),
	}
}

// Get returns the value for key, or ErrNotFound.
func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set writes or replaces the value for key and notifies subscribers.
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	s.data[key] = value
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(Change{Key: key, Value: value})
	}
	return nil
}

// Remove deletes the key and notifies subscribers. Removing an absent key
// is a no-op and fires no notification.
func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	_, ok := s.data[key]
	delete(s.data, key)
	var subs []func(Change)
	if ok {
		subs = s.snapshotSubs()
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(Change{Key: key, Removed: true})
	}
	return nil
}

// Keys enumerates all stored keys.
func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// Subscribe registers fn to be called on every change to the store.
func (s *MemoryStore) Subscribe(fn func(Change)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// snapshotSubs copies the subscriber list. Caller must hold s.mu.
func (s *MemoryStore) snapshotSubs() []func(Change) {
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

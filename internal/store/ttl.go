package store

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ExpiresSuffix marks the sibling key holding an entry's expiry deadline,
// stored as absolute epoch milliseconds.
const ExpiresSuffix = "_expires"

// DefaultTTL is how long a verifier entry lives before it becomes
// eligible for vacuuming.
const DefaultTTL = 24 * time.Hour

// TTLStore wraps a KV store with expiring entries. Every value written
// through SetWithTTL gets a sibling entry at key + ExpiresSuffix; the two
// are always written and removed together. Expired pairs are reaped
// lazily by Vacuum, never by a background timer.
type TTLStore struct {
	kv     KV
	now    func() time.Time
	logger *log.Logger
}

// NewTTLStore wraps kv. A nil now falls back to time.Now, a nil logger to
// a default stdout logger.
func NewTTLStore(kv KV, now func() time.Time, logger *log.Logger) *TTLStore {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.New(os.Stdout, "nametagauth: ", log.LstdFlags)
	}
	return &TTLStore{kv: kv, now: now, logger: logger}
}

// SetWithTTL writes key and its expiry sibling back-to-back. Observers
// must treat the two writes as one: no vacuum runs between them.
func (s *TTLStore) SetWithTTL(key, value string, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidInput)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be positive", ErrInvalidInput)
	}

	deadline := s.now().Add(ttl).UnixMilli()
	if err := s.kv.Set(key, value); err != nil {
		return fmt.Errorf("writing value: %w", err)
	}
	if err := s.kv.Set(key+ExpiresSuffix, strconv.FormatInt(deadline, 10)); err != nil {
		return fmt.Errorf("writing expiry: %w", err)
	}
	return nil
}

// Get returns the value for key, honoring its deadline: an entry whose
// expiry has passed is reported as absent and removed opportunistically.
func (s *TTLStore) Get(key string) (string, error) {
	value, err := s.kv.Get(key)
	if err != nil {
		return "", err
	}

	raw, err := s.kv.Get(key + ExpiresSuffix)
	if err != nil {
		// No deadline recorded; treat the entry as live.
		return value, nil
	}
	deadline, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || deadline < s.now().UnixMilli() {
		s.removePair(key)
		return "", ErrNotFound
	}
	return value, nil
}

// Remove deletes key and its expiry sibling together.
func (s *TTLStore) Remove(key string) error {
	return s.removePair(key)
}

// Vacuum enumerates the store and removes every pair whose deadline is
// strictly in the past, along with pairs whose deadline is present but
// unparsable. Entries without an expiry sibling are not TTL entries and
// are left alone. A failure inspecting one key never aborts the rest of
// the pass; it returns the number of pairs removed.
func (s *TTLStore) Vacuum() (int, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		return 0, fmt.Errorf("enumerating keys: %w", err)
	}

	nowMillis := s.now().UnixMilli()
	removed := 0
	for _, key := range keys {
		if strings.HasSuffix(key, ExpiresSuffix) {
			continue
		}
		raw, err := s.kv.Get(key + ExpiresSuffix)
		if err != nil {
			// Not a TTL entry (or the sibling vanished mid-pass).
			continue
		}
		deadline, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr == nil && deadline >= nowMillis {
			continue
		}
		if parseErr != nil {
			s.logger.Printf("vacuum: unparsable deadline for %q, removing", key)
		}
		if err := s.removePair(key); err != nil {
			s.logger.Printf("vacuum: removing %q: %v", key, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// removePair removes key and its expiry sibling. The first failure wins,
// but both removals are always attempted so a partial pair cannot survive
// a transient error on one half.
func (s *TTLStore) removePair(key string) error {
	errValue := s.kv.Remove(key)
	errExpiry := s.kv.Remove(key + ExpiresSuffix)
	if errValue != nil {
		return errValue
	}
	return errExpiry
}

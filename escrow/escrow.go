// Package escrow implements the four named escrows of spec.md §4.4: holders
// for events that cannot yet be accepted, each keyed by (identifier,sn) or
// (delegator,sn), reprocessed as new evidence arrives via the
// NotificationBus.
package escrow

import (
	"time"

	"github.com/forestrie/go-keri/event"
)

// Clock is overridable for deterministic tests.
type Clock func() time.Time

// entry is one escrowed candidate plus its insertion timestamp for TTL
// expiry.
type entry struct {
	se        event.SignedEvent
	inserted  time.Time
}

// Store is the shared escrow table backing all four escrows: per identifier,
// a map from event digest to the escrowed event and its insertion time. It
// is an in-memory map here; §9 notes the backend is swappable.
type Store struct {
	clock Clock
	ttl   time.Duration

	byKey map[string]map[string]entry // (identifier) -> digest.Qb64() -> entry
}

func NewStore(ttl time.Duration, clock Clock) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{clock: clock, ttl: ttl, byKey: map[string]map[string]entry{}}
}

// Insert is idempotent on (i, s, digest): inserting the same digest twice
// for the same identifier is a no-op (it does not refresh the TTL, matching
// "entries older than a configured per-escrow TTL are removed ... and never
// retried" — re-insertion would otherwise let an entry dodge expiry
// forever).
func (s *Store) Insert(se event.SignedEvent) {
	bucket, ok := s.byKey[se.Event.I]
	if !ok {
		bucket = map[string]entry{}
		s.byKey[se.Event.I] = bucket
	}
	key := se.Event.D.Qb64()
	if _, exists := bucket[key]; exists {
		return
	}
	bucket[key] = entry{se: se, inserted: s.clock()}
}

// Replace overwrites the stored candidate for (identifier, digest) without
// resetting its TTL clock, used by the partially-signed escrow to merge in
// new signatures while still ageing out the original insertion.
func (s *Store) Replace(se event.SignedEvent) {
	bucket, ok := s.byKey[se.Event.I]
	if !ok {
		s.Insert(se)
		return
	}
	key := se.Event.D.Qb64()
	existing, ok := bucket[key]
	if !ok {
		s.Insert(se)
		return
	}
	bucket[key] = entry{se: se, inserted: existing.inserted}
}

func (s *Store) Remove(identifier string, d string) {
	if bucket, ok := s.byKey[identifier]; ok {
		delete(bucket, d)
	}
}

// ForIdentifier returns all live (non-expired) candidates for identifier,
// removing and dropping any expired ones as a side effect (spec.md §4.4:
// "entries older than a configured per-escrow TTL are removed on scan and
// never retried").
func (s *Store) ForIdentifier(identifier string) []event.SignedEvent {
	bucket, ok := s.byKey[identifier]
	if !ok {
		return nil
	}
	now := s.clock()
	var out []event.SignedEvent
	for key, e := range bucket {
		if s.ttl > 0 && now.Sub(e.inserted) > s.ttl {
			delete(bucket, key)
			continue
		}
		out = append(out, e.se)
	}
	return out
}

// All returns every live candidate across every identifier, expiring stale
// entries as a side effect. Used by escrows whose rescan trigger is not
// identifier-scoped (missing-delegation is keyed by delegator, not by the
// escrowed event's own identifier).
func (s *Store) All() []event.SignedEvent {
	now := s.clock()
	var out []event.SignedEvent
	for identifier, bucket := range s.byKey {
		for key, e := range bucket {
			if s.ttl > 0 && now.Sub(e.inserted) > s.ttl {
				delete(bucket, key)
				continue
			}
			out = append(out, e.se)
		}
		if len(bucket) == 0 {
			delete(s.byKey, identifier)
		}
	}
	return out
}

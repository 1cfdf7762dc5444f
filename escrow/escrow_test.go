package escrow

import (
	"testing"
	"time"

	"github.com/forestrie/go-keri/event"
)

func fixedClock(t time.Time) Clock { return func() time.Time { return t } }

func signedEventAt(identifier string, sn uint64, digestHex string) event.SignedEvent {
	return event.SignedEvent{Event: event.KeyEvent{
		V: "KERI10CBOR000000_", T: event.Ixn, I: identifier, S: sn,
	}}
}

func TestStoreInsertIsIdempotentPerDigest(t *testing.T) {
	now := time.Now()
	s := NewStore(time.Hour, fixedClock(now))
	se := signedEventAt("id-1", 1, "")

	s.Insert(se)
	s.Insert(se) // should be a no-op, not panic or duplicate

	got := s.ForIdentifier("id-1")
	if len(got) != 1 {
		t.Fatalf("expected exactly one escrowed candidate, got %d", len(got))
	}
}

func TestStoreForIdentifierExpiresStaleEntries(t *testing.T) {
	start := time.Now()
	clockTime := start
	clock := func() time.Time { return clockTime }
	s := NewStore(time.Minute, clock)

	se := signedEventAt("id-2", 1, "")
	s.Insert(se)

	clockTime = start.Add(2 * time.Minute)
	got := s.ForIdentifier("id-2")
	if len(got) != 0 {
		t.Fatalf("expected the entry to have expired, got %d live entries", len(got))
	}

	// the expired entry must also have been purged, not just hidden.
	clockTime = start
	got = s.ForIdentifier("id-2")
	if len(got) != 0 {
		t.Fatal("an expired entry must be purged, not revivable once its TTL clock resets")
	}
}

func TestStoreReplacePreservesOriginalInsertionTime(t *testing.T) {
	start := time.Now()
	clockTime := start
	clock := func() time.Time { return clockTime }
	s := NewStore(time.Minute, clock)

	se := signedEventAt("id-3", 1, "")
	s.Insert(se)

	clockTime = start.Add(30 * time.Second)
	s.Replace(se)

	clockTime = start.Add(90 * time.Second) // 90s past the *original* insert
	got := s.ForIdentifier("id-3")
	if len(got) != 0 {
		t.Fatal("Replace must not reset the TTL clock")
	}
}

func TestStoreRemove(t *testing.T) {
	s := NewStore(0, fixedClock(time.Now()))
	se := signedEventAt("id-4", 1, "")
	s.Insert(se)
	s.Remove("id-4", se.Event.D.Qb64())
	if got := s.ForIdentifier("id-4"); len(got) != 0 {
		t.Fatal("expected the entry to be gone after Remove")
	}
}

func TestStoreAllExpiresAcrossIdentifiers(t *testing.T) {
	start := time.Now()
	clockTime := start
	clock := func() time.Time { return clockTime }
	s := NewStore(time.Minute, clock)

	s.Insert(signedEventAt("id-5", 1, ""))
	s.Insert(signedEventAt("id-6", 1, ""))

	clockTime = start.Add(2 * time.Minute)
	got := s.All()
	if len(got) != 0 {
		t.Fatalf("expected all entries to have expired, got %d", len(got))
	}
}

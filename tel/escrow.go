package tel

import "time"

// DefaultMissingIssuerTTL bounds how long a TEL event waits for its
// anchoring KEL event to show up before it is dropped, mirroring
// escrow.DefaultMissingDelegationTTL's role for dip/drt.
const DefaultMissingIssuerTTL = 24 * time.Hour

// Clock is overridable for deterministic tests.
type Clock func() time.Time

type escrowEntry struct {
	te       TELEvent
	inserted time.Time
}

// MissingIssuerEscrow holds TEL events whose Source seal does not yet
// resolve against the issuer's KEL, keyed by issuer prefix so a KEL
// KeyEventAdded for that issuer can trigger a rescan. It is self-contained
// rather than reusing escrow.Store, since that type is hardcoded to
// event.SignedEvent.
type MissingIssuerEscrow struct {
	clock Clock
	ttl   time.Duration

	byIssuer map[string]map[string]escrowEntry // issuerPrefix -> digest.Qb64() -> entry
}

func NewMissingIssuerEscrow(clock Clock) *MissingIssuerEscrow {
	if clock == nil {
		clock = time.Now
	}
	return &MissingIssuerEscrow{clock: clock, ttl: DefaultMissingIssuerTTL, byIssuer: map[string]map[string]escrowEntry{}}
}

func (e *MissingIssuerEscrow) Insert(te TELEvent) {
	bucket, ok := e.byIssuer[te.IssuerPrefix]
	if !ok {
		bucket = map[string]escrowEntry{}
		e.byIssuer[te.IssuerPrefix] = bucket
	}
	key := te.D.Qb64()
	if _, exists := bucket[key]; exists {
		return
	}
	bucket[key] = escrowEntry{te: te, inserted: e.clock()}
}

func (e *MissingIssuerEscrow) Remove(issuerPrefix, d string) {
	if bucket, ok := e.byIssuer[issuerPrefix]; ok {
		delete(bucket, d)
	}
}

// ForIssuer returns all live candidates anchored to issuerPrefix, dropping
// expired ones as a side effect.
func (e *MissingIssuerEscrow) ForIssuer(issuerPrefix string) []TELEvent {
	bucket, ok := e.byIssuer[issuerPrefix]
	if !ok {
		return nil
	}
	now := e.clock()
	var out []TELEvent
	for key, entry := range bucket {
		if e.ttl > 0 && now.Sub(entry.inserted) > e.ttl {
			delete(bucket, key)
			continue
		}
		out = append(out, entry.te)
	}
	return out
}

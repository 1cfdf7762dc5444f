package escrow

import (
	"time"

	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/state"
	"github.com/forestrie/go-keri/validator"
)

// StateSource is the StateComputer dependency every escrow needs to
// revalidate a candidate against current state.
type StateSource interface {
	Compute(identifier string) (state.IdentifierState, bool, error)
}

// Accepter is the acceptance side-effect a successful reprocess performs:
// append to the log and publish KeyEventAdded. Escrows don't talk to
// eventlog.Store directly so they stay usable against any log
// implementation, per spec.md §9 "avoid back-pointers by threading context
// through call arguments".
type Accepter interface {
	Accept(se event.SignedEvent) error
}

// Default TTLs, independent per escrow (spec.md §4.4).
const (
	DefaultOutOfOrderTTL        = 24 * time.Hour
	DefaultPartiallySignedTTL   = 24 * time.Hour
	DefaultPartiallyWitnessedTTL = 7 * 24 * time.Hour
	DefaultMissingDelegationTTL = 24 * time.Hour
)

// OutOfOrder holds events whose sn is ahead of the accepted tip. Rescan
// trigger: KeyEventAdded for the same identifier.
type OutOfOrder struct {
	store *Store
	v     validator.Validator
	st    StateSource
	acc   Accepter
}

func NewOutOfOrder(v validator.Validator, st StateSource, acc Accepter, clock Clock) *OutOfOrder {
	return &OutOfOrder{store: NewStore(DefaultOutOfOrderTTL, clock), v: v, st: st, acc: acc}
}

func (e *OutOfOrder) Insert(se event.SignedEvent) { e.store.Insert(se) }

// Reprocess re-validates every live candidate for identifier against
// current state; accepted ones are removed and trigger KeyEventAdded
// (which the Processor's bus wiring re-enters here for the next sn).
func (e *OutOfOrder) Reprocess(identifier string) error {
	for _, se := range e.store.ForIdentifier(identifier) {
		st, exists, err := e.st.Compute(identifier)
		if err != nil {
			return err
		}
		res, err := e.v.Validate(st, exists, se)
		if err != nil {
			return err
		}
		switch res.Outcome {
		case validator.Ok:
			e.store.Remove(identifier, se.Event.D.Qb64())
			if err := e.acc.Accept(se); err != nil {
				return err
			}
		case validator.SignatureInvalid, validator.IncorrectDigest, validator.Duplicitous:
			e.store.Remove(identifier, se.Event.D.Qb64())
		default:
			// still out of order, or some other recoverable condition:
			// leave it for the next trigger or TTL expiry.
		}
	}
	return nil
}

// PartiallySigned holds events under-signed for their threshold. Rescan
// trigger: a further PartiallySigned notification carrying new signatures
// for the same candidate; it de-duplicates by controller index and
// revalidates the union, re-inserting (not dropping) if still short.
type PartiallySigned struct {
	store *Store
	v     validator.Validator
	st    StateSource
	acc   Accepter
}

func NewPartiallySigned(v validator.Validator, st StateSource, acc Accepter, clock Clock) *PartiallySigned {
	return &PartiallySigned{store: NewStore(DefaultPartiallySignedTTL, clock), v: v, st: st, acc: acc}
}

// Insert merges se's signatures into any existing escrowed candidate for
// the same (i, s, d) before storing, then revalidates.
func (e *PartiallySigned) Insert(se event.SignedEvent) error {
	bucket := e.store.byKey[se.Event.I]
	key := se.Event.D.Qb64()
	merged := se
	if bucket != nil {
		if existing, ok := bucket[key]; ok {
			merged.Signatures = mergeSignatures(existing.se.Signatures, se.Signatures)
		}
	}
	return e.revalidateAndStore(merged)
}

func (e *PartiallySigned) revalidateAndStore(se event.SignedEvent) error {
	st, exists, err := e.st.Compute(se.Event.I)
	if err != nil {
		return err
	}
	res, err := e.v.Validate(st, exists, se)
	if err != nil {
		return err
	}
	switch res.Outcome {
	case validator.Ok:
		e.store.Remove(se.Event.I, se.Event.D.Qb64())
		return e.acc.Accept(se)
	case validator.NotEnoughSignatures:
		e.store.Replace(se)
		return nil
	case validator.SignatureInvalid, validator.IncorrectDigest, validator.Duplicitous:
		e.store.Remove(se.Event.I, se.Event.D.Qb64())
		return nil
	default:
		e.store.Replace(se)
		return nil
	}
}

func mergeSignatures(have, add []event.IndexedSignature) []event.IndexedSignature {
	seen := map[int]struct{}{}
	out := append([]event.IndexedSignature{}, have...)
	for _, s := range have {
		seen[s.Index.CurrentIndex()] = struct{}{}
	}
	for _, s := range add {
		if _, dup := seen[s.Index.CurrentIndex()]; dup {
			continue
		}
		seen[s.Index.CurrentIndex()] = struct{}{}
		out = append(out, s)
	}
	return out
}

// PartiallyWitnessed holds signature-satisfied events still short of their
// witness-receipt threshold. Rescan trigger: ReceiptAccepted for the same
// (i, sn).
type PartiallyWitnessed struct {
	store *Store
	v     validator.Validator
	st    StateSource
	acc   Accepter
}

func NewPartiallyWitnessed(v validator.Validator, st StateSource, acc Accepter, clock Clock) *PartiallyWitnessed {
	return &PartiallyWitnessed{store: NewStore(DefaultPartiallyWitnessedTTL, clock), v: v, st: st, acc: acc}
}

func (e *PartiallyWitnessed) Insert(se event.SignedEvent) { e.store.Insert(se) }

// Reprocess re-validates escrowed candidates for identifier at sn sn (a
// ReceiptAccepted notification names exactly one (i,sn)).
func (e *PartiallyWitnessed) Reprocess(identifier string, sn uint64) error {
	for _, se := range e.store.ForIdentifier(identifier) {
		if se.Event.S != sn {
			continue
		}
		st, exists, err := e.st.Compute(identifier)
		if err != nil {
			return err
		}
		res, err := e.v.Validate(st, exists, se)
		if err != nil {
			return err
		}
		switch res.Outcome {
		case validator.Ok:
			e.store.Remove(identifier, se.Event.D.Qb64())
			if err := e.acc.Accept(se); err != nil {
				return err
			}
		case validator.SignatureInvalid, validator.IncorrectDigest, validator.Duplicitous:
			e.store.Remove(identifier, se.Event.D.Qb64())
		}
	}
	return nil
}

// MissingDelegation holds delegated events whose anchor seal has not yet
// appeared in the delegator's KEL. It uses a two-sided index: inserted
// keyed on the delegator identifier; rescanned on the delegator's
// KeyEventAdded by matching the new event's Seal::Event entries against
// escrowed entries' own (prefix, sn, digest).
type MissingDelegation struct {
	store *Store
	v     validator.Validator
	st    StateSource
	acc   Accepter
}

func NewMissingDelegation(v validator.Validator, st StateSource, acc Accepter, clock Clock) *MissingDelegation {
	return &MissingDelegation{store: NewStore(DefaultMissingDelegationTTL, clock), v: v, st: st, acc: acc}
}

// Insert keys the escrow entry under the delegator identifier, not the
// delegatee, so ReprocessAnchors(delegator, ...) finds it.
func (e *MissingDelegation) Insert(se event.SignedEvent) {
	e.store.byKeyInsert(se.Event.Delegator, se)
}

// ReprocessAnchors is called when delegatorIdentifier gains a new accepted
// event carrying seals; it matches each Seal::Event entry against escrowed
// delegated events and, for matches, attaches the seal and revalidates.
func (e *MissingDelegation) ReprocessAnchors(delegatorIdentifier string, anchoring event.SignedEvent) error {
	candidates := e.store.ForIdentifier(delegatorIdentifier)
	for _, se := range candidates {
		var matched *event.Seal
		for _, s := range anchoring.Event.Seals {
			if s.Matches(se.Event.I, se.Event.S, se.Event.D) {
				sCopy := s
				matched = &sCopy
				break
			}
		}
		if matched == nil {
			continue
		}
		se.DelegatorSeal = event.NewSourceSeal(anchoring.Event.S, anchoring.Event.D)

		st, exists, err := e.st.Compute(se.Event.I)
		if err != nil {
			return err
		}
		res, err := e.v.Validate(st, exists, se)
		if err != nil {
			return err
		}
		switch res.Outcome {
		case validator.Ok:
			e.store.Remove(delegatorIdentifier, se.Event.D.Qb64())
			if err := e.acc.Accept(se); err != nil {
				return err
			}
		case validator.SignatureInvalid, validator.IncorrectDigest, validator.Duplicitous:
			e.store.Remove(delegatorIdentifier, se.Event.D.Qb64())
		}
	}
	return nil
}

// byKeyInsert is a helper exposed on Store for escrows that key entries by
// a field other than the escrowed event's own identifier.
func (s *Store) byKeyInsert(bucketKey string, se event.SignedEvent) {
	bucket, ok := s.byKey[bucketKey]
	if !ok {
		bucket = map[string]entry{}
		s.byKey[bucketKey] = bucket
	}
	key := se.Event.D.Qb64()
	if _, exists := bucket[key]; exists {
		return
	}
	bucket[key] = entry{se: se, inserted: s.clock()}
}


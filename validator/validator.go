// Package validator implements the stateless event-validation state machine
// of spec.md §4.2: a pure function over (prior state, candidate event)
// returning one of the ten ValidationOutcome variants, checked in the exact
// order §4.2 specifies.
package validator

import (
	"crypto/ed25519"

	commoncbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/forestrie/go-keri/digest"
	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/keys"
	"github.com/forestrie/go-keri/state"
)

// Outcome is one of spec.md §4.2's ten labeled results.
type Outcome int

const (
	Ok Outcome = iota
	OutOfOrder
	Duplicitous
	NotEnoughSignatures
	NotEnoughReceipts
	MissingDelegatingEvent
	SignatureInvalid
	IncorrectDigest
	PriorDigestMismatch
	NextKeysMismatch
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "Ok"
	case OutOfOrder:
		return "OutOfOrder"
	case Duplicitous:
		return "Duplicitous"
	case NotEnoughSignatures:
		return "NotEnoughSignatures"
	case NotEnoughReceipts:
		return "NotEnoughReceipts"
	case MissingDelegatingEvent:
		return "MissingDelegatingEvent"
	case SignatureInvalid:
		return "SignatureInvalid"
	case IncorrectDigest:
		return "IncorrectDigest"
	case PriorDigestMismatch:
		return "PriorDigestMismatch"
	case NextKeysMismatch:
		return "NextKeysMismatch"
	default:
		return "Unknown"
	}
}

// Result carries the Outcome plus any detail (e.g. the matched rotation
// indices, for callers that want to log them).
type Result struct {
	Outcome Outcome
	Detail  string
}

func ok() Result                       { return Result{Outcome: Ok} }
func fail(o Outcome, detail string) Result { return Result{Outcome: o, Detail: detail} }

// Strategy selects the one rule difference spec.md §4.3 calls out between a
// normal controller/watcher processor and a witness: witnesses accept an
// event into their own log even when NotEnoughReceipts, because they are the
// ones producing receipts, not waiting on them.
type Strategy int

const (
	StrategyController Strategy = iota
	StrategyWitness
)

// DelegationResolver answers whether a delegated event's anchor seal is
// present in the delegator's accepted KEL, per spec.md §3.2 dip/drt
// invariant. Implementations typically wrap an eventlog.Store scoped to the
// delegator identifier.
type DelegationResolver interface {
	// HasAnchor reports whether the delegator's KEL contains an ixn (or
	// establishment event) whose `a` field has a Seal::Event matching
	// (delegatee, sn, digest).
	HasAnchor(delegator, delegatee string, sn uint64, d digest.Digest) (bool, error)
	// KnownKEL reports whether the delegator identifier is known at all
	// (distinguishes "anchor not yet present" from "delegator unknown").
	KnownKEL(delegator string) (bool, error)
}

// ReceiptCounter reports the distinct witness receipts attached to/stored
// for a candidate event, used for the witness-threshold check.
type ReceiptCounter interface {
	WitnessPrefixes(i string, sn uint64, d digest.Digest) ([]string, error)
}

// Validator keeps no per-identifier state: the prior state and the
// candidate event are passed to Validate. Its collaborators (Delegation,
// Receipts) are fields, set when the Validator is built.
type Validator struct {
	Codec    commoncbor.CBORCodec
	HashCode digest.Code
	Strategy Strategy

	Delegation DelegationResolver
	Receipts   ReceiptCounter
}

// Validate implements spec.md §4.2's ordering: digest self-consistency →
// identifier binding / prior-digest binding → next-key commitment
// (rotations) → threshold signatures → witness receipts → delegator anchor.
func (v Validator) Validate(prior state.IdentifierState, priorExists bool, se event.SignedEvent) (Result, error) {
	e := se.Event

	// 1. Digest self-consistency.
	form, err := event.DerivationForm(v.Codec, e, e.D.Code)
	if err != nil {
		return Result{}, err
	}
	okDigest, err := e.D.VerifySource(form)
	if err != nil {
		return Result{}, err
	}
	if !okDigest {
		return fail(IncorrectDigest, "self-digest does not match derivation-form bytes"), nil
	}

	// 2. Identifier binding (inception) or prior-digest binding.
	if e.T == event.Icp || e.T == event.Dip {
		if e.S != 0 {
			return fail(OutOfOrder, "inception must have sn=0"), nil
		}
		if priorExists {
			return fail(Duplicitous, "inception for already-established identifier"), nil
		}
	} else {
		if !priorExists {
			return fail(OutOfOrder, "no prior state for non-inception event"), nil
		}
		if e.S <= prior.SN {
			if e.D.Equal(prior.LastEventDig) && e.S == prior.SN {
				return ok(), nil // idempotent resubmission
			}
			return fail(Duplicitous, "sn at or below accepted sn with differing digest"), nil
		}
		if e.S > prior.SN+1 {
			return fail(OutOfOrder, "sn skips ahead of accepted sn+1"), nil
		}
		if !e.P.Equal(prior.LastEventDig) {
			return fail(PriorDigestMismatch, "p does not match accepted last-event digest"), nil
		}
	}

	// 3. Next-key commitment (rotations only).
	var effectiveKeys keys.PublicKeySet
	if e.T.IsEstablishment() {
		effectiveKeys = keys.PublicKeySet{Keys: e.Keys, Threshold: e.Threshold}
		if e.T == event.Rot || e.T == event.Drt {
			if _, err := prior.NextKeys.VerifyRotation(prior.LastEventDig.Code, e.Keys); err != nil {
				return fail(NextKeysMismatch, err.Error()), nil
			}
		}
	} else {
		effectiveKeys = prior.KeyConfig
	}

	// 4. Threshold signature verification.
	if err := verifySignatures(v.Codec, e, effectiveKeys, se.Signatures); err != nil {
		if err == errNotEnough {
			return fail(NotEnoughSignatures, "signatures present do not meet threshold"), nil
		}
		return fail(SignatureInvalid, err.Error()), nil
	}

	// 5. Witness receipts.
	witnesses := prior.Witnesses
	if e.T.IsEstablishment() {
		witnesses = resolveEstablishmentWitnesses(prior.Witnesses, e, priorExists)
	}
	if witnesses.Threshold > 0 && v.Strategy != StrategyWitness {
		prefixes, err := v.Receipts.WitnessPrefixes(e.I, e.S, e.D)
		if err != nil {
			return Result{}, err
		}
		distinct := distinctAmong(prefixes, witnesses.Witnesses)
		if uint64(len(distinct)) < witnesses.Threshold {
			return fail(NotEnoughReceipts, "witness receipts below threshold"), nil
		}
	}

	// 6. Delegator anchor.
	if e.T.IsDelegated() {
		known, err := v.Delegation.KnownKEL(e.Delegator)
		if err != nil {
			return Result{}, err
		}
		if !known {
			return fail(MissingDelegatingEvent, "delegator KEL unknown"), nil
		}
		has, err := v.Delegation.HasAnchor(e.Delegator, e.I, e.S, e.D)
		if err != nil {
			return Result{}, err
		}
		if !has {
			return fail(MissingDelegatingEvent, "no matching anchor seal in delegator KEL"), nil
		}
	}

	return ok(), nil
}

func resolveEstablishmentWitnesses(prior event.WitnessSet, e event.KeyEvent, priorExists bool) event.WitnessSet {
	if e.T == event.Icp || e.T == event.Dip || !priorExists {
		return e.Witnesses
	}
	if len(e.Witnesses.Witnesses) > 0 {
		return e.Witnesses
	}
	cut := map[string]struct{}{}
	for _, w := range e.WitnessCut {
		cut[w] = struct{}{}
	}
	set := make([]string, 0, len(prior.Witnesses))
	for _, w := range prior.Witnesses {
		if _, ok := cut[w]; ok {
			continue
		}
		set = append(set, w)
	}
	set = append(set, e.WitnessAdd...)
	return event.WitnessSet{Witnesses: set, Threshold: e.Witnesses.Threshold}
}

func distinctAmong(have []string, allowed []string) []string {
	allow := map[string]struct{}{}
	for _, w := range allowed {
		allow[w] = struct{}{}
	}
	seen := map[string]struct{}{}
	var out []string
	for _, w := range have {
		if _, ok := allow[w]; !ok {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

var errNotEnough = &signatureError{"not enough distinct signer indices"}

type signatureError struct{ msg string }

func (e *signatureError) Error() string { return e.msg }

func verifySignatures(codec commoncbor.CBORCodec, e event.KeyEvent, ks keys.PublicKeySet, sigs []event.IndexedSignature) error {
	msg, err := event.Bytes(codec, e)
	if err != nil {
		return err
	}
	present := make([]int, 0, len(sigs))
	for _, s := range sigs {
		idx := s.Index.CurrentIndex()
		if idx < 0 || idx >= len(ks.Keys) {
			return &signatureError{msg: "signer index out of range"}
		}
		if !ed25519.Verify(ks.Keys[idx], msg, s.Sig) {
			return &signatureError{msg: "signature failed cryptographic verification"}
		}
		present = append(present, idx)
	}
	okThresh, err := ks.Threshold.Satisfied(present)
	if err != nil {
		return err
	}
	if !okThresh {
		return errNotEnough
	}
	return nil
}

// Package state computes the derived IdentifierState (spec.md §3.5) by
// folding a log's accepted events for one identifier. StateComputer is a
// pure function of the log, as §9 requires ("no global state").
package state

import (
	"github.com/forestrie/go-keri/digest"
	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/keys"
)

// LastEstablishment describes the most recent establishment event, used to
// answer "how current is this identifier's signing authority" for BADA
// (spec.md §4.3, §8 invariant 10).
type LastEstablishment struct {
	SN            uint64
	Digest        digest.Digest
	WitnessAdd    []string
	WitnessCut    []string
}

// IdentifierState is the derived, not-stored-as-truth state of an
// identifier at its current sn (spec.md §3.5).
type IdentifierState struct {
	Prefix string

	SN            uint64
	LastEventDig  digest.Digest
	KeyConfig     keys.PublicKeySet
	NextKeys      keys.NextKeyCommitment
	Witnesses     event.WitnessSet
	Delegator     string // empty if not delegated
	LastEstablish LastEstablishment

	// LogRoot holds a bagged MMR peak digest over accepted event digests.
	// Compute and Apply never set it; the root itself is available from
	// eventlog.Accumulator.Root.
	LogRoot digest.Digest
}

// EventSource supplies the ordered accepted events StateComputer folds;
// eventlog.Store implements it directly.
type EventSource interface {
	Last(i string) (event.SignedEvent, bool, error)
	Range(i string, fromSN uint64, limit int) ([]event.SignedEvent, error)
}

// Compute folds every accepted event for identifier i, in sn order, into an
// IdentifierState. It is intentionally re-derivable rather than cached by
// this package: callers (Controller, Validator) own their own cache
// invalidated by a log-append notification, per spec.md §3.9.
func Compute(src EventSource, i string) (IdentifierState, bool, error) {
	var st IdentifierState
	var have bool

	events, err := src.Range(i, 0, 0)
	if err != nil {
		return IdentifierState{}, false, err
	}
	for _, se := range events {
		st, have = Apply(st, have, se)
	}
	return st, have, nil
}

// Apply folds one additional accepted event onto prior, returning the new
// state. It assumes se has already passed Validator and is being applied in
// sn order; it performs no validation of its own.
func Apply(prior IdentifierState, priorExists bool, se event.SignedEvent) (IdentifierState, bool) {
	st := prior
	st.Prefix = se.Event.I
	st.SN = se.Event.S
	st.LastEventDig = se.Event.D

	if se.Event.T.IsEstablishment() {
		st.KeyConfig = keys.PublicKeySet{Keys: se.Event.Keys, Threshold: se.Event.Threshold}
		st.NextKeys = se.Event.NextKeys
		st.Witnesses = applyWitnessDiff(prior.Witnesses, se.Event, priorExists)
		st.LastEstablish = LastEstablishment{
			SN:         se.Event.S,
			Digest:     se.Event.D,
			WitnessAdd: se.Event.WitnessAdd,
			WitnessCut: se.Event.WitnessCut,
		}
		if se.Event.T.IsDelegated() {
			st.Delegator = se.Event.Delegator
		}
	}
	return st, true
}

// applyWitnessDiff resolves an establishment event's witness configuration:
// icp/dip always declare a full set; rot/drt declare add/cut diffs applied
// to the prior set (spec.md §3.2).
func applyWitnessDiff(prior event.WitnessSet, e event.KeyEvent, priorExists bool) event.WitnessSet {
	if e.T == "icp" || e.T == "dip" || !priorExists {
		return e.Witnesses
	}
	if len(e.Witnesses.Witnesses) > 0 {
		// explicit full replacement was carried instead of a diff
		return e.Witnesses
	}
	set := make([]string, 0, len(prior.Witnesses))
	cut := map[string]struct{}{}
	for _, w := range e.WitnessCut {
		cut[w] = struct{}{}
	}
	for _, w := range prior.Witnesses {
		if _, ok := cut[w]; ok {
			continue
		}
		set = append(set, w)
	}
	set = append(set, e.WitnessAdd...)
	return event.WitnessSet{Witnesses: set, Threshold: e.Witnesses.Threshold}
}

// The Validator verifies signatures/receipts against the configuration "in
// effect at the event's sn" (the nearest prior establishment event), not the
// current tip. Since IdentifierState as folded above always reflects the state
// immediately prior to the event under validation (the caller computes
// state over events strictly before the candidate), KeyConfig/Witnesses on
// that state already are "in effect at event.S" for non-establishment
// events; for establishment events the event declares its own.

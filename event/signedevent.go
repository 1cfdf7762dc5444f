package event

import "github.com/forestrie/go-keri/digest"

// SigIndexKind selects the shape of an IndexedSignature, per spec.md §9:
// "Indexed signatures carry either a single index (current-keys only), or
// both current and prior indices (during rotation cutovers)."
type SigIndexKind uint8

const (
	CurrentOnly SigIndexKind = iota
	BothSame
	BothDifferent
)

// SigIndex is the sum type `{CurrentOnly(u16), BothSame(u16), BothDifferent(u16,u16)}`.
type SigIndex struct {
	Kind    SigIndexKind
	Current uint16
	Prior   uint16 // meaningful for BothSame (== Current) and BothDifferent
}

func NewCurrentOnly(i uint16) SigIndex       { return SigIndex{Kind: CurrentOnly, Current: i} }
func NewBothSame(i uint16) SigIndex          { return SigIndex{Kind: BothSame, Current: i, Prior: i} }
func NewBothDifferent(cur, prior uint16) SigIndex {
	return SigIndex{Kind: BothDifferent, Current: cur, Prior: prior}
}

// CurrentIndex returns the index into the current key set this signature
// attests to, valid for all three Kind values.
func (s SigIndex) CurrentIndex() int { return int(s.Current) }

// IndexedSignature is one controller signature, positioned within the
// current (and, across a rotation cutover, prior) key set.
type IndexedSignature struct {
	Index SigIndex
	Sig   []byte
}

// NontransferableCouple is one (witness-basic-prefix, signature) pair
// attached to a non-transferable receipt (spec.md §3.4).
type NontransferableCouple struct {
	WitnessPrefix string
	Sig           []byte
}

// SignedEvent is a KeyEvent plus its attached signatures, spec.md §3.3.
type SignedEvent struct {
	Event KeyEvent

	// Ordered list of indexed controller signatures.
	Signatures []IndexedSignature

	// Non-transferable witness receipts attached at emission time (as
	// opposed to receipts that arrive later and are merged via
	// EventLog.append_receipt).
	Receipts []NontransferableCouple

	// Delegator source-seal, populated only for dip/drt once the delegator
	// has anchored the event; absent (SN==0 && EventDigest.IsZero()) while
	// the event sits in the missing-delegation escrow.
	DelegatorSeal Seal
}

// HasDelegatorSeal reports whether a delegator anchor has been attached.
func (se SignedEvent) HasDelegatorSeal() bool {
	return !se.DelegatorSeal.EventDigest.IsZero()
}

// SignerIndices extracts the current-key signer indices present, used for
// threshold evaluation.
func (se SignedEvent) SignerIndices() []int {
	out := make([]int, len(se.Signatures))
	for i, s := range se.Signatures {
		out[i] = s.Index.CurrentIndex()
	}
	return out
}

// WitnessPrefixes returns the distinct witness prefixes with an attached
// receipt, deduplicating multiple signatures from the same witness under
// different key indices (spec.md §9 open question: treated as a single
// logical receipt for threshold counting, both signatures kept in storage).
func (se SignedEvent) WitnessPrefixes() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range se.Receipts {
		if _, ok := seen[r.WitnessPrefix]; ok {
			continue
		}
		seen[r.WitnessPrefix] = struct{}{}
		out = append(out, r.WitnessPrefix)
	}
	return out
}

// EventSealOf builds the EventSeal identifying se, for anchoring in another
// KEL's ixn `a` field.
func EventSealOf(se SignedEvent) Seal {
	return NewEventSeal(se.Event.I, se.Event.S, se.Event.D)
}

// TransferableReceipt is a receipt issued by a KEL-controlled identifier
// (spec.md §3.4 "Transferable"): an event seal identifying the receiptor's
// own establishment event, plus indexed signatures over the receipted
// event's digest.
type TransferableReceipt struct {
	ReceiptorSeal Seal // the receiptor's own establishment-event seal
	Signatures    []IndexedSignature
	Receipted     Seal // the (i, s, d) of the event being receipted
}

// NontransferableReceipt is a standalone receipt message (before it is
// merged into an accepted event's stored receipt set): `{t:rct, d, i, s}`
// plus one or more witness couples (spec.md §3.4, §4.5).
type NontransferableReceipt struct {
	I string
	S uint64
	D digest.Digest

	Couples []NontransferableCouple
}

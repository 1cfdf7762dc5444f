// Package tel implements the Transaction Event Log extension of spec.md
// §3.8/§4.9: a credential-registry state machine anchored into its
// controlling identifier's KEL, sharing the KEL processor's bus-and-escrow
// topology over its own tables.
package tel

import (
	"fmt"

	commoncbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/forestrie/go-keri/digest"
	"github.com/forestrie/go-keri/event"
)

// Type is the TEL event-type tag.
type Type string

const (
	Vcp Type = "vcp" // registry inception
	Vrt Type = "vrt" // registry rotation (backer set change)
	Iss Type = "iss" // simple issuance
	Bis Type = "bis" // backed issuance
	Rev Type = "rev" // simple revocation
	Brv Type = "brv" // backed revocation
)

func (t Type) IsRegistryEvent() bool { return t == Vcp || t == Vrt }
func (t Type) IsBacked() bool        { return t == Bis || t == Brv }
func (t Type) IsIssuance() bool      { return t == Iss || t == Bis }
func (t Type) IsRevocation() bool    { return t == Rev || t == Brv }

// TELEvent is one registry-log entry, spec.md §3.8.
type TELEvent struct {
	V string
	T Type
	D digest.Digest
	I string // registry prefix (self-addressing, derived like an icp)
	S uint64
	P digest.Digest // prior TEL event digest for this registry; zero for vcp

	IssuerPrefix string // the KEL identifier whose ixn anchors this event

	CredentialSAID string // empty for vcp/vrt

	Backers         []string // full set, vcp
	BackerAdd       []string // diff, vrt
	BackerCut       []string // diff, vrt
	BackerThreshold uint64

	// Source points at the anchoring KEL ixn (Seal::Source: sn + digest of
	// that ixn). The ixn's own `a` field must in turn carry a Seal::Registry
	// matching (I, S, D) of this TELEvent — spec.md §4.9's anchor rule.
	Source event.Seal
}

type wireTELEvent struct {
	V   string   `cbor:"v"`
	T   Type     `cbor:"t"`
	D   string   `cbor:"d"`
	I   string   `cbor:"i"`
	S   string   `cbor:"s"`
	P   string   `cbor:"p,omitempty"`
	RI  string   `cbor:"ri,omitempty"` // IssuerPrefix
	SAID string  `cbor:"said,omitempty"`
	B   []string `cbor:"b,omitempty"`
	BA  []string `cbor:"ba,omitempty"`
	BR  []string `cbor:"br,omitempty"`
	BT  uint64   `cbor:"bt,omitempty"`
	SrcSN  uint64 `cbor:"ssn,omitempty"`
	SrcDig string `cbor:"sdig,omitempty"`
}

func wireOf(e TELEvent) wireTELEvent {
	w := wireTELEvent{
		V: e.V, T: e.T, D: e.D.Qb64(), I: e.I, S: fmt.Sprintf("%x", e.S),
		RI: e.IssuerPrefix, SAID: e.CredentialSAID,
		B: e.Backers, BA: e.BackerAdd, BR: e.BackerCut, BT: e.BackerThreshold,
	}
	if !e.P.IsZero() {
		w.P = e.P.Qb64()
	}
	return w
}

// DerivationForm returns the canonical bytes to hash: e with its d field
// replaced by a same-length placeholder, the same dummy-prefix rule event
// uses (spec.md §6.1). For a vcp whose I is empty or equal to its own d, I
// is replaced by the same placeholder, so a registry prefix set to the
// digest after Derive still verifies. Source is deliberately excluded from
// the hashed form, the same way event.SignedEvent.DelegatorSeal sits outside
// KeyEvent: the anchoring KEL ixn's own digest commits to this TEL event's
// digest (via a Seal::Registry), so the reverse pointer can only be attached
// once that ixn exists, after te.D is already fixed.
func DerivationForm(codec commoncbor.CBORCodec, e TELEvent, code digest.Code) ([]byte, error) {
	shadow := e
	shadow.D = digest.Digest{Code: code, Bytes: make([]byte, code.Size())}
	if e.T == Vcp && (e.I == "" || (len(e.D.Bytes) > 0 && e.I == e.D.Qb64())) {
		shadow.I = shadow.D.Qb64()
	}
	return codec.MarshalCBOR(wireOf(shadow))
}

// Derive computes and sets e.D.
func Derive(codec commoncbor.CBORCodec, e TELEvent, code digest.Code) (TELEvent, error) {
	form, err := DerivationForm(codec, e, code)
	if err != nil {
		return TELEvent{}, err
	}
	d, err := digest.New(code, form)
	if err != nil {
		return TELEvent{}, err
	}
	e.D = d
	return e, nil
}

// Bytes serializes the final event for storage/transmission, including the
// Source attachment the hashed DerivationForm omits.
func Bytes(codec commoncbor.CBORCodec, e TELEvent) ([]byte, error) {
	w := wireOf(e)
	if !e.Source.EventDigest.IsZero() {
		w.SrcSN = e.Source.SN
		w.SrcDig = e.Source.EventDigest.Qb64()
	}
	return codec.MarshalCBOR(w)
}

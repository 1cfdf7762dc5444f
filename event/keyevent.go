// Package event implements the KERI key-event data model: spec.md §3.2
// (KeyEvent), §3.3 (SignedEvent), §3.5 (IdentifierState's inputs) and the
// delegation/seal fields layered on top.
package event

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	commoncbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/forestrie/go-keri/digest"
	"github.com/forestrie/go-keri/keys"
)

// Type is the event-type tag (`t` field).
type Type string

const (
	Icp Type = "icp"
	Rot Type = "rot"
	Ixn Type = "ixn"
	Dip Type = "dip"
	Drt Type = "drt"
)

func (t Type) IsEstablishment() bool {
	switch t {
	case Icp, Rot, Dip, Drt:
		return true
	default:
		return false
	}
}

func (t Type) IsDelegated() bool {
	return t == Dip || t == Drt
}

// WitnessSet is the witness configuration recorded by an establishment
// event: the full witness list in effect and the receipt threshold.
type WitnessSet struct {
	Witnesses []string // non-transferable basic-prefix identifiers
	Threshold uint64
}

// KeyEvent is one KERI key-event-log entry, common fields plus the
// variant-specific payload selected by Type.
type KeyEvent struct {
	V string // version/format string, e.g. "KERI10CBOR000000_"
	T Type
	D digest.Digest // self-digest, zero until Derive is called
	I string        // owning identifier prefix
	S uint64        // sequence number
	P digest.Digest // prior-event digest; zero for icp

	// Establishment-event fields (icp, rot, dip, drt).
	Keys      []ed25519.PublicKey
	Threshold keys.Threshold
	NextKeys  keys.NextKeyCommitment
	Witnesses WitnessSet
	// WitnessAdd/WitnessCut express a witness-set *diff* for rot/drt; icp/dip
	// always carry a full set in Witnesses.
	WitnessAdd []string
	WitnessCut []string

	// Non-establishment (ixn) field.
	Seals []Seal

	// Delegated variants (dip, drt).
	Delegator string
}

var (
	ErrWrongType       = errors.New("event: operation not valid for this event type")
	ErrMissingPrior    = errors.New("event: rot/ixn/dip/drt event missing prior-event digest")
	ErrUnexpectedPrior = errors.New("event: icp event must not carry a prior-event digest")
)

// DerivationForm returns the canonical bytes to hash/sign: the event
// serialized with its `d` field replaced by a same-length, code-specific
// filler (the "dummy prefix rule", spec.md §3.2/§6.1). For an icp/dip whose
// `i` is empty or equals its own `d` (a self-addressing identifier), `i` is
// replaced by the same filler, so the form is identical before and after the
// identifier is bound to the digest.
func DerivationForm(codec commoncbor.CBORCodec, e KeyEvent, code digest.Code) ([]byte, error) {
	filler := make([]byte, code.Size())
	shadow := e
	shadow.D = digest.Digest{Code: code, Bytes: filler}
	if (e.T == Icp || e.T == Dip) && (e.I == "" || (len(e.D.Bytes) > 0 && e.I == e.D.Qb64())) {
		shadow.I = shadow.D.Qb64()
	}
	return codec.MarshalCBOR(wireEventOf(shadow))
}

// Derive computes and sets e.D only; it never sets e.I. For a self-addressing
// inception the caller sets I to the returned event's D.Qb64() afterwards.
func Derive(codec commoncbor.CBORCodec, e KeyEvent, code digest.Code) (KeyEvent, error) {
	form, err := DerivationForm(codec, e, code)
	if err != nil {
		return KeyEvent{}, err
	}
	d, err := digest.New(code, form)
	if err != nil {
		return KeyEvent{}, err
	}
	e.D = d
	return e, nil
}

// Bytes serializes the final event (with its real `d` populated) for
// transmission and for re-verification of digest integrity.
func Bytes(codec commoncbor.CBORCodec, e KeyEvent) ([]byte, error) {
	return codec.MarshalCBOR(wireEventOf(e))
}

// Parse reverses Bytes: it decodes the wire projection back into a KeyEvent,
// the inbound half of the wire codec a witness or watcher needs once it has
// pulled the message body out of a cesr.Message, spec.md §6.1/§4.9.
func Parse(codec commoncbor.CBORCodec, data []byte) (KeyEvent, error) {
	var w wireEvent
	if err := codec.UnmarshalInto(data, &w); err != nil {
		return KeyEvent{}, err
	}

	sn, err := strconv.ParseUint(w.S, 16, 64)
	if err != nil {
		return KeyEvent{}, fmt.Errorf("event: invalid sn %q: %w", w.S, err)
	}
	d, err := digest.ParseQb64(w.D)
	if err != nil {
		return KeyEvent{}, err
	}
	p, err := digest.ParseQb64(w.P)
	if err != nil {
		return KeyEvent{}, err
	}
	e := KeyEvent{V: w.V, T: w.T, D: d, I: w.I, S: sn, P: p}

	if e.T.IsEstablishment() {
		for _, k := range w.K {
			e.Keys = append(e.Keys, ed25519.PublicKey(k))
		}
		e.Threshold, err = thresholdFrom(w.Kt)
		if err != nil {
			return KeyEvent{}, err
		}
		nextDigests := make([]digest.Digest, len(w.N))
		for i, s := range w.N {
			nextDigests[i], err = digest.ParseQb64(s)
			if err != nil {
				return KeyEvent{}, err
			}
		}
		nt, err := thresholdFrom(w.Nt)
		if err != nil {
			return KeyEvent{}, err
		}
		e.NextKeys = keys.NextKeyCommitment{Digests: nextDigests, Threshold: nt}
		e.Witnesses = WitnessSet{Witnesses: w.B, Threshold: w.BT}
		e.WitnessAdd = w.BA
		e.WitnessCut = w.BR
		if e.T.IsDelegated() {
			e.Delegator = w.DelpreWire
		}
	}
	if e.T == Ixn {
		for _, sw := range w.A {
			s, err := sealFrom(sw)
			if err != nil {
				return KeyEvent{}, err
			}
			e.Seals = append(e.Seals, s)
		}
	}
	return e, nil
}

// wireEvent is the CBOR-tagged projection of KeyEvent actually put on the
// wire; kept distinct from KeyEvent so in-memory convenience fields (derived
// ed25519 types etc.) never leak into the serialized form.
type wireEvent struct {
	V          string         `cbor:"v"`
	T          Type           `cbor:"t"`
	D          string         `cbor:"d"`
	I          string         `cbor:"i"`
	S          string         `cbor:"s"` // hex sn, matches CESR numeric convention
	P          string         `cbor:"p,omitempty"`
	K          []string       `cbor:"k,omitempty"`
	Kt         thresholdWire  `cbor:"kt,omitempty"`
	N          []string       `cbor:"n,omitempty"`
	Nt         thresholdWire  `cbor:"nt,omitempty"`
	BT         uint64         `cbor:"bt,omitempty"`
	B          []string       `cbor:"b,omitempty"`
	BA         []string       `cbor:"ba,omitempty"`
	BR         []string       `cbor:"br,omitempty"`
	A          []sealWire     `cbor:"a,omitempty"`
	DelpreWire string         `cbor:"di,omitempty"`
}

type thresholdWire struct {
	Simple   uint64     `cbor:"k,omitempty"`
	Weighted [][]string `cbor:"w,omitempty"`
}

type sealWire struct {
	Kind   uint8  `cbor:"kind"`
	Digest string `cbor:"d,omitempty"`
	Prefix string `cbor:"i,omitempty"`
	SN     uint64 `cbor:"s,omitempty"`
	EDig   string `cbor:"ed,omitempty"`
}

func wireEventOf(e KeyEvent) wireEvent {
	w := wireEvent{
		V: e.V, T: e.T, D: e.D.Qb64(), I: e.I,
		S: fmt.Sprintf("%x", e.S),
	}
	if !e.P.IsZero() {
		w.P = e.P.Qb64()
	}
	if e.T.IsEstablishment() {
		for _, k := range e.Keys {
			w.K = append(w.K, string(k))
		}
		w.Kt = thresholdOf(e.Threshold)
		for _, d := range e.NextKeys.Digests {
			w.N = append(w.N, d.Qb64())
		}
		w.Nt = thresholdOf(e.NextKeys.Threshold)
		w.BT = e.Witnesses.Threshold
		w.B = e.Witnesses.Witnesses
		w.BA = e.WitnessAdd
		w.BR = e.WitnessCut
		if e.T.IsDelegated() {
			w.DelpreWire = e.Delegator
		}
	}
	if e.T == Ixn {
		for _, s := range e.Seals {
			w.A = append(w.A, sealWireOf(s))
		}
	}
	return w
}

func thresholdOf(t keys.Threshold) thresholdWire {
	switch t.Kind {
	case keys.SimpleThreshold:
		return thresholdWire{Simple: t.Simple}
	case keys.WeightedThreshold:
		out := make([][]string, len(t.Clauses))
		for i, c := range t.Clauses {
			row := make([]string, len(c))
			for j, f := range c {
				row[j] = f.RatString()
			}
			out[i] = row
		}
		return thresholdWire{Weighted: out}
	default:
		return thresholdWire{}
	}
}

// thresholdFrom reverses thresholdOf.
func thresholdFrom(w thresholdWire) (keys.Threshold, error) {
	if len(w.Weighted) > 0 {
		clauses := make([]keys.Clause, len(w.Weighted))
		for i, row := range w.Weighted {
			clause := make(keys.Clause, len(row))
			for j, s := range row {
				f, ok := new(big.Rat).SetString(s)
				if !ok {
					return keys.Threshold{}, fmt.Errorf("event: invalid weighted-threshold fraction %q", s)
				}
				clause[j] = f
			}
			clauses[i] = clause
		}
		return keys.NewWeighted(clauses...)
	}
	return keys.NewSimple(w.Simple), nil
}

func sealWireOf(s Seal) sealWire {
	sw := sealWire{Kind: uint8(s.Kind)}
	switch s.Kind {
	case SealDigest:
		sw.Digest = s.Digest.Qb64()
	case SealEvent, SealRegistry:
		sw.Prefix = s.Prefix
		sw.SN = s.SN
		sw.EDig = s.EventDigest.Qb64()
	case SealSource:
		sw.SN = s.SN
		sw.EDig = s.EventDigest.Qb64()
	}
	return sw
}

// sealFrom reverses sealWireOf.
func sealFrom(sw sealWire) (Seal, error) {
	switch SealKind(sw.Kind) {
	case SealDigest:
		d, err := digest.ParseQb64(sw.Digest)
		if err != nil {
			return Seal{}, err
		}
		return NewDigestSeal(d), nil
	case SealEvent:
		d, err := digest.ParseQb64(sw.EDig)
		if err != nil {
			return Seal{}, err
		}
		return NewEventSeal(sw.Prefix, sw.SN, d), nil
	case SealRegistry:
		d, err := digest.ParseQb64(sw.EDig)
		if err != nil {
			return Seal{}, err
		}
		return NewRegistryAnchorSeal(sw.Prefix, sw.SN, d), nil
	case SealSource:
		d, err := digest.ParseQb64(sw.EDig)
		if err != nil {
			return Seal{}, err
		}
		return NewSourceSeal(sw.SN, d), nil
	default:
		return Seal{}, fmt.Errorf("event: unknown seal kind %d", sw.Kind)
	}
}

package tel

import (
	"testing"

	commoncbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/keritesting"
)

type fakeAnchorSource struct {
	events map[string]map[uint64]event.SignedEvent
}

func newFakeAnchorSource() *fakeAnchorSource {
	return &fakeAnchorSource{events: map[string]map[uint64]event.SignedEvent{}}
}

func (f *fakeAnchorSource) put(issuer string, sn uint64, se event.SignedEvent) {
	bucket, ok := f.events[issuer]
	if !ok {
		bucket = map[uint64]event.SignedEvent{}
		f.events[issuer] = bucket
	}
	bucket[sn] = se
}

func (f *fakeAnchorSource) EventAt(issuerPrefix string, sn uint64) (event.SignedEvent, bool, error) {
	bucket, ok := f.events[issuerPrefix]
	if !ok {
		return event.SignedEvent{}, false, nil
	}
	se, ok := bucket[sn]
	return se, ok, nil
}

func buildVcp(t *testing.T, codec commoncbor.CBORCodec) TELEvent {
	t.Helper()
	te := TELEvent{
		V: "KERI10CBOR000000_", T: Vcp, S: 0,
		IssuerPrefix:    "issuer-abc",
		Backers:         []string{"backer-1"},
		BackerThreshold: 1,
	}
	derived, err := Derive(codec, te, keritesting.HashCode)
	if err != nil {
		t.Fatal(err)
	}
	derived.I = derived.D.Qb64()
	return derived
}

func TestValidateVcpWithMatchingAnchor(t *testing.T) {
	codec, err := keritesting.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	te := buildVcp(t, codec)

	ixn := event.KeyEvent{
		V: "KERI10CBOR000000_", T: event.Ixn, I: "issuer-abc", S: 1,
		Seals: []event.Seal{event.NewRegistryAnchorSeal(te.I, te.S, te.D)},
	}
	derivedIxn, err := event.Derive(codec, ixn, keritesting.HashCode)
	if err != nil {
		t.Fatal(err)
	}
	anchoringSE := event.SignedEvent{Event: derivedIxn}
	te.Source = event.NewSourceSeal(derivedIxn.S, derivedIxn.D)

	anchors := newFakeAnchorSource()
	anchors.put("issuer-abc", 1, anchoringSE)

	v := Validator{Codec: codec, Anchor: anchors}
	res, err := v.Validate(State{}, false, te)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Ok {
		t.Fatalf("expected Ok, got %s: %s", res.Outcome, res.Detail)
	}
}

func TestValidateVcpMissingIssuer(t *testing.T) {
	codec, err := keritesting.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	te := buildVcp(t, codec)
	te.Source = event.NewSourceSeal(1, te.D) // points at an sn never recorded

	v := Validator{Codec: codec, Anchor: newFakeAnchorSource()}
	res, err := v.Validate(State{}, false, te)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != MissingIssuer {
		t.Fatalf("expected MissingIssuer, got %s", res.Outcome)
	}
}

func TestValidateVcpAnchorMismatch(t *testing.T) {
	codec, err := keritesting.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	te := buildVcp(t, codec)

	ixn := event.KeyEvent{
		V: "KERI10CBOR000000_", T: event.Ixn, I: "issuer-abc", S: 1,
		// no seals at all: anchoring event exists but carries no matching
		// registry seal.
	}
	derivedIxn, err := event.Derive(codec, ixn, keritesting.HashCode)
	if err != nil {
		t.Fatal(err)
	}
	anchoringSE := event.SignedEvent{Event: derivedIxn}
	te.Source = event.NewSourceSeal(derivedIxn.S, derivedIxn.D)

	anchors := newFakeAnchorSource()
	anchors.put("issuer-abc", 1, anchoringSE)

	v := Validator{Codec: codec, Anchor: anchors}
	res, err := v.Validate(State{}, false, te)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != AnchorMismatch {
		t.Fatalf("expected AnchorMismatch, got %s", res.Outcome)
	}
}

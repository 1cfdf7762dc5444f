package tel

import (
	"testing"

	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/keritesting"
	"github.com/forestrie/go-keri/notify"
)

func TestProcessorAcceptsAnchoredVcp(t *testing.T) {
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
	te.Source = event.NewSourceSeal(derivedIxn.S, derivedIxn.D)

	anchors := newFakeAnchorSource()
	anchors.put("issuer-abc", 1, event.SignedEvent{Event: derivedIxn})

	store := NewMemStore()
	bus := notify.NewBus()
	log := keritesting.NewLog("tel-processor-test")
	p := New(store, anchors, Validator{Codec: codec}, bus, log)

	var gotNotification bool
	bus.Subscribe(notify.TELEventAdded, func(n notify.Notification) error {
		gotNotification = true
		return nil
	})

	if err := p.Process(te); err != nil {
		t.Fatal(err)
	}
	if !gotNotification {
		t.Fatal("expected TELEventAdded to be published on acceptance")
	}
	got, ok, err := store.GetEventAt(te.I, te.S)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !got.D.Equal(te.D) {
		t.Fatalf("expected the vcp to be persisted, got ok=%v", ok)
	}
}

func TestProcessorEscrowsAndReprocessesMissingIssuer(t *testing.T) {
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
	te.Source = event.NewSourceSeal(derivedIxn.S, derivedIxn.D)

	anchors := newFakeAnchorSource() // issuer's KEL not yet known
	store := NewMemStore()
	bus := notify.NewBus()
	log := keritesting.NewLog("tel-processor-test")
	p := New(store, anchors, Validator{Codec: codec}, bus, log)

	if err := p.Process(te); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.GetEventAt(te.I, te.S); ok {
		t.Fatal("vcp should not be accepted before its issuer anchor is known")
	}

	// The issuer's KEL ixn now becomes known; a KeyEventAdded-equivalent
	// trigger reprocesses the escrow.
	anchors.put("issuer-abc", 1, event.SignedEvent{Event: derivedIxn})
	if err := p.ReprocessIssuer("issuer-abc"); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.GetEventAt(te.I, te.S)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !got.D.Equal(te.D) {
		t.Fatal("expected the vcp to be accepted after its anchor appeared")
	}
}

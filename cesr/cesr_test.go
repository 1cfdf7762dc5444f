package cesr

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/forestrie/go-keri/digest"
	"github.com/forestrie/go-keri/event"
	"github.com/forestrie/go-keri/keritesting"
	"github.com/forestrie/go-keri/keys"
)

func TestWriteGroupReadGroupRoundTrip(t *testing.T) {
	g := Group{Kind: GroupIndexedSignatures, Elements: [][]byte{[]byte("sig-one"), []byte("sig-two")}}
	framed := WriteGroup(g)

	got, consumed, err := ReadGroup(GroupIndexedSignatures, framed)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != len(framed) {
		t.Fatalf("expected to consume the whole frame (%d bytes), consumed %d", len(framed), consumed)
	}
	if len(got.Elements) != 2 || string(got.Elements[0]) != "sig-one" || string(got.Elements[1]) != "sig-two" {
		t.Fatalf("unexpected round-tripped elements: %v", got.Elements)
	}
}

func TestReadGroupRejectsWrongCode(t *testing.T) {
	g := Group{Kind: GroupIndexedSignatures, Elements: [][]byte{[]byte("x")}}
	framed := WriteGroup(g)
	if _, _, err := ReadGroup(GroupNonTransferableReceipts, framed); err == nil {
		t.Fatal("expected an error reading a frame under the wrong group kind")
	}
}

func TestMarshalUnmarshalMessageRoundTrip(t *testing.T) {
	body := []byte(`{"fake":"cbor body"}`)
	sigGroup := IndexedSignatureGroup([]event.IndexedSignature{
		{Index: event.NewCurrentOnly(0), Sig: []byte("sig-a")},
	})
	sealGroup := SourceSealGroup(nil)

	msg := Message{Body: body, Attachments: []Group{sigGroup, sealGroup}}
	framed := Marshal(msg)

	got, err := Unmarshal(framed, []GroupKind{GroupIndexedSignatures, GroupSourceSeals})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Body, body) {
		t.Fatalf("expected body %q, got %q", body, got.Body)
	}
	if len(got.Attachments) != 2 {
		t.Fatalf("expected 2 attachment groups, got %d", len(got.Attachments))
	}
	sigs, err := ParseIndexedSignatures(got.Attachments[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 1 || sigs[0].Index.CurrentIndex() != 0 || string(sigs[0].Sig) != "sig-a" {
		t.Fatalf("unexpected round-tripped signature: %+v", sigs)
	}
}

func TestIndexedSignatureGroupRoundTripsIndexKind(t *testing.T) {
	sigs := []event.IndexedSignature{
		{Index: event.NewCurrentOnly(2), Sig: []byte("sig-current")},
		{Index: event.NewBothSame(1), Sig: []byte("sig-both-same")},
		{Index: event.NewBothDifferent(3, 1), Sig: []byte("sig-both-different")},
	}
	g := IndexedSignatureGroup(sigs)
	framed := WriteGroup(g)

	reread, _, err := ReadGroup(GroupIndexedSignatures, framed)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseIndexedSignatures(reread)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(sigs) {
		t.Fatalf("expected %d signatures, got %d", len(sigs), len(got))
	}
	for i, want := range sigs {
		if got[i].Index != want.Index || string(got[i].Sig) != string(want.Sig) {
			t.Fatalf("signature %d: expected %+v, got %+v", i, want, got[i])
		}
	}
}

func TestUnmarshalRejectsMalformedFrame(t *testing.T) {
	if _, err := Unmarshal([]byte("not a cesr frame"), nil); err == nil {
		t.Fatal("expected a malformed-frame error")
	}
}

func TestEncodeDecodeSignedEventRoundTrip(t *testing.T) {
	codec, err := keritesting.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	kp := keritesting.Seed("cesr-signed-event")
	nextDigests, err := keys.CommitTo(keritesting.HashCode, []ed25519.PublicKey{kp.Public})
	if err != nil {
		t.Fatal(err)
	}
	e := event.KeyEvent{
		V: "KERI10CBOR000000_", T: event.Icp, S: 0,
		Keys:      []ed25519.PublicKey{kp.Public},
		Threshold: keys.NewSimple(1),
		NextKeys:  keys.NextKeyCommitment{Digests: nextDigests, Threshold: keys.NewSimple(1)},
		Witnesses: event.WitnessSet{Witnesses: []string{"w1"}, Threshold: 1},
	}
	e.I = "icp-prefix"
	derived, err := event.Derive(codec, e, keritesting.HashCode)
	if err != nil {
		t.Fatal(err)
	}
	se := event.SignedEvent{
		Event: derived,
		Signatures: []event.IndexedSignature{
			{Index: event.NewCurrentOnly(0), Sig: ed25519.Sign(kp.Private, []byte("signed bytes"))},
		},
	}

	wire, err := EncodeSignedEvent(codec, se)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeSignedEvent(codec, wire)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Event.D.Equal(se.Event.D) {
		t.Fatal("expected the event digest to round trip")
	}
	if len(got.Signatures) != 1 || got.Signatures[0].Index.CurrentIndex() != 0 {
		t.Fatalf("expected the signature and its index to round trip, got %+v", got.Signatures)
	}
	if string(got.Signatures[0].Sig) != string(se.Signatures[0].Sig) {
		t.Fatal("expected the signature bytes to round trip exactly")
	}
}

func TestQb64VariesByCode(t *testing.T) {
	d1, err := digest.New(digest.Blake3_256, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	d2, err := digest.New(digest.SHA2_256, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if Qb64(d1) == Qb64(d2) {
		t.Fatal("digests under different codes must render different CESR-style text")
	}
	if Qb64(d1)[0] != 'E' {
		t.Fatalf("expected Blake3_256 to use code char 'E', got %q", Qb64(d1))
	}
}

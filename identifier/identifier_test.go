package identifier

import (
	"testing"

	"github.com/forestrie/go-keri/digest"
)

func TestNewBasicRoundTrip(t *testing.T) {
	pub := []byte("0123456789abcdef0123456789abcde")
	id := NewBasic(pub)
	if id.Kind != Basic {
		t.Fatalf("expected Basic, got %v", id.Kind)
	}
	if id.IsZero() {
		t.Fatal("a freshly built basic identifier must not be zero")
	}

	parsed, err := Parse(Basic, id.Raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(parsed.PublicKey) != string(pub) {
		t.Fatalf("expected round-tripped public key %q, got %q", pub, parsed.PublicKey)
	}
}

func TestNewSelfAddressing(t *testing.T) {
	d, err := digest.New(digest.Blake3_256, []byte("inception bytes"))
	if err != nil {
		t.Fatal(err)
	}
	id := NewSelfAddressing(d)
	if id.Kind != SelfAddressing {
		t.Fatalf("expected SelfAddressing, got %v", id.Kind)
	}
	if id.Raw != d.Qb64() {
		t.Fatalf("expected Raw to be the digest's Qb64, got %q", id.Raw)
	}

	parsed, err := Parse(SelfAddressing, id.Raw)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Raw != id.Raw {
		t.Fatalf("expected parsed Raw %q, got %q", id.Raw, parsed.Raw)
	}
}

func TestParseRejectsSelfSigning(t *testing.T) {
	if _, err := Parse(SelfSigning, "anything"); err != ErrReserved {
		t.Fatalf("expected ErrReserved, got %v", err)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := Parse(Basic, ""); err != ErrEmptyPrefix {
		t.Fatalf("expected ErrEmptyPrefix, got %v", err)
	}
}

func TestIdentifierString(t *testing.T) {
	id := NewBasic([]byte("key"))
	if id.String() != id.Raw {
		t.Fatalf("String() should mirror Raw, got %q vs %q", id.String(), id.Raw)
	}
}

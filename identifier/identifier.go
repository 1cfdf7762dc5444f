// Package identifier implements the self-certifying identifier prefixes
// described in spec.md §3.1: basic, self-addressing, and (reserved)
// self-signing.
package identifier

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/forestrie/go-keri/digest"
)

// Kind selects the identifier's derivation.
type Kind uint8

const (
	// Basic identifiers are a single public key, verbatim. They never
	// rotate and never have a KEL: the key *is* the identifier.
	Basic Kind = iota
	// SelfAddressing identifiers are the digest of their own inception
	// event. They rotate via establishment events recorded in a KEL.
	SelfAddressing
	// SelfSigning is reserved by the spec; not constructible here.
	SelfSigning
)

var (
	ErrReserved       = errors.New("identifier: self-signing prefixes are reserved")
	ErrEmptyPrefix    = errors.New("identifier: empty prefix")
	ErrBadBasicPrefix = errors.New("identifier: basic prefix does not match public key")
)

// Identifier is an opaque, comparable, self-certifying prefix string plus
// enough structure to tell what it certifies.
type Identifier struct {
	Kind Kind
	// Raw is the prefix string as it would appear on the wire: for Basic,
	// the base64url encoding of the public key; for SelfAddressing, the
	// textual form of the inception event's digest.
	Raw string
	// Digest is populated for SelfAddressing identifiers.
	Digest digest.Digest
	// PublicKey is populated for Basic identifiers.
	PublicKey []byte
}

func (i Identifier) String() string { return i.Raw }
func (i Identifier) IsZero() bool   { return i.Raw == "" }

// NewBasic builds a non-rotatable identifier whose prefix is the public key
// itself.
func NewBasic(pub []byte) Identifier {
	return Identifier{
		Kind:      Basic,
		Raw:       base64.RawURLEncoding.EncodeToString(pub),
		PublicKey: append([]byte(nil), pub...),
	}
}

// NewSelfAddressing builds a rotatable identifier whose prefix is the
// inception event's own digest (the "dummy prefix rule" of §6.1: the caller
// computes d over the event bytes with the d-field zero-filled, then we
// bind that digest here).
func NewSelfAddressing(d digest.Digest) Identifier {
	return Identifier{
		Kind:   SelfAddressing,
		Raw:    d.Qb64(),
		Digest: d,
	}
}

// Parse recognizes a previously-rendered Raw prefix. Because Raw encodes no
// kind marker of its own in this module's compact textual form, Parse
// requires the caller to supply the expected kind (the wire-level CESR code
// table carries the marker in production; see cesr package).
func Parse(kind Kind, raw string) (Identifier, error) {
	if raw == "" {
		return Identifier{}, ErrEmptyPrefix
	}
	switch kind {
	case Basic:
		pub, err := base64.RawURLEncoding.DecodeString(raw)
		if err != nil {
			return Identifier{}, fmt.Errorf("identifier: decoding basic prefix: %w", err)
		}
		return Identifier{Kind: Basic, Raw: raw, PublicKey: pub}, nil
	case SelfAddressing:
		return Identifier{Kind: SelfAddressing, Raw: raw}, nil
	case SelfSigning:
		return Identifier{}, ErrReserved
	default:
		return Identifier{}, fmt.Errorf("identifier: unknown kind %d", kind)
	}
}

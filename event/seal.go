package event

import "github.com/forestrie/go-keri/digest"

// SealKind distinguishes the seal variants referenced by spec.md §3.7.
type SealKind uint8

const (
	SealDigest SealKind = iota
	SealEvent
	SealRegistry
	SealSource
)

// Seal is a tagged union of the four seal shapes an `ixn` (or establishment
// event) may anchor in its `a` field. Exactly one of the type-specific
// fields is meaningful, selected by Kind.
type Seal struct {
	Kind SealKind

	// SealDigest: a bare content commitment.
	Digest digest.Digest

	// SealEvent / EventSeal: points to an accepted event in any KEL.
	Prefix      string
	SN          uint64
	EventDigest digest.Digest

	// SealRegistry: a TEL registry-anchor seal; reuses Prefix (registry
	// identifier), SN and EventDigest (TEL event sn/digest).

	// SealSource / SourceSeal: compact seal used when the identifier is
	// implied by context (delegator anchor, TEL anchor onto its KEL).
	// Reuses SN and EventDigest; Prefix is empty.
}

// NewEventSeal builds a Seal{Kind: SealEvent} — spec.md §3.7 EventSeal.
func NewEventSeal(prefix string, sn uint64, d digest.Digest) Seal {
	return Seal{Kind: SealEvent, Prefix: prefix, SN: sn, EventDigest: d}
}

// NewSourceSeal builds a Seal{Kind: SealSource} — spec.md §3.7 SourceSeal.
func NewSourceSeal(sn uint64, d digest.Digest) Seal {
	return Seal{Kind: SealSource, SN: sn, EventDigest: d}
}

// NewDigestSeal builds a bare digest commitment seal.
func NewDigestSeal(d digest.Digest) Seal {
	return Seal{Kind: SealDigest, Digest: d}
}

// NewRegistryAnchorSeal anchors a TEL registry event inside a KEL ixn.
func NewRegistryAnchorSeal(registryPrefix string, sn uint64, d digest.Digest) Seal {
	return Seal{Kind: SealRegistry, Prefix: registryPrefix, SN: sn, EventDigest: d}
}

// Matches reports whether this Seal (expected to be SealEvent) identifies
// the given accepted event, used by the missing-delegation escrow's
// two-sided index match (spec.md §4.4) and by the TEL anchor check
// (spec.md §4.9).
func (s Seal) Matches(prefix string, sn uint64, d digest.Digest) bool {
	if s.Kind != SealEvent {
		return false
	}
	return s.Prefix == prefix && s.SN == sn && s.EventDigest.Equal(d)
}

// Package cesr implements the typed-count framing contract of spec.md
// §6.1: a count-code header in front of each group (the message
// body, and each attachment group), over a CBOR payload body. It implements
// a practical subset of CESR's code table sufficient for this module's own
// digests, signatures and attachment groups — not the full binary code
// table (spec.md Non-goals).
package cesr

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	commoncbor "github.com/datatrails/go-datatrails-common/cbor"

	"github.com/forestrie/go-keri/digest"
	"github.com/forestrie/go-keri/event"
)

// Code is a one-character count-code selector tag, CESR's "first char of a
// quadlet" convention cut down to the codes this module needs.
type Code byte

const (
	CodeMessage     Code = '-' // message body group
	CodeAttachment  Code = '-' // attachment group (CESR reuses '-' for count groups; disambiguated by Kind below)
	CodeIndexedSig  Code = 'A'
	CodeNonTransRct Code = 'B'
	CodeTransRct    Code = 'C'
	CodeSealSource  Code = 'D'
)

// GroupKind distinguishes the attachment groups a stream may carry after the
// message body, spec.md §3.3/§4.5/§6.1.
type GroupKind int

const (
	GroupIndexedSignatures GroupKind = iota
	GroupNonTransferableReceipts
	GroupTransferableReceiptQuadruple
	GroupSourceSeals
)

func (k GroupKind) code() Code {
	switch k {
	case GroupIndexedSignatures:
		return CodeIndexedSig
	case GroupNonTransferableReceipts:
		return CodeNonTransRct
	case GroupTransferableReceiptQuadruple:
		return CodeTransRct
	case GroupSourceSeals:
		return CodeSealSource
	default:
		return 0
	}
}

// Group is one count-coded attachment group: a code, a count (number of
// elements, not bytes — CESR counts quadlets/elements depending on code
// family; this module's practical subset always counts elements) and the
// raw element bytes already serialized by the caller (CBOR-encoded, per
// spec.md §6.1's "CBOR as payload body" choice).
type Group struct {
	Kind     GroupKind
	Elements [][]byte
}

var ErrMalformedFrame = errors.New("cesr: malformed count-coded frame")

// header renders "-<code><count>#" — a minimal variable-width count-code
// header: code tag, decimal count, and a '#' terminator marking the
// start of the element stream. This is a practical subset of the real CESR
// count-code table (which base64-encodes the count into fixed-width
// quadlets); spec.md's Non-goals explicitly excuses the full binary table.
func header(code Code, count int) string {
	return fmt.Sprintf("-%c%d#", code, count)
}

func parseHeader(s string) (Code, int, int, error) {
	if len(s) < 2 || s[0] != '-' {
		return 0, 0, 0, ErrMalformedFrame
	}
	code := Code(s[1])
	end := strings.IndexByte(s[2:], '#')
	if end < 0 {
		return 0, 0, 0, ErrMalformedFrame
	}
	end += 2
	count, err := strconv.Atoi(s[2:end])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: bad count: %v", ErrMalformedFrame, err)
	}
	return code, count, end + 1, nil
}

// WriteGroup frames one attachment group: header plus each element,
// base64url-encoded and newline-delimited so the frame is self-describing
// text (CESR streams are themselves textual/base64 over the wire).
func WriteGroup(g Group) []byte {
	var b strings.Builder
	b.WriteString(header(g.Kind.code(), len(g.Elements)))
	for _, el := range g.Elements {
		b.WriteString(base64.RawURLEncoding.EncodeToString(el))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// ReadGroup parses one framed attachment group starting at the beginning of
// data, returning the group and the number of bytes consumed.
func ReadGroup(kind GroupKind, data []byte) (Group, int, error) {
	s := string(data)
	code, count, consumed, err := parseHeader(s)
	if err != nil {
		return Group{}, 0, err
	}
	if code != kind.code() {
		return Group{}, 0, fmt.Errorf("%w: expected code %c, got %c", ErrMalformedFrame, kind.code(), code)
	}
	rest := s[consumed:]
	g := Group{Kind: kind}
	for i := 0; i < count; i++ {
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return Group{}, 0, fmt.Errorf("%w: truncated element %d of %d", ErrMalformedFrame, i, count)
		}
		el, err := base64.RawURLEncoding.DecodeString(rest[:nl])
		if err != nil {
			return Group{}, 0, fmt.Errorf("%w: element %d: %v", ErrMalformedFrame, i, err)
		}
		g.Elements = append(g.Elements, el)
		consumed += nl + 1
		rest = rest[nl+1:]
	}
	return g, consumed, nil
}

// Message is a fully framed KERI wire message: the CBOR-serialized event
// body plus zero or more attachment groups, spec.md §6.1's message shape.
type Message struct {
	Body        []byte
	Attachments []Group
}

// Marshal concatenates the body (itself length-prefixed so a reader can
// split body from attachments without parsing CBOR first) and every
// attachment group in order.
func Marshal(m Message) []byte {
	var b strings.Builder
	b.WriteString(header(CodeMessage, len(m.Body)))
	b.Write(m.Body)
	for _, g := range m.Attachments {
		b.Write(WriteGroup(g))
	}
	return []byte(b.String())
}

// Unmarshal splits a framed stream back into its message body and ordered
// attachment groups. kinds gives the expected group order, matching the
// writer's Attachments order — CESR streams are not self-describing past
// the code byte alone for groups this module defines.
func Unmarshal(data []byte, kinds []GroupKind) (Message, error) {
	s := string(data)
	code, count, consumed, err := parseHeader(s)
	if err != nil {
		return Message{}, err
	}
	if code != CodeMessage {
		return Message{}, fmt.Errorf("%w: expected message header, got code %c", ErrMalformedFrame, code)
	}
	if consumed+count > len(data) {
		return Message{}, fmt.Errorf("%w: body length exceeds frame", ErrMalformedFrame)
	}
	m := Message{Body: data[consumed : consumed+count]}
	rest := data[consumed+count:]
	for _, kind := range kinds {
		if len(rest) == 0 {
			break
		}
		g, n, err := ReadGroup(kind, rest)
		if err != nil {
			return Message{}, err
		}
		m.Attachments = append(m.Attachments, g)
		rest = rest[n:]
	}
	return m, nil
}

// IndexedSignatureGroup frames a SignedEvent's indexed signatures, the
// attachment group that always follows an icp/rot/ixn/dip/drt body. Each
// element carries the SigIndex (kind, current, prior) ahead of the raw
// signature bytes so a receiver can reconstruct the exact IndexedSignature
// and run the threshold check of spec.md §4.2 step 4 — the signature alone
// is not enough, since a receiver must know which key slot it attests to.
func IndexedSignatureGroup(sigs []event.IndexedSignature) Group {
	g := Group{Kind: GroupIndexedSignatures}
	for _, s := range sigs {
		g.Elements = append(g.Elements, encodeIndexedSignature(s))
	}
	return g
}

// ParseIndexedSignatures reverses IndexedSignatureGroup.
func ParseIndexedSignatures(g Group) ([]event.IndexedSignature, error) {
	if g.Kind != GroupIndexedSignatures {
		return nil, fmt.Errorf("%w: expected indexed-signature group, got kind %d", ErrMalformedFrame, g.Kind)
	}
	out := make([]event.IndexedSignature, 0, len(g.Elements))
	for _, el := range g.Elements {
		s, err := decodeIndexedSignature(el)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// sigIndexHeaderLen is the fixed-width kind+current+prior header this
// module's practical subset prepends to each raw signature, in place of
// CESR's real per-code index encoding.
const sigIndexHeaderLen = 5

func encodeIndexedSignature(s event.IndexedSignature) []byte {
	el := make([]byte, sigIndexHeaderLen+len(s.Sig))
	el[0] = byte(s.Index.Kind)
	binary.BigEndian.PutUint16(el[1:3], s.Index.Current)
	binary.BigEndian.PutUint16(el[3:5], s.Index.Prior)
	copy(el[sigIndexHeaderLen:], s.Sig)
	return el
}

func decodeIndexedSignature(el []byte) (event.IndexedSignature, error) {
	if len(el) < sigIndexHeaderLen {
		return event.IndexedSignature{}, fmt.Errorf("%w: truncated indexed-signature element", ErrMalformedFrame)
	}
	sig := make([]byte, len(el)-sigIndexHeaderLen)
	copy(sig, el[sigIndexHeaderLen:])
	return event.IndexedSignature{
		Index: event.SigIndex{
			Kind:    event.SigIndexKind(el[0]),
			Current: binary.BigEndian.Uint16(el[1:3]),
			Prior:   binary.BigEndian.Uint16(el[3:5]),
		},
		Sig: sig,
	}, nil
}

// EncodeSignedEvent frames se as a complete wire message: the CBOR event
// body plus its indexed-signature attachment group, closing the controller
// emit path of spec.md §2 (Controller → … → Communication → witness
// mailbox) so a receiving witness has the signatures it needs to run
// threshold verification rather than a bare unsigned body.
func EncodeSignedEvent(codec commoncbor.CBORCodec, se event.SignedEvent) ([]byte, error) {
	body, err := event.Bytes(codec, se.Event)
	if err != nil {
		return nil, err
	}
	return Marshal(Message{
		Body:        body,
		Attachments: []Group{IndexedSignatureGroup(se.Signatures)},
	}), nil
}

// DecodeSignedEvent reverses EncodeSignedEvent: the inbound half a witness's
// transport layer runs on an arriving frame before handing the result to
// processor.Processor.
func DecodeSignedEvent(codec commoncbor.CBORCodec, data []byte) (event.SignedEvent, error) {
	m, err := Unmarshal(data, []GroupKind{GroupIndexedSignatures})
	if err != nil {
		return event.SignedEvent{}, err
	}
	e, err := event.Parse(codec, m.Body)
	if err != nil {
		return event.SignedEvent{}, err
	}
	var sigs []event.IndexedSignature
	if len(m.Attachments) > 0 {
		sigs, err = ParseIndexedSignatures(m.Attachments[0])
		if err != nil {
			return event.SignedEvent{}, err
		}
	}
	return event.SignedEvent{Event: e, Signatures: sigs}, nil
}

// SourceSealGroup frames the source-seal attachment a TEL event's anchoring
// KEL ixn carries alongside the registry seal, spec.md §3.7/§4.9.
func SourceSealGroup(seals []event.Seal) Group {
	g := Group{Kind: GroupSourceSeals}
	for _, s := range seals {
		g.Elements = append(g.Elements, []byte(fmt.Sprintf("%d|%s", s.SN, s.EventDigest.Qb64())))
	}
	return g
}

// Qb64 renders a digest in the CESR-style code-prefixed base64url text form
// (distinct from digest.Digest.Qb64, which is explicitly a non-CESR debug
// form): a one-character code selector followed by the base64url of the raw
// digest bytes.
func Qb64(d digest.Digest) string {
	return fmt.Sprintf("%c%s", digestCodeChar(d.Code), base64.RawURLEncoding.EncodeToString(d.Bytes))
}

func digestCodeChar(c digest.Code) byte {
	switch c {
	case digest.Blake3_256:
		return 'E'
	case digest.Blake2b256:
		return 'F'
	case digest.Blake2b512:
		return 'G'
	case digest.Blake2s256:
		return 'H'
	case digest.SHA3_256:
		return 'I'
	case digest.SHA3_512:
		return 'J'
	case digest.SHA2_256:
		return 'K'
	case digest.SHA2_512:
		return 'L'
	default:
		return '?'
	}
}

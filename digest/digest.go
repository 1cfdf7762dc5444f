// Package digest implements the hash-function-agile content digest used to
// bind event bytes to the `d` self-addressing field and to every other
// digest-typed reference in a KEL (prior-event digest, next-key commitment,
// event seals).
package digest

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// Code identifies the hash function a Digest was produced with.
type Code uint8

const (
	Blake3_256 Code = iota
	Blake2b256
	Blake2b512
	Blake2s256
	SHA3_256
	SHA3_512
	SHA2_256
	SHA2_512
)

var ErrUnknownCode = errors.New("digest: unknown hash function code")

// Size returns the byte length of digests produced under code.
func (c Code) Size() int {
	switch c {
	case Blake3_256, Blake2b256, Blake2s256, SHA3_256, SHA2_256:
		return 32
	case Blake2b512, SHA3_512, SHA2_512:
		return 64
	default:
		return 0
	}
}

func (c Code) String() string {
	switch c {
	case Blake3_256:
		return "blake3-256"
	case Blake2b256:
		return "blake2b-256"
	case Blake2b512:
		return "blake2b-512"
	case Blake2s256:
		return "blake2s-256"
	case SHA3_256:
		return "sha3-256"
	case SHA3_512:
		return "sha3-512"
	case SHA2_256:
		return "sha2-256"
	case SHA2_512:
		return "sha2-512"
	default:
		return "unknown"
	}
}

// Sum hashes data under code.
func Sum(code Code, data []byte) ([]byte, error) {
	switch code {
	case Blake3_256:
		sum := blake3.Sum256(data)
		return sum[:], nil
	case Blake2b256:
		sum := blake2b.Sum256(data)
		return sum[:], nil
	case Blake2b512:
		sum := blake2b.Sum512(data)
		return sum[:], nil
	case Blake2s256:
		sum := blake2s.Sum256(data)
		return sum[:], nil
	case SHA3_256:
		sum := sha3.Sum256(data)
		return sum[:], nil
	case SHA3_512:
		sum := sha3.Sum512(data)
		return sum[:], nil
	case SHA2_256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case SHA2_512:
		sum := sha512.Sum512(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCode, code)
	}
}

// Digest is a code-tagged content hash.
type Digest struct {
	Code  Code
	Bytes []byte
}

// New computes the digest of data under code.
func New(code Code, data []byte) (Digest, error) {
	b, err := Sum(code, data)
	if err != nil {
		return Digest{}, err
	}
	return Digest{Code: code, Bytes: b}, nil
}

// Equal compares two digests honoring code agility: if the codes match, bytes
// must match; otherwise Equal reports false and the caller must check each
// digest against known source bytes with VerifySource.
func (d Digest) Equal(other Digest) bool {
	if len(d.Bytes) == 0 || len(other.Bytes) == 0 {
		return false
	}
	if d.Code == other.Code {
		return constantTimeEqual(d.Bytes, other.Bytes)
	}
	// Codes differ: recompute is the caller's job since we don't retain the
	// source bytes here. Treat as unequal rather than silently wrong.
	return false
}

// VerifySource reports whether data hashes, under d's code, to d's bytes.
func (d Digest) VerifySource(data []byte) (bool, error) {
	sum, err := Sum(d.Code, data)
	if err != nil {
		return false, err
	}
	return constantTimeEqual(sum, d.Bytes), nil
}

// VerifySourceEitherCode recomputes data's digest under stored's own code and
// compares it with stored's bytes, so a digest of any supported code can be
// checked against the source bytes. It is equivalent to stored.VerifySource.
func VerifySourceEitherCode(stored Digest, data []byte) (bool, error) {
	ok, err := stored.VerifySource(data)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (d Digest) IsZero() bool {
	return len(d.Bytes) == 0
}

func (d Digest) String() string {
	return fmt.Sprintf("%s:%x", d.Code, d.Bytes)
}

// Qb64 gives a compact code-prefixed textual form, used as map keys and in
// wire-adjacent debugging; it is not a CESR-exact encoding (see cesr package
// for that), just a stable identifier string.
func (d Digest) Qb64() string {
	return fmt.Sprintf("%d#%x", d.Code, d.Bytes)
}

// ParseQb64 reverses Qb64, recovering a Digest from its code-prefixed
// textual form — the inbound half of the wire codec a receiver needs once
// it has deserialized a frame someone else's Qb64 went out on.
func ParseQb64(s string) (Digest, error) {
	if s == "" {
		return Digest{}, nil
	}
	parts := strings.SplitN(s, "#", 2)
	if len(parts) != 2 {
		return Digest{}, fmt.Errorf("digest: malformed qb64 %q", s)
	}
	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return Digest{}, fmt.Errorf("digest: malformed qb64 code %q: %w", parts[0], err)
	}
	b, err := hex.DecodeString(parts[1])
	if err != nil {
		return Digest{}, fmt.Errorf("digest: malformed qb64 bytes: %w", err)
	}
	return Digest{Code: Code(code), Bytes: b}, nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

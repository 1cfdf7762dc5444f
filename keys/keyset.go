package keys

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/forestrie/go-keri/digest"
)

// ErrVerify is returned when a signature fails cryptographic verification.
var ErrVerify = errors.New("keys: signature verification failed")

// PublicKeySet is the ordered set of public keys in effect for an
// identifier at some sequence number, i.e. the keys declared by the nearest
// prior (or own, for establishment events) establishment event.
type PublicKeySet struct {
	Keys      []ed25519.PublicKey
	Threshold Threshold
}

// Verify checks that the key at position index in ks verifies sig over msg,
// returning nil on success and an error for an out-of-range index or a bad
// signature.
func (ks PublicKeySet) Verify(index int, msg, sig []byte) error {
	if index < 0 || index >= len(ks.Keys) {
		return fmt.Errorf("keys: signer index %d out of range [0,%d)", index, len(ks.Keys))
	}
	if !ed25519.Verify(ks.Keys[index], msg, sig) {
		return fmt.Errorf("%w: signer index %d", ErrVerify, index)
	}
	return nil
}

// NextKeyCommitment is the next-key-digest set plus next threshold recorded
// by an establishment event, committing to the successor key set.
type NextKeyCommitment struct {
	Digests   []digest.Digest
	Threshold Threshold
}

// VerifyRotation checks that each of newKeys hashes, under code, to one of
// the commitment's digests, and that the satisfied indices meet the
// commitment's threshold. It returns the indices into commitment.Digests
// that were matched, in the order newKeys were given.
func (c NextKeyCommitment) VerifyRotation(code digest.Code, newKeys []ed25519.PublicKey) ([]int, error) {
	matched := make([]int, 0, len(newKeys))
	used := make(map[int]bool, len(c.Digests))
	for _, pk := range newKeys {
		sum, err := digest.Sum(code, pk)
		if err != nil {
			return nil, err
		}
		idx := -1
		for i, d := range c.Digests {
			if used[i] {
				continue
			}
			if d.Code == code && constantTimeEqual(d.Bytes, sum) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("keys: public key does not match any next-key commitment digest")
		}
		used[idx] = true
		matched = append(matched, idx)
	}
	ok, err := c.Threshold.Satisfied(matched)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("keys: rotation keys do not satisfy prior next-threshold")
	}
	return matched, nil
}

// CommitTo computes the next-key-digest list for a proposed successor key
// set, used by a Controller when building a rotation/inception event.
func CommitTo(code digest.Code, pubkeys []ed25519.PublicKey) ([]digest.Digest, error) {
	out := make([]digest.Digest, len(pubkeys))
	for i, pk := range pubkeys {
		d, err := digest.New(code, pk)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
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

// Package keritesting provides deterministic test fixtures shared across
// package tests: key material, a CBOR codec, and named loggers, mirroring
// forestrie-go-merklelog/mmrtesting's role for the
// teacher's own test suite.
package keritesting

import (
	"crypto/ed25519"
	"fmt"

	commoncbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/fxamacker/cbor/v2"
	"github.com/forestrie/go-keri/digest"
	"github.com/forestrie/go-keri/keys"
)

// NewCodec builds the deterministic CBOR codec every package test signs and
// digests against, mirroring massifs.NewRootSignerCodec's construction.
func NewCodec() (commoncbor.CBORCodec, error) {
	encOptions := commoncbor.NewDeterministicEncOpts()
	decOptions := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		IntDec:      cbor.IntDecConvertNone,
		TagsMd:      cbor.TagsForbidden,
	}
	return commoncbor.NewCBORCodec(encOptions, decOptions)
}

// KeyPair is one deterministic ed25519 key pair generated from a fixed seed,
// so tests are reproducible without a random source.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Seed deterministically derives one ed25519 key pair from label, by
// hashing label into a 32-byte seed with the module's own digest package
// (dogfooding rather than reaching for a second hash primitive).
func Seed(label string) KeyPair {
	seed, err := digest.Sum(digest.Blake3_256, []byte(label))
	if err != nil {
		panic(fmt.Sprintf("keritesting: seeding %q: %v", label, err))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}
}

// KeySet builds n deterministic key pairs labelled "<label>-<i>".
func KeySet(label string, n int) []KeyPair {
	out := make([]KeyPair, n)
	for i := range out {
		out[i] = Seed(fmt.Sprintf("%s-%d", label, i))
	}
	return out
}

func PublicKeys(pairs []KeyPair) []ed25519.PublicKey {
	out := make([]ed25519.PublicKey, len(pairs))
	for i, p := range pairs {
		out[i] = p.Public
	}
	return out
}

// Signer adapts a KeyPair to controller.Signer's func(msg []byte) []byte
// shape.
func (kp KeyPair) Signer() func(msg []byte) []byte {
	return func(msg []byte) []byte { return ed25519.Sign(kp.Private, msg) }
}

// SimpleThreshold is a small convenience wrapper for the common single-
// clause signing threshold most fixtures want.
func SimpleThreshold(k uint64) keys.Threshold { return keys.NewSimple(k) }

// HashCode is the default digest code fixtures derive events under.
const HashCode = digest.Blake3_256

package eventlog

import (
	"crypto/sha256"
	"errors"
	"sync"

	"github.com/datatrails/go-datatrails-merklelog/mmr"
	"github.com/forestrie/go-keri/digest"
)

// ErrNodeRange is returned by the accumulator's node store when asked for a
// position beyond what has been appended.
var ErrNodeRange = errors.New("eventlog: accumulator node index out of range")

// Accumulator is a per-identifier Merkle Mountain Range over accepted event
// digests, wired from github.com/datatrails/go-datatrails-merklelog/mmr
// (spec.md §1c [NEW]). Root returns its bagged-peaks root; nothing in this
// module copies that root into IdentifierState.LogRoot.
type Accumulator struct {
	mu    sync.Mutex
	nodes [][]byte // append-only node store backing mmr.NodeAppender
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// nodeAppender adapts Accumulator to mmr.NodeAppender.
type nodeAppender struct{ a *Accumulator }

func (n nodeAppender) Get(i uint64) ([]byte, error) {
	if i >= uint64(len(n.a.nodes)) {
		return nil, ErrNodeRange
	}
	return n.a.nodes[i], nil
}

func (n nodeAppender) Append(value []byte) (uint64, error) {
	n.a.nodes = append(n.a.nodes, value)
	return uint64(len(n.a.nodes) - 1), nil
}

// Add appends d's raw bytes as the next MMR leaf, back-filling interior
// nodes per mmr.AddHashedLeaf.
func (a *Accumulator) Add(d digest.Digest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	hasher := sha256.New()
	_, err := mmr.AddHashedLeaf(nodeAppender{a}, hasher, d.Bytes)
	return err
}

// Root returns the bagged-peaks root of the accumulator's current state, or
// a zero digest if no leaves have been added yet.
func (a *Accumulator) Root() (digest.Digest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	size := uint64(len(a.nodes))
	if size == 0 {
		return digest.Digest{}, nil
	}
	hasher := sha256.New()
	root, err := mmr.GetRoot(size, nodeAppender{a}, hasher)
	if err != nil {
		return digest.Digest{}, err
	}
	return digest.Digest{Code: digest.SHA2_256, Bytes: root}, nil
}

// Size returns the current MMR size (node count, not leaf count).
func (a *Accumulator) Size() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint64(len(a.nodes))
}

// Package keys implements key-set and signing-threshold types shared by KEL
// and TEL establishment events (spec.md §3.6).
package keys

import (
	"errors"
	"fmt"
	"math/big"
)

// ThresholdKind distinguishes the two Threshold shapes.
type ThresholdKind uint8

const (
	SimpleThreshold ThresholdKind = iota
	WeightedThreshold
)

// Clause is one weighted-threshold clause: an ordered list of fractions,
// signatures referenced by index within the clause's index range.
type Clause []*big.Rat

// Threshold is either Simple(k) or Weighted(clauses...), per spec.md §3.6.
type Threshold struct {
	Kind    ThresholdKind
	Simple  uint64
	Clauses []Clause
}

var (
	ErrNoClauses      = errors.New("threshold: weighted threshold has no clauses")
	ErrIndexOutOfBand = errors.New("threshold: signature index outside all clause ranges")
)

// NewSimple builds a Simple(k) threshold: at least k distinct signatures
// required.
func NewSimple(k uint64) Threshold {
	return Threshold{Kind: SimpleThreshold, Simple: k}
}

// NewWeighted builds a Weighted threshold from one or more clauses.
func NewWeighted(clauses ...Clause) (Threshold, error) {
	if len(clauses) == 0 {
		return Threshold{}, ErrNoClauses
	}
	return Threshold{Kind: WeightedThreshold, Clauses: clauses}, nil
}

// clauseBounds returns the [start, end) signer-index range each clause owns,
// in declaration order, partitioning the full index space by clause.
func (t Threshold) clauseBounds() [][2]int {
	bounds := make([][2]int, len(t.Clauses))
	start := 0
	for i, c := range t.Clauses {
		bounds[i] = [2]int{start, start + len(c)}
		start += len(c)
	}
	return bounds
}

// Satisfied reports whether the signer indices in present meet the
// threshold. For Simple, it is a plain cardinality check. For Weighted, each
// clause is independently satisfied: the fractions at the present indices
// falling within that clause's range must sum to >= 1.
func (t Threshold) Satisfied(present []int) (bool, error) {
	switch t.Kind {
	case SimpleThreshold:
		distinct := map[int]struct{}{}
		for _, idx := range present {
			distinct[idx] = struct{}{}
		}
		return uint64(len(distinct)) >= t.Simple, nil
	case WeightedThreshold:
		bounds := t.clauseBounds()
		byClause := make([][]int, len(t.Clauses))
		for _, idx := range present {
			placed := false
			for ci, b := range bounds {
				if idx >= b[0] && idx < b[1] {
					byClause[ci] = append(byClause[ci], idx)
					placed = true
					break
				}
			}
			if !placed {
				return false, fmt.Errorf("%w: index %d", ErrIndexOutOfBand, idx)
			}
		}
		for ci, c := range t.Clauses {
			sum := new(big.Rat)
			seen := map[int]struct{}{}
			for _, idx := range byClause[ci] {
				if _, dup := seen[idx]; dup {
					continue
				}
				seen[idx] = struct{}{}
				sum.Add(sum, c[idx-bounds[ci][0]])
			}
			if sum.Cmp(big.NewRat(1, 1)) < 0 {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("threshold: unknown kind %d", t.Kind)
	}
}

// Size is the number of signer slots the threshold is defined over (needed
// to validate a next-key-digest commitment has compatible shape).
func (t Threshold) Size() int {
	switch t.Kind {
	case SimpleThreshold:
		return -1 // simple thresholds don't constrain key-set size
	case WeightedThreshold:
		n := 0
		for _, c := range t.Clauses {
			n += len(c)
		}
		return n
	default:
		return -1
	}
}

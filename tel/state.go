package tel

import (
	"github.com/forestrie/go-keri/digest"
)

// RegistryState is the derived state of a vcp/vrt-established registry.
type RegistryState struct {
	Prefix          string
	SN              uint64
	LastEventDig    digest.Digest
	Backers         []string
	BackerThreshold uint64
}

// CredentialPhase is the small FSM of spec.md §3.8: NotIssued -> Issued ->
// Revoked.
type CredentialPhase int

const (
	NotIssued CredentialPhase = iota
	Issued
	Revoked
)

func (p CredentialPhase) String() string {
	switch p {
	case NotIssued:
		return "NotIssued"
	case Issued:
		return "Issued"
	case Revoked:
		return "Revoked"
	default:
		return "Unknown"
	}
}

// CredentialState is the derived per-credential phase within a registry.
type CredentialState struct {
	SAID         string
	Phase        CredentialPhase
	SN           uint64
	LastEventDig digest.Digest
}

// State is the full derived state of one registry: its own configuration
// plus every credential it has ever touched.
type State struct {
	Registry    RegistryState
	Credentials map[string]CredentialState
}

// EventSource supplies the ordered accepted TEL events a StateComputer
// folds; tel.Store implements it directly.
type EventSource interface {
	Last(registryPrefix string) (TELEvent, bool, error)
	Range(registryPrefix string, fromSN uint64, limit int) ([]TELEvent, error)
}

// Compute folds every accepted event for registryPrefix, in sn order, into
// a State.
func Compute(src EventSource, registryPrefix string) (State, bool, error) {
	var st State
	var have bool
	events, err := src.Range(registryPrefix, 0, 0)
	if err != nil {
		return State{}, false, err
	}
	for _, te := range events {
		st, have = Apply(st, have, te)
	}
	return st, have, nil
}

// Apply folds one additional accepted TEL event onto prior. It assumes te
// has already passed Validator and is applied in sn order.
func Apply(prior State, priorExists bool, te TELEvent) (State, bool) {
	st := prior
	if st.Credentials == nil {
		st.Credentials = map[string]CredentialState{}
	}
	switch te.T {
	case Vcp:
		st.Registry = RegistryState{
			Prefix: te.I, SN: te.S, LastEventDig: te.D,
			Backers: te.Backers, BackerThreshold: te.BackerThreshold,
		}
	case Vrt:
		st.Registry = RegistryState{
			Prefix: te.I, SN: te.S, LastEventDig: te.D,
			Backers:         applyBackerDiff(prior.Registry.Backers, te.BackerAdd, te.BackerCut),
			BackerThreshold: te.BackerThreshold,
		}
	case Iss, Bis:
		st.Credentials[te.CredentialSAID] = CredentialState{
			SAID: te.CredentialSAID, Phase: Issued, SN: te.S, LastEventDig: te.D,
		}
	case Rev, Brv:
		st.Credentials[te.CredentialSAID] = CredentialState{
			SAID: te.CredentialSAID, Phase: Revoked, SN: te.S, LastEventDig: te.D,
		}
	}
	return st, true
}

func applyBackerDiff(prior []string, add, cut []string) []string {
	cutSet := map[string]struct{}{}
	for _, b := range cut {
		cutSet[b] = struct{}{}
	}
	out := make([]string, 0, len(prior)+len(add))
	for _, b := range prior {
		if _, ok := cutSet[b]; ok {
			continue
		}
		out = append(out, b)
	}
	out = append(out, add...)
	return out
}

// CredentialOf looks up a single credential's state, reporting whether it
// has been touched at all.
func (s State) CredentialOf(said string) (CredentialState, bool) {
	cs, ok := s.Credentials[said]
	return cs, ok
}

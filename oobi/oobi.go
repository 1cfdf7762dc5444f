// Package oobi implements the OOBI and end-role persistence tables of
// spec.md §4.11/§6.3/§6.4: out-of-band-introduction location replies and
// end-role bindings, kept as their own small focused store rather than
// folded into eventlog.Store, matching the teacher's habit of one store
// type per concern.
package oobi

import (
	"sync"

	"github.com/forestrie/go-keri/query"
)

// Store implements the `oobis` (eid -> []SignedReply) and `end_roles`
// (cid -> []SignedReply) logical tables.
type Store struct {
	mu       sync.Mutex
	oobis    map[string][]query.Reply
	endRoles map[string][]query.Reply
}

func NewStore() *Store {
	return &Store{
		oobis:    map[string][]query.Reply{},
		endRoles: map[string][]query.Reply{},
	}
}

// PutLocation records a signed LocScheme reply for eid, replacing any prior
// reply from the same signer (BADA-style last-writer-wins per signer;
// location schemes don't carry an establishment sn to compare, so signer
// identity is the dedup key).
func (s *Store) PutLocation(eid string, r query.Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oobis[eid] = upsertBySigner(s.oobis[eid], r)
}

// Locations returns every known LocScheme reply for eid.
func (s *Store) Locations(eid string) []query.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]query.Reply(nil), s.oobis[eid]...)
}

// PutEndRole records a signed EndRole reply for cid.
func (s *Store) PutEndRole(cid string, r query.Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endRoles[cid] = upsertBySigner(s.endRoles[cid], r)
}

// EndRoles returns every known end-role binding for cid, optionally
// filtered to role (empty role returns all).
func (s *Store) EndRoles(cid string, role query.EndRoleKind) []query.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.endRoles[cid]
	if role == "" {
		return append([]query.Reply(nil), all...)
	}
	var out []query.Reply
	for _, r := range all {
		if r.EndRole.Role == role {
			out = append(out, r)
		}
	}
	return out
}

func upsertBySigner(existing []query.Reply, r query.Reply) []query.Reply {
	for i, e := range existing {
		if e.Signer == r.Signer {
			existing[i] = r
			return existing
		}
	}
	return append(existing, r)
}

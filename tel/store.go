package tel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/forestrie/go-keri/digest"
)

// ErrIntegrity mirrors eventlog.ErrIntegrity for the TEL table set.
var ErrIntegrity = errors.New("tel: integrity violation: indexed digest has no backing event")

// Store is the abstract TEL log contract, parallel to eventlog.Store.
type Store interface {
	AppendEvent(te TELEvent) (added bool, err error)
	GetEvent(d digest.Digest) (TELEvent, bool, error)
	GetEventAt(registryPrefix string, sn uint64) (TELEvent, bool, error)
	Range(registryPrefix string, fromSN uint64, limit int) ([]TELEvent, error)
	Last(registryPrefix string) (TELEvent, bool, error)
}

// MemStore is the default in-memory TEL Store, maps guarded by one mutex,
// the same shape as eventlog.MemStore.
type MemStore struct {
	mu sync.RWMutex

	byDigest map[string]TELEvent
	index    map[string]map[uint64]string // registryPrefix -> sn -> digest.Qb64()

	onAppend []func(registryPrefix string, te TELEvent)
}

func NewMemStore() *MemStore {
	return &MemStore{
		byDigest: map[string]TELEvent{},
		index:    map[string]map[uint64]string{},
	}
}

func (s *MemStore) OnAppend(fn func(registryPrefix string, te TELEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAppend = append(s.onAppend, fn)
}

func (s *MemStore) AppendEvent(te TELEvent) (bool, error) {
	s.mu.Lock()
	key := te.D.Qb64()
	if _, ok := s.byDigest[key]; ok {
		s.mu.Unlock()
		return false, nil
	}
	s.byDigest[key] = te
	idx, ok := s.index[te.I]
	if !ok {
		idx = map[uint64]string{}
		s.index[te.I] = idx
	}
	idx[te.S] = key
	callbacks := append([]func(string, TELEvent){}, s.onAppend...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(te.I, te)
	}
	return true, nil
}

func (s *MemStore) GetEvent(d digest.Digest) (TELEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	te, ok := s.byDigest[d.Qb64()]
	return te, ok, nil
}

func (s *MemStore) GetEventAt(registryPrefix string, sn uint64) (TELEvent, bool, error) {
	s.mu.RLock()
	idx, ok := s.index[registryPrefix]
	if !ok {
		s.mu.RUnlock()
		return TELEvent{}, false, nil
	}
	key, ok := idx[sn]
	s.mu.RUnlock()
	if !ok {
		return TELEvent{}, false, nil
	}
	s.mu.RLock()
	te, ok := s.byDigest[key]
	s.mu.RUnlock()
	if !ok {
		return TELEvent{}, false, fmt.Errorf("tel: GetEventAt: %w", ErrIntegrity)
	}
	return te, true, nil
}

func (s *MemStore) Range(registryPrefix string, fromSN uint64, limit int) ([]TELEvent, error) {
	s.mu.RLock()
	idx, ok := s.index[registryPrefix]
	if !ok {
		s.mu.RUnlock()
		return nil, nil
	}
	sns := make([]uint64, 0, len(idx))
	for sn := range idx {
		if sn >= fromSN {
			sns = append(sns, sn)
		}
	}
	s.mu.RUnlock()

	sort64(sns)
	if limit > 0 && len(sns) > limit {
		sns = sns[:limit]
	}
	out := make([]TELEvent, 0, len(sns))
	for _, sn := range sns {
		te, ok, err := s.GetEventAt(registryPrefix, sn)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("tel: Range: %w", ErrIntegrity)
		}
		out = append(out, te)
	}
	return out, nil
}

func (s *MemStore) Last(registryPrefix string) (TELEvent, bool, error) {
	s.mu.RLock()
	idx, ok := s.index[registryPrefix]
	if !ok || len(idx) == 0 {
		s.mu.RUnlock()
		return TELEvent{}, false, nil
	}
	var max uint64
	first := true
	for sn := range idx {
		if first || sn > max {
			max = sn
			first = false
		}
	}
	s.mu.RUnlock()
	return s.GetEventAt(registryPrefix, max)
}

func sort64(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

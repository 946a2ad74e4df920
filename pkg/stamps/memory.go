package stamps

import (
	"sync"

	"github.com/ritzau/build-state/pkg/fsstate"
)

type stampKey struct {
	file   string
	target string
}

// MemoryStore is an in-memory stamp store. It offers the same contract as
// SQLiteStore minus durability; used in tests and for runs where nothing
// should be persisted.
type MemoryStore struct {
	mu     sync.RWMutex
	stamps map[stampKey]int64
}

var _ fsstate.Stamps = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stamps: make(map[stampKey]int64)}
}

func (s *MemoryStore) GetStamp(file string, target fsstate.Target) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stamp, ok := s.stamps[stampKey{file, target.Key()}]
	return stamp, ok, nil
}

func (s *MemoryStore) SaveStamp(file string, target fsstate.Target, stamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamps[stampKey{file, target.Key()}] = stamp
	return nil
}

func (s *MemoryStore) RemoveStamp(file string, target fsstate.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stamps, stampKey{file, target.Key()})
	return nil
}

// TargetFiles lists the files tracked for target.
func (s *MemoryStore) TargetFiles(target fsstate.Target) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var files []string
	for k := range s.stamps {
		if k.target == target.Key() {
			files = append(files, k.file)
		}
	}
	return files, nil
}

// Len returns the number of recorded stamps.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stamps)
}

package fsstate

import (
	"sync"

	"github.com/google/uuid"
)

// BuildSession carries the round and chunk bookkeeping for one build
// invocation. It is passed explicitly to every round-aware BuildFSState
// call; there is no hidden side table keyed by a context object.
//
// Round rotation runs on the goroutine driving the chunk's build; the
// internal lock only protects the pointer fields against concurrent dirty
// marks from watcher goroutines.
type BuildSession struct {
	id string

	mu             sync.Mutex
	contextTargets map[Target]struct{}
	currentRound   *FilesDelta
	lastRound      *FilesDelta
}

// NewBuildSession creates a session with a fresh id and no active chunk.
func NewBuildSession() *BuildSession {
	return &BuildSession{id: uuid.NewString()}
}

// ID returns the session's unique id, used only for logging.
func (s *BuildSession) ID() string {
	return s.id
}

func (s *BuildSession) setContextTargets(targets []Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if targets == nil {
		s.contextTargets = nil
		return
	}
	set := make(map[Target]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}
	s.contextTargets = set
}

func (s *BuildSession) inContextTargets(t Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.contextTargets[t]
	return ok
}

// currentRoundDelta returns the active round's delta, or nil outside a
// round.
func (s *BuildSession) currentRoundDelta() *FilesDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRound
}

// lastRoundDelta returns the delta of the round that just ended, or nil.
func (s *BuildSession) lastRoundDelta() *FilesDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRound
}

// rotateRounds shifts the current round delta into the last-round slot and
// starts a fresh current delta.
func (s *BuildSession) rotateRounds() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRound = s.currentRound
	s.currentRound = NewFilesDelta()
}

func (s *BuildSession) clearRounds() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentRound = nil
	s.lastRound = nil
}

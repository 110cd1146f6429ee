package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/parcelops/popsync/pkg/types"
)

// MemoryStore implements Store in memory. It is used by tests and by the
// CLI's dry-run mode. FailWrites makes every mutating call return an error,
// which lets tests exercise the enqueue rollback path.
type MemoryStore struct {
	mu          sync.Mutex
	queue       []byte // serialized, to mirror the single-slot durable format
	session     *types.Session
	FailWrites  bool
	QueueWrites int // number of queue slot writes, observable by tests
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Corrupt replaces the persisted queue payload with unparseable data.
func (s *MemoryStore) Corrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = []byte("{not json")
}

func (s *MemoryStore) LoadQueue() ([]types.QueuedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions, err := decodeQueue(s.queue)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
	}
	return actions, nil
}

func (s *MemoryStore) AppendAction(action types.QueuedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return errors.New("write failed")
	}
	actions, err := decodeQueue(s.queue)
	if err != nil {
		actions = nil
	}
	actions = append(actions, action)
	return s.put(actions)
}

func (s *MemoryStore) ResolveActions(succeeded []string, failed map[string]string) ([]types.QueuedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return nil, errors.New("write failed")
	}
	actions, err := decodeQueue(s.queue)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
	}

	done := make(map[string]bool, len(succeeded))
	for _, id := range succeeded {
		done[id] = true
	}

	remaining := make([]types.QueuedAction, 0, len(actions))
	for _, a := range actions {
		if done[a.ID] {
			continue
		}
		if msg, ok := failed[a.ID]; ok {
			a.Retries++
			a.LastError = msg
		}
		remaining = append(remaining, a)
	}
	if err := s.put(remaining); err != nil {
		return nil, err
	}
	return remaining, nil
}

func (s *MemoryStore) ReplaceQueue(actions []types.QueuedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return errors.New("write failed")
	}
	return s.put(actions)
}

func (s *MemoryStore) SaveSession(session types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return errors.New("write failed")
	}
	s.session = &session
	return nil
}

func (s *MemoryStore) LoadSession() (types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return types.Session{}, ErrNoSession
	}
	return *s.session, nil
}

func (s *MemoryStore) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) put(actions []types.QueuedAction) error {
	if actions == nil {
		actions = []types.QueuedAction{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	s.queue = data
	s.QueueWrites++
	return nil
}

package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/parcelops/popsync/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketQueue   = []byte("queue")
	bucketSession = []byte("session")

	// Stable keys; persisted queues must survive app upgrades, so these
	// never change without a compatible reader.
	keyActions      = []byte("actions")
	keyAccessToken  = []byte("access_token")
	keyRefreshToken = []byte("refresh_token")
)

// BoltStore implements Store using BoltDB. The entire queue lives as one
// JSON array under a single key, so every queue mutation is one atomic
// read-modify-write transaction.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "popsync.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketQueue,
			bucketSession,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// LoadQueue reads the full persisted queue. A missing key yields an empty
// queue; an unparseable payload yields ErrCorruptQueue.
func (s *BoltStore) LoadQueue() ([]types.QueuedAction, error) {
	var actions []types.QueuedAction
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		data := b.Get(keyActions)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &actions); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptQueue, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// AppendAction appends one action to the persisted queue. The read, append,
// and write happen inside a single write transaction, so an enqueue racing a
// flush can never be clobbered.
func (s *BoltStore) AppendAction(action types.QueuedAction) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		actions, err := decodeQueue(b.Get(keyActions))
		if err != nil {
			// An unreadable queue is dropped rather than wedging new
			// enqueues behind it.
			actions = nil
		}
		actions = append(actions, action)
		return putQueue(b, actions)
	})
}

// ResolveActions applies the outcome of one flush pass: actions whose ID is
// in succeeded are removed, actions in failed get retries incremented and
// last_error set, and anything else (including actions appended after the
// flush read its snapshot) is preserved untouched. Returns the new queue.
func (s *BoltStore) ResolveActions(succeeded []string, failed map[string]string) ([]types.QueuedAction, error) {
	done := make(map[string]bool, len(succeeded))
	for _, id := range succeeded {
		done[id] = true
	}

	var remaining []types.QueuedAction
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		actions, err := decodeQueue(b.Get(keyActions))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptQueue, err)
		}

		remaining = make([]types.QueuedAction, 0, len(actions))
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
		return putQueue(b, remaining)
	})
	if err != nil {
		return nil, err
	}
	return remaining, nil
}

// ReplaceQueue overwrites the persisted queue wholesale. Normal operation
// goes through AppendAction and ResolveActions; this exists for tooling.
func (s *BoltStore) ReplaceQueue(actions []types.QueuedAction) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putQueue(tx.Bucket(bucketQueue), actions)
	})
}

// SaveSession stores the bearer credentials
func (s *BoltStore) SaveSession(session types.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if err := b.Put(keyAccessToken, []byte(session.AccessToken)); err != nil {
			return err
		}
		return b.Put(keyRefreshToken, []byte(session.RefreshToken))
	})
}

// LoadSession reads the stored credentials
func (s *BoltStore) LoadSession() (types.Session, error) {
	var session types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSession)
		access := b.Get(keyAccessToken)
		if access == nil {
			return ErrNoSession
		}
		session.AccessToken = string(access)
		if refresh := b.Get(keyRefreshToken); refresh != nil {
			session.RefreshToken = string(refresh)
		}
		return nil
	})
	return session, err
}

// ClearSession removes the stored credentials
func (s *BoltStore) ClearSession() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if err := b.Delete(keyAccessToken); err != nil {
			return err
		}
		return b.Delete(keyRefreshToken)
	})
}

func decodeQueue(data []byte) ([]types.QueuedAction, error) {
	if data == nil {
		return nil, nil
	}
	var actions []types.QueuedAction
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

func putQueue(b *bolt.Bucket, actions []types.QueuedAction) error {
	if actions == nil {
		actions = []types.QueuedAction{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	return b.Put(keyActions, data)
}

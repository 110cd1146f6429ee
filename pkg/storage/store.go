package storage

import (
	"errors"

	"github.com/parcelops/popsync/pkg/types"
)

// ErrCorruptQueue is returned when the persisted queue payload fails to
// parse. Callers treat it as an empty queue rather than a fatal error.
var ErrCorruptQueue = errors.New("persisted queue is corrupt")

// ErrNoSession is returned when no credentials are stored.
var ErrNoSession = errors.New("no stored session")

// Store defines the durable storage contract for the offline queue and the
// driver session. The queue is held as one ordered list; every mutation is
// atomic with respect to concurrent readers and writers.
type Store interface {
	// Queue
	LoadQueue() ([]types.QueuedAction, error)
	AppendAction(action types.QueuedAction) error
	ResolveActions(succeeded []string, failed map[string]string) ([]types.QueuedAction, error)
	ReplaceQueue(actions []types.QueuedAction) error

	// Session
	SaveSession(session types.Session) error
	LoadSession() (types.Session, error)
	ClearSession() error

	// Utility
	Close() error
}

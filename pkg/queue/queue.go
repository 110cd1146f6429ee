package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parcelops/popsync/pkg/log"
	"github.com/parcelops/popsync/pkg/metrics"
	"github.com/parcelops/popsync/pkg/storage"
	"github.com/parcelops/popsync/pkg/types"
)

// Queue maintains the authoritative ordered list of pending actions,
// synchronized with durable storage. The in-memory list is a cache; storage
// is the source of truth, reconciled around every mutation.
type Queue struct {
	store   storage.Store
	mu      sync.RWMutex
	actions []types.QueuedAction
}

// New creates a queue backed by the given store. Call Load before use to
// pick up actions persisted by a previous run.
func New(store storage.Store) *Queue {
	return &Queue{store: store}
}

// Load reads the persisted queue into memory. A corrupt payload is dropped
// with a warning rather than propagated: a wedged client is worse than a
// lost backlog.
func (q *Queue) Load() ([]types.QueuedAction, error) {
	actions, err := q.store.LoadQueue()
	if err != nil {
		if errors.Is(err, storage.ErrCorruptQueue) {
			logger := log.WithComponent("queue")
			logger.Warn().Err(err).Msg("Dropping unreadable persisted queue")
			actions = nil
			// Rewrite the slot so later reads (the flush engine reads it
			// fresh every pass) do not hit the same corrupt payload.
			if err := q.store.ReplaceQueue(nil); err != nil {
				return nil, fmt.Errorf("failed to reset corrupt queue: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to load queue: %w", err)
		}
	}

	q.mu.Lock()
	q.actions = actions
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(len(actions)))
	return q.Snapshot(), nil
}

// Enqueue constructs a new action and appends it to the queue. The append
// goes through storage first; if the write fails, the in-memory list is left
// untouched and the error is surfaced, so memory and disk never diverge.
func (q *Queue) Enqueue(actionType types.ActionType, jobID string, payload interface{}) (types.QueuedAction, error) {
	encoded, err := types.EncodePayload(payload)
	if err != nil {
		return types.QueuedAction{}, err
	}

	action := types.QueuedAction{
		ID:        uuid.New().String(),
		Type:      actionType,
		JobID:     jobID,
		Payload:   encoded,
		CreatedAt: time.Now().UTC(),
		Retries:   0,
	}

	if err := q.store.AppendAction(action); err != nil {
		return types.QueuedAction{}, fmt.Errorf("failed to persist action: %w", err)
	}

	q.mu.Lock()
	q.actions = append(q.actions, action)
	depth := len(q.actions)
	q.mu.Unlock()

	metrics.ActionsEnqueued.WithLabelValues(string(actionType)).Inc()
	metrics.QueueDepth.Set(float64(depth))

	logger := log.WithComponent("queue")
	logger.Info().
		Str("action_id", action.ID).
		Str("type", string(actionType)).
		Str("job_id", jobID).
		Msg("Action enqueued")

	return action, nil
}

// SetResolved refreshes the in-memory cache after a flush pass resolved its
// outcome in storage. An enqueue can land between the store resolving and
// this call, so the persisted queue is re-read under the lock rather than
// trusting the caller's snapshot; the snapshot is a fallback when the
// re-read fails.
func (q *Queue) SetResolved(actions []types.QueuedAction) {
	q.mu.Lock()
	if items, err := q.store.LoadQueue(); err == nil {
		actions = items
	}
	q.actions = actions
	depth := len(q.actions)
	q.mu.Unlock()
	metrics.QueueDepth.Set(float64(depth))
}

// Snapshot returns a read-only copy of the pending actions for UI rendering.
func (q *Queue) Snapshot() []types.QueuedAction {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]types.QueuedAction, len(q.actions))
	copy(out, q.actions)
	return out
}

// Pending returns the number of queued actions.
func (q *Queue) Pending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.actions)
}

// Store exposes the backing store for the flush engine, which reads the
// persisted queue fresh at flush start rather than trusting this cache.
func (q *Queue) Store() storage.Store {
	return q.store
}

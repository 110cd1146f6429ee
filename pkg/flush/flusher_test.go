package flush

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/parcelops/popsync/pkg/apiclient"
	"github.com/parcelops/popsync/pkg/queue"
	"github.com/parcelops/popsync/pkg/storage"
	"github.com/parcelops/popsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAPI records calls and returns scripted errors per job ID and type.
type mockAPI struct {
	mu       sync.Mutex
	calls    []string // "type:jobID" in arrival order
	failWith map[string]error
	onCall   func() // optional hook, runs before each call returns
}

func newMockAPI() *mockAPI {
	return &mockAPI{failWith: make(map[string]error)}
}

func (m *mockAPI) key(t types.ActionType, jobID string) string {
	return string(t) + ":" + jobID
}

func (m *mockAPI) record(t types.ActionType, jobID string) error {
	m.mu.Lock()
	key := m.key(t, jobID)
	m.calls = append(m.calls, key)
	err := m.failWith[key]
	hook := m.onCall
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (m *mockAPI) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockAPI) UpdateJobStatus(_ context.Context, jobID string, _ types.StatusUpdate) (*types.Job, error) {
	if err := m.record(types.ActionStatusUpdate, jobID); err != nil {
		return nil, err
	}
	return &types.Job{ID: jobID}, nil
}

func (m *mockAPI) SubmitPOD(_ context.Context, jobID string, _ types.PODSubmit) (*types.POD, error) {
	if err := m.record(types.ActionPODSubmit, jobID); err != nil {
		return nil, err
	}
	return &types.POD{JobID: jobID}, nil
}

func newTestFlusher(t *testing.T) (*Flusher, *queue.Queue, *storage.MemoryStore, *mockAPI) {
	t.Helper()
	store := storage.NewMemoryStore()
	q := queue.New(store)
	api := newMockAPI()
	return New(q, api, nil), q, store, api
}

func enqueuePODAndDelivered(t *testing.T, q *queue.Queue, jobID string) (types.QueuedAction, types.QueuedAction) {
	t.Helper()
	pod, err := q.Enqueue(types.ActionPODSubmit, jobID, types.PODSubmit{RecipientName: "A. Smith"})
	require.NoError(t, err)
	status, err := q.Enqueue(types.ActionStatusUpdate, jobID, types.StatusUpdate{Status: types.JobStatusDelivered})
	require.NoError(t, err)
	return pod, status
}

func TestFlush_EmptyQueueIsNoOp(t *testing.T) {
	flusher, _, store, api := newTestFlusher(t)

	result, err := flusher.Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Ran)
	assert.Zero(t, result.Attempted)
	assert.Zero(t, api.callCount())
	assert.Zero(t, store.QueueWrites, "empty flush must not rewrite persisted state")
}

func TestFlush_DrainsQueueInOrder(t *testing.T) {
	flusher, q, store, api := newTestFlusher(t)
	enqueuePODAndDelivered(t, q, "J1")
	assert.Equal(t, 2, q.Pending())

	result, err := flusher.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Ran: true, Attempted: 2, Delivered: 2}, result)

	// POD before its delivered status, always.
	require.Equal(t, []string{"pod_submit:J1", "status_update:J1"}, api.calls)

	assert.Zero(t, q.Pending())
	persisted, err := store.LoadQueue()
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestFlush_FailureKeepsActionAndContinues(t *testing.T) {
	flusher, q, store, api := newTestFlusher(t)
	pod, _ := enqueuePODAndDelivered(t, q, "J1")

	api.failWith["pod_submit:J1"] = &apiclient.APIError{Status: 500, Message: "Internal Server Error"}

	result, err := flusher.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 1, result.Failed)

	// The status update behind the failed POD was still attempted.
	assert.Equal(t, 2, api.callCount())

	persisted, err := store.LoadQueue()
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, pod.ID, persisted[0].ID)
	assert.Equal(t, 1, persisted[0].Retries)
	assert.Contains(t, persisted[0].LastError, "Internal Server Error")
	assert.Equal(t, 1, q.Pending())
}

func TestFlush_RetriesAccumulateAcrossPasses(t *testing.T) {
	flusher, q, store, api := newTestFlusher(t)
	_, err := q.Enqueue(types.ActionStatusUpdate, "J2", types.StatusUpdate{Status: types.JobStatusPickedUp})
	require.NoError(t, err)

	api.failWith["status_update:J2"] = fmt.Errorf("request failed: connection refused")

	for i := 1; i <= 3; i++ {
		_, err := flusher.Flush(context.Background())
		require.NoError(t, err)

		persisted, err := store.LoadQueue()
		require.NoError(t, err)
		require.Len(t, persisted, 1, "a failing action is never dropped")
		assert.Equal(t, i, persisted[0].Retries)
	}
}

func TestFlush_UnauthorizedIsNotSpecialCased(t *testing.T) {
	flusher, q, store, api := newTestFlusher(t)
	_, err := q.Enqueue(types.ActionStatusUpdate, "J3", types.StatusUpdate{Status: types.JobStatusDelivered})
	require.NoError(t, err)

	api.failWith["status_update:J3"] = fmt.Errorf("%w: token expired", apiclient.ErrUnauthorized)

	result, err := flusher.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	// The action stays queued for after re-login, like any other failure.
	persisted, err := store.LoadQueue()
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, 1, persisted[0].Retries)
	assert.Contains(t, persisted[0].LastError, "token expired")
}

func TestFlush_Reentrancy(t *testing.T) {
	flusher, q, _, api := newTestFlusher(t)
	_, err := q.Enqueue(types.ActionStatusUpdate, "J4", types.StatusUpdate{Status: types.JobStatusInTransit})
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	api.onCall = func() {
		close(entered)
		<-release
	}

	done := make(chan Result)
	go func() {
		result, _ := flusher.Flush(context.Background())
		done <- result
	}()

	<-entered
	assert.True(t, flusher.Flushing())

	// A second flush while the first is mid-drain must not start.
	second, err := flusher.Flush(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Ran)

	close(release)
	first := <-done
	assert.True(t, first.Ran)
	assert.Equal(t, 1, api.callCount(), "no double drain")
}

func TestFlush_MidFlushEnqueueSurvives(t *testing.T) {
	flusher, q, store, api := newTestFlusher(t)
	_, err := q.Enqueue(types.ActionStatusUpdate, "J5", types.StatusUpdate{Status: types.JobStatusDelivered})
	require.NoError(t, err)

	// Enqueue lands while the flush is processing its snapshot: after the
	// pass read the queue, before it resolves the outcome.
	var once sync.Once
	api.onCall = func() {
		once.Do(func() {
			_, err := q.Enqueue(types.ActionPODSubmit, "J6", types.PODSubmit{RecipientName: "B. Jones"})
			require.NoError(t, err)
		})
	}

	result, err := flusher.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempted, "mid-flush enqueue waits for the next pass")

	persisted, err := store.LoadQueue()
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "J6", persisted[0].JobID)
	assert.Zero(t, persisted[0].Retries)

	// The next pass picks it up.
	api.onCall = nil
	result, err = flusher.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)

	persisted, err = store.LoadQueue()
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestFlush_UnknownActionTypeStaysQueued(t *testing.T) {
	flusher, q, store, _ := newTestFlusher(t)

	// Simulate a queue written by a newer binary.
	future := types.QueuedAction{
		ID:      "future-1",
		Type:    types.ActionType("location_ping"),
		JobID:   "J7",
		Payload: []byte(`{"lat": 1, "lng": 2}`),
	}
	require.NoError(t, store.AppendAction(future))
	_, err := q.Load()
	require.NoError(t, err)

	result, err := flusher.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	persisted, err := store.LoadQueue()
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Contains(t, persisted[0].LastError, "unknown action type")
}

func TestFlush_RelativeOrderStableAcrossPasses(t *testing.T) {
	flusher, q, store, api := newTestFlusher(t)

	first, err := q.Enqueue(types.ActionStatusUpdate, "J8", types.StatusUpdate{Status: types.JobStatusPickedUp})
	require.NoError(t, err)
	api.failWith["status_update:J8"] = fmt.Errorf("timeout")

	_, err = flusher.Flush(context.Background())
	require.NoError(t, err)

	// New actions append behind the survivor, never ahead of it.
	second, err := q.Enqueue(types.ActionStatusUpdate, "J9", types.StatusUpdate{Status: types.JobStatusInTransit})
	require.NoError(t, err)

	persisted, err := store.LoadQueue()
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, first.ID, persisted[0].ID)
	assert.Equal(t, second.ID, persisted[1].ID)

	api.calls = nil
	delete(api.failWith, "status_update:J8")
	_, err = flusher.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"status_update:J8", "status_update:J9"}, api.calls)
}

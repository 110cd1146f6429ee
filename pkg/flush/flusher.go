package flush

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/parcelops/popsync/pkg/events"
	"github.com/parcelops/popsync/pkg/log"
	"github.com/parcelops/popsync/pkg/metrics"
	"github.com/parcelops/popsync/pkg/queue"
	"github.com/parcelops/popsync/pkg/types"
)

// API is the subset of the backend client the flush engine replays queued
// actions against.
type API interface {
	UpdateJobStatus(ctx context.Context, jobID string, update types.StatusUpdate) (*types.Job, error)
	SubmitPOD(ctx context.Context, jobID string, pod types.PODSubmit) (*types.POD, error)
}

// Result summarizes one flush pass.
type Result struct {
	// Ran is false when another flush was already in progress and this
	// request was a no-op.
	Ran       bool
	Attempted int
	Delivered int
	Failed    int
}

// Flusher drains the offline queue against the backend: strictly serial, in
// FIFO order, with failure isolation per action. At most one flush runs at
// a time; a request arriving mid-flush is a no-op, and actions enqueued
// mid-flush are picked up by the next pass.
type Flusher struct {
	queue   *queue.Queue
	api     API
	broker  *events.Broker
	running atomic.Bool
}

// New creates a flusher. broker may be nil when no one listens for events.
func New(q *queue.Queue, api API, broker *events.Broker) *Flusher {
	return &Flusher{queue: q, api: api, broker: broker}
}

// Flushing reports whether a flush pass is currently in progress.
func (f *Flusher) Flushing() bool {
	return f.running.Load()
}

// Flush performs one full drain attempt. Per-action failures never abort
// the pass or propagate; the only error returned is a storage failure while
// persisting the pass outcome.
func (f *Flusher) Flush(ctx context.Context) (Result, error) {
	if !f.running.CompareAndSwap(false, true) {
		f.publish(events.EventFlushSkipped, "Flush already in progress", nil)
		return Result{}, nil
	}
	defer f.running.Store(false)

	start := time.Now()
	metrics.FlushesTotal.Inc()

	// Read the persisted queue fresh rather than trusting the in-memory
	// cache: it is the source of truth across restarts and crash windows.
	items, err := f.queue.Store().LoadQueue()
	if err != nil {
		logger := log.WithComponent("flush")
		logger.Error().Err(err).Msg("Failed to read queue at flush start")
		return Result{Ran: true}, fmt.Errorf("failed to read queue: %w", err)
	}

	result := Result{Ran: true, Attempted: len(items)}
	if len(items) == 0 {
		return result, nil
	}

	f.publish(events.EventFlushStarted, fmt.Sprintf("Flushing %d queued actions", len(items)), nil)
	logger := log.WithComponent("flush")

	var succeeded []string
	failed := make(map[string]string)

	for _, action := range items {
		if err := f.dispatch(ctx, action); err != nil {
			// Uniform classification: 4xx, 5xx, timeouts, and auth
			// failures all just stay queued for the next pass.
			failed[action.ID] = err.Error()
			result.Failed++
			metrics.ActionsReplayed.WithLabelValues(string(action.Type), "failure").Inc()

			actionLogger := log.WithActionID(action.ID)
			actionLogger.Warn().
				Str("type", string(action.Type)).
				Str("job_id", action.JobID).
				Int("retries", action.Retries+1).
				Err(err).
				Msg("Action replay failed, keeping queued")

			f.publish(events.EventActionFailed, err.Error(), map[string]string{
				"action_id": action.ID,
				"type":      string(action.Type),
				"job_id":    action.JobID,
			})
			continue
		}

		succeeded = append(succeeded, action.ID)
		result.Delivered++
		metrics.ActionsReplayed.WithLabelValues(string(action.Type), "success").Inc()

		actionLogger := log.WithActionID(action.ID)
		actionLogger.Info().
			Str("type", string(action.Type)).
			Str("job_id", action.JobID).
			Msg("Action delivered")

		f.publish(events.EventActionDelivered, "Action delivered", map[string]string{
			"action_id": action.ID,
			"type":      string(action.Type),
			"job_id":    action.JobID,
		})
	}

	// Merge the outcome by ID: only the actions this pass actually saw are
	// removed or patched, so an enqueue racing this flush survives.
	remaining, err := f.queue.Store().ResolveActions(succeeded, failed)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist flush outcome")
		return result, fmt.Errorf("failed to persist flush outcome: %w", err)
	}
	f.queue.SetResolved(remaining)

	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	f.publish(events.EventFlushCompleted,
		fmt.Sprintf("Flush complete: %d delivered, %d kept", result.Delivered, result.Failed),
		map[string]string{
			"delivered": fmt.Sprintf("%d", result.Delivered),
			"failed":    fmt.Sprintf("%d", result.Failed),
		})

	return result, nil
}

// dispatch replays one action against the backend by its type.
func (f *Flusher) dispatch(ctx context.Context, action types.QueuedAction) error {
	switch action.Type {
	case types.ActionStatusUpdate:
		update, err := types.DecodeStatusUpdate(action)
		if err != nil {
			return err
		}
		_, err = f.api.UpdateJobStatus(ctx, action.JobID, update)
		return err

	case types.ActionPODSubmit:
		pod, err := types.DecodePODSubmit(action)
		if err != nil {
			return err
		}
		_, err = f.api.SubmitPOD(ctx, action.JobID, pod)
		return err

	default:
		// Unknown kinds stay queued: a newer binary may understand them.
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (f *Flusher) publish(eventType events.EventType, msg string, metadata map[string]string) {
	if f.broker == nil {
		return
	}
	f.broker.Publish(&events.Event{
		Type:     eventType,
		Message:  msg,
		Metadata: metadata,
	})
}

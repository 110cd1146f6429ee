package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/parcelops/popsync/pkg/apiclient"
	"github.com/parcelops/popsync/pkg/events"
	"github.com/parcelops/popsync/pkg/flush"
	"github.com/parcelops/popsync/pkg/log"
	"github.com/parcelops/popsync/pkg/netmon"
	"github.com/parcelops/popsync/pkg/queue"
	"github.com/parcelops/popsync/pkg/types"
)

// Agent wires the queue, flush engine, and reachability monitor into the
// driver-facing sync service. All state lives on the instance; tests build
// as many independent agents as they need.
type Agent struct {
	queue   *queue.Queue
	flusher *flush.Flusher
	monitor netmon.Monitor
	broker  *events.Broker
	api     flush.API

	stopCh chan struct{}
	sub    <-chan bool
}

// Status is the read-only snapshot the UI renders from.
type Status struct {
	Online       bool
	PendingCount int
	Flushing     bool
}

// New creates an agent from its collaborators.
func New(q *queue.Queue, f *flush.Flusher, monitor netmon.Monitor, broker *events.Broker, api flush.API) *Agent {
	return &Agent{
		queue:   q,
		flusher: f,
		monitor: monitor,
		broker:  broker,
		api:     api,
		stopCh:  make(chan struct{}),
	}
}

// Start begins watching reachability. Every transition to online with a
// non-empty queue triggers an automatic flush.
func (a *Agent) Start() {
	a.sub = a.monitor.Subscribe()
	a.monitor.Start()
	go a.watch()
}

// Stop ends the reachability watch. An in-flight flush is not cancelled.
func (a *Agent) Stop() {
	close(a.stopCh)
	a.monitor.Unsubscribe(a.sub)
	a.monitor.Stop()
}

func (a *Agent) watch() {
	logger := log.WithComponent("agent")

	for {
		select {
		case online, ok := <-a.sub:
			if !ok {
				return
			}
			if online {
				a.publish(events.EventNetOnline, "Backend reachable")
				if a.queue.Pending() > 0 {
					logger.Info().Int("pending", a.queue.Pending()).Msg("Online with pending actions, flushing")
					go func() {
						_, _ = a.flusher.Flush(context.Background())
					}()
				}
			} else {
				a.publish(events.EventNetOffline, "Backend unreachable")
			}
		case <-a.stopCh:
			return
		}
	}
}

// Flush runs one manual drain attempt (the pull-to-retry affordance).
func (a *Agent) Flush(ctx context.Context) (flush.Result, error) {
	return a.flusher.Flush(ctx)
}

// Snapshot returns the current UI-facing state.
func (a *Agent) Snapshot() Status {
	return Status{
		Online:       a.monitor.Online(),
		PendingCount: a.queue.Pending(),
		Flushing:     a.flusher.Flushing(),
	}
}

// Queue exposes the underlying queue for read-only listing.
func (a *Agent) Queue() *queue.Queue {
	return a.queue
}

// BannerText renders the status line shown to the driver. Empty means no
// banner is needed.
func (a *Agent) BannerText() string {
	s := a.Snapshot()
	switch {
	case s.Online && s.PendingCount == 0:
		return ""
	case !s.Online:
		return fmt.Sprintf("Offline — %s pending sync", plural(s.PendingCount))
	case s.Flushing:
		return "Syncing queued actions…"
	default:
		return fmt.Sprintf("%s waiting to sync", plural(s.PendingCount))
	}
}

// CanRetry reports whether the manual retry affordance should be offered.
func (a *Agent) CanRetry() bool {
	s := a.Snapshot()
	return s.Online && s.PendingCount > 0 && !s.Flushing
}

// UpdateStatus performs an online-first status change: called directly when
// the backend is reachable, queued otherwise. A backend rejection (4xx/5xx
// response) surfaces to the caller; only transport-level failures fall back
// to the queue. Reports whether the action was queued.
func (a *Agent) UpdateStatus(ctx context.Context, jobID string, status types.JobStatus) (bool, error) {
	update := types.StatusUpdate{Status: status}

	if a.monitor.Online() {
		_, err := a.api.UpdateJobStatus(ctx, jobID, update)
		if err == nil {
			return false, nil
		}
		if isRejection(err) {
			return false, err
		}
		logger := log.WithJobID(jobID)
		logger.Warn().Err(err).Msg("Status update failed in transit, queueing")
	}

	action, err := a.queue.Enqueue(types.ActionStatusUpdate, jobID, update)
	if err != nil {
		return false, err
	}
	a.publishEnqueued(action)
	return true, nil
}

// SubmitPOD performs an online-first proof-of-delivery submission followed
// by a delivered status update. Offline (or on a transport failure), both
// actions are queued in that order so the flush replays them the way the
// backend expects. Reports whether the actions were queued.
func (a *Agent) SubmitPOD(ctx context.Context, jobID string, pod types.PODSubmit) (bool, error) {
	delivered := types.StatusUpdate{Status: types.JobStatusDelivered}

	if a.monitor.Online() {
		err := a.submitOnline(ctx, jobID, pod, delivered)
		if err == nil {
			return false, nil
		}
		if isRejection(err) {
			return false, err
		}
		logger := log.WithJobID(jobID)
		logger.Warn().Err(err).Msg("POD submission failed in transit, queueing")
	}

	podAction, err := a.queue.Enqueue(types.ActionPODSubmit, jobID, pod)
	if err != nil {
		return false, err
	}
	a.publishEnqueued(podAction)

	statusAction, err := a.queue.Enqueue(types.ActionStatusUpdate, jobID, delivered)
	if err != nil {
		return false, err
	}
	a.publishEnqueued(statusAction)
	return true, nil
}

func (a *Agent) submitOnline(ctx context.Context, jobID string, pod types.PODSubmit, delivered types.StatusUpdate) error {
	if _, err := a.api.SubmitPOD(ctx, jobID, pod); err != nil {
		return err
	}
	_, err := a.api.UpdateJobStatus(ctx, jobID, delivered)
	return err
}

// isRejection reports whether the backend actively refused the request, as
// opposed to being unreachable. Rejections surface to the caller; anything
// else is queued for replay.
func isRejection(err error) bool {
	var apiErr *apiclient.APIError
	return errors.As(err, &apiErr) || errors.Is(err, apiclient.ErrUnauthorized)
}

func (a *Agent) publishEnqueued(action types.QueuedAction) {
	if a.broker == nil {
		return
	}
	a.broker.Publish(&events.Event{
		Type:    events.EventActionEnqueued,
		Message: "Action queued for sync",
		Metadata: map[string]string{
			"action_id": action.ID,
			"type":      string(action.Type),
			"job_id":    action.JobID,
		},
	})
}

func (a *Agent) publish(eventType events.EventType, msg string) {
	if a.broker == nil {
		return
	}
	a.broker.Publish(&events.Event{Type: eventType, Message: msg})
}

func plural(n int) string {
	if n == 1 {
		return "1 action"
	}
	return fmt.Sprintf("%d actions", n)
}

/*
Package flush implements the drain engine for the offline action queue.

A flush is one attempt to deliver the entire queued backlog to the backend,
with at-least-once semantics:

  - Strictly serial, FIFO. Ordering is load-bearing: a pod_submit may be
    immediately followed by a status_update to delivered for the same job,
    and the backend processes them in arrival order.
  - Failure-isolated. One action failing does not block the ones behind it;
    the failed action stays queued with retries incremented and last_error
    recorded.
  - Uniformly classified. The engine does not distinguish 4xx from 5xx from
    timeouts from auth failures; everything short of success stays queued.
    A malformed action retries forever rather than being silently dropped.
  - Reentrancy-guarded. A Flush call while one is running returns
    immediately; there is no cancellation of a pass in progress.

The pass reads the persisted queue fresh at its start and resolves its
outcome with a merge by action ID, so actions enqueued while the pass runs
are never clobbered; they wait for the next trigger.

There is no backoff and no background timer: every online transition or
manual retry is a full drain attempt.
*/
package flush

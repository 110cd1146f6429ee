/*
Package agent composes the queue, flush engine, and reachability monitor
into the driver-facing sync service.

The agent owns the control flow the driver app relies on:

  - Online-first submits. UpdateStatus and SubmitPOD call the backend
    directly when reachable; a transport failure or known-offline state
    falls back to enqueueing, and a backend rejection surfaces to the
    caller instead of being queued.
  - Auto-flush. Every reachability transition to online with a non-empty
    queue triggers a drain; the flush engine's reentrancy guard makes the
    trigger safe to fire optimistically.
  - Snapshot/BannerText/CanRetry. The read-only surface a UI renders the
    offline banner and retry affordance from.

Everything is instance state behind an explicit constructor; nothing in
this package (or the packages it composes) is a process-wide singleton.
*/
package agent

/*
Package queue maintains the ordered list of pending offline actions.

The queue is the authoritative record of work the driver performed that the
backend has not yet acknowledged. It is an explicitly constructed service
object: tests and the agent build as many independent instances as they
need, each bound to its own store.

# Invariants

  - Durable storage is the source of truth; the in-memory list is a cache
    reconciled around every mutation.
  - Actions are ordered by insertion (created_at ascending) and flushed in
    exactly that order. Nothing reorders or prioritizes.
  - An action leaves the queue only when its remote call succeeded.
  - Enqueue persists before it mutates memory: a failed store write
    surfaces as an error with the cache untouched, so the two copies never
    diverge.

# Startup

Load reads the persisted queue once at process start. A corrupt payload is
logged and dropped; the queue starts empty rather than wedging the client.
*/
package queue

/*
Package storage provides durable persistence for the offline queue and the
driver session.

The storage package wraps BoltDB behind a small Store interface. The queue
is deliberately held as a single JSON array under one stable key rather than
one record per action: the queue is small (a driver's backlog of a shift at
most), order is the contract, and a single slot makes every mutation one
atomic write.

# Queue Mutations

All queue writes are read-modify-write transactions:

  - AppendAction reloads, appends, and saves inside one write transaction.
  - ResolveActions merges a flush outcome by ID: succeeded actions are
    removed, failed ones get retries/last_error patched, and actions the
    flush never saw (enqueued mid-flush) pass through untouched.

This merge-by-ID protocol is what makes an enqueue arriving during a flush
safe: the flush never blindly overwrites the list it read at its start.

# Corruption

A persisted queue that fails to parse surfaces as ErrCorruptQueue. The queue
layer treats that as an empty queue: dropping an unreadable backlog is
preferred over a wedged client.

MemoryStore is a test double with the same semantics, plus injectable write
failures and payload corruption.
*/
package storage

/*
Package netmon provides the network reachability signal that triggers
automatic queue flushes.

A Monitor exposes a single boolean, whether the backend is reachable right
now, and broadcasts discrete transitions to subscribers. Two implementations:

  - Prober: periodically issues an HTTP GET against the backend's health
    endpoint. The first probe runs at Start so an initial state is
    available quickly.
  - Manual: state driven by the caller; used by tests and one-shot CLI
    commands that already know their connectivity.

The signal is intentionally weak. A prober that just saw a 200 may report
online moments before the network drops; the flush engine tolerates that by
treating every request failure as "retry later" rather than trusting the
monitor. The monitor is a trigger, never a gate that queue logic awaits.
*/
package netmon

/*
Package metrics provides Prometheus metrics and health reporting for the
popsync agent.

Metrics are package-level collectors registered at init, exported on the
agent's debug listener when one is configured. The health checker aggregates
per-component status (storage, network, session) into a single /healthz
JSON response.

# Key Metrics

  - popsync_queue_depth: actions currently pending
  - popsync_actions_enqueued_total{type}: enqueue rate by action kind
  - popsync_flushes_total, popsync_flush_duration_seconds: drain activity
  - popsync_actions_replayed_total{type,result}: per-action replay outcomes
  - popsync_online, popsync_online_transitions_total: reachability signal
*/
package metrics

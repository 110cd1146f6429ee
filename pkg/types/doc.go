/*
Package types defines the shared data structures for popsync.

The types package is the foundation layer: every other package imports it,
and it imports nothing from popsync. It holds the durable queue record
(QueuedAction), the typed payload variants dispatched by the flush engine,
and the backend resource mirrors (Job, POD, Session).

# Payload Encoding

QueuedAction.Payload is stored as raw JSON so that a queue persisted by an
older binary stays readable when new action kinds are introduced. The typed
structs (StatusUpdate, PODSubmit) exist at the edges only: constructors
encode them at enqueue time and the flush engine decodes them at dispatch
time, giving an exhaustive switch over ActionType without giving up the
opaque at-rest format.

# Usage

Creating a queued action payload:

	payload, err := types.EncodePayload(types.StatusUpdate{
		Status: types.JobStatusDelivered,
	})

Decoding inside a dispatch switch:

	switch action.Type {
	case types.ActionStatusUpdate:
		p, err := types.DecodeStatusUpdate(action)
		...
	case types.ActionPODSubmit:
		p, err := types.DecodePODSubmit(action)
		...
	}
*/
package types

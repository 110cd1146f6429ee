/*
Package events provides an in-memory event broker for agent lifecycle
notifications.

The broker broadcasts queue and flush activity (action.enqueued,
action.delivered, action.failed, flush.started, flush.completed), network
transitions (net.online, net.offline), and session expiry to any interested
subscriber. Delivery is best-effort: publish never blocks, and a subscriber
whose buffer is full misses events. Nothing durable depends on the broker
(the queue's persistence is its own source of truth), so dropped events
cost only a stale display.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("%s: %s\n", event.Type, event.Message)
		}
	}()

Consumers in this repo: `popsync sync --watch` streams events to the
terminal, and the agent command logs them.
*/
package events

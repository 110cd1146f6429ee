package netmon

import (
	"sync"

	"github.com/parcelops/popsync/pkg/metrics"
)

// Monitor exposes the current "is the backend reachable" boolean and emits
// discrete transition events. The signal is advisory: a reported online may
// still fail at request time, and consumers tolerate that through their own
// error handling.
type Monitor interface {
	// Online returns the last observed reachability state.
	Online() bool

	// Subscribe returns a channel receiving the new state on each transition.
	Subscribe() <-chan bool

	// Unsubscribe removes a subscription and closes its channel.
	Unsubscribe(ch <-chan bool)

	// Start begins observation; an initial state is published shortly after.
	Start()

	// Stop ends observation.
	Stop()
}

// state is the shared transition bookkeeping used by the monitor
// implementations.
type state struct {
	mu          sync.RWMutex
	online      bool
	known       bool
	subscribers map[chan bool]bool
}

func newState() *state {
	return &state{subscribers: make(map[chan bool]bool)}
}

func (s *state) current() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

func (s *state) subscribe() <-chan bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan bool, 8)
	s.subscribers[ch] = true
	return ch
}

func (s *state) unsubscribe(ch <-chan bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers {
		if sub == ch {
			delete(s.subscribers, sub)
			close(sub)
			return
		}
	}
}

// set records a new observation and broadcasts it if it is a transition
// (or the first observation). Reports whether the state changed.
func (s *state) set(online bool) bool {
	s.mu.Lock()
	changed := !s.known || s.online != online
	s.known = true
	s.online = online
	var targets []chan bool
	if changed {
		for sub := range s.subscribers {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	if !changed {
		return false
	}

	if online {
		metrics.OnlineState.Set(1)
		metrics.OnlineTransitions.Inc()
	} else {
		metrics.OnlineState.Set(0)
	}

	for _, sub := range targets {
		select {
		case sub <- online:
		default:
			// Subscriber buffer full, skip
		}
	}
	return true
}

// Manual is a Monitor whose state is driven by the caller. Tests and the
// CLI's one-shot commands use it in place of a live prober.
type Manual struct {
	*state
}

// NewManual creates a manual monitor with the given initial state.
func NewManual(online bool) *Manual {
	m := &Manual{state: newState()}
	m.state.set(online)
	return m
}

func (m *Manual) Online() bool               { return m.state.current() }
func (m *Manual) Subscribe() <-chan bool     { return m.state.subscribe() }
func (m *Manual) Unsubscribe(ch <-chan bool) { m.state.unsubscribe(ch) }
func (m *Manual) Start()                     {}
func (m *Manual) Stop()                      {}

// SetOnline records a new reachability state, broadcasting on transitions.
func (m *Manual) SetOnline(online bool) {
	m.state.set(online)
}

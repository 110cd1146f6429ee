package netmon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parcelops/popsync/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

func TestManual_TransitionsAreBroadcast(t *testing.T) {
	m := NewManual(false)
	sub := m.Subscribe()
	defer m.Unsubscribe(sub)

	m.SetOnline(true)

	select {
	case online := <-sub:
		if !online {
			t.Error("expected online transition")
		}
	case <-time.After(time.Second):
		t.Fatal("no transition delivered")
	}

	if !m.Online() {
		t.Error("expected Online() to report true")
	}
}

func TestManual_NoEventWithoutTransition(t *testing.T) {
	m := NewManual(true)
	sub := m.Subscribe()
	defer m.Unsubscribe(sub)

	// Same state again: no event.
	m.SetOnline(true)

	select {
	case v := <-sub:
		t.Errorf("unexpected event %v for a non-transition", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProber_ReportsOnlineForHealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewProber(server.URL)
	p.Interval = 10 * time.Millisecond
	sub := p.Subscribe()
	defer p.Unsubscribe(sub)

	p.Start()
	defer p.Stop()

	select {
	case online := <-sub:
		if !online {
			t.Error("expected initial online state")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial state delivered")
	}
}

func TestProber_DetectsTransitionToOffline(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	p := NewProber(server.URL)
	p.Interval = 10 * time.Millisecond
	sub := p.Subscribe()
	defer p.Unsubscribe(sub)

	p.Start()
	defer p.Stop()

	// Wait for initial online.
	select {
	case <-sub:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial state delivered")
	}

	healthy.Store(false)

	select {
	case online := <-sub:
		if online {
			t.Error("expected offline transition")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("offline transition not delivered")
	}
}

func TestProber_CheckFuncOverridesRawProbe(t *testing.T) {
	var ok atomic.Bool
	ok.Store(true)

	p := NewProber("http://ignored.invalid/healthz")
	p.Check = func(ctx context.Context) error {
		if ok.Load() {
			return nil
		}
		return errors.New("backend unhealthy")
	}

	if !p.probe() {
		t.Error("expected healthy check to report online")
	}

	ok.Store(false)
	if p.probe() {
		t.Error("expected failing check to report offline")
	}
}

func TestProber_UnreachableHostIsOffline(t *testing.T) {
	p := NewProber("http://127.0.0.1:1/healthz")
	p.Timeout = 200 * time.Millisecond
	p.Client = &http.Client{Timeout: p.Timeout}

	if p.probe() {
		t.Error("expected probe of unreachable host to fail")
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/parcelops/popsync/pkg/agent"
	"github.com/parcelops/popsync/pkg/events"
	"github.com/parcelops/popsync/pkg/flush"
	"github.com/parcelops/popsync/pkg/log"
	"github.com/parcelops/popsync/pkg/metrics"
	"github.com/parcelops/popsync/pkg/netmon"
	"github.com/parcelops/popsync/pkg/queue"
	"github.com/spf13/cobra"
)

var syncWatch bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the offline queue against the backend now",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		q := queue.New(e.store)
		if _, err := q.Load(); err != nil {
			return err
		}
		if q.Pending() == 0 {
			fmt.Println("Queue is empty, nothing to sync")
			return nil
		}

		var broker *events.Broker
		watchDone := make(chan struct{})
		if syncWatch {
			broker = events.NewBroker()
			broker.Start()
			defer broker.Stop()

			sub := broker.Subscribe()
			go func() {
				defer close(watchDone)
				for event := range sub {
					fmt.Printf("[%s] %s: %s\n",
						event.Timestamp.Format("15:04:05"), event.Type, event.Message)
					if event.Type == events.EventFlushCompleted {
						return
					}
				}
			}()
		} else {
			close(watchDone)
		}

		flusher := flush.New(q, e.client, broker)
		result, err := flusher.Flush(cmd.Context())
		if err != nil {
			return err
		}
		<-watchDone

		fmt.Printf("Flushed %d actions: %d delivered, %d kept for retry\n",
			result.Attempted, result.Delivered, result.Failed)
		if result.Failed > 0 {
			for _, a := range q.Snapshot() {
				fmt.Printf("  %s %s job=%s retries=%d: %s\n",
					shortID(a.ID), a.Type, a.JobID, a.Retries, a.LastError)
			}
		}
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List actions pending in the offline queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		q := queue.New(e.store)
		actions, err := q.Load()
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tJOB\tCREATED\tRETRIES\tLAST ERROR")
		for _, a := range actions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				shortID(a.ID), a.Type, a.JobID,
				a.CreatedAt.Local().Format(time.RFC3339), a.Retries, a.LastError)
		}
		return w.Flush()
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "Stream per-action events during the drain")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the sync agent: watch reachability and auto-flush the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		metrics.SetVersion(Version)
		metrics.UpdateComponent("storage", true, "")

		q := queue.New(e.store)
		if _, err := q.Load(); err != nil {
			metrics.UpdateComponent("storage", false, err.Error())
			return err
		}

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		e.client.OnSessionExpired(func() {
			broker.Publish(&events.Event{
				Type:    events.EventSessionExpired,
				Message: "Backend rejected the stored session",
			})
		})
		if _, err := e.store.LoadSession(); err != nil {
			metrics.UpdateComponent("session", false, "not logged in")
		} else {
			metrics.UpdateComponent("session", true, "")
		}

		e.client.SetHealthPath(e.cfg.ProbePath)
		prober := netmon.NewProber(e.cfg.ProbeURL())
		prober.Interval = e.cfg.ProbeInterval.Std()
		prober.Check = e.client.Health

		flusher := flush.New(q, e.client, broker)
		a := agent.New(q, flusher, prober, broker, e.client)

		// Stream lifecycle events into the log.
		sub := broker.Subscribe()
		defer broker.Unsubscribe(sub)
		go func() {
			logger := log.WithComponent("events")
			for event := range sub {
				logger.Info().
					Str("event", string(event.Type)).
					Fields(map[string]interface{}{"metadata": event.Metadata}).
					Msg(event.Message)
				if event.Type == events.EventSessionExpired {
					metrics.UpdateComponent("session", false, "session expired")
				}
			}
		}()

		if addr := e.cfg.MetricsAddr; addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.Handle("/healthz", metrics.HealthHandler())
			go func() {
				if err := http.ListenAndServe(addr, mux); err != nil {
					log.Errorf("Metrics listener failed", err)
				}
			}()
			agentLogger := log.WithComponent("agent")
			agentLogger.Info().Str("addr", addr).Msg("Metrics listener started")
		}

		a.Start()
		defer a.Stop()

		agentLogger := log.WithComponent("agent")
		agentLogger.Info().
			Int("pending", q.Pending()).
			Str("probe", prober.String()).
			Msg("Agent started")

		// One eager drain on startup when there is a backlog; the guard
		// makes this safe against a racing reconnect trigger.
		if q.Pending() > 0 {
			go func() {
				_, _ = a.Flush(context.Background())
			}()
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		agentLogger.Info().Msg("Shutting down")
		return nil
	},
}

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/parcelops/popsync/pkg/agent"
	"github.com/parcelops/popsync/pkg/events"
	"github.com/parcelops/popsync/pkg/flush"
	"github.com/parcelops/popsync/pkg/netmon"
	"github.com/parcelops/popsync/pkg/queue"
	"github.com/parcelops/popsync/pkg/types"
	"github.com/spf13/cobra"
)

var jobsStatusFilter string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the driver's jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := commandContext(e.cfg)
		defer cancel()

		filter := types.JobStatus(jobsStatusFilter)
		if jobsStatusFilter != "" && !types.ValidJobStatus(filter) {
			return fmt.Errorf("unknown status %q", jobsStatusFilter)
		}

		jobs, err := e.client.ListJobs(ctx, filter)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TRACKING\tSTATUS\tPICKUP\tDROPOFF")
		for _, job := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				job.TrackingID, job.Status, job.PickupAddress, job.DropoffAddress)
		}
		return w.Flush()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id> <status>",
	Short: "Update a job's status (queued locally when the backend is unreachable)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, status := args[0], types.JobStatus(args[1])
		if !types.ValidJobStatus(status) {
			return fmt.Errorf("unknown status %q", args[1])
		}

		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		a, err := oneShotAgent(e)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(e.cfg)
		defer cancel()

		queued, err := a.UpdateStatus(ctx, jobID, status)
		if err != nil {
			return err
		}
		if queued {
			fmt.Printf("✓ Status change queued offline (%d pending)\n", a.Snapshot().PendingCount)
		} else {
			fmt.Println("✓ Status updated")
		}
		return nil
	},
}

var (
	podRecipient string
	podPhotos    []string
	podSignature string
)

var podCmd = &cobra.Command{
	Use:   "pod <job-id>",
	Short: "Submit proof of delivery and mark the job delivered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if podRecipient == "" {
			return fmt.Errorf("--recipient is required")
		}

		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		a, err := oneShotAgent(e)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(e.cfg)
		defer cancel()

		pod := types.PODSubmit{
			RecipientName: podRecipient,
			PhotoURLs:     podPhotos,
			SignatureURL:  podSignature,
		}

		queued, err := a.SubmitPOD(ctx, args[0], pod)
		if err != nil {
			return err
		}
		if queued {
			fmt.Printf("✓ POD saved offline — will sync when connected (%d pending)\n", a.Snapshot().PendingCount)
		} else {
			fmt.Println("✓ Proof of delivery recorded")
		}
		return nil
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatusFilter, "status", "", "Filter by job status")

	podCmd.Flags().StringVar(&podRecipient, "recipient", "", "Name of the person who received the parcel")
	podCmd.Flags().StringSliceVar(&podPhotos, "photo", nil, "Photo URL (repeatable)")
	podCmd.Flags().StringVar(&podSignature, "signature", "", "Signature image URL")
}

// oneShotAgent builds an agent for a single command invocation. The manual
// monitor starts optimistic: the attempt itself discovers unreachability
// and falls back to the queue.
func oneShotAgent(e *env) (*agent.Agent, error) {
	q := queue.New(e.store)
	if _, err := q.Load(); err != nil {
		return nil, err
	}

	monitor := netmon.NewManual(true)
	broker := events.NewBroker()
	flusher := flush.New(q, e.client, broker)
	return agent.New(q, flusher, monitor, broker, e.client), nil
}

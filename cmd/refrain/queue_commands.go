package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sydlexius/refrain/internal/research"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var req enqueueRequest
	cmd := &cobra.Command{
		Use:   "enqueue <song-id> <title>",
		Short: "Queue research for a song on the running server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.serverURL()
			if err != nil {
				return err
			}
			req.ID, req.Name = args[0], args[1]
			job, err := newAPIClient(base).enqueue(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (%q) as job %s\n", job.EntityID, job.EntityName, job.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Artist, "artist", "", "Artist hint")
	cmd.Flags().StringVar(&req.Album, "album", "", "Album hint")
	cmd.Flags().IntVar(&req.Year, "year", 0, "Release year hint")
	return cmd
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List jobs waiting to start",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.serverURL()
			if err != nil {
				return err
			}
			listing, err := newAPIClient(base).queue(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(listing.Jobs) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			fmt.Fprintln(out, renderTable(queueTable(listing.Jobs, time.Now())))
			return nil
		},
	}
}

func queueTable(jobs []research.Job, now time.Time) ([]string, [][]string, []columnAlignment) {
	headers := []string{"#", "Song", "Title", "Queued", "Job"}
	rows := make([][]string, 0, len(jobs))
	for i, j := range jobs {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			j.EntityID,
			j.EntityName,
			humanize.RelTime(j.EnqueuedAt, now, "ago", "from now"),
			j.ID,
		})
	}
	return headers, rows, []columnAlignment{alignRight}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show worker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.serverURL()
			if err != nil {
				return err
			}
			st, err := newAPIClient(base).status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatStatus(st))
			return nil
		},
	}
}

func formatStatus(st research.Status) string {
	state := "stopped"
	if st.WorkerActive {
		state = "running"
	}
	s := fmt.Sprintf("Worker:    %s\nQueued:    %d\nProcessed: %s\nFailed:    %s\n",
		state, st.QueueSize, humanize.Comma(st.Processed), humanize.Comma(st.Failed))
	if st.CurrentJob == nil {
		return s + "Current:   idle\n"
	}
	s += fmt.Sprintf("Current:   %s (%q)\n", st.CurrentJob.EntityID, st.CurrentJob.EntityName)
	if st.Progress != nil {
		s += fmt.Sprintf("Progress:  %s\n", st.Progress)
	}
	return s
}

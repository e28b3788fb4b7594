package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cdfmlr/sham/internal/trace"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newTraceCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "trace <db> [run-id]",
		Short: "List saved runs, or show one run's events",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			st, err := trace.NewSQLiteStore(args[0], logger)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			if len(args) == 1 {
				return listRuns(ctx, cmd.OutOrStdout(), st)
			}
			return showRun(ctx, cmd.OutOrStdout(), st, args[1], kind)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only show events of this kind (schedule, donate, ...)")

	return cmd
}

func listRuns(ctx context.Context, w io.Writer, st trace.Store) error {
	runs, err := st.Runs(ctx)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}

	fmt.Fprintf(w, "%-40s  %-20s  %-8s  %10s  %s\n", "ID", "WORKLOAD", "SCHED", "TICKS", "CREATED")
	for _, r := range runs {
		sched := "priority"
		if r.MLFQS {
			sched = "mlfqs"
		}
		fmt.Fprintf(w, "%-40s  %-20s  %-8s  %10s  %s\n",
			r.ID, r.Workload, sched, humanize.Comma(r.Ticks), humanize.Time(r.CreatedAt))
	}
	return nil
}

func showRun(ctx context.Context, w io.Writer, st trace.Store, id, kind string) error {
	run, err := st.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}
	events, err := st.Events(ctx, id)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	fmt.Fprintf(w, "Run:       %s\n", run.ID)
	fmt.Fprintf(w, "Workload:  %s\n", run.Workload)
	fmt.Fprintf(w, "Finished:  %s\n", strings.Join(run.Order, " "))
	fmt.Fprintf(w, "Ticks:     %s (%s switches)\n", humanize.Comma(run.Ticks), humanize.Comma(run.Switches))
	if run.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", run.Error)
	}

	fmt.Fprintf(w, "\n%6s  %-9s  %4s  %-15s  %s\n", "TICK", "EVENT", "TID", "THREAD", "PRIORITY")
	for _, e := range events {
		if kind != "" && string(e.Kind) != kind {
			continue
		}
		fmt.Fprintf(w, "%6d  %-9s  %4d  %-15s  %d\n", e.Tick, e.Kind, e.TID, e.Name, e.Priority)
	}
	return nil
}

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cdfmlr/sham"
	"github.com/cdfmlr/sham/internal/trace"
	"github.com/cdfmlr/sham/internal/workload"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var options []string
	var maxTicks int64
	var traceDB string

	cmd := &cobra.Command{
		Use:   "run <workload.yaml>",
		Short: "Boot the kernel and run a workload",
		Long: `Boots a fresh kernel, creates the workload's threads and runs them to
completion. Prints the order threads finished in, the messages of log steps
and scheduler statistics. With --trace-db every scheduling event is saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := workload.Load(args[0])
			if err != nil {
				return err
			}

			conf := sham.DefaultConfig()
			conf.Logger = logger
			for _, opt := range options {
				if err := conf.ApplyOption(opt); err != nil {
					return err
				}
			}
			conf.MaxTicks = maxTicks

			rec := trace.NewRecorder()
			conf.Observer = rec

			res, runErr := workload.NewRunner(conf).Run(w)
			printResult(cmd.OutOrStdout(), res, rec)

			if traceDB != "" {
				id, err := saveRun(cmd.Context(), traceDB, res, rec.Events(), runErr)
				if err != nil {
					return fmt.Errorf("save trace: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nTrace saved as %s\n", id)
			}
			return runErr
		},
	}

	cmd.Flags().StringArrayVarP(&options, "option", "o", nil, "Boot option: mlfqs")
	cmd.Flags().Int64Var(&maxTicks, "max-ticks", 0, "Power off after this many ticks (0: workload's max_ticks)")
	cmd.Flags().StringVar(&traceDB, "trace-db", "", "Save the run and its events to this SQLite database")

	return cmd
}

func printResult(w io.Writer, res *workload.Result, rec *trace.Recorder) {
	sched := "priority"
	if res.MLFQS {
		sched = "mlfqs"
	}
	name := res.Workload
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "Workload:  %s (%s)\n", name, sched)
	fmt.Fprintf(w, "Finished:  %s\n", strings.Join(res.Order, " "))

	if len(res.Messages) > 0 {
		fmt.Fprintf(w, "\n%6s %-15s %s\n", "TICK", "THREAD", "MESSAGE")
		for _, m := range res.Messages {
			fmt.Fprintln(w, m)
		}
	}

	s := res.Stats
	fmt.Fprintf(w, "\nTimer: %s ticks\n", humanize.Comma(s.Ticks))
	fmt.Fprintf(w, "Thread: %s idle ticks, %s kernel ticks\n",
		humanize.Comma(s.IdleTicks), humanize.Comma(s.KernelTicks))
	fmt.Fprintf(w, "Switches: %s, events: %s\n",
		humanize.Comma(s.Switches), humanize.Comma(int64(len(rec.Events()))))
	if res.MLFQS {
		fmt.Fprintf(w, "Load avg: %d.%02d\n", res.LoadAvg/100, res.LoadAvg%100)
	}
}

func saveRun(ctx context.Context, dbPath string, res *workload.Result, events []sham.Event, runErr error) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := trace.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return "", err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return "", fmt.Errorf("migrate: %w", err)
	}

	run := &trace.Run{
		Workload:    res.Workload,
		MLFQS:       res.MLFQS,
		Ticks:       res.Stats.Ticks,
		IdleTicks:   res.Stats.IdleTicks,
		KernelTicks: res.Stats.KernelTicks,
		Switches:    res.Stats.Switches,
		Order:       res.Order,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := st.SaveRun(ctx, run, events); err != nil {
		return "", err
	}
	return run.ID, nil
}

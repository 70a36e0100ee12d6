package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/triggerware/triggerware-go/pkg/triggerware"
)

// printDeltas writes each poll's added and deleted rows to stdout.
type printDeltas struct {
	mu sync.Mutex
}

func (p *printDeltas) HandleDelta(added, deleted []triggerware.Row) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, row := range added {
		formatDeltaRow(os.Stdout, "+", addedStyle, row)
	}
	for _, row := range deleted {
		formatDeltaRow(os.Stdout, "-", deletedStyle, row)
	}
}

func (p *printDeltas) HandlePollError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(os.Stderr, styled(deletedStyle, "poll error: "+msg))
}

func newPollCmd(a *app) *cobra.Command {
	var (
		at              int64
		reportInitial   bool
		reportUnchanged bool
		delay           bool
		once            bool
	)

	cmd := &cobra.Command{
		Use:   "poll [expression]",
		Short: "Poll a query on a schedule and print its deltas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(cmd, args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var schedule triggerware.Schedule
			if !once {
				schedule = triggerware.TimeSchedule(at)
			}
			controls := &triggerware.PollControls{
				ReportInitial:   reportInitial,
				ReportUnchanged: reportUnchanged,
				Delay:           delay,
			}

			pq, err := triggerware.NewPolledQuery(ctx, a.client, q, &printDeltas{}, schedule, controls, nil)
			if err != nil {
				return err
			}
			defer pq.Stop()
			slog.DebugContext(ctx, "polled query registered",
				"method", pq.Method(), "handle", pq.Handle())

			if once {
				if err := pq.PollNow(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintln(os.Stderr, styled(dimStyle, "polling, ctrl-c to stop"))

			select {
			case <-ctx.Done():
				return nil
			case <-a.client.RPC().Done():
				return fmt.Errorf("connection closed by server")
			}
		},
	}

	cmd.Flags().String("lang", "fol", "query language: fol or sql")
	cmd.Flags().Int64Var(&at, "at", 60, "integer time schedule sent to the server")
	cmd.Flags().BoolVar(&reportInitial, "report-initial", false, "report the first evaluation as an all-added delta")
	cmd.Flags().BoolVar(&reportUnchanged, "report-unchanged", false, "report polls that found no changes")
	cmd.Flags().BoolVar(&delay, "delay", false, "wait for the first scheduled instant instead of polling immediately")
	cmd.Flags().BoolVar(&once, "once", false, "skip the schedule and poll on demand once")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/triggerware/triggerware-go/pkg/triggerware"
)

// printTuples writes each matched tuple to stdout as it arrives.
type printTuples struct {
	mu     sync.Mutex
	asJSON bool
}

func (p *printTuples) HandleTuple(tuple triggerware.Row) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = formatRow(os.Stdout, tuple, p.asJSON)
}

func newWatchCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "watch [expression]",
		Short: "Subscribe to a query and stream matching tuples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(cmd, args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sub, err := triggerware.NewSubscription(a.client, q, &printTuples{asJSON: asJSON})
			if err != nil {
				return err
			}
			if err := sub.Activate(ctx); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			slog.DebugContext(ctx, "subscription active", "label", sub.Label())
			fmt.Fprintln(os.Stderr, styled(dimStyle, "watching, ctrl-c to stop"))

			select {
			case <-ctx.Done():
			case <-a.client.RPC().Done():
				return fmt.Errorf("connection closed by server")
			}

			// The interrupt context is spent; use a fresh one to unsubscribe.
			return sub.Deactivate(context.Background())
		},
	}

	cmd.Flags().String("lang", "fol", "query language: fol or sql")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tuples as JSON")
	return cmd
}

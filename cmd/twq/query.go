package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/triggerware/triggerware-go/pkg/triggerware"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		limit    int
		timeout  float64
		asJSON   bool
		validate bool
	)

	cmd := &cobra.Command{
		Use:   "query [expression]",
		Short: "Execute a query and print its answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(cmd, args)
			if err != nil {
				return err
			}

			if validate {
				if err := a.client.ValidateQuery(cmd.Context(), q); err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, "query is valid")
				return nil
			}

			var r *triggerware.Restriction
			if limit > 0 || timeout > 0 {
				r = &triggerware.Restriction{RowLimit: limit, Timeout: timeout}
			}

			slog.DebugContext(cmd.Context(), "executing query",
				"language", q.Language, "limit", limit)
			rs, err := a.client.ExecuteQuery(cmd.Context(), q, r)
			if err != nil {
				return fmt.Errorf("execute: %w", err)
			}

			if !asJSON {
				formatSignatureHeader(os.Stdout, rs.Signature())
			}
			count := 0
			for rs.Next(cmd.Context()) {
				if err := formatRow(os.Stdout, rs.Row(), asJSON); err != nil {
					return err
				}
				count++
			}
			if err := rs.Err(); err != nil {
				return fmt.Errorf("fetch: %w", err)
			}
			fmt.Fprintln(os.Stderr, styled(dimStyle, fmt.Sprintf("%d rows", count)))
			return nil
		},
	}

	cmd.Flags().String("lang", "fol", "query language: fol or sql")
	cmd.Flags().IntVar(&limit, "limit", 0, "rows per batch fetch (0 uses the configured default)")
	cmd.Flags().Float64Var(&timeout, "timeout", 0, "server-side time limit in seconds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rows as JSON")
	cmd.Flags().BoolVar(&validate, "validate", false, "validate the query without executing it")
	return cmd
}

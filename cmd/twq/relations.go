package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newRelationsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "relations",
		Short: "List the relations the server publishes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := a.client.RelData(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch catalog: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(groups)
			}

			for _, g := range groups {
				fmt.Println(styled(headerStyle, fmt.Sprintf("%s (%s)", g.Name, g.Symbol)))
				for _, e := range g.Elements {
					cols := make([]string, len(e.SignatureNames))
					for i, n := range e.SignatureNames {
						typ := ""
						if i < len(e.SignatureTypes) {
							typ = ":" + e.SignatureTypes[i]
						}
						cols[i] = n + typ
					}
					fmt.Printf("  %s(%s)\n", e.Name, strings.Join(cols, ", "))
					if e.Description != "" {
						fmt.Println(styled(dimStyle, "    "+e.Description))
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
	return cmd
}

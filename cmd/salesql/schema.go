package main

import (
	"fmt"
	"io"
	"slices"

	"salesql/internal/introspection"
	"salesql/internal/salesmodel"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newSchemaCmd(s *session) *cobra.Command {
	var route string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the fact and dimension tables a route can query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			routes := []salesmodel.Route{salesmodel.RoutePrimary, salesmodel.RouteShipment}
			if route != "" {
				r, ok := salesmodel.ParseRoute(route)
				if !ok {
					return fmt.Errorf("--route must be primary or shipment, got %q", route)
				}
				routes = []salesmodel.Route{r}
			}

			pipeline, release, err := s.open(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			for _, r := range routes {
				candidates := pipeline.Tables.ForRoute(r)
				snap, err := pipeline.Catalog.Snapshot(cmd.Context(), candidates)
				if err != nil {
					return err
				}
				renderSchema(cmd.OutOrStdout(), r, candidates, snap)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&route, "route", "", "Only show one route (primary or shipment)")
	return cmd
}

func renderSchema(w io.Writer, route salesmodel.Route, candidates []string, snap *introspection.Snapshot) {
	_, _ = fmt.Fprintf(w, "route %s (schema %s)\n", route, snap.Schema)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Column", "Type", "Category"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})

	var missing []string
	for _, name := range candidates {
		tbl, ok := snap.Table(name)
		if !ok {
			if !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
			continue
		}
		for _, col := range tbl.Columns {
			t.AppendRow(table.Row{tbl.Name, col.Name, col.DataType, col.Category.String()})
		}
		t.AppendSeparator()
	}
	t.Render()

	if len(missing) > 0 {
		_, _ = fmt.Fprintf(w, "not found: %v\n", missing)
	}
	_, _ = fmt.Fprintln(w)
}

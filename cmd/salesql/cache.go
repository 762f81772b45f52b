package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the distinct-value cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate",
		Short: "Drop every cached distinct-value list for the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pipeline, release, err := s.open(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			if pipeline.Distinct == nil {
				return errors.New("distinct cache is not configured")
			}

			removed, err := pipeline.Distinct.InvalidateAll(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached value lists\n", removed)
			return nil
		},
	})
	return cmd
}

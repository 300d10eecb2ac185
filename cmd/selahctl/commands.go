package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/silktrader/selah/pkg/likes"
	"github.com/silktrader/selah/pkg/themes"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the schema, or verify an existing one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// the schema was applied, or checked, when the database was opened
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s database ready\n", db.Driver())
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:       "reconcile [likes|themes|all]",
	Short:     "Recompute counters from their source tables",
	Long:      `Reconcile realigns like counters with the liked-by sets, and rebuilds theme tallies from saved reflections.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"likes", "themes", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var out = cmd.OutOrStdout()
		var target = args[0]
		eg, ctx := errgroup.WithContext(cmd.Context())

		if target == "likes" || target == "all" {
			eg.Go(func() error {
				corrected, err := likes.NewStore(db).Reconcile(ctx)
				if err != nil {
					return fmt.Errorf("reconciling likes: %w", err)
				}
				_, _ = fmt.Fprintf(out, "likes: %d reflections corrected\n", corrected)
				return nil
			})
		}
		if target == "themes" || target == "all" {
			eg.Go(func() error {
				written, err := themes.NewStore(db).Rebuild(ctx)
				if err != nil {
					return fmt.Errorf("rebuilding themes: %w", err)
				}
				_, _ = fmt.Fprintf(out, "themes: %d tallies rebuilt\n", written)
				return nil
			})
		}
		return eg.Wait()
	},
}

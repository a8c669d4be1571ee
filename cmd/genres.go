package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newGenresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genres",
		Short: "Manage the genre hierarchy table",
	}
	cmd.AddCommand(newGenresBuildCmd(), newGenresExpandCmd())
	return cmd
}

func newGenresBuildCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Crawl the full genre hierarchy and cache it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if !force && a.Genres().CacheValid() {
				fmt.Println("hierarchy table is still fresh; use --force to rebuild")
				return nil
			}
			ctx := cmd.Context()
			if err := a.Scraper().EnsureSession(ctx); err != nil {
				return fmt.Errorf("establish session: %w", err)
			}
			count, err := a.Scraper().BuildGenreHierarchy(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("saved %d genres to %s\n", count, a.Genres().Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "rebuild even when the cached table is fresh")
	return cmd
}

func newGenresExpandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand <genre>...",
		Short: "Expand genres into themselves plus all ancestors, most specific first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			expanded := a.Genres().Expand(args)
			fmt.Println(strings.Join(expanded, "; "))
			return nil
		},
	}
}

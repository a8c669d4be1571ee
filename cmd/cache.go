package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the content cache",
	}
	cmd.AddCommand(newCacheInfoCmd(), newCacheClearCmd())
	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache directory statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			store := a.Cache()
			if store == nil {
				return fmt.Errorf("cache is disabled in configuration")
			}
			stats := store.Info()
			fmt.Println("dir:          ", stats.Dir)
			fmt.Println("html files:   ", stats.HTMLFiles)
			fmt.Println("artist pages: ", stats.ArtistPages)
			fmt.Println("release pages:", stats.ReleasePages)
			fmt.Println("artist ids:   ", stats.ArtistIDs)
			fmt.Printf("total size:    %.1f KiB\n", float64(stats.TotalBytes)/1024)
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached pages and the artist id index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			store := a.Cache()
			if store == nil {
				return fmt.Errorf("cache is disabled in configuration")
			}
			removed := store.Clear()
			fmt.Printf("removed %d cached files\n", removed)
			return nil
		},
	}
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rymeta/internal/scraper"
)

func newLookupCmd() *cobra.Command {
	var (
		year       int
		kind       string
		artistOnly bool
		noFallback bool
	)

	cmd := &cobra.Command{
		Use:   "lookup <artist> [album]",
		Short: "Resolve one artist or release to its genre and descriptor tags",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			s := a.Scraper()
			ctx := cmd.Context()

			if err := s.EnsureSession(ctx); err != nil {
				return fmt.Errorf("establish session: %w", err)
			}

			var meta *scraper.Metadata
			switch {
			case len(args) == 1 || artistOnly:
				meta, err = s.ArtistMetadata(ctx, args[0])
			case noFallback:
				meta, err = s.AlbumMetadata(ctx, args[0], args[1], year, scraper.ReleaseKind(kind))
			default:
				meta, err = s.Lookup(ctx, args[0], args[1], year, scraper.ReleaseKind(kind))
			}
			if err != nil {
				return err
			}
			if meta == nil {
				fmt.Println("not found")
				return nil
			}
			printMetadata(meta)
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "release year, improves match confidence")
	cmd.Flags().StringVar(&kind, "kind", "album", "release kind: album, single, ep, compilation")
	cmd.Flags().BoolVar(&artistOnly, "artist-only", false, "look up artist genres even when an album is given")
	cmd.Flags().BoolVar(&noFallback, "no-artist-fallback", false, "do not fall back to artist genres when the album is missing")

	return cmd
}

func printMetadata(meta *scraper.Metadata) {
	title := meta.Artist
	if meta.Album != "" {
		title += " - " + meta.Album
	}
	fmt.Println(title)
	if meta.URL != "" {
		fmt.Println("  url:", meta.URL)
	}
	if len(meta.Genres) > 0 {
		fmt.Println("  genres:", strings.Join(meta.Genres, "; "))
	}
	if len(meta.Descriptors) > 0 {
		fmt.Println("  descriptors:", strings.Join(meta.Descriptors, "; "))
	}
}

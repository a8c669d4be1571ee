package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rymeta/internal/access"
	"rymeta/internal/scraper"
)

// batchItem is one line of the input file: artist, album, optional year.
type batchItem struct {
	line   int
	artist string
	album  string
	year   int
}

func newBatchCmd() *cobra.Command {
	var (
		concurrency int
		kind        string
	)

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Resolve a tab-separated file of artist/album pairs",
		Long: `Reads tab-separated lines of the form "artist<TAB>album[<TAB>year]" and
resolves each to its genre tags. A blocked identity pool aborts the whole
batch, since nothing after that point can succeed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			items, err := readBatchFile(args[0])
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("no entries in %s", args[0])
			}

			s := a.Scraper()
			log := a.Logger()
			ctx := cmd.Context()
			if err := s.EnsureSession(ctx); err != nil {
				return fmt.Errorf("establish session: %w", err)
			}

			var (
				outMu sync.Mutex
				found int
			)
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(concurrency)
			for _, item := range items {
				g.Go(func() error {
					meta, err := s.Lookup(gctx, item.artist, item.album, item.year, scraper.ReleaseKind(kind))
					if err != nil {
						if errors.Is(err, access.ErrPoolExhausted) {
							return err
						}
						log.Warn("lookup failed",
							zap.Int("line", item.line),
							zap.String("artist", item.artist),
							zap.String("album", item.album),
							zap.Error(err))
						return nil
					}
					outMu.Lock()
					defer outMu.Unlock()
					if meta == nil {
						fmt.Printf("%s\t%s\t-\n", item.artist, item.album)
						return nil
					}
					found++
					fmt.Printf("%s\t%s\t%s\n", item.artist, item.album, strings.Join(meta.Genres, "; "))
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return fmt.Errorf("batch aborted: %w", err)
			}
			log.Info("batch complete",
				zap.Int("total", len(items)), zap.Int("found", found))
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "maximum in-flight lookups")
	cmd.Flags().StringVar(&kind, "kind", "album", "release kind assumed for every entry")

	return cmd
}

func readBatchFile(path string) ([]batchItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []batchItem
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: want artist<TAB>album, got %q", n, line)
		}
		item := batchItem{
			line:   n,
			artist: strings.TrimSpace(fields[0]),
			album:  strings.TrimSpace(fields[1]),
		}
		if len(fields) > 2 {
			if y, err := strconv.Atoi(strings.TrimSpace(fields[2])); err == nil {
				item.year = y
			}
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

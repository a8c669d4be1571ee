// Package cmd wires the CLI. Subcommands pull the initialized application
// out of the command context rather than constructing services themselves,
// so tests can inject a mock app factory.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rymeta/internal/app"
	"rymeta/internal/cache"
	"rymeta/internal/config"
	"rymeta/internal/genres"
	"rymeta/internal/scraper"
	"rymeta/internal/session"
)

var cfgFile string

type appKeyType string

const appKey appKeyType = "app"

// App is the service surface the subcommands use; a mock satisfies it in
// tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Cache() *cache.Store
	Session() *session.Manager
	Genres() *genres.Manager
	Scraper() *scraper.Scraper
}

// newApp is a variable so tests can swap in a mock factory.
var newApp = func(ctx context.Context) (App, error) {
	return app.NewApp(ctx, cfgFile)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rymeta",
		Short: "Music genre and descriptor lookup against a challenge-gated catalog site",
		Long: `rymeta resolves artist and release names to genre and descriptor tags.
It drives a real browser through a rotating egress pool, solves anti-bot
interstitials, rate-limits itself, and caches every page it fetches.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./rymeta.yaml)")

	cmd.AddCommand(newLookupCmd())
	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newGenresCmd())

	return cmd
}

// appFrom retrieves the injected application from the command context.
func appFrom(cmd *cobra.Command) (App, error) {
	a, ok := cmd.Context().Value(appKey).(App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return a, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

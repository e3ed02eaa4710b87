// Package command holds the citysearch CLI.
//
//	citysearch api                      # serve GET /suggestions
//	citysearch web                      # serve the search page
//	citysearch suggest <query>          # query a running API once
//	    [--latitude 45.5 --longitude -73.6]
//
// Every command reads its settings from the environment. --env-file loads a
// dotenv file first; variables already set in the environment win.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/couchcryptid/city-search/internal/adapter/httpadapter"
	"github.com/couchcryptid/city-search/internal/config"
	"github.com/couchcryptid/city-search/internal/observability"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "citysearch",
	Short:         "City autocomplete: suggestions API, search page and CLI client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if envFile == "" {
			return nil
		}
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %q: %w", envFile, err)
		}
		return nil
	},
}

// Execute runs the command selected by the CLI arguments and exits non-zero
// on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before reading configuration")
	rootCmd.AddCommand(apiCmd, webCmd, suggestCmd)
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, observability.NewLogger(cfg), nil
}

// serve runs the servers until ctx is done or one of them fails, then shuts
// all of them down within timeout.
func serve(ctx context.Context, timeout time.Duration, logger *slog.Logger, servers ...*httpadapter.Server) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	if err == nil {
		logger.Info("shutdown complete")
	}
	return err
}

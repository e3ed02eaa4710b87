package command

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/city-search/internal/adapter/httpadapter"
	"github.com/couchcryptid/city-search/internal/catalog"
	"github.com/couchcryptid/city-search/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the city suggestions API",
	Args:  cobra.NoArgs,
	RunE:  runAPI,
}

func runAPI(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()

	cat, err := catalog.Load(cfg.CatalogPath, cfg.CatalogPageSize, logger)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := httpadapter.NewAPIEngine(cfg, cat, metrics, logger)
	srv := httpadapter.NewServer(cfg.APIAddr, engine, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg.ShutdownTimeout, logger, srv)
}

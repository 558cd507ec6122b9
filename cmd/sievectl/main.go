package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/citysieve/internal/config"
	"github.com/couchcryptid/citysieve/internal/observability"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sievectl",
	Short: "Find and score UK neighbourhoods from the command line",
	Long:  "Generates candidate grids, rescores enriched area profiles and runs live neighbourhood searches against OpenStreetMap and postcodes.io.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		logger = observability.NewLogger(cfg)
		return nil
	},
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

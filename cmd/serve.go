package cmd

import (
	"fmt"

	"github.com/Yates-Labs/lore/internal/api"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve character lookup and passage search over HTTP",
	Long: `Run an HTTP server over the configured store.

Routes:
  GET  /healthz
  GET  /api/search?q=<query>&limit=<n>
  POST /api/characters   {"name": "Alice"}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pipeline, err := openPipeline(ctx, false)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	addr := pipeline.Config().Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	if err := api.Serve(ctx, addr, pipeline); err != nil {
		return fmt.Errorf("%s server stopped: %w", errorStyle.Render("Error:"), err)
	}
	return nil
}

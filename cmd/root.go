package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Yates-Labs/lore/internal/config"
	"github.com/Yates-Labs/lore/internal/orchestrator"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lore",
	Short: "Lore - Character lookup over a story corpus",
	Long: `Lore indexes a directory of stories into a vector store and answers
questions about the characters in them.

Story files are split into overlapping chunks and embedded. A character
lookup retrieves the most relevant passages and asks a language model for
a structured description: summary, relations and character type.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to lore.yaml (default $LORE_CONFIG or ./lore.yaml)")
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the configuration and, when requireCredential is set or
// the embedder calls the remote API, checks the credential before any work.
func loadConfig(requireCredential bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("%s failed to load configuration: %w", errorStyle.Render("Error:"), err)
	}
	if requireCredential || cfg.NeedsCredential() {
		if err := cfg.RequireCredential(); err != nil {
			return nil, fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
		}
	}
	return cfg, nil
}

// openPipeline loads the configuration and opens the pipeline it describes.
func openPipeline(ctx context.Context, requireCredential bool) (*orchestrator.Pipeline, error) {
	cfg, err := loadConfig(requireCredential)
	if err != nil {
		return nil, err
	}
	pipeline, err := orchestrator.NewPipeline(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s failed to open pipeline: %w", errorStyle.Render("Error:"), err)
	}
	return pipeline, nil
}

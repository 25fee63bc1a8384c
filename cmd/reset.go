package cmd

import (
	"fmt"

	"github.com/Yates-Labs/lore/internal/orchestrator"
	"github.com/spf13/cobra"
)

var resetDatabaseCmd = &cobra.Command{
	Use:   "reset-database",
	Short: "Delete every stored chunk and embedding",
	Long: `Irreversibly delete the configured collection: every chunk, its
embedding and the recorded embedding model. The next compute-embeddings
run starts from an empty store.`,
	Args: cobra.NoArgs,
	RunE: runResetDatabase,
}

func init() {
	rootCmd.AddCommand(resetDatabaseCmd)
}

func runResetDatabase(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	pipeline, err := orchestrator.NewPipeline(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error resetting database:"), err)
	}
	defer pipeline.Close()

	if err := pipeline.Reset(ctx); err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error resetting database:"), err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Database reset successfully"))
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the vector store backend, record count and embedding model",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	pipeline, err := openPipeline(ctx, false)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	stats, err := pipeline.Stats(ctx)
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}

	recorded := "none"
	if !stats.Spec.IsZero() {
		recorded = stats.Spec.String()
	}

	const labelWidth = 12
	label := headerStyle.Width(labelWidth)
	rows := [][2]string{
		{"BACKEND", titleStyle.Render(stats.Backend)},
		{"COLLECTION", titleStyle.Render(stats.Collection)},
		{"RECORDS", numberStyle.Render(fmt.Sprintf("%d", stats.Records))},
		{"STORED WITH", textStyle.Render(recorded)},
		{"EMBEDDER", textStyle.Render(stats.Embedder.String())},
	}
	for _, row := range rows {
		fmt.Fprintln(out, label.Render(row[0])+mutedStyle.Render("│ ")+row[1])
	}

	if !stats.Spec.IsZero() && stats.Spec != stats.Embedder {
		fmt.Fprintln(out)
		fmt.Fprintln(out, errorStyle.Render("The configured embedder differs from the one the collection was written with; reset the database or restore the embedder."))
	}
	return nil
}

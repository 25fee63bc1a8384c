package cmd

import (
	"fmt"

	"github.com/Yates-Labs/lore/internal/orchestrator"
	"github.com/spf13/cobra"
)

var (
	reindexStories  bool
	storyExtensions []string
)

var computeEmbeddingsCmd = &cobra.Command{
	Use:   "compute-embeddings <stories_dir>",
	Short: "Chunk, embed and store every story in a directory",
	Long: `Read every story file in a directory, split it into overlapping chunks
and store the chunk embeddings in the configured vector store.

The story title is the file name without its extension. A story that is
already stored is skipped with an error unless --reindex is given, which
replaces its chunks. A git URL is cloned first; append #dir to select a
directory inside the repository.

Examples:
  lore compute-embeddings ./stories
  lore compute-embeddings ./stories --reindex --ext .txt --ext .md
  lore compute-embeddings https://github.com/user/stories#books`,
	Args: cobra.ExactArgs(1),
	RunE: runComputeEmbeddings,
}

func init() {
	rootCmd.AddCommand(computeEmbeddingsCmd)
	computeEmbeddingsCmd.Flags().BoolVar(&reindexStories, "reindex", false, "Replace stories that are already stored")
	computeEmbeddingsCmd.Flags().StringSliceVar(&storyExtensions, "ext", nil, "Story file extension to read (repeatable, default from config)")
}

func runComputeEmbeddings(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	pipeline, err := openPipeline(ctx, true)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	report, err := pipeline.ComputeEmbeddings(ctx, args[0], orchestrator.IngestOptions{
		Reindex:    reindexStories,
		Extensions: storyExtensions,
	})
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}

	for _, r := range report.Results {
		if r.Err != nil {
			fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("Failed %s: %v", r.Path, r.Err)))
			continue
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Processed %s: %d chunks", r.StoryTitle, r.Chunks)))
	}

	failed := len(report.Failed())
	fmt.Fprintln(out)
	fmt.Fprintln(out, summaryStyle.Render(fmt.Sprintf("Total: %d stories, %d chunks, %d failed",
		len(report.Succeeded()), report.TotalChunks(), failed)))

	if failed > 0 {
		return fmt.Errorf("%s %d of %d stories failed to ingest", errorStyle.Render("Error:"), failed, len(report.Results))
	}
	return nil
}

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Yates-Labs/lore/internal/narrative"
	"github.com/Yates-Labs/lore/internal/orchestrator"
	"github.com/spf13/cobra"
)

var characterLimit int

var getCharacterInfoCmd = &cobra.Command{
	Use:   "get-character-info <character_name>",
	Short: "Describe a character from the indexed stories",
	Long: `Search the indexed stories for a character and ask the language model
for a structured description as JSON:

  name, storyTitle, summary, relations [{name, relation}], characterType

The story is the one holding the most similar passage.

Required environment variables:
  OPENAI_API_KEY     - credential for the extraction model

Examples:
  lore get-character-info "Alice"
  lore get-character-info "Captain Nemo" --limit 8`,
	Args: cobra.ExactArgs(1),
	RunE: runGetCharacterInfo,
}

func init() {
	rootCmd.AddCommand(getCharacterInfoCmd)
	getCharacterInfoCmd.Flags().IntVar(&characterLimit, "limit", 0, "Number of passages to retrieve (default from config)")
}

func runGetCharacterInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	name := args[0]

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if characterLimit > 0 {
		cfg.Search.Limit = characterLimit
	}

	pipeline, err := orchestrator.NewPipeline(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s failed to open pipeline: %w", errorStyle.Render("Error:"), err)
	}
	defer pipeline.Close()

	matches, err := pipeline.FindCharacter(ctx, name)
	if errors.Is(err, orchestrator.ErrNoMatches) {
		return fmt.Errorf("%s Character '%s' not found in any story", errorStyle.Render("Error:"), name)
	}
	if err != nil {
		return fmt.Errorf("%s search failed: %w", errorStyle.Render("Error:"), err)
	}

	storyTitle := matches[0].Metadata.StoryTitle
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Searching for information about '%s' in %s...", name, storyTitle)))

	result, err := pipeline.ExtractCharacter(ctx, name, matches)
	switch {
	case errors.Is(err, narrative.ErrCharacterNotFound):
		return fmt.Errorf("%s Could not extract information for character '%s': the model found no mention of it in %s",
			errorStyle.Render("Error:"), name, storyTitle)
	case err != nil:
		return fmt.Errorf("%s Could not extract information for character '%s': %w", errorStyle.Render("Error:"), name, err)
	}

	data, err := json.MarshalIndent(result.Info, "", "  ")
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, headerStyle.Render("Character Information:"))
	fmt.Fprintln(out, string(data))
	return nil
}

package narrative

import (
	"strings"
)

// DefaultMaxContext is the context length, in characters, above which
// passages are truncated.
const DefaultMaxContext = 30000

const characterPromptTemplate = `Task: Extract information about the character {{character_name}} from the following story context.

Story Title: {{story_title}}

Context:
{{context}}

Instructions:
1. If the character is not found in the context, return exactly: {"error": "Character not found"}
2. If the character is found, provide information in the following JSON format:
{
    "name": "{{character_name}}",
    "storyTitle": "{{story_title}}",
    "summary": "Brief description of the character's role and journey in the story",
    "relations": [
        {"name": "Name of related character", "relation": "Type of relationship"}
    ],
    "characterType": "One of: protagonist, antagonist, supporting character"
}

Important: Ensure the output is valid JSON format. Include only information that is explicitly mentioned in or can be directly inferred from the context.
`

// BuildContext joins passages with newlines. Text longer than maxChars is cut
// at maxChars characters and "..." is appended. maxChars <= 0 disables the cut.
func BuildContext(chunks []string, maxChars int) string {
	joined := strings.Join(chunks, "\n")
	if maxChars <= 0 {
		return joined
	}

	runes := []rune(joined)
	if len(runes) <= maxChars {
		return joined
	}
	return string(runes[:maxChars]) + "..."
}

// AssembleCharacterPrompt fills the extraction template.
func AssembleCharacterPrompt(characterName, storyTitle, context string) string {
	r := strings.NewReplacer(
		"{{character_name}}", characterName,
		"{{story_title}}", storyTitle,
		"{{context}}", context,
	)
	return r.Replace(characterPromptTemplate)
}

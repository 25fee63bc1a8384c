package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
)

var (
	ErrCharacterNotFound = errors.New("character not found")
	ErrExtractionFailed  = errors.New("character extraction failed")
	ErrMalformedReply    = errors.New("malformed model reply")
)

// Extractor turns story passages into a CharacterInfo using an LLM.
type Extractor struct {
	llm        LLM
	maxContext int
}

// NewExtractor creates an extractor. maxContext <= 0 selects DefaultMaxContext.
func NewExtractor(llm LLM, maxContext int) (*Extractor, error) {
	if llm == nil {
		return nil, fmt.Errorf("%w: LLM is required", ErrInvalidConfig)
	}
	if maxContext <= 0 {
		maxContext = DefaultMaxContext
	}
	return &Extractor{llm: llm, maxContext: maxContext}, nil
}

// Extract asks the model about characterName in the given passages of
// storyTitle. It returns ErrCharacterNotFound when the model reports the
// character absent, and ErrExtractionFailed wrapping ErrLLMFailed or
// ErrMalformedReply when no usable answer was produced.
func (e *Extractor) Extract(ctx context.Context, characterName string, chunks []string, storyTitle string) (*CharacterInfo, error) {
	prompt := AssembleCharacterPrompt(characterName, storyTitle, BuildContext(chunks, e.maxContext))

	reply, err := e.llm.Generate(ctx, prompt)
	if err != nil {
		log.Printf("[Extractor] Model call failed for %q: %v", characterName, err)
		if !errors.Is(err, ErrLLMFailed) {
			err = fmt.Errorf("%w: %w", ErrLLMFailed, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	info, err := ParseCharacterReply(reply, storyTitle)
	if err != nil {
		if errors.Is(err, ErrCharacterNotFound) {
			log.Printf("[Extractor] Character search result: %q not found in %s", characterName, storyTitle)
			return nil, err
		}
		log.Printf("[Extractor] Failed to parse reply for %q: %v", characterName, err)
		log.Printf("[Extractor] Raw response: %s", reply)
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return info, nil
}

// characterReply is the union of the two shapes the prompt allows.
type characterReply struct {
	Error *string `json:"error"`
	CharacterInfo
}

// ParseCharacterReply decodes a model reply. Markdown fences and prose around
// the outermost JSON object are ignored. An empty storyTitle in the reply is
// filled from storyTitle.
func ParseCharacterReply(reply, storyTitle string) (*CharacterInfo, error) {
	raw, ok := extractJSONObject(reply)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedReply)
	}

	var parsed characterReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}

	if parsed.Error != nil {
		return nil, ErrCharacterNotFound
	}

	info := parsed.CharacterInfo
	info.CharacterType = strings.ToLower(strings.TrimSpace(info.CharacterType))
	if info.StoryTitle == "" {
		info.StoryTitle = storyTitle
	}
	if info.Relations == nil {
		info.Relations = []Relation{}
	}

	switch {
	case strings.TrimSpace(info.Name) == "":
		return nil, fmt.Errorf("%w: missing name", ErrMalformedReply)
	case strings.TrimSpace(info.Summary) == "":
		return nil, fmt.Errorf("%w: missing summary", ErrMalformedReply)
	case !ValidCharacterType(info.CharacterType):
		return nil, fmt.Errorf("%w: unknown characterType %q", ErrMalformedReply, info.CharacterType)
	}
	return &info, nil
}

// extractJSONObject returns the text from the first '{' to the last '}'.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

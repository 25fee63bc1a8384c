package api

import (
	"strings"

	"github.com/Yates-Labs/lore/internal/orchestrator"
	"github.com/gofiber/fiber/v2"
)

type CheckHandler struct{}

func NewCheckHandler() *CheckHandler {
	return &CheckHandler{}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

// CharacterHandler serves character lookups and passage search.
type CharacterHandler struct {
	pipeline *orchestrator.Pipeline
}

func NewCharacterHandler(pipeline *orchestrator.Pipeline) *CharacterHandler {
	return &CharacterHandler{pipeline: pipeline}
}

// HandleGetCharacter answers POST /api/characters with the CharacterInfo.
func (h *CharacterHandler) HandleGetCharacter(c *fiber.Ctx) error {
	var params CharacterParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	params.Name = strings.TrimSpace(params.Name)

	if errors := params.Validate(); len(errors) > 0 {
		return NewValidationError(errors)
	}

	result, err := h.pipeline.GetCharacterInfo(c.UserContext(), params.Name)
	if err != nil {
		return err
	}
	return c.JSON(result.Info)
}

// HandleSearch answers GET /api/search?q=&limit=.
func (h *CharacterHandler) HandleSearch(c *fiber.Ctx) error {
	var params SearchParams
	if err := c.QueryParser(&params); err != nil {
		return NewValidationError(map[string]string{"limit": "must be an integer"})
	}
	params.Query = strings.TrimSpace(params.Query)

	if errors := params.Validate(); len(errors) > 0 {
		return NewValidationError(errors)
	}

	matches, err := h.pipeline.Search(c.UserContext(), params.Query, params.Limit)
	if err != nil {
		return err
	}

	resp := SearchResponse{Query: params.Query, Matches: make([]Source, len(matches))}
	for i, m := range matches {
		resp.Matches[i] = Source{
			ID:         m.ID,
			StoryTitle: m.Metadata.StoryTitle,
			ChunkID:    m.Metadata.ChunkID,
			Text:       m.Text,
			Score:      m.Score,
		}
	}
	return c.JSON(resp)
}

package api

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

// CharacterParams is the body of POST /api/characters.
type CharacterParams struct {
	Name string `json:"name" validate:"required,max=200"`
}

// SearchParams are the query parameters of GET /api/search.
type SearchParams struct {
	Query string `query:"q" validate:"required,max=1000"`
	Limit int    `query:"limit" validate:"omitempty,min=1,max=50"`
}

func (params *CharacterParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *SearchParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(v any) map[string]string {
	if err := validate.Struct(v); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

// SearchResponse lists matching passages, most similar first.
type SearchResponse struct {
	Query   string   `json:"query"`
	Matches []Source `json:"matches"`
}

type Source struct {
	ID         string  `json:"id"`
	StoryTitle string  `json:"story_title"`
	ChunkID    int     `json:"chunk_id"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

package narrative

// Character types accepted in CharacterInfo.CharacterType.
const (
	Protagonist         = "protagonist"
	Antagonist          = "antagonist"
	SupportingCharacter = "supporting character"
)

// Relation links a character to another character in the same story.
type Relation struct {
	Name     string `json:"name"`
	Relation string `json:"relation"`
}

// CharacterInfo is the structured description extracted for one character.
type CharacterInfo struct {
	Name          string     `json:"name"`
	StoryTitle    string     `json:"storyTitle"`
	Summary       string     `json:"summary"`
	Relations     []Relation `json:"relations"`
	CharacterType string     `json:"characterType"`
}

// ValidCharacterType reports whether t is one of the known character types.
func ValidCharacterType(t string) bool {
	switch t {
	case Protagonist, Antagonist, SupportingCharacter:
		return true
	}
	return false
}

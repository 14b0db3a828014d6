package character

import (
	"fmt"

	"github.com/tmc/langchaingo/outputparser"
	"github.com/tmc/langchaingo/prompts"
)

const verifyTemplate = `Analyze the following story and determine if the character '{{.character_name}}' is present.

Story:
{{.story_text}}

{{.format_instructions}}

Respond with 1 if the character is in the story, 0 if not, under the key character_present.
Respond with the JSON object only.`

const extractTemplate = `Analyze the following story and extract comprehensive information about the character '{{.character_name}}'.

Story title: {{.story_title}}

Story:
{{.story_text}}

{{.format_instructions}}

Provide a detailed JSON response with:
- Character's full name
- Story title
- Character's role and journey summary
- The character's relationships with other characters in the story, for example:
  [{"name": "Arya Stark", "relation": "Sister"}, {"name": "Eddard Stark", "relation": "Father"}]
- Character type (protagonist, antagonist, side character, etc.)

Use exactly the keys name, storyTitle, summary, relations and characterType.
Don't add any extra field to the JSON format. If the character is not found, return an empty JSON object {}.`

// Prompts renders the verification and extraction prompts. Format
// instructions are generated from the response schemas.
type Prompts struct {
	verify  prompts.PromptTemplate
	extract prompts.PromptTemplate
}

// NewPrompts builds both templates
func NewPrompts() (*Prompts, error) {
	presenceParser, err := outputparser.NewDefined(presence{})
	if err != nil {
		return nil, fmt.Errorf("failed to build verification schema: %w", err)
	}
	profileParser, err := outputparser.NewDefined(Profile{})
	if err != nil {
		return nil, fmt.Errorf("failed to build profile schema: %w", err)
	}

	verify := prompts.NewPromptTemplate(verifyTemplate, []string{"story_text", "character_name"})
	verify.PartialVariables = map[string]any{
		"format_instructions": presenceParser.GetFormatInstructions(),
	}

	extract := prompts.NewPromptTemplate(extractTemplate, []string{"story_title", "story_text", "character_name"})
	extract.PartialVariables = map[string]any{
		"format_instructions": profileParser.GetFormatInstructions(),
	}

	return &Prompts{verify: verify, extract: extract}, nil
}

// Verify renders the verification prompt
func (p *Prompts) Verify(storyText, characterName string) (string, error) {
	return p.verify.Format(map[string]any{
		"story_text":     storyText,
		"character_name": characterName,
	})
}

// Extract renders the extraction prompt
func (p *Prompts) Extract(storyTitle, storyText, characterName string) (string, error) {
	return p.extract.Format(map[string]any{
		"story_title":    storyTitle,
		"story_text":     storyText,
		"character_name": characterName,
	})
}

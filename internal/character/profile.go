// Package character asks a language model whether a character appears in a
// story and, if so, extracts a structured profile. Model output is strictly
// validated; failures are reported in result values rather than returned.
package character

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/Yates-Labs/dramatis/internal/story"
)

var (
	ErrModelCallFailed = errors.New("model call failed")
	ErrSchemaViolation = errors.New("model response violates schema")
)

// Relation links the profiled character to another character.
type Relation struct {
	Name     string `json:"name" describe:"Name of the related character"`
	Relation string `json:"relation" describe:"How they are related, e.g. Sister or Father"`
}

// Profile is the structured description of a character in one story.
type Profile struct {
	Name          string     `json:"name" describe:"Full name of the character"`
	StoryTitle    string     `json:"storyTitle" describe:"Title of the story"`
	Summary       string     `json:"summary" describe:"Brief summary of the character's story"`
	Relations     []Relation `json:"relations" describe:"List of character's relationships with other characters in story"`
	CharacterType string     `json:"characterType" describe:"Character's role in the story (protagonist, antagonist, side character, etc.)"`
}

// presence is the verification response schema.
type presence struct {
	CharacterPresent int `json:"character_present" describe:"1 if character exists in the story, 0 if not"`
}

// Verdict is the outcome of one verification call. Present is false both
// when the model says the character is absent and when the call failed;
// Err distinguishes the two.
type Verdict struct {
	Present bool
	Err     error
}

// Failed reports whether the verdict came from a failed call
func (v Verdict) Failed() bool {
	return v.Err != nil
}

// Extraction is the outcome of one extraction call. Profile is nil when
// the model returned an empty object or the call failed.
type Extraction struct {
	Profile *Profile
	Err     error
}

// Found reports whether a profile was extracted
func (e Extraction) Found() bool {
	return e.Profile != nil
}

// ProfileFileName returns "<name>_info.json" with path separators replaced.
func ProfileFileName(characterName string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", string(filepath.Separator), "_").Replace(characterName)
	return safe + "_info.json"
}

// SaveProfile writes the profile to dir/<name>_info.json and returns the path.
func SaveProfile(profile *Profile, characterName, dir string) (string, error) {
	path := filepath.Join(dir, ProfileFileName(characterName))
	if err := story.SaveJSON(profile, path); err != nil {
		return "", err
	}
	return path, nil
}

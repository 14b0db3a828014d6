package rag

import (
	"sort"

	"github.com/Yates-Labs/dramatis/internal/rag/store"
)

// Candidate is a story that appeared in search results, with the number
// of matched chunks it contributed.
type Candidate struct {
	StoryTitle string `json:"story_title"`
	Count      int    `json:"count"`
}

// Rank groups matches by story title and orders stories by descending
// match count. Ties keep the order in which a story first appeared.
func Rank(matches []store.Match) []Candidate {
	candidates := make([]Candidate, 0, len(matches))
	position := make(map[string]int, len(matches))

	for _, m := range matches {
		title := m.Record.StoryTitle
		if i, ok := position[title]; ok {
			candidates[i].Count++
			continue
		}
		position[title] = len(candidates)
		candidates = append(candidates, Candidate{StoryTitle: title, Count: 1})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Count > candidates[j].Count
	})
	return candidates
}

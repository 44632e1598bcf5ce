package search

import (
	"strings"

	"gamereview/searchservice/internal/domain"
)

// Content policy stages, in evaluation order. Stage names show up in
// structured exclusion events and metrics labels.
const (
	stageRedlight   = "redlight"
	stageCategory   = "category"
	stageFanContent = "fan_content"
	stageRelevance  = "relevance"
)

// editionKeywords mark bundle-category entries that are really just a retail
// edition of a single game, not a multi-game compilation.
var editionKeywords = []string{
	"edition", "goty", "game of the year", "definitive", "complete",
	"deluxe", "remastered", "anniversary", "collector",
}

// compilationKeywords push a bundle the other way: clear multi-game sets.
var compilationKeywords = []string{
	"collection", "trilogy", "anthology", "bundle", "compilation", "all-stars",
}

// fanContentTokens indicate mods, romhacks and other unofficial releases.
var fanContentTokens = map[string]struct{}{
	"mod": {}, "mods": {}, "hack": {}, "romhack": {}, "rom": {},
	"fan": {}, "fangame": {}, "fanmade": {}, "homebrew": {}, "unofficial": {},
	"translation": {}, "patch": {}, "demake": {},
}

// excludedByPolicy evaluates the sequential predicate stages for one
// candidate. It returns the name of the first failing stage. Greenlight skips
// every stage except the absolute redlight exclusion. The relevance-threshold
// stage lives in the scoring pass because it needs the computed score.
func excludedByPolicy(game domain.Game) (string, bool) {
	if game.Redlight {
		return stageRedlight, true
	}
	if game.Greenlight {
		return "", false
	}
	if excludedByCategory(game) {
		return stageCategory, true
	}
	if looksLikeFanContent(game) {
		return stageFanContent, true
	}
	return "", false
}

func excludedByCategory(game domain.Game) bool {
	switch game.Category {
	case domain.CategorySeason, domain.CategoryMod:
		return true
	case domain.CategoryBundle:
		return !isStandardEdition(game.Name)
	default:
		return false
	}
}

// isStandardEdition applies the name-keyword heuristic: a bundle named like a
// retail edition stays, a true compilation goes.
func isStandardEdition(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range compilationKeywords {
		if strings.Contains(lower, keyword) {
			return false
		}
	}
	for _, keyword := range editionKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// looksLikeFanContent token-matches name, developer and summary against the
// curated unofficial-release indicators. Token-level matching keeps "Modern
// Warfare" from tripping on "mod".
func looksLikeFanContent(game domain.Game) bool {
	for _, field := range []string{game.Name, game.Developer, game.Summary} {
		if field == "" {
			continue
		}
		for _, token := range strings.Fields(normalizeName(field)) {
			if _, ok := fanContentTokens[token]; ok {
				return true
			}
		}
	}
	return false
}

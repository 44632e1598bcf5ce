package search

import (
	"strconv"

	"gamereview/searchservice/internal/domain"
)

// dedupeKey identifies a candidate across sources: external provider ID when
// present, otherwise the normalized name.
func dedupeKey(game domain.Game) string {
	if game.ExternalID > 0 {
		return "ext:" + strconv.FormatInt(game.ExternalID, 10)
	}
	if name := normalizeName(game.Name); name != "" {
		return "name:" + name
	}
	return ""
}

// dedupe merges candidates from multiple sources into a unique-by-identity
// list, preserving first-seen order. On identity conflict the catalog copy
// wins over an external one regardless of arrival order, since it already
// carries local rating aggregates.
func dedupe(games []domain.Game) []domain.Game {
	out := make([]domain.Game, 0, len(games))
	byKey := make(map[string]int, len(games))
	// Names bridge the case where the catalog copy has no external ID
	// recorded yet; they never merge two candidates that both carry one.
	byName := make(map[string]int, len(games))

	for _, game := range games {
		key := dedupeKey(game)
		if key == "" {
			continue
		}
		name := normalizeName(game.Name)

		index, exists := byKey[key]
		if !exists && name != "" {
			// Distinct provider IDs are distinct games even under the same
			// title; the name is only identity when one side lacks an ID.
			if at, ok := byName[name]; ok && (game.ExternalID == 0 || out[at].ExternalID == 0) {
				index, exists = at, true
			}
		}
		if !exists {
			out = append(out, game)
			position := len(out) - 1
			byKey[key] = position
			if name != "" {
				if _, taken := byName[name]; !taken {
					byName[name] = position
				}
			}
			continue
		}

		// First occurrence wins unless the newcomer is the authoritative
		// catalog copy replacing an external duplicate.
		if out[index].Source != domain.SourceCatalog && game.Source == domain.SourceCatalog {
			out[index] = game
		}
		byKey[key] = index
	}
	return out
}

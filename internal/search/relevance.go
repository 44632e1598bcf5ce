package search

import (
	"strings"

	"gamereview/searchservice/internal/domain"
)

// Name-match bands. The band is kept alongside the normalized fraction
// because the sort comparator needs to know when two candidates are both
// near-exact title matches.
const (
	bandExact     = 1000
	bandPrefix    = 950
	bandSubstring = 900
	bandWordMax   = 800

	// highSimilarityBand marks a near-exact title match; when two candidates
	// both reach it, category/priority decides before raw relevance so a main
	// game outranks its own DLC.
	highSimilarityBand = 900
)

// Secondary signal weights, all strictly below the name bands.
const (
	weightCompany = 150
	weightSummary = 100
	weightGenre   = 80

	franchiseBonusMain = 120
	franchiseBonusSide = 60
)

// Dynamic relevance thresholds. Franchise queries are scored more permissively
// so loosely matching sequels and spin-offs still surface. Tuned by trial and
// error; tunable constants, not contracts.
const (
	thresholdFranchise = 0.08
	thresholdSequel    = 0.12
	thresholdGeneric   = 0.15
)

// rightsHolders is the curated list of major franchise publishers/developers
// whose main-game titles receive a franchise bonus.
var rightsHolders = []string{
	"nintendo", "sega", "capcom", "square enix", "konami",
	"rockstar", "bethesda", "fromsoftware", "bandai namco", "valve",
	"sony interactive", "microsoft", "activision", "blizzard", "ubisoft",
}

type queryMeta struct {
	normalized  string
	words       []string
	franchise   string
	isFranchise bool
	isSequel    bool
}

func parseQueryMeta(raw string) queryMeta {
	normalized := normalizeQuery(raw)
	meta := queryMeta{
		normalized: normalized,
		words:      strings.Fields(normalized),
	}
	if key, ok := matchedFranchise(normalized); ok {
		meta.franchise = key
		meta.isFranchise = true
	}
	if _, ok := sequelBase(normalized); ok {
		meta.isSequel = true
	}
	return meta
}

// relevanceThreshold picks the minimum relevance fraction a candidate must
// reach to stay in the result set.
func relevanceThreshold(meta queryMeta) float64 {
	switch {
	case meta.isFranchise:
		return thresholdFranchise
	case meta.isSequel:
		return thresholdSequel
	default:
		return thresholdGeneric
	}
}

// relevanceScore computes the normalized 0..1 relevance fraction for a
// (candidate, query) pair plus the raw name band. Pure; no I/O.
func relevanceScore(meta queryMeta, game domain.Game) (float64, int) {
	if meta.normalized == "" {
		return 0, 0
	}

	name := normalizeName(game.Name)
	band := nameBand(meta, name)

	score := float64(band)
	max := float64(bandExact)

	if company := strings.ToLower(game.Developer + " " + game.Publisher); strings.TrimSpace(company) != "" {
		max += weightCompany
		if strings.Contains(company, meta.normalized) || anyWordIn(meta.words, company) {
			score += weightCompany
		}
	}
	if summary := strings.ToLower(game.Summary); summary != "" {
		max += weightSummary
		if strings.Contains(summary, meta.normalized) {
			score += weightSummary
		}
	}
	if len(game.Genres) > 0 {
		max += weightGenre
		for _, genre := range game.Genres {
			if containsFold(genre, meta.normalized) || containsFold(meta.normalized, genre) {
				score += weightGenre
				break
			}
		}
	}

	if bonus := franchiseBonus(game); bonus > 0 {
		score += float64(bonus)
		max += float64(bonus)
	}

	if max <= 0 {
		return 0, band
	}
	fraction := score / max
	if fraction > 1 {
		fraction = 1
	}
	return fraction, band
}

// nameBand scores the title match itself: exact, prefix, substring, then a
// proportional word-overlap band.
func nameBand(meta queryMeta, normalizedName string) int {
	if normalizedName == "" {
		return 0
	}
	switch {
	case normalizedName == meta.normalized:
		return bandExact
	case strings.HasPrefix(normalizedName, meta.normalized+" "):
		return bandPrefix
	case strings.Contains(normalizedName, meta.normalized):
		return bandSubstring
	}

	if len(meta.words) == 0 {
		return 0
	}
	nameWords := strings.Fields(normalizedName)
	matched := 0
	for _, queryWord := range meta.words {
		for _, nameWord := range nameWords {
			if strings.Contains(nameWord, queryWord) || strings.Contains(queryWord, nameWord) {
				matched++
				break
			}
		}
	}
	return matched * bandWordMax / len(meta.words)
}

func franchiseBonus(game domain.Game) int {
	company := strings.ToLower(game.Developer + " " + game.Publisher)
	holder := false
	for _, candidate := range rightsHolders {
		if strings.Contains(company, candidate) {
			holder = true
			break
		}
	}
	if !holder {
		return 0
	}
	if game.Category == domain.CategoryMainGame || game.Category == domain.CategoryRemake || game.Category == domain.CategoryRemaster {
		return franchiseBonusMain
	}
	return franchiseBonusSide
}

func anyWordIn(words []string, haystack string) bool {
	for _, word := range words {
		if len(word) >= 3 && strings.Contains(haystack, word) {
			return true
		}
	}
	return false
}

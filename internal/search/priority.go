package search

import (
	"math"

	"gamereview/searchservice/internal/domain"
)

// Priority is the query-independent desirability score used as the secondary
// sort key. Bounded to 0..priorityMax.
const (
	priorityMax = 1000.0

	ratingComponentMax     = 400.0
	authorityComponentMax  = 200.0
	engagementComponentMax = 150.0
	flagshipBonus          = 150.0

	// Ratings below the floor contribute almost nothing; above the knee the
	// curve flattens out.
	ratingFloor = 40.0
	ratingKnee  = 85.0

	// Fixed tier penalty for add-on content (DLC, bundles, seasons, episodes).
	sideContentPenalty = 250.0
)

// flagshipTitles names each franchise's most famous entries (normalized).
var flagshipTitles = map[string]struct{}{
	"super mario bros":                       {},
	"super mario 64":                         {},
	"super mario odyssey":                    {},
	"mario kart 8":                           {},
	"the legend of zelda ocarina of time":    {},
	"the legend of zelda breath of the wild": {},
	"pokemon red":                            {},
	"pokemon gold":                           {},
	"final fantasy vii":                      {},
	"sonic the hedgehog":                     {},
	"halo combat evolved":                    {},
	"metroid prime":                          {},
	"mega man 2":                             {},
	"street fighter ii":                      {},
	"grand theft auto v":                     {},
	"the elder scrolls v skyrim":             {},
	"dark souls":                             {},
	"castlevania symphony of the night":      {},
}

// priorityScore computes the tiered desirability score from catalog metadata.
// Greenlight short-circuits to the maximum tier; redlighted candidates must be
// excluded before scoring and are given zero defensively here.
func priorityScore(game domain.Game) float64 {
	if game.Redlight {
		return 0
	}
	if game.Greenlight {
		return priorityMax
	}

	score := ratingComponent(game.Rating) +
		authorityComponent(game.RatingCount) +
		engagementComponent(game.Follows, game.Hypes)

	if _, ok := flagshipTitles[normalizeName(game.Name)]; ok {
		score += flagshipBonus
	}

	if game.Category.IsSideContent() {
		score -= sideContentPenalty
	}

	if score < 0 {
		return 0
	}
	if score > priorityMax {
		return priorityMax
	}
	return score
}

// ratingComponent scales the 0..100 critical rating non-linearly: near zero
// below the floor, linear through the mid band, diminishing returns above the
// knee.
func ratingComponent(rating float64) float64 {
	switch {
	case rating <= 0:
		return 0
	case rating < ratingFloor:
		return rating / ratingFloor * 20
	case rating < ratingKnee:
		return 20 + (rating-ratingFloor)/(ratingKnee-ratingFloor)*320
	default:
		extra := (rating - ratingKnee) / (100 - ratingKnee) * 60
		return math.Min(ratingComponentMax, 340+extra)
	}
}

// authorityComponent rewards review volume in tiered log-scaled bands; a
// handful of reviews says little, thousands say a lot, but the curve flattens.
func authorityComponent(count int) float64 {
	switch {
	case count <= 0:
		return 0
	case count < 10:
		return 20
	case count < 50:
		return 60
	case count < 100:
		return 100
	case count < 500:
		return 150
	case count < 1000:
		return 180
	default:
		return authorityComponentMax
	}
}

// engagementComponent log-scales community counters, weighting hype above
// follows.
func engagementComponent(follows, hypes int) float64 {
	if follows < 0 {
		follows = 0
	}
	if hypes < 0 {
		hypes = 0
	}
	value := 25*math.Log10(float64(follows)+1) + 40*math.Log10(float64(hypes)+1)
	return math.Min(engagementComponentMax, value)
}

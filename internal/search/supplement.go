package search

import (
	"math/rand"
	"time"

	"gamereview/searchservice/internal/domain"
)

func defaultRandFloat() float64 { return rand.Float64() }

// Catalog coverage levels below which the external provider is consulted.
const (
	supplementFloorCount     = 3
	supplementGenericCount   = 5
	supplementFranchiseCount = 10
)

// wellCoveredQueries are high-traffic terms the catalog is known to cover
// exhaustively; searches for them never pay for an external round trip.
var wellCoveredQueries = map[string]struct{}{
	"minecraft":          {},
	"fortnite":           {},
	"tetris":             {},
	"the witcher 3":      {},
	"grand theft auto v": {},
	"skyrim":             {},
	"mario kart 8":       {},
}

// needsExternal decides whether catalog results alone are good enough or the
// external metadata provider should be consulted. Franchise queries demand
// broader coverage and occasionally refresh even well-covered entries so the
// catalog does not drift from upstream.
func needsExternal(catalog []domain.Game, meta queryMeta, staleness time.Duration, refreshChance float64, randFloat func() float64, now time.Time) bool {
	if _, ok := wellCoveredQueries[meta.normalized]; ok {
		return false
	}
	count := len(catalog)
	if count < supplementFloorCount {
		return true
	}
	if meta.isFranchise {
		if count < supplementFranchiseCount {
			return true
		}
		if anyStale(catalog, staleness, now) {
			return true
		}
		if refreshChance > 0 && randFloat != nil && randFloat() < refreshChance {
			return true
		}
		return false
	}
	return count < supplementGenericCount
}

// anyStale reports whether some catalog entry has not been synced from the
// provider within the staleness window. Entries that never synced (zero
// timestamp) are catalog-native and don't count.
func anyStale(games []domain.Game, staleness time.Duration, now time.Time) bool {
	if staleness <= 0 {
		return false
	}
	for _, game := range games {
		if game.LastSyncedAt.IsZero() {
			continue
		}
		if now.Sub(game.LastSyncedAt) > staleness {
			return true
		}
	}
	return false
}

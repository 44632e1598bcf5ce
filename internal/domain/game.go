package domain

import "time"

// Category is the numeric category code carried by both the catalog and the
// external metadata provider (IGDB-style codes).
type Category int

const (
	CategoryMainGame            Category = 0
	CategoryDLC                 Category = 1
	CategoryExpansion           Category = 2
	CategoryBundle              Category = 3
	CategoryStandaloneExpansion Category = 4
	CategoryMod                 Category = 5
	CategoryEpisode             Category = 6
	CategorySeason              Category = 7
	CategoryRemake              Category = 8
	CategoryRemaster            Category = 9
	CategoryPort                Category = 11
)

// IsSideContent reports whether the category is add-on content rather than a
// standalone release.
func (c Category) IsSideContent() bool {
	switch c {
	case CategoryDLC, CategoryExpansion, CategoryBundle, CategoryEpisode, CategorySeason:
		return true
	default:
		return false
	}
}

type GameSource string

const (
	SourceCatalog  GameSource = "catalog"
	SourceExternal GameSource = "external"
)

// Game is a prospective search result regardless of origin. Catalog documents
// and provider payloads are both converted into this shape at the boundary, so
// scoring and filtering never inspect source-specific structures.
type Game struct {
	// StoreID is the catalog identity; empty until write-back succeeds for
	// externally discovered games.
	StoreID    string     `json:"storeId,omitempty"`
	ExternalID int64      `json:"externalId,omitempty"`
	Source     GameSource `json:"source"`

	Name        string     `json:"name"`
	Summary     string     `json:"summary,omitempty"`
	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
	CoverURL    string     `json:"coverUrl,omitempty"`
	Genres      []string   `json:"genres,omitempty"`
	Platforms   []string   `json:"platforms,omitempty"`
	Developer   string     `json:"developer,omitempty"`
	Publisher   string     `json:"publisher,omitempty"`
	Category    Category   `json:"category"`

	Rating          float64 `json:"rating,omitempty"`
	RatingCount     int     `json:"ratingCount,omitempty"`
	UserRating      float64 `json:"userRating,omitempty"`
	UserRatingCount int     `json:"userRatingCount,omitempty"`
	Follows         int     `json:"follows,omitempty"`
	Hypes           int     `json:"hypes,omitempty"`

	// Greenlight forces inclusion past content policy; Redlight forces
	// exclusion unconditionally. The two are mutually exclusive by convention
	// and redlight always wins.
	Greenlight bool   `json:"greenlight,omitempty"`
	Redlight   bool   `json:"redlight,omitempty"`
	FlagReason string `json:"flagReason,omitempty"`

	LastSyncedAt time.Time `json:"lastSyncedAt,omitempty"`
}

// Engagement is the combined community interest signal used for tie-breaking.
func (g Game) Engagement() int {
	return g.Follows + g.Hypes
}

// ScoredResult is a Game annotated with pipeline scores and provenance.
type ScoredResult struct {
	Game Game `json:"game"`

	// Relevance is the normalized 0..1 query match fraction.
	Relevance float64 `json:"relevance"`
	// NameBand is the raw name-match band (0..1000) before normalization,
	// kept for the near-exact tie-break rule.
	NameBand int `json:"nameBand"`
	// Priority is the query-independent desirability score.
	Priority float64 `json:"priority"`

	MatchedQuery string     `json:"matchedQuery,omitempty"`
	Source       GameSource `json:"source"`
}

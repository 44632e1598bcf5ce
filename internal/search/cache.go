package search

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gamereview/searchservice/internal/domain"
	"gamereview/searchservice/internal/metrics"
)

const (
	defaultCacheTTL        = 5 * time.Minute
	defaultCacheMaxEntries = 50
)

type cachedResponse struct {
	response  domain.SearchResponse
	createdAt time.Time
	// insertedSeq breaks eviction ties in favor of the oldest entry.
	insertedSeq uint64
	hits        int
}

// resultCache is the hot query cache: bounded, TTL'd, evicting the entry with
// the lowest hit count when full. Shared across requests; all access is
// mutex-guarded. Entries are snapshots, so callers never see live references.
type resultCache struct {
	mu         sync.Mutex
	entries    map[string]*cachedResponse
	ttl        time.Duration
	maxEntries int
	seq        uint64
}

func newResultCache(ttl time.Duration, maxEntries int) *resultCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}
	return &resultCache{
		entries:    make(map[string]*cachedResponse),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// get returns a snapshot for the key, treating entries past their TTL as
// absent and removing them. Increments the hit counter on success.
func (c *resultCache) get(key string, now time.Time) (domain.SearchResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return domain.SearchResponse{}, false
	}
	if now.Sub(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		metrics.CacheMissesTotal.Inc()
		return domain.SearchResponse{}, false
	}
	entry.hits++
	metrics.CacheHitsTotal.Inc()
	return cloneResponse(entry.response), true
}

// set stores a snapshot, resetting the hit counter. At capacity it evicts
// exactly the entry with the lowest hit count, ties broken by insertion
// order, under the same lock so concurrent sets cannot double-evict.
func (c *resultCache) set(key string, response domain.SearchResponse, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.seq++
	c.entries[key] = &cachedResponse{
		response:    cloneResponse(response),
		createdAt:   now,
		insertedSeq: c.seq,
	}
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cachedResponse)
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *resultCache) evictLocked() {
	var victim string
	var victimEntry *cachedResponse
	for key, entry := range c.entries {
		if victimEntry == nil ||
			entry.hits < victimEntry.hits ||
			(entry.hits == victimEntry.hits && entry.insertedSeq < victimEntry.insertedSeq) {
			victim = key
			victimEntry = entry
		}
	}
	if victimEntry != nil {
		delete(c.entries, victim)
		metrics.CacheEvictionsTotal.Inc()
	}
}

func cloneResponse(response domain.SearchResponse) domain.SearchResponse {
	cloned := response
	if response.Results != nil {
		cloned.Results = make([]domain.ScoredResult, len(response.Results))
		for i, result := range response.Results {
			copied := result
			copied.Game = cloneGame(result.Game)
			cloned.Results[i] = copied
		}
	}
	return cloned
}

func cloneGame(game domain.Game) domain.Game {
	copied := game
	if game.ReleaseDate != nil {
		value := *game.ReleaseDate
		copied.ReleaseDate = &value
	}
	copied.Genres = append([]string(nil), game.Genres...)
	copied.Platforms = append([]string(nil), game.Platforms...)
	return copied
}

// buildSearchCacheKey canonically encodes the normalized query plus active
// filters and pagination so equivalent requests share an entry.
func buildSearchCacheKey(request domain.SearchRequest) string {
	return strings.Join([]string{
		"q=" + normalizeQuery(request.Query),
		"l=" + strconv.Itoa(request.Limit),
		"o=" + strconv.Itoa(request.Offset),
		"f=" + filtersKey(request.Filters),
	}, "|")
}

func filtersKey(filters domain.SearchFilters) string {
	return strings.Join([]string{
		"g=" + strings.Join(normalizeTerms(filters.Genres), ","),
		"p=" + strings.Join(normalizeTerms(filters.Platforms), ","),
		"mr=" + strconv.FormatFloat(filters.MinRating, 'f', 1, 64),
		"yf=" + strconv.Itoa(filters.YearFrom),
		"yt=" + strconv.Itoa(filters.YearTo),
	}, ";")
}

func normalizeTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, raw := range terms {
		value := strings.ToLower(strings.TrimSpace(raw))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"gamereview/searchservice/internal/domain"
	"gamereview/searchservice/internal/metrics"
)

var (
	ErrInvalidOffset = errors.New("offset must be >= 0")
	ErrInvalidLimit  = errors.New("limit must be >= 0")

	// errCatalogDown marks a response assembled without the catalog. Search
	// serves it to the client but never caches it.
	errCatalogDown = errors.New("catalog unavailable")
)

const (
	defaultLimit = 20
	maxLimit     = 100

	// catalogFetchLimit is how many candidates each catalog query may return
	// before scoring; pagination happens after the merged set is ranked.
	catalogFetchLimit = 50

	// maxConcurrentCatalogQueries bounds the per-request fan-out across
	// expansion queries.
	maxConcurrentCatalogQueries = 4

	defaultExternalTimeout = time.Second
	defaultStaleness       = 7 * 24 * time.Hour
	defaultRefreshChance   = 0.1
	defaultRedisTTL        = 6 * time.Hour
	writeBackQueueCapacity = 64
)

// CatalogStore is the persistent game catalog.
type CatalogStore interface {
	SearchGames(ctx context.Context, query string, filters domain.SearchFilters, limit int) ([]domain.Game, error)
	GamesByExternalIDs(ctx context.Context, ids []int64) ([]domain.Game, error)
	InsertGame(ctx context.Context, game domain.Game) error
	Popular(ctx context.Context, limit int) ([]domain.Game, error)
	TopRated(ctx context.Context, limit, minRatingCount int) ([]domain.Game, error)
	Recent(ctx context.Context, limit int) ([]domain.Game, error)
}

// MetadataProvider is the external game metadata source used to supplement
// thin catalog coverage.
type MetadataProvider interface {
	Name() string
	SearchGames(ctx context.Context, query string, limit int) ([]domain.Game, error)
}

type Service struct {
	store    CatalogStore
	provider MetadataProvider
	logger   *slog.Logger

	cache         *resultCache
	cacheTTL      time.Duration
	cacheDisabled bool
	redisCache    *RedisCacheBackend
	redisTTL      time.Duration

	externalTimeout time.Duration
	retryCfg        RetryConfig
	staleness       time.Duration
	refreshChance   float64
	randFloat       func() float64

	writeBackCh    chan []domain.Game
	writeBackBatch int
	backgroundRun  atomic.Bool

	healthMu sync.Mutex
	health   map[string]*providerHealth
}

type ServiceOption func(*Service)

func WithProvider(provider MetadataProvider) ServiceOption {
	return func(s *Service) { s.provider = provider }
}

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) { s.redisCache = backend }
}

func WithRedisTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.redisTTL = ttl
		}
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithCacheMaxEntries(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.cache = newResultCache(s.cacheTTL, n)
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) { s.cacheDisabled = disabled }
}

func WithExternalTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.externalTimeout = timeout
		}
	}
}

func WithCatalogStaleness(staleness time.Duration) ServiceOption {
	return func(s *Service) {
		if staleness > 0 {
			s.staleness = staleness
		}
	}
}

func WithRefreshChance(chance float64) ServiceOption {
	return func(s *Service) {
		if chance >= 0 && chance <= 1 {
			s.refreshChance = chance
		}
	}
}

// WithRandSource overrides the random source driving probabilistic provider
// refreshes. Tests pin it to force either branch.
func WithRandSource(randFloat func() float64) ServiceOption {
	return func(s *Service) {
		if randFloat != nil {
			s.randFloat = randFloat
		}
	}
}

func WithWriteBackBatchSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.writeBackBatch = n
		}
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(store CatalogStore, opts ...ServiceOption) *Service {
	svc := &Service{
		store:           store,
		logger:          slog.Default(),
		cacheTTL:        defaultCacheTTL,
		redisTTL:        defaultRedisTTL,
		externalTimeout: defaultExternalTimeout,
		retryCfg:        DefaultRetryConfig(),
		staleness:       defaultStaleness,
		refreshChance:   defaultRefreshChance,
		randFloat:       defaultRandFloat,
		writeBackCh:     make(chan []domain.Game, writeBackQueueCapacity),
		writeBackBatch:  defaultWriteBackBatchSize,
		health:          make(map[string]*providerHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.cache == nil {
		svc.cache = newResultCache(svc.cacheTTL, defaultCacheMaxEntries)
	}
	return svc
}

// StartBackground launches the write-back worker. Safe to call more than
// once; only the first call starts the goroutine.
func (s *Service) StartBackground(ctx context.Context) {
	if s.backgroundRun.CompareAndSwap(false, true) {
		go s.runWriteBack(ctx)
	}
}

type preparedSearch struct {
	query   string
	meta    queryMeta
	limit   int
	offset  int
	filters domain.SearchFilters
}

// Search runs the full pipeline: expand, fetch catalog and (conditionally)
// the external provider, dedupe, filter, score, rank and paginate.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	prepared, err := s.prepareSearch(request)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	// An empty query returns an empty result set without touching any source.
	if prepared.meta.normalized == "" {
		return domain.SearchResponse{
			Query:   request.Query,
			Results: []domain.ScoredResult{},
			Limit:   prepared.limit,
			Offset:  prepared.offset,
		}, nil
	}

	if s.cacheDisabled || request.NoCache {
		response, err := s.executeSearch(ctx, prepared)
		if err != nil && !errors.Is(err, errCatalogDown) {
			return domain.SearchResponse{}, err
		}
		return response, nil
	}

	startedAt := time.Now()
	cacheKey := buildSearchCacheKey(domain.SearchRequest{
		Query:   prepared.query,
		Limit:   prepared.limit,
		Offset:  prepared.offset,
		Filters: prepared.filters,
	})

	if cached, ok := s.cache.get(cacheKey, startedAt); ok {
		cached.CacheHit = true
		cached.ElapsedMS = time.Since(startedAt).Milliseconds()
		return cached, nil
	}

	if cached, ok := s.redisLookup(ctx, cacheKey, prepared); ok {
		cached.CacheHit = true
		cached.ElapsedMS = time.Since(startedAt).Milliseconds()
		return cached, nil
	}

	response, err := s.executeSearch(ctx, prepared)
	if err != nil {
		if errors.Is(err, errCatalogDown) {
			return response, nil
		}
		return domain.SearchResponse{}, err
	}
	s.cacheStore(ctx, cacheKey, response)
	return response, nil
}

// redisLookup consults the long-lived second tier. A stale entry is still
// served but triggers a background refresh.
func (s *Service) redisLookup(ctx context.Context, cacheKey string, prepared preparedSearch) (domain.SearchResponse, bool) {
	if s.redisCache == nil {
		return domain.SearchResponse{}, false
	}
	response, found, stale, err := s.redisCache.Get(ctx, cacheKey, s.cacheTTL)
	if err != nil {
		s.logger.Warn("redis cache lookup failed", slog.String("error", err.Error()))
		return domain.SearchResponse{}, false
	}
	if !found {
		return domain.SearchResponse{}, false
	}
	s.cache.set(cacheKey, response, time.Now())
	if stale {
		s.refreshAsync(cacheKey, prepared)
	}
	return response, true
}

func (s *Service) refreshAsync(cacheKey string, prepared preparedSearch) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.externalTimeout+5*time.Second)
		defer cancel()
		response, err := s.executeSearch(ctx, prepared)
		if err != nil {
			return
		}
		s.cacheStore(ctx, cacheKey, response)
	}()
}

func (s *Service) cacheStore(ctx context.Context, cacheKey string, response domain.SearchResponse) {
	s.cache.set(cacheKey, response, time.Now())
	if s.redisCache != nil {
		if err := s.redisCache.Set(ctx, cacheKey, response, s.redisTTL); err != nil {
			s.logger.Warn("redis cache store failed", slog.String("error", err.Error()))
		}
	}
}

func (s *Service) prepareSearch(request domain.SearchRequest) (preparedSearch, error) {
	if request.Offset < 0 {
		return preparedSearch{}, ErrInvalidOffset
	}
	if request.Limit < 0 {
		return preparedSearch{}, ErrInvalidLimit
	}
	limit := request.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return preparedSearch{
		query:   strings.TrimSpace(request.Query),
		meta:    parseQueryMeta(request.Query),
		limit:   limit,
		offset:  request.Offset,
		filters: request.Filters,
	}, nil
}

func (s *Service) executeSearch(ctx context.Context, prepared preparedSearch) (domain.SearchResponse, error) {
	startedAt := time.Now()

	catalog, err := s.fetchCatalog(ctx, prepared)
	if err != nil {
		// A broken catalog must not be papered over with provider-only
		// results; the client gets an empty page and the error is logged.
		s.logger.Error("catalog unavailable, returning empty result",
			slog.String("query", prepared.query),
			slog.String("error", err.Error()))
		return domain.SearchResponse{
			Query:     prepared.query,
			Results:   []domain.ScoredResult{},
			Limit:     prepared.limit,
			Offset:    prepared.offset,
			ElapsedMS: time.Since(startedAt).Milliseconds(),
		}, errCatalogDown
	}

	supplemented := false
	var external []domain.Game
	if s.provider != nil && needsExternal(catalog, prepared.meta, s.staleness, s.refreshChance, s.randFloat, startedAt) {
		external = s.fetchExternal(ctx, prepared)
		supplemented = len(external) > 0
	}

	// Catalog candidates go in first so the catalog copy wins identity ties.
	merged := dedupe(append(catalog, external...))

	scored := s.filterAndScore(prepared, merged)
	sortScored(scored)

	total := len(scored)
	start := prepared.offset
	if start > total {
		start = total
	}
	end := start + prepared.limit
	if end > total {
		end = total
	}
	page := make([]domain.ScoredResult, 0, end-start)
	page = append(page, scored[start:end]...)

	if len(external) > 0 {
		s.enqueueWriteBack(external)
	}

	elapsed := time.Since(startedAt)
	s.logger.Info("search completed",
		slog.String("query", prepared.query),
		slog.Bool("filtered", prepared.filters.Active()),
		slog.Int("catalog", len(catalog)),
		slog.Int("external", len(external)),
		slog.Int("results", total),
		slog.Bool("supplemented", supplemented),
		slog.Int64("elapsedMs", elapsed.Milliseconds()),
	)

	return domain.SearchResponse{
		Query:        prepared.query,
		Results:      page,
		TotalCount:   total,
		HasMore:      end < total,
		Limit:        prepared.limit,
		Offset:       prepared.offset,
		ElapsedMS:    elapsed.Milliseconds(),
		Supplemented: supplemented,
	}, nil
}

// fetchCatalog queries the catalog once per expansion query with bounded
// concurrency and merges the result sets in expansion order. A failure on the
// original query fails the whole fetch; failures on expansion variants only
// shrink the candidate set.
func (s *Service) fetchCatalog(ctx context.Context, prepared preparedSearch) ([]domain.Game, error) {
	queries := Expand(prepared.query)

	results := make([][]domain.Game, len(queries))
	errs := make([]error, len(queries))
	sem := semaphore.NewWeighted(maxConcurrentCatalogQueries)
	var wg sync.WaitGroup

	for i, query := range queries {
		wg.Add(1)
		go func(index int, expanded string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				errs[index] = err
				return
			}
			defer sem.Release(1)

			games, err := s.store.SearchGames(ctx, expanded, prepared.filters, catalogFetchLimit)
			if err != nil {
				errs[index] = err
				s.logger.Warn("catalog search failed",
					slog.String("query", expanded),
					slog.String("error", err.Error()))
				return
			}
			results[index] = games
		}(i, query)
	}
	wg.Wait()

	// Expand always puts the original query first.
	if errs[0] != nil {
		return nil, errs[0]
	}

	merged := make([]domain.Game, 0, catalogFetchLimit)
	for _, games := range results {
		merged = append(merged, games...)
	}
	for i := range merged {
		merged[i].Source = domain.SourceCatalog
	}
	return merged, nil
}

// fetchExternal queries the metadata provider under its own timeout so a
// slow upstream cannot stall the search. Transient errors get one backoff
// retry inside that budget; failures degrade to catalog-only and feed the
// circuit breaker.
func (s *Service) fetchExternal(ctx context.Context, prepared preparedSearch) []domain.Game {
	providerKey := strings.ToLower(strings.TrimSpace(s.provider.Name()))
	now := time.Now()
	if blocked, until, lastErr := s.isProviderBlocked(providerKey, now); blocked {
		s.logger.Warn("provider blocked, serving catalog only",
			slog.String("provider", providerKey),
			slog.String("until", until.UTC().Format(time.RFC3339)),
			slog.String("lastError", lastErr))
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.externalTimeout)
	defer cancel()

	startedAt := time.Now()
	var games []domain.Game
	err := RetryWithBackoff(callCtx, s.retryCfg, func() error {
		var attemptErr error
		games, attemptErr = s.provider.SearchGames(callCtx, prepared.query, catalogFetchLimit)
		return attemptErr
	})
	s.recordProviderResult(providerKey, prepared.query, len(games), err, time.Since(startedAt), time.Now())
	if err != nil {
		s.logger.Warn("provider search failed, serving catalog only",
			slog.String("provider", providerKey),
			slog.String("query", prepared.query),
			slog.String("error", err.Error()))
		return nil
	}

	for i := range games {
		games[i].Source = domain.SourceExternal
	}
	return games
}

// filterAndScore applies the content policy stages, then scores survivors and
// drops those under the dynamic relevance threshold.
func (s *Service) filterAndScore(prepared preparedSearch, games []domain.Game) []domain.ScoredResult {
	threshold := relevanceThreshold(prepared.meta)
	scored := make([]domain.ScoredResult, 0, len(games))

	for _, game := range games {
		if stage, excluded := excludedByPolicy(game); excluded {
			metrics.FilterExclusionsTotal.WithLabelValues(stage).Inc()
			s.logger.Debug("candidate excluded",
				slog.String("stage", stage),
				slog.String("name", game.Name),
				slog.String("source", string(game.Source)))
			continue
		}

		relevance, band := relevanceScore(prepared.meta, game)
		if !game.Greenlight && relevance < threshold {
			metrics.FilterExclusionsTotal.WithLabelValues(stageRelevance).Inc()
			continue
		}

		scored = append(scored, domain.ScoredResult{
			Game:         game,
			Relevance:    relevance,
			NameBand:     band,
			Priority:     priorityScore(game),
			MatchedQuery: prepared.meta.normalized,
			Source:       game.Source,
		})
	}
	return scored
}

// sortScored ranks by relevance then priority, except that two near-exact
// title matches compare by priority first so a franchise's main game beats
// its own DLC even when the DLC name matches slightly better.
func sortScored(results []domain.ScoredResult) {
	sort.SliceStable(results, func(i, j int) bool {
		left, right := results[i], results[j]

		if left.NameBand >= highSimilarityBand && right.NameBand >= highSimilarityBand {
			if left.Priority != right.Priority {
				return left.Priority > right.Priority
			}
			if left.Relevance != right.Relevance {
				return left.Relevance > right.Relevance
			}
		} else {
			if left.Relevance != right.Relevance {
				return left.Relevance > right.Relevance
			}
			if left.Priority != right.Priority {
				return left.Priority > right.Priority
			}
		}

		if left.Game.Engagement() != right.Game.Engagement() {
			return left.Game.Engagement() > right.Game.Engagement()
		}
		if cmp := strings.Compare(strings.ToLower(left.Game.Name), strings.ToLower(right.Game.Name)); cmp != 0 {
			return cmp < 0
		}
		return left.Game.ExternalID < right.Game.ExternalID
	})
}

// Popular returns the most followed catalog games, policy-filtered.
func (s *Service) Popular(ctx context.Context, limit int) ([]domain.Game, error) {
	return s.browse(ctx, limit, func(ctx context.Context, limit int) ([]domain.Game, error) {
		return s.store.Popular(ctx, limit)
	})
}

// TopRated returns the highest rated catalog games with enough reviews to
// trust the rating.
func (s *Service) TopRated(ctx context.Context, limit, minRatingCount int) ([]domain.Game, error) {
	return s.browse(ctx, limit, func(ctx context.Context, limit int) ([]domain.Game, error) {
		return s.store.TopRated(ctx, limit, minRatingCount)
	})
}

// Recent returns the latest catalog releases.
func (s *Service) Recent(ctx context.Context, limit int) ([]domain.Game, error) {
	return s.browse(ctx, limit, func(ctx context.Context, limit int) ([]domain.Game, error) {
		return s.store.Recent(ctx, limit)
	})
}

func (s *Service) browse(ctx context.Context, limit int, fetch func(context.Context, int) ([]domain.Game, error)) ([]domain.Game, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	// Over-fetch so policy exclusions don't shrink the page.
	games, err := fetch(ctx, limit*2)
	if err != nil {
		return nil, err
	}

	kept := make([]domain.Game, 0, limit)
	for _, game := range games {
		if stage, excluded := excludedByPolicy(game); excluded {
			metrics.FilterExclusionsTotal.WithLabelValues(stage).Inc()
			continue
		}
		game.Source = domain.SourceCatalog
		kept = append(kept, game)
		if len(kept) == limit {
			break
		}
	}
	return kept, nil
}

// Providers reports the configured metadata providers and whether each is
// currently serving.
func (s *Service) Providers() []domain.ProviderStatus {
	if s.provider == nil {
		return nil
	}
	name := strings.ToLower(strings.TrimSpace(s.provider.Name()))
	now := time.Now()

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	status := domain.ProviderStatus{Name: name, OK: true}
	if state := s.health[name]; state != nil {
		status.Count = state.lastResultCount
		if !state.blockedUntil.IsZero() && now.Before(state.blockedUntil) {
			status.OK = false
			status.Error = state.lastError
		}
	}
	return []domain.ProviderStatus{status}
}

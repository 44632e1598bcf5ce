package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gamereview/searchservice/internal/domain"
)

type fakeStore struct {
	mu          sync.Mutex
	games       []domain.Game
	searchErr   error
	searchCalls int

	existing  []domain.Game
	inserted  []domain.Game
	insertErr error

	popular      []domain.Game
	browseLimits []int
}

func (f *fakeStore) SearchGames(ctx context.Context, query string, filters domain.SearchFilters, limit int) ([]domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]domain.Game(nil), f.games...), nil
}

func (f *fakeStore) GamesByExternalIDs(ctx context.Context, ids []int64) ([]domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	out := make([]domain.Game, 0)
	for _, game := range f.existing {
		if _, ok := wanted[game.ExternalID]; ok {
			out = append(out, game)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertGame(ctx context.Context, game domain.Game) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, game)
	return nil
}

func (f *fakeStore) Popular(ctx context.Context, limit int) ([]domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.browseLimits = append(f.browseLimits, limit)
	return append([]domain.Game(nil), f.popular...), nil
}

func (f *fakeStore) TopRated(ctx context.Context, limit, minRatingCount int) ([]domain.Game, error) {
	return f.Popular(ctx, limit)
}

func (f *fakeStore) Recent(ctx context.Context, limit int) ([]domain.Game, error) {
	return f.Popular(ctx, limit)
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls
}

type fakeProvider struct {
	mu    sync.Mutex
	name  string
	games []domain.Game
	err   error
	// failures makes the first n calls fail with failErr before any
	// successful response.
	failures int
	failErr  error
	// block makes SearchGames wait for ctx cancellation, simulating a slow
	// upstream.
	block bool
	calls int
}

func (p *fakeProvider) Name() string {
	if p.name == "" {
		return "fakeprov"
	}
	return p.name
}

func (p *fakeProvider) SearchGames(ctx context.Context, query string, limit int) ([]domain.Game, error) {
	p.mu.Lock()
	p.calls++
	blocked := p.block
	var transient error
	if p.failures > 0 {
		p.failures--
		transient = p.failErr
	}
	p.mu.Unlock()
	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if transient != nil {
		return nil, transient
	}
	if p.err != nil {
		return nil, p.err
	}
	return append([]domain.Game(nil), p.games...), nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func passingGame(name string) domain.Game {
	return domain.Game{
		Name:        name,
		Category:    domain.CategoryMainGame,
		Rating:      80,
		RatingCount: 100,
	}
}

func TestSearchEmptyQuerySkipsSources(t *testing.T) {
	store := &fakeStore{games: []domain.Game{passingGame("Should Not Appear")}}
	provider := &fakeProvider{}
	svc := NewService(store, WithProvider(provider))

	response, err := svc.Search(context.Background(), domain.SearchRequest{Query: "   "})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if response.Results == nil || len(response.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %v", response.Results)
	}
	if response.TotalCount != 0 {
		t.Fatalf("TotalCount = %d, want 0", response.TotalCount)
	}
	if store.callCount() != 0 {
		t.Fatalf("catalog consulted %d times for empty query", store.callCount())
	}
	if provider.callCount() != 0 {
		t.Fatalf("provider consulted %d times for empty query", provider.callCount())
	}
}

func TestSearchRejectsNegativePagination(t *testing.T) {
	svc := NewService(&fakeStore{})
	if _, err := svc.Search(context.Background(), domain.SearchRequest{Query: "x", Offset: -1}); !errors.Is(err, ErrInvalidOffset) {
		t.Fatalf("expected ErrInvalidOffset, got %v", err)
	}
	if _, err := svc.Search(context.Background(), domain.SearchRequest{Query: "x", Limit: -1}); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestSearchSupplementsThinCatalog(t *testing.T) {
	store := &fakeStore{games: []domain.Game{passingGame("Hollow Knight")}}
	provider := &fakeProvider{games: []domain.Game{
		{ExternalID: 99, Name: "Hollow Knight Silksong", Category: domain.CategoryMainGame},
	}}
	svc := NewService(store, WithProvider(provider))

	response, err := svc.Search(context.Background(), domain.SearchRequest{Query: "hollow knight"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !response.Supplemented {
		t.Fatal("expected supplemented response for thin catalog coverage")
	}
	if provider.callCount() != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.callCount())
	}
	foundExternal := false
	for _, result := range response.Results {
		if result.Source == domain.SourceExternal {
			foundExternal = true
		}
	}
	if !foundExternal {
		t.Fatal("expected an external result in the merged page")
	}
}

func TestSearchSecondCallServedFromCache(t *testing.T) {
	store := &fakeStore{games: []domain.Game{passingGame("Hollow Knight")}}
	provider := &fakeProvider{games: []domain.Game{
		{ExternalID: 99, Name: "Hollow Knight Silksong", Category: domain.CategoryMainGame},
	}}
	svc := NewService(store, WithProvider(provider))

	request := domain.SearchRequest{Query: "hollow knight"}
	first, err := svc.Search(context.Background(), request)
	if err != nil {
		t.Fatalf("first Search: %v", err)
	}
	if first.CacheHit {
		t.Fatal("first response should not be a cache hit")
	}

	callsAfterFirst := store.callCount()
	second, err := svc.Search(context.Background(), request)
	if err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if !second.CacheHit {
		t.Fatal("second response should be a cache hit")
	}
	if store.callCount() != callsAfterFirst {
		t.Fatalf("catalog consulted again on cache hit: %d -> %d", callsAfterFirst, store.callCount())
	}
	if provider.callCount() != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.callCount())
	}
	if len(second.Results) != len(first.Results) {
		t.Fatalf("cached page size %d differs from original %d", len(second.Results), len(first.Results))
	}
}

func TestSearchNoCacheBypassesCache(t *testing.T) {
	store := &fakeStore{games: []domain.Game{
		passingGame("Star Voyager"),
		passingGame("Star Voyager Origins"),
		passingGame("Star Voyager Legends"),
		passingGame("Star Voyager Tactics"),
		passingGame("Star Voyager Racing"),
	}}
	svc := NewService(store)

	request := domain.SearchRequest{Query: "star voyager", NoCache: true}
	if _, err := svc.Search(context.Background(), request); err != nil {
		t.Fatalf("first Search: %v", err)
	}
	callsAfterFirst := store.callCount()
	response, err := svc.Search(context.Background(), request)
	if err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if response.CacheHit {
		t.Fatal("nocache response must not be served from cache")
	}
	if store.callCount() == callsAfterFirst {
		t.Fatal("nocache request should hit the catalog again")
	}
}

func TestSearchProviderErrorDegradesToCatalog(t *testing.T) {
	store := &fakeStore{games: []domain.Game{passingGame("Hollow Knight")}}
	provider := &fakeProvider{err: errors.New("upstream down")}
	svc := NewService(store, WithProvider(provider))

	response, err := svc.Search(context.Background(), domain.SearchRequest{Query: "hollow knight"})
	if err != nil {
		t.Fatalf("Search should degrade, not fail: %v", err)
	}
	if response.Supplemented {
		t.Fatal("failed provider call must not mark the response supplemented")
	}
	if len(response.Results) != 1 || response.Results[0].Game.Name != "Hollow Knight" {
		t.Fatalf("expected catalog-only results, got %v", response.Results)
	}
}

func TestSearchProviderTimeoutDegradesToCatalog(t *testing.T) {
	store := &fakeStore{games: []domain.Game{passingGame("Hollow Knight")}}
	provider := &fakeProvider{block: true}
	svc := NewService(store,
		WithProvider(provider),
		WithExternalTimeout(20*time.Millisecond),
	)

	started := time.Now()
	response, err := svc.Search(context.Background(), domain.SearchRequest{Query: "hollow knight"})
	if err != nil {
		t.Fatalf("Search should degrade on timeout: %v", err)
	}
	if response.Supplemented {
		t.Fatal("timed-out provider call must not mark the response supplemented")
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("search took %v, provider timeout did not apply", elapsed)
	}

	diagnostics := svc.ProviderDiagnostics()
	if len(diagnostics) != 1 {
		t.Fatalf("expected one provider diagnostic, got %d", len(diagnostics))
	}
	if diagnostics[0].TimeoutCount != 1 || !diagnostics[0].LastTimeout {
		t.Fatalf("timeout not recorded: %+v", diagnostics[0])
	}
}

func TestSearchCatalogErrorReturnsEmptyResponse(t *testing.T) {
	store := &fakeStore{searchErr: errors.New("mongo down")}
	provider := &fakeProvider{games: []domain.Game{
		{ExternalID: 5, Name: "Hollow Knight", Category: domain.CategoryMainGame},
	}}
	svc := NewService(store, WithProvider(provider))

	response, err := svc.Search(context.Background(), domain.SearchRequest{Query: "hollow knight"})
	if err != nil {
		t.Fatalf("catalog failure should not surface as an error: %v", err)
	}
	if response.Results == nil || len(response.Results) != 0 {
		t.Fatalf("expected empty results on catalog failure, got %v", response.Results)
	}
	if provider.callCount() != 0 {
		t.Fatalf("provider consulted despite catalog failure (%d calls)", provider.callCount())
	}
	if len(store.inserted) != 0 {
		t.Fatalf("write-back scheduled against a failing store: %v", store.inserted)
	}

	// The failure response must not be cached.
	callsBefore := store.callCount()
	if _, err := svc.Search(context.Background(), domain.SearchRequest{Query: "hollow knight"}); err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if store.callCount() == callsBefore {
		t.Fatal("empty failure response was served from cache")
	}
}

func TestSearchRetriesTransientProviderFailure(t *testing.T) {
	store := &fakeStore{games: []domain.Game{passingGame("Hollow Knight")}}
	provider := &fakeProvider{
		failures: 1,
		failErr:  errors.New("read tcp: connection reset by peer"),
		games: []domain.Game{
			{ExternalID: 99, Name: "Hollow Knight Silksong", Category: domain.CategoryMainGame},
		},
	}
	svc := NewService(store, WithProvider(provider))

	response, err := svc.Search(context.Background(), domain.SearchRequest{Query: "hollow knight"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if provider.callCount() != 2 {
		t.Fatalf("provider calls = %d, want 2 (one retry)", provider.callCount())
	}
	if !response.Supplemented {
		t.Fatal("retried provider call should still supplement")
	}
}

func TestSearchSkipsProviderWhenCatalogSufficient(t *testing.T) {
	store := &fakeStore{games: []domain.Game{
		passingGame("Star Voyager"),
		passingGame("Star Voyager Origins"),
		passingGame("Star Voyager Legends"),
		passingGame("Star Voyager Tactics"),
		passingGame("Star Voyager Racing"),
	}}
	provider := &fakeProvider{games: []domain.Game{{ExternalID: 1, Name: "Star Voyager"}}}
	svc := NewService(store, WithProvider(provider))

	response, err := svc.Search(context.Background(), domain.SearchRequest{Query: "star voyager"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if provider.callCount() != 0 {
		t.Fatalf("provider consulted despite sufficient catalog coverage (%d calls)", provider.callCount())
	}
	if response.Supplemented {
		t.Fatal("response should not be supplemented")
	}
}

func TestSearchNeverReturnsRedlighted(t *testing.T) {
	flagged := passingGame("Star Voyager Banned")
	flagged.Redlight = true
	flagged.Greenlight = true
	store := &fakeStore{games: []domain.Game{passingGame("Star Voyager"), flagged}}
	svc := NewService(store)

	response, err := svc.Search(context.Background(), domain.SearchRequest{Query: "star voyager"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, result := range response.Results {
		if result.Game.Redlight {
			t.Fatalf("redlighted game %q leaked into results", result.Game.Name)
		}
	}
	if len(response.Results) != 1 {
		t.Fatalf("expected one surviving result, got %d", len(response.Results))
	}
}

func TestSearchPagination(t *testing.T) {
	store := &fakeStore{games: []domain.Game{
		passingGame("Star Voyager"),
		passingGame("Star Voyager Origins"),
		passingGame("Star Voyager Legends"),
		passingGame("Star Voyager Tactics"),
		passingGame("Star Voyager Racing"),
		passingGame("Star Voyager Arena"),
	}}
	svc := NewService(store)

	first, err := svc.Search(context.Background(), domain.SearchRequest{Query: "star voyager", Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(first.Results) != 2 || first.TotalCount != 6 || !first.HasMore {
		t.Fatalf("first page: len=%d total=%d hasMore=%v", len(first.Results), first.TotalCount, first.HasMore)
	}

	last, err := svc.Search(context.Background(), domain.SearchRequest{Query: "star voyager", Limit: 5, Offset: 4})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(last.Results) != 2 || last.HasMore {
		t.Fatalf("last page: len=%d hasMore=%v", len(last.Results), last.HasMore)
	}

	beyond, err := svc.Search(context.Background(), domain.SearchRequest{Query: "star voyager", Limit: 5, Offset: 100})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(beyond.Results) != 0 || beyond.TotalCount != 6 {
		t.Fatalf("page beyond end: len=%d total=%d", len(beyond.Results), beyond.TotalCount)
	}
}

func TestSearchGreenlightBypassesRelevanceThreshold(t *testing.T) {
	curated := domain.Game{Name: "Completely Unrelated Gem", Greenlight: true, Category: domain.CategoryMainGame}
	store := &fakeStore{games: []domain.Game{curated}}
	svc := NewService(store)

	response, err := svc.Search(context.Background(), domain.SearchRequest{Query: "star voyager"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(response.Results) != 1 {
		t.Fatalf("greenlighted game should survive the relevance threshold, got %d results", len(response.Results))
	}
	if response.Results[0].Priority != priorityMax {
		t.Fatalf("greenlight priority = %v, want %v", response.Results[0].Priority, priorityMax)
	}
}

func TestBrowseFiltersPolicyAndTruncates(t *testing.T) {
	flagged := passingGame("Pulled")
	flagged.Redlight = true
	store := &fakeStore{popular: []domain.Game{
		flagged,
		passingGame("First"),
		passingGame("Second"),
		passingGame("Third"),
	}}
	svc := NewService(store)

	games, err := svc.Popular(context.Background(), 2)
	if err != nil {
		t.Fatalf("Popular: %v", err)
	}
	if len(games) != 2 || games[0].Name != "First" || games[1].Name != "Second" {
		t.Fatalf("unexpected browse page: %v", games)
	}
	if len(store.browseLimits) != 1 || store.browseLimits[0] != 4 {
		t.Fatalf("expected over-fetch of 4, got %v", store.browseLimits)
	}
}

func TestProvidersReportsConfiguredProvider(t *testing.T) {
	svc := NewService(&fakeStore{})
	if statuses := svc.Providers(); statuses != nil {
		t.Fatalf("expected nil statuses without a provider, got %v", statuses)
	}

	provider := &fakeProvider{name: "IGDB"}
	svc = NewService(&fakeStore{}, WithProvider(provider))
	statuses := svc.Providers()
	if len(statuses) != 1 || statuses[0].Name != "igdb" || !statuses[0].OK {
		t.Fatalf("unexpected provider statuses: %v", statuses)
	}
}

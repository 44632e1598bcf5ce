package domain

type SearchFilters struct {
	Genres    []string `json:"genres,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
	MinRating float64  `json:"minRating,omitempty"`
	YearFrom  int      `json:"yearFrom,omitempty"`
	YearTo    int      `json:"yearTo,omitempty"`
}

func (f SearchFilters) Active() bool {
	return len(f.Genres) > 0 || len(f.Platforms) > 0 || f.MinRating > 0 || f.YearFrom > 0 || f.YearTo > 0
}

type SearchRequest struct {
	Query   string
	Limit   int
	Offset  int
	Filters SearchFilters
	NoCache bool
}

type SearchResponse struct {
	Query      string         `json:"query"`
	Results    []ScoredResult `json:"results"`
	TotalCount int            `json:"totalCount"`
	HasMore    bool           `json:"hasMore"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
	ElapsedMS  int64          `json:"elapsedMs"`
	// Supplemented reports whether live provider results were merged in.
	Supplemented bool `json:"supplemented"`
	CacheHit     bool `json:"cacheHit"`
}

type ProviderStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

type ProviderDiagnostics struct {
	Name                string `json:"name"`
	Label               string `json:"label"`
	Enabled             bool   `json:"enabled"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	LastError           string `json:"lastError,omitempty"`
	LastLatencyMS       int64  `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool   `json:"lastTimeout,omitempty"`
	TotalRequests       int64  `json:"totalRequests,omitempty"`
	TotalFailures       int64  `json:"totalFailures,omitempty"`
	TimeoutCount        int64  `json:"timeoutCount,omitempty"`
	Blocked             bool   `json:"blocked"`
}

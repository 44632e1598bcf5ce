package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gamereview/searchservice/internal/domain"
	"gamereview/searchservice/internal/search"
)

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error)
	Popular(ctx context.Context, limit int) ([]domain.Game, error)
	TopRated(ctx context.Context, limit, minRatingCount int) ([]domain.Game, error)
	Recent(ctx context.Context, limit int) ([]domain.Game, error)
	Providers() []domain.ProviderStatus
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

type Server struct {
	search SearchService
	logger *slog.Logger
}

const (
	maxQueryLength     = 500
	defaultPageLimit   = 20
	defaultMinRatings  = 50
	defaultBrowseLimit = 20
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search: searchService,
		logger: slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search/providers", s.handleProviders)
	mux.HandleFunc("/search/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/games/popular", s.handlePopular)
	mux.HandleFunc("/games/top-rated", s.handleTopRated)
	mux.HandleFunc("/games/recent", s.handleRecent)
	mux.HandleFunc("/games/image", s.handleImageProxy)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "game-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	// An empty query is valid and yields an empty result set.
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}
	limit, err := parsePositiveInt(r, "limit", defaultPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	offset, err := parseNonNegativeInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid offset")
		return
	}
	filters, err := parseSearchFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	noCache := parseOptionalBool(r.URL.Query().Get("nocache")) || parseOptionalBool(r.URL.Query().Get("noCache"))

	response, err := s.search.Search(r.Context(), domain.SearchRequest{
		Query:   query,
		Limit:   limit,
		Offset:  offset,
		Filters: filters,
		NoCache: noCache,
	})
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(query, 80)),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, search.ErrInvalidOffset), errors.Is(err, search.ErrInvalidLimit):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		}
		return
	}

	s.logger.Info("search served",
		slog.String("query", truncate(query, 80)),
		slog.Int("totalCount", response.TotalCount),
		slog.Int64("elapsedMs", response.ElapsedMS),
		slog.Bool("supplemented", response.Supplemented),
		slog.Bool("cacheHit", response.CacheHit),
	)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	s.handleBrowse(w, r, "/games/popular", func(ctx context.Context, limit int) ([]domain.Game, error) {
		return s.search.Popular(ctx, limit)
	})
}

func (s *Server) handleTopRated(w http.ResponseWriter, r *http.Request) {
	minRatings, err := parsePositiveInt(r, "minRatings", defaultMinRatings)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid minRatings")
		return
	}
	s.handleBrowse(w, r, "/games/top-rated", func(ctx context.Context, limit int) ([]domain.Game, error) {
		return s.search.TopRated(ctx, limit, minRatings)
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	s.handleBrowse(w, r, "/games/recent", func(ctx context.Context, limit int) ([]domain.Game, error) {
		return s.search.Recent(ctx, limit)
	})
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request, path string, fetch func(context.Context, int) ([]domain.Game, error)) {
	if r.URL.Path != path {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	limit, err := parsePositiveInt(r, "limit", defaultBrowseLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}

	games, err := fetch(r.Context(), limit)
	if err != nil {
		s.logger.Warn("browse request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "catalog unavailable")
		return
	}
	if games == nil {
		games = []domain.Game{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": games})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/providers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.search.Providers(),
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/providers/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.ProviderDiagnostics(),
	})
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		key := strings.ToLower(value)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, value)
	}
	return out
}

func parseSearchFilters(r *http.Request) (domain.SearchFilters, error) {
	q := r.URL.Query()
	var filters domain.SearchFilters

	filters.Genres = parseCSV(q.Get("genres"))
	filters.Platforms = parseCSV(q.Get("platforms"))

	if v := strings.TrimSpace(q.Get("minRating")); v != "" {
		value, err := strconv.ParseFloat(v, 64)
		if err != nil || value < 0 || value > 100 {
			return filters, errors.New("invalid minRating")
		}
		filters.MinRating = value
	}
	if v := strings.TrimSpace(q.Get("yearFrom")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filters, errors.New("invalid yearFrom")
		}
		filters.YearFrom = n
	}
	if v := strings.TrimSpace(q.Get("yearTo")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filters, errors.New("invalid yearTo")
		}
		filters.YearTo = n
	}
	return filters, nil
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseNonNegativeInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

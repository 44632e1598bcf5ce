package igdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"gamereview/searchservice/internal/domain"
)

const (
	defaultEndpoint = "https://api.igdb.com/v4"
	redisCacheKey   = "gsearch:igdb:"

	maxResponseBytes = 512 * 1024
)

// Client talks to the IGDB metadata API. Responses are optionally cached in
// Redis so repeated queries for the same title skip the upstream round trip.
type Client struct {
	endpoint string
	clientID string
	token    string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
}

type Config struct {
	Endpoint string
	ClientID string
	Token    string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
}

func NewClient(cfg Config) *Client {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		clientID: strings.TrimSpace(cfg.ClientID),
		token:    strings.TrimSpace(cfg.Token),
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
	}
}

func (c *Client) Name() string { return "igdb" }

func (c *Client) Enabled() bool {
	return c.clientID != "" && c.token != ""
}

type involvedCompany struct {
	Company struct {
		Name string `json:"name"`
	} `json:"company"`
	Developer bool `json:"developer"`
	Publisher bool `json:"publisher"`
}

type gameItem struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Summary          string `json:"summary,omitempty"`
	FirstReleaseDate int64  `json:"first_release_date,omitempty"`
	Category         int    `json:"category,omitempty"`
	Cover            struct {
		URL string `json:"url"`
	} `json:"cover,omitempty"`
	Genres []struct {
		Name string `json:"name"`
	} `json:"genres,omitempty"`
	Platforms []struct {
		Name string `json:"name"`
	} `json:"platforms,omitempty"`
	InvolvedCompanies     []involvedCompany `json:"involved_companies,omitempty"`
	AggregatedRating      float64           `json:"aggregated_rating,omitempty"`
	AggregatedRatingCount int               `json:"aggregated_rating_count,omitempty"`
	Rating                float64           `json:"rating,omitempty"`
	RatingCount           int               `json:"rating_count,omitempty"`
	Follows               int               `json:"follows,omitempty"`
	Hypes                 int               `json:"hypes,omitempty"`
}

const gameFields = "name,summary,first_release_date,category,cover.url," +
	"genres.name,platforms.name," +
	"involved_companies.company.name,involved_companies.developer,involved_companies.publisher," +
	"aggregated_rating,aggregated_rating_count,rating,rating_count,follows,hypes"

// SearchGames runs a full-text title search against the provider.
func (c *Client) SearchGames(ctx context.Context, query string, limit int) ([]domain.Game, error) {
	if !c.Enabled() {
		return nil, nil
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	cacheKey := "search:" + strings.ToLower(trimmed) + ":" + strconv.Itoa(limit)
	if items, ok := c.cacheGet(ctx, cacheKey); ok {
		return toGames(items), nil
	}

	body := fmt.Sprintf("search %q; fields %s; limit %d;", trimmed, gameFields, limit)
	items, err := c.post(ctx, "/games", body)
	if err != nil {
		return nil, err
	}

	c.cacheSet(ctx, cacheKey, items)
	return toGames(items), nil
}

// GamesByIDs fetches specific provider records in one batch.
func (c *Client) GamesByIDs(ctx context.Context, ids []int64) ([]domain.Game, error) {
	if !c.Enabled() || len(ids) == 0 {
		return nil, nil
	}
	values := make([]string, 0, len(ids))
	for _, id := range ids {
		values = append(values, strconv.FormatInt(id, 10))
	}
	body := fmt.Sprintf("fields %s; where id = (%s); limit %d;", gameFields, strings.Join(values, ","), len(values))
	items, err := c.post(ctx, "/games", body)
	if err != nil {
		return nil, err
	}
	return toGames(items), nil
}

func (c *Client) post(ctx context.Context, path, body string) ([]gameItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("igdb HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	var items []gameItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("igdb: malformed response: %w", err)
	}
	return items, nil
}

func (c *Client) cacheGet(ctx context.Context, key string) ([]gameItem, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, redisCacheKey+key).Bytes()
	if err != nil {
		return nil, false
	}
	var items []gameItem
	if json.Unmarshal(data, &items) != nil {
		return nil, false
	}
	return items, true
}

func (c *Client) cacheSet(ctx context.Context, key string, items []gameItem) {
	if c.redis == nil {
		return
	}
	if data, err := json.Marshal(items); err == nil {
		_ = c.redis.Set(ctx, redisCacheKey+key, data, c.cacheTTL).Err()
	}
}

func toGames(items []gameItem) []domain.Game {
	games := make([]domain.Game, 0, len(items))
	for _, item := range items {
		if item.ID <= 0 || strings.TrimSpace(item.Name) == "" {
			continue
		}
		games = append(games, toGame(item))
	}
	return games
}

func toGame(item gameItem) domain.Game {
	game := domain.Game{
		ExternalID: item.ID,
		Source:     domain.SourceExternal,
		Name:       strings.TrimSpace(item.Name),
		Summary:    item.Summary,
		CoverURL:   normalizeCoverURL(item.Cover.URL),
		Category:   domain.Category(item.Category),
		// Critic aggregate maps to the catalog rating; community rating is
		// kept separately.
		Rating:          item.AggregatedRating,
		RatingCount:     item.AggregatedRatingCount,
		UserRating:      item.Rating,
		UserRatingCount: item.RatingCount,
		Follows:         item.Follows,
		Hypes:           item.Hypes,
	}
	if item.FirstReleaseDate > 0 {
		released := time.Unix(item.FirstReleaseDate, 0).UTC()
		game.ReleaseDate = &released
	}
	for _, genre := range item.Genres {
		if genre.Name != "" {
			game.Genres = append(game.Genres, genre.Name)
		}
	}
	for _, platform := range item.Platforms {
		if platform.Name != "" {
			game.Platforms = append(game.Platforms, platform.Name)
		}
	}
	for _, company := range item.InvolvedCompanies {
		name := strings.TrimSpace(company.Company.Name)
		if name == "" {
			continue
		}
		if company.Developer && game.Developer == "" {
			game.Developer = name
		}
		if company.Publisher && game.Publisher == "" {
			game.Publisher = name
		}
	}
	return game
}

// normalizeCoverURL upgrades the provider's protocol-relative thumbnail URL
// to an https cover-size one.
func normalizeCoverURL(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "//") {
		value = "https:" + value
	}
	return strings.Replace(value, "t_thumb", "t_cover_big", 1)
}

package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	MongoURI         string
	MongoDatabase    string
	MongoCollection  string
	IGDBEndpoint     string
	IGDBClientID     string
	IGDBToken        string
	RedisURL         string
	ExternalTimeout  time.Duration
	RequestTimeout   time.Duration
	CacheTTL         time.Duration
	LongCacheTTL     time.Duration
	CacheMaxEntries  int
	CacheDisabled    bool
	WriteBackBatch   int
	StalenessWindow  time.Duration
	RefreshChance    float64
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "gamereview"),
		MongoCollection: getEnv("MONGO_COLLECTION", "games"),
		IGDBEndpoint:    getEnv("IGDB_ENDPOINT", "https://api.igdb.com/v4"),
		IGDBClientID:    strings.TrimSpace(os.Getenv("IGDB_CLIENT_ID")),
		IGDBToken:       strings.TrimSpace(os.Getenv("IGDB_TOKEN")),
		RedisURL:        getEnv("REDIS_URL", ""),
		ExternalTimeout: time.Duration(getEnvInt("EXTERNAL_TIMEOUT_MS", 1000)) * time.Millisecond,
		RequestTimeout:  time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
		CacheTTL:        time.Duration(getEnvInt("SEARCH_CACHE_TTL_MINUTES", 5)) * time.Minute,
		LongCacheTTL:    time.Duration(getEnvInt("SEARCH_LONG_CACHE_TTL_HOURS", 6)) * time.Hour,
		CacheMaxEntries: getEnvInt("SEARCH_CACHE_MAX_ENTRIES", 50),
		CacheDisabled:   getEnvBool("SEARCH_CACHE_DISABLED", false),
		WriteBackBatch:  getEnvInt("WRITEBACK_BATCH_SIZE", 10),
		StalenessWindow: time.Duration(getEnvInt("CATALOG_STALENESS_DAYS", 7)) * 24 * time.Hour,
		RefreshChance:   getEnvFloat("SUPPLEMENT_REFRESH_CHANCE", 0.1),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

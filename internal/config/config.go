package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort              = "8080"
	defaultSessionCookieName = "aria_session"
	defaultSessionTTLHours   = 168
	defaultFrontendOrigin    = "http://localhost:3000"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "cognitivecomputations/dolphin-mistral-24b-venice-edition:free"
	defaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel       = "gemini-1.5-flash"
	defaultSerpAPIBaseURL    = "https://serpapi.com"
	defaultUploadDir         = "/tmp/aria-uploads"
	defaultContextLength     = 15
	defaultTemperature       = 0.7
	defaultMaxTokens         = 2000
)

type Config struct {
	Port              string
	Environment       string
	FrontendOrigin    string
	AllowedOrigins    []string
	CookieSecure      bool
	SessionCookieName string
	SessionTTL        time.Duration

	DatabaseURL       string
	DatabaseAuthToken string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string

	GoogleAPIKey  string
	GeminiBaseURL string
	GeminiModel   string

	SerpAPIKey     string
	SerpAPIBaseURL string

	GCSBucket       string
	GCSUploadPrefix string
	LocalUploadDir  string

	DefaultContextLength int
	DefaultTemperature   float64
	DefaultMaxTokens     int
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func Load() (Config, error) {
	cfg := Config{
		Port:              envOrDefault("PORT", defaultPort),
		Environment:       envOrDefault("APP_ENV", "development"),
		FrontendOrigin:    envOrDefault("FRONTEND_ORIGIN", defaultFrontendOrigin),
		CookieSecure:      boolOrDefault("COOKIE_SECURE", false),
		SessionCookieName: envOrDefault("SESSION_COOKIE_NAME", defaultSessionCookieName),

		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DatabaseAuthToken: strings.TrimSpace(os.Getenv("DATABASE_AUTH_TOKEN")),

		OpenRouterAPIKey:  strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
		OpenRouterBaseURL: envOrDefault("OPENROUTER_BASE_URL", defaultOpenRouterBaseURL),
		OpenRouterModel:   envOrDefault("OPENROUTER_MODEL", defaultOpenRouterModel),

		GoogleAPIKey:  strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")),
		GeminiBaseURL: envOrDefault("GEMINI_BASE_URL", defaultGeminiBaseURL),
		GeminiModel:   envOrDefault("GEMINI_MODEL", defaultGeminiModel),

		SerpAPIKey:     strings.TrimSpace(os.Getenv("SERPAPI_KEY")),
		SerpAPIBaseURL: envOrDefault("SERPAPI_BASE_URL", defaultSerpAPIBaseURL),

		GCSBucket:       strings.TrimSpace(os.Getenv("GCS_BUCKET")),
		GCSUploadPrefix: envOrDefault("GCS_UPLOAD_PREFIX", "aria-uploads"),
		LocalUploadDir:  envOrDefault("LOCAL_UPLOAD_DIR", defaultUploadDir),

		DefaultContextLength: intOrDefault("DEFAULT_CONTEXT_LENGTH", defaultContextLength),
		DefaultTemperature:   floatOrDefault("MODE_DEFAULT_TEMPERATURE", defaultTemperature),
		DefaultMaxTokens:     intOrDefault("DEFAULT_MAX_TOKENS", defaultMaxTokens),
	}

	if cfg.Environment == "production" {
		cfg.CookieSecure = true
	}

	sessionTTLHours := intOrDefault("SESSION_TTL_HOURS", defaultSessionTTLHours)
	cfg.SessionTTL = time.Duration(sessionTTLHours) * time.Hour
	if cfg.SessionTTL <= 0 {
		return Config{}, errors.New("SESSION_TTL_HOURS must be > 0")
	}

	origins := parseList(envOrDefault("CORS_ALLOWED_ORIGINS", cfg.FrontendOrigin+",http://localhost:5173"))
	if len(origins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}
	cfg.AllowedOrigins = origins

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if strings.HasPrefix(cfg.DatabaseURL, "libsql://") && cfg.DatabaseAuthToken == "" {
		return Config{}, errors.New("DATABASE_AUTH_TOKEN is required for libsql:// URLs")
	}
	if cfg.DefaultContextLength <= 0 {
		return Config{}, errors.New("DEFAULT_CONTEXT_LENGTH must be > 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func boolOrDefault(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func floatOrDefault(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

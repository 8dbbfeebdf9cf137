package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Model settings
	AIProvider   string // "gemini" or "openai"
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string

	// Fallback image generation
	ImageProvider    string // "gemini" (Imagen) or "openai"
	ImageModel       string
	ImageSize        string // openai only
	ImageAspectRatio string // gemini only

	// Per-run call budgets (0 = unlimited)
	MaxModelRequests    int
	MaxImageGenerations int

	// News providers
	APITubeAPIKey    string
	APITubeBaseURL   string
	NewsAPIKey       string
	NewsAPIBaseURL   string
	NewsLookbackDays int
	LayoutPath       string

	// Page fetches to fill in truncated article bodies (0 = off)
	EnrichMaxArticles int
	EnrichMinChars    int

	// Upload settings
	UploadProvider         string // "cloudinary" or "gcs"
	CloudinaryCloudName    string
	CloudinaryUploadPreset string
	CloudinaryBaseURL      string
	GCSBucket              string
	GCSPrefix              string
	GCSPublicBaseURL       string

	// Webhooks
	TaskWebhookURL   string
	TaskWebhookToken string
	StatusWebhookURL string
	BundleWebhookURL string

	// Optional Telegram delivery of the final bundle
	TelegramBotToken string
	TelegramChatID   string
	TelegramAPIURL   string

	// Branding
	LogoURL    string
	OverlayURL string
	BrandText  string

	// Server settings
	AppPassword string
	HTTPPort    int
	RunTimeout  time.Duration

	// History
	HistoryBackend string // "file", "sqlite" or "postgres"
	HistoryPath    string
	HistoryLimit   int
	DatabaseURL    string

	// App settings
	Debug          bool
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	AssetCacheTTL  time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		AIProvider:          "gemini",
		GeminiModel:         "gemini-2.5-flash",
		OpenAIModel:         "gpt-4o-mini",
		ImageProvider:       "gemini",
		ImageSize:           "1792x1024",
		ImageAspectRatio:    "4:3",
		MaxModelRequests:    0,
		MaxImageGenerations: 0,
		APITubeBaseURL:      "https://api.apitube.io",
		NewsAPIBaseURL:      "https://newsapi.org",
		NewsLookbackDays:    2,
		EnrichMinChars:      400,
		UploadProvider:      "cloudinary",
		CloudinaryBaseURL:   "https://api.cloudinary.com",
		GCSPrefix:           "dispatch",
		BrandText:           "Dhaka Dispatch",
		HTTPPort:            8080,
		RunTimeout:          15 * time.Minute,
		HistoryBackend:      "file",
		HistoryPath:         "run_history.json",
		HistoryLimit:        50,
		RequestTimeout:      30 * time.Second,
		RetryAttempts:       2,
		RetryDelay:          2 * time.Second,
		AssetCacheTTL:       6 * time.Hour,
	}

	cfg.AIProvider = getEnvOrDefault("AI_PROVIDER", cfg.AIProvider)
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("API_KEY")
	}
	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", cfg.GeminiModel)
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.ImageProvider = strings.ToLower(getEnvOrDefault("IMAGE_PROVIDER", cfg.ImageProvider))
	cfg.ImageModel = getEnvOrDefault("IMAGE_MODEL", defaultImageModel(cfg.ImageProvider))
	cfg.ImageSize = getEnvOrDefault("IMAGE_SIZE", cfg.ImageSize)
	cfg.ImageAspectRatio = getEnvOrDefault("IMAGE_ASPECT_RATIO", cfg.ImageAspectRatio)
	cfg.MaxModelRequests = getEnvIntOrDefault("MAX_MODEL_REQUESTS", cfg.MaxModelRequests)
	cfg.MaxImageGenerations = getEnvIntOrDefault("MAX_IMAGE_GENERATIONS", cfg.MaxImageGenerations)

	cfg.APITubeAPIKey = os.Getenv("APITUBE_API_KEY")
	cfg.APITubeBaseURL = getEnvOrDefault("APITUBE_BASE_URL", cfg.APITubeBaseURL)
	cfg.NewsAPIKey = os.Getenv("NEWSAPI_API_KEY")
	cfg.NewsAPIBaseURL = getEnvOrDefault("NEWSAPI_BASE_URL", cfg.NewsAPIBaseURL)
	cfg.NewsLookbackDays = getEnvIntOrDefault("NEWS_LOOKBACK_DAYS", cfg.NewsLookbackDays)
	cfg.LayoutPath = os.Getenv("LAYOUT_PATH")
	cfg.EnrichMaxArticles = getEnvIntOrDefault("ENRICH_MAX_ARTICLES", cfg.EnrichMaxArticles)
	cfg.EnrichMinChars = getEnvIntOrDefault("ENRICH_MIN_CHARS", cfg.EnrichMinChars)

	cfg.UploadProvider = getEnvOrDefault("UPLOAD_PROVIDER", cfg.UploadProvider)
	cfg.CloudinaryCloudName = os.Getenv("CLOUDINARY_CLOUD_NAME")
	cfg.CloudinaryUploadPreset = os.Getenv("CLOUDINARY_UPLOAD_PRESET")
	cfg.CloudinaryBaseURL = getEnvOrDefault("CLOUDINARY_BASE_URL", cfg.CloudinaryBaseURL)
	cfg.GCSBucket = os.Getenv("GCS_BUCKET")
	cfg.GCSPrefix = getEnvOrDefault("GCS_PREFIX", cfg.GCSPrefix)
	cfg.GCSPublicBaseURL = os.Getenv("GCS_PUBLIC_BASE_URL")

	cfg.TaskWebhookURL = os.Getenv("TASK_WEBHOOK_URL")
	cfg.TaskWebhookToken = os.Getenv("TASK_WEBHOOK_TOKEN")
	cfg.StatusWebhookURL = os.Getenv("STATUS_WEBHOOK_URL")
	cfg.BundleWebhookURL = os.Getenv("BUNDLE_WEBHOOK_URL")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	cfg.TelegramAPIURL = getEnvOrDefault("TELEGRAM_API_URL", "https://api.telegram.org")

	cfg.LogoURL = os.Getenv("LOGO_URL")
	cfg.OverlayURL = os.Getenv("OVERLAY_URL")
	cfg.BrandText = getEnvOrDefault("BRAND_TEXT", cfg.BrandText)

	cfg.AppPassword = os.Getenv("APP_PASSWORD")
	cfg.HTTPPort = getEnvIntOrDefault("HTTP_PORT", cfg.HTTPPort)
	cfg.RunTimeout = getEnvDurationOrDefault("RUN_TIMEOUT", cfg.RunTimeout)

	cfg.HistoryBackend = getEnvOrDefault("HISTORY_BACKEND", cfg.HistoryBackend)
	cfg.HistoryPath = getEnvOrDefault("HISTORY_PATH", cfg.HistoryPath)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.HistoryLimit = getEnvIntOrDefault("HISTORY_LIMIT", cfg.HistoryLimit)

	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}
	cfg.RequestTimeout = getEnvDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	if v := os.Getenv("RETRY_ATTEMPTS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.RetryAttempts = val
		}
	}
	cfg.RetryDelay = getEnvDurationOrDefault("RETRY_DELAY", cfg.RetryDelay)
	cfg.AssetCacheTTL = getEnvDurationOrDefault("ASSET_CACHE_TTL", cfg.AssetCacheTTL)

	return cfg, cfg.Validate()
}

func defaultImageModel(provider string) string {
	if provider == "openai" {
		return "dall-e-3"
	}
	return "imagen-3.0-generate-002"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.AIProvider) {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER=gemini")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("AI_PROVIDER must be 'gemini' or 'openai', got %q", c.AIProvider)
	}
	switch c.ImageProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when IMAGE_PROVIDER=gemini")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when IMAGE_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("IMAGE_PROVIDER must be 'gemini' or 'openai', got %q", c.ImageProvider)
	}
	if c.APITubeAPIKey == "" && c.NewsAPIKey == "" {
		return fmt.Errorf("at least one of APITUBE_API_KEY or NEWSAPI_API_KEY is required")
	}

	switch c.UploadProvider {
	case "cloudinary":
		if c.CloudinaryCloudName == "" || c.CloudinaryUploadPreset == "" {
			return fmt.Errorf("CLOUDINARY_CLOUD_NAME and CLOUDINARY_UPLOAD_PRESET are required for cloudinary uploads")
		}
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required for gcs uploads")
		}
	default:
		return fmt.Errorf("UPLOAD_PROVIDER must be 'cloudinary' or 'gcs', got %q", c.UploadProvider)
	}

	if c.TaskWebhookURL == "" {
		return fmt.Errorf("TASK_WEBHOOK_URL is required")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	switch c.HistoryBackend {
	case "file", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when HISTORY_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("HISTORY_BACKEND must be 'file', 'sqlite' or 'postgres', got %q", c.HistoryBackend)
	}
	if c.NewsLookbackDays < 0 {
		return fmt.Errorf("NEWS_LOOKBACK_DAYS must be >= 0, got %d", c.NewsLookbackDays)
	}
	return nil
}

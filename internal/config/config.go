package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable through STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// Persistence
	StoreBackend string
	MongoURI     string
	MongoDbName  string
	PostgresDSN  string

	// Redis. Empty RedisAddr disables background workers and live events.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort            string
	ServiceApiPort     string
	CorsAllowedOrigins []string
	OperationTimeout   time.Duration

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	UploadURLTTL       time.Duration

	// Marketplace rules
	AuctionMinDuration   time.Duration
	AuctionMaxDuration   time.Duration
	AuctionSweepInterval time.Duration
	SweepParallelism     int
	MaxOfferImages       int
	MaxListingPhotos     int

	// Notifications
	EventLogPath string

	// Rate limiting on offer submission
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getSeconds := func(key, defaultValue string) (time.Duration, error) {
		n, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(n) * time.Second, nil
	}

	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", BackendMongo))
	switch cfg.StoreBackend {
	case BackendMongo:
		cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
		if err != nil {
			return nil, err
		}
	case BackendPostgres:
		cfg.PostgresDSN, err = getRequiredEnv("POSTGRES_DSN")
		if err != nil {
			return nil, err
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND: %q", cfg.StoreBackend)
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "trueque")

	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if cfg.JwtTTL, err = getSeconds("JWT_TTL_SECONDS", "3600"); err != nil {
		return nil, err
	}

	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	for _, origin := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", ""), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CorsAllowedOrigins = append(cfg.CorsAllowedOrigins, origin)
		}
	}
	if cfg.OperationTimeout, err = getSeconds("OPERATION_TIMEOUT_SECONDS", "10"); err != nil {
		return nil, err
	}

	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	if cfg.UploadURLTTL, err = getSeconds("UPLOAD_URL_TTL_SECONDS", "900"); err != nil {
		return nil, err
	}

	if cfg.AuctionMinDuration, err = getSeconds("AUCTION_MIN_DURATION_SECONDS", "60"); err != nil {
		return nil, err
	}
	maxDays, err := strconv.Atoi(getEnv("AUCTION_MAX_DURATION_DAYS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUCTION_MAX_DURATION_DAYS: %w", err)
	}
	cfg.AuctionMaxDuration = time.Duration(maxDays) * 24 * time.Hour
	if cfg.AuctionSweepInterval, err = getSeconds("AUCTION_SWEEP_INTERVAL_SECONDS", "60"); err != nil {
		return nil, err
	}
	cfg.SweepParallelism, err = strconv.Atoi(getEnv("SWEEP_PARALLELISM", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_PARALLELISM: %w", err)
	}
	cfg.MaxOfferImages, err = strconv.Atoi(getEnv("MAX_OFFER_IMAGES", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_OFFER_IMAGES: %w", err)
	}
	cfg.MaxListingPhotos, err = strconv.Atoi(getEnv("MAX_LISTING_PHOTOS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_LISTING_PHOTOS: %w", err)
	}

	cfg.EventLogPath = getEnv("EVENT_LOG_PATH", "")

	cfg.RateLimitBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_BUCKET_SIZE", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_REFILL_RATE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REFILL_RATE: %w", err)
	}

	return cfg, nil
}

// Defaults returns a configuration with the marketplace rule defaults and no
// external services. Used by tests and the memory backend.
func Defaults() *Config {
	return &Config{
		RunMode:              "all",
		StoreBackend:         BackendMemory,
		JwtTTL:               time.Hour,
		OperationTimeout:     10 * time.Second,
		UploadURLTTL:         15 * time.Minute,
		AuctionMinDuration:   time.Minute,
		AuctionMaxDuration:   30 * 24 * time.Hour,
		AuctionSweepInterval: time.Minute,
		SweepParallelism:     8,
		MaxOfferImages:       5,
		MaxListingPhotos:     10,
		RateLimitBucketSize:  5,
		RateLimitRefillRate:  1,
	}
}

package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

var (
	// Site scope for single-site operations (worker, search)
	SiteID = os.Getenv("SITE_ID")

	// Storage environment selection: "local", "dev-remote" or "prod-remote"
	FileStorageEnv = getEnvWithDefault("FILE_STORAGE_ENV", "local")

	// Local storage root; durable artifacts live under {root}/sites/{siteId}/
	LocalStorageRoot = getEnvWithDefault("LOCAL_STORAGE_ROOT", "./data")

	// Remote mode: each site gets its own bucket named {siteId}-{suffix}
	S3BucketSuffix = getEnvWithDefault("S3_BUCKET_SUFFIX", "podsearch")

	// S3/R2 configuration
	AWSRegion      = getEnvWithDefault("AWS_REGION", "auto")
	AWSEndpointURL = os.Getenv("AWS_ENDPOINT_URL") // For R2: https://account-id.r2.cloudflarestorage.com
	AWSAccessKey   = os.Getenv("AWS_ACCESS_KEY_ID")
	AWSSecretKey   = os.Getenv("AWS_SECRET_ACCESS_KEY")

	// Transcription provider selection: "openai", "deepgram" or "local"
	TranscriptionProvider = getEnvWithDefault("TRANSCRIPTION_PROVIDER", "openai")
	TranscriptionAPIKey   = os.Getenv("TRANSCRIPTION_API_KEY")

	// Local provider binaries (whisper.cpp style CLI)
	TranscodeToolPath = getEnvWithDefault("TRANSCODE_TOOL_PATH", "whisper-cli")
	TranscodeModel    = os.Getenv("TRANSCODE_MODEL")

	// Site registry
	SitesConfigPath = getEnvWithDefault("SITES_CONFIG_PATH", "./sites.json")

	// Operator-scoped spelling corrections, merged with each site's table
	CustomCorrectionsPath = os.Getenv("CUSTOM_CORRECTIONS_PATH")

	// Remote indexing trigger
	IndexerFunctionARN = os.Getenv("INDEXER_FUNCTION_ARN")
	IndexerRoleARN     = os.Getenv("INDEXER_ROLE_ARN")

	// CDN invalidation after new audio
	CloudFrontDistributionID = os.Getenv("CLOUDFRONT_DISTRIBUTION_ID")

	// Queue
	ValkeyHost = getEnvWithDefault("VALKEY_HOST", "localhost")
	ValkeyPort = getEnvInt("VALKEY_PORT", 6379)

	// Search server
	Port = getEnvWithDefault("PORT", "8080")

	// Concurrency caps
	MaxFeedWorkers     = getEnvInt("MAX_FEED_WORKERS", 4)
	MaxDownloadWorkers = getEnvInt("MAX_DOWNLOAD_WORKERS", 6)
	MaxChunkWorkers    = getEnvInt("MAX_CHUNK_WORKERS", 2)
	MaxUploadWorkers   = getEnvInt("MAX_UPLOAD_WORKERS", 8)

	// Network deadlines
	FeedFetchTimeout     = getEnvDuration("FEED_FETCH_TIMEOUT", 30*time.Second)
	AudioDownloadTimeout = getEnvDuration("AUDIO_DOWNLOAD_TIMEOUT", 30*time.Minute)
)

// IsRemote reports whether the storage environment is one of the remote modes.
func IsRemote() bool {
	return FileStorageEnv == "dev-remote" || FileStorageEnv == "prod-remote"
}

// LogLevel maps LOG_LEVEL to a slog level. "trace" has no slog equivalent and
// maps to debug.
func LogLevel() slog.Level {
	switch getEnvWithDefault("LOG_LEVEL", "info") {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

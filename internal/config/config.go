// Package config centralizes environment-driven configuration the way the
// teacher's mcpserver.Config/DefaultConfig did, extended to the dub
// pipeline's surfaces.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every configuration key spec.md §6 names, plus the ambient
// deployment knobs the teacher's mcpserver.Config carried (table name,
// bucket, region, secret prefix).
type Config struct {
	// HTTP / job surface
	Port      int
	MaxJobs   int // fixed-size worker pool, default 5 per spec.md §5
	TempDir   string
	JobTTL    time.Duration

	// Durable job index / artifact mirror (optional, ambient persistence)
	DynamoDBTable string
	S3Bucket      string
	CDNBaseURL    string
	AWSRegion     string
	SecretPrefix  string

	// Recognizer
	RecognizerEndpoint  string
	RecognizerAPIKey    string
	RecognizerSyncLimit time.Duration // duration threshold for staged vs sync path

	// TTS cost comparison / rate cards
	DefaultTTSProvider string
}

// Default returns a Config populated from the environment, mirroring the
// teacher's envOr-based DefaultConfig.
func Default() Config {
	return Config{
		Port:                envInt("DUBCAST_PORT", 8080),
		MaxJobs:             envInt("DUBCAST_MAX_JOBS", 5),
		TempDir:             envOr("DUBCAST_TEMP_DIR", "/tmp/dubcast"),
		JobTTL:              envDuration("DUBCAST_JOB_TTL", 24*time.Hour),
		DynamoDBTable:       envOr("DYNAMODB_TABLE", "dubcast-jobs-prod"),
		S3Bucket:            envOr("S3_BUCKET", ""),
		CDNBaseURL:          envOr("CDN_BASE_URL", ""),
		AWSRegion:           envOr("AWS_REGION", "us-east-1"),
		SecretPrefix:        envOr("SECRET_PREFIX", "/dubcast/"),
		RecognizerEndpoint:  envOr("RECOGNIZER_ENDPOINT", ""),
		RecognizerAPIKey:    os.Getenv("RECOGNIZER_API_KEY"),
		RecognizerSyncLimit: envDuration("RECOGNIZER_SYNC_LIMIT", 60*time.Second),
		DefaultTTSProvider:  envOr("DEFAULT_TTS_PROVIDER", "auto"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

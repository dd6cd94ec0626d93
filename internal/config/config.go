package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings. Values come from the environment
// (main loads .env first); every field has a working default so a bare
// environment still runs.
type Config struct {
	Port        string
	Environment string

	// MaxConcurrentBatches bounds how many donation batches may be inside
	// the processing stage at once.
	MaxConcurrentBatches int

	// StartupDelay is slept once per batch before processing begins.
	// Zero disables it.
	StartupDelay time.Duration

	// PendingTTL evicts donations that never reach their expected task
	// count. Zero retains them indefinitely.
	PendingTTL time.Duration

	// SinkMaxRetryTime caps retrying of persistence writes.
	SinkMaxRetryTime time.Duration

	// FFmpegBinary names the converter used for non-WAV uploads.
	FFmpegBinary string

	// ExportPath, when set, saves a workbook snapshot to disk on every
	// dataset export request.
	ExportPath string

	// MaxAudioBytes rejects oversized uploads at the host boundary.
	MaxAudioBytes int64
}

// FromEnv reads configuration from the environment and validates it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:                 envOr("PORT", "8080"),
		Environment:          envOr("ENVIRONMENT", "local"),
		MaxConcurrentBatches: 2,
		SinkMaxRetryTime:     30 * time.Second,
		FFmpegBinary:         envOr("FFMPEG_BINARY", "ffmpeg"),
		ExportPath:           os.Getenv("DATASET_EXPORT_PATH"),
		MaxAudioBytes:        16 << 20,
	}

	var err error
	if cfg.MaxConcurrentBatches, err = envInt("MAX_CONCURRENT_BATCHES", cfg.MaxConcurrentBatches); err != nil {
		return nil, err
	}
	if cfg.StartupDelay, err = envDuration("STARTUP_DELAY", 0); err != nil {
		return nil, err
	}
	if cfg.PendingTTL, err = envDuration("PENDING_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.SinkMaxRetryTime, err = envDuration("SINK_MAX_RETRY_TIME", cfg.SinkMaxRetryTime); err != nil {
		return nil, err
	}

	if cfg.MaxConcurrentBatches < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_BATCHES must be >= 1, got %d", cfg.MaxConcurrentBatches)
	}
	if cfg.StartupDelay < 0 || cfg.PendingTTL < 0 {
		return nil, fmt.Errorf("durations must not be negative")
	}
	return cfg, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", k, err)
	}
	return n, nil
}

func envDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", k, err)
	}
	return d, nil
}

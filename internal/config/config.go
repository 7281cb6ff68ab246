package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	DatabaseURL     string
	TemporalAddress string
	HTTPListenAddr  string
	MetricsAddr     string
	LogLevel        string
	ServiceName     string

	// Monitoring store (raw utilization samples).
	MonitoringURL          string
	MonitoringToken        string
	MonitoringFailSilently bool

	// Sample history window in days. Samples older than this are pruned
	// (and optionally archived to S3 first).
	SampleRetentionDays int

	// Cron expressions for the periodic jobs.
	ReconcileCron string
	CollectCron   string
	SnapshotCron  string
	PruneCron     string

	// S3 archive target for pruned samples. Archival is disabled when the
	// bucket is empty.
	ArchiveBucket    string
	ArchiveEndpoint  string
	ArchiveRegion    string
	ArchiveAccessKey string
	ArchiveSecretKey string

	// Path to the YAML file with default quota limits per scope type.
	DefaultLimitsPath string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		TemporalAddress:        getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		HTTPListenAddr:         getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsAddr:            getEnv("METRICS_ADDR", ""),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		ServiceName:            getEnv("SERVICE_NAME", "metering"),
		MonitoringURL:          getEnv("MONITORING_URL", ""),
		MonitoringToken:        getEnv("MONITORING_TOKEN", ""),
		MonitoringFailSilently: getEnvBool("MONITORING_FAIL_SILENTLY", true),
		SampleRetentionDays:    getEnvInt("SAMPLE_RETENTION_DAYS", 90),
		ReconcileCron:          getEnv("RECONCILE_CRON", "*/10 * * * *"),
		CollectCron:            getEnv("COLLECT_CRON", "*/5 * * * *"),
		SnapshotCron:           getEnv("SNAPSHOT_CRON", "0 * * * *"),
		PruneCron:              getEnv("PRUNE_CRON", "0 4 * * *"),
		ArchiveBucket:          getEnv("ARCHIVE_BUCKET", ""),
		ArchiveEndpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveRegion:          getEnv("ARCHIVE_REGION", "us-east-1"),
		ArchiveAccessKey:       getEnv("ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey:       getEnv("ARCHIVE_SECRET_KEY", ""),
		DefaultLimitsPath:      getEnv("DEFAULT_LIMITS_PATH", ""),
	}

	return cfg, nil
}

// Validate checks that the fields required by the given role are set.
func (c *Config) Validate(role string) error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s: DATABASE_URL is required", role)
	}
	switch role {
	case "worker":
		if c.TemporalAddress == "" {
			return fmt.Errorf("worker: TEMPORAL_ADDRESS is required")
		}
		if c.ArchiveBucket != "" && (c.ArchiveAccessKey == "" || c.ArchiveSecretKey == "") {
			return fmt.Errorf("worker: ARCHIVE_ACCESS_KEY and ARCHIVE_SECRET_KEY are required when ARCHIVE_BUCKET is set")
		}
	case "metering-api":
		if c.HTTPListenAddr == "" {
			return fmt.Errorf("metering-api: HTTP_LISTEN_ADDR is required")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

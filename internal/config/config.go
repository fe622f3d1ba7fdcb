package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/liamashdown/tokenradar/internal/secrets"
)

// StoreBackend selects where the sighting and tracked-token stores are persisted
type StoreBackend string

const (
	StoreBackendFile  StoreBackend = "file"
	StoreBackendMySQL StoreBackend = "mysql"
	StoreBackendRedis StoreBackend = "redis"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Environment string
	LogLevel    string

	// Aggregation thresholds
	QuorumThreshold       int
	SecondaryThreshold    int
	TemporalWindowMinutes int
	MaxAgeMinutes         int
	RetentionPeriod       time.Duration
	RetryIntervalSec      int

	// Growth monitor
	PollIntervalSec    int
	MonitorConcurrency int

	// Ingest
	IngestQueueSize  int
	TelegramIngest   bool
	BridgeWSURL      string
	ChannelsFile     string
	TelegramBotToken string

	// Storage
	StoreBackend        StoreBackend
	DataDir             string
	DatabaseDSN         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration
	RedisURL            string
	RedisPassword       string
	RedisKeyPrefix      string

	// Market data
	DexScreenerBaseURL string
	DexScreenerRPS     float64

	// Alert destinations
	PrimaryChat    string
	EscalationChat string
	GrowthChat     string

	// Alert transports
	AlertMode         string // comma separated: telegram, discord, smtp, kafka, log
	DiscordWebhookURL string
	SMTPHost          string
	SMTPPort          int
	SMTPUser          string
	SMTPPassword      string
	SMTPFrom          string
	SMTPTo            []string
	KafkaBrokers      []string
	KafkaTopic        string

	// Health/metrics
	HealthPort int
}

// Load reads configuration from an optional .env file and environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	retention, err := getEnvDuration("RETENTION_PERIOD", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:           getEnv("ENVIRONMENT", "production"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		QuorumThreshold:       getEnvInt("QUORUM_THRESHOLD", 7),
		SecondaryThreshold:    getEnvInt("SECONDARY_THRESHOLD", 10),
		TemporalWindowMinutes: getEnvInt("TEMPORAL_WINDOW_MINUTES", 15),
		MaxAgeMinutes:         getEnvInt("MAX_AGE_MINUTES", 5),
		RetentionPeriod:       retention,
		RetryIntervalSec:      getEnvInt("RETRY_INTERVAL_SECONDS", 30),
		PollIntervalSec:       getEnvInt("POLL_INTERVAL_SECONDS", 60),
		MonitorConcurrency:    getEnvInt("MONITOR_CONCURRENCY", 4),
		IngestQueueSize:       getEnvInt("INGEST_QUEUE_SIZE", 1024),
		TelegramIngest:        getEnvBool("TELEGRAM_INGEST", false),
		BridgeWSURL:           getEnv("BRIDGE_WS_URL", ""),
		ChannelsFile:          getEnv("CHANNELS_FILE", "channels.yaml"),
		TelegramBotToken:      secrets.GetOptionalSecret("TELEGRAM_BOT_TOKEN", ""),
		StoreBackend:          StoreBackend(getEnv("STORE_BACKEND", string(StoreBackendFile))),
		DataDir:               getEnv("DATA_DIR", "./data"),
		DatabaseDSN:           secrets.GetOptionalSecret("DATABASE_DSN", ""),
		DatabaseMaxConns:      getEnvInt("DATABASE_MAX_CONNS", 10),
		DatabaseMaxIdleTime:   time.Duration(getEnvInt("DATABASE_MAX_IDLE_TIME_MINS", 5)) * time.Minute,
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisPassword:         secrets.GetOptionalSecret("REDIS_PASSWORD", ""),
		RedisKeyPrefix:        getEnv("REDIS_KEY_PREFIX", "tokenradar"),
		DexScreenerBaseURL:    getEnv("DEXSCREENER_BASE_URL", "https://api.dexscreener.com"),
		DexScreenerRPS:        getEnvFloat("DEXSCREENER_RPS", 4.0),
		PrimaryChat:           getEnv("PRIMARY_CHAT", ""),
		EscalationChat:        getEnv("ESCALATION_CHAT", ""),
		GrowthChat:            getEnv("GROWTH_CHAT", ""),
		AlertMode:             getEnv("ALERT_MODE", "log"),
		DiscordWebhookURL:     secrets.GetOptionalSecret("DISCORD_WEBHOOK_URL", ""),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              getEnvInt("SMTP_PORT", 587),
		SMTPUser:              getEnv("SMTP_USER", ""),
		SMTPPassword:          secrets.GetOptionalSecret("SMTP_PASSWORD", ""),
		SMTPFrom:              getEnv("SMTP_FROM", "tokenradar@example.com"),
		SMTPTo:                parseCSV(getEnv("SMTP_TO", "")),
		KafkaBrokers:          parseCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "tokenradar.alerts"),
		HealthPort:            getEnvInt("HEALTH_PORT", 8080),
	}

	if cfg.EscalationChat == "" {
		cfg.EscalationChat = cfg.PrimaryChat
	}
	if cfg.GrowthChat == "" {
		cfg.GrowthChat = cfg.PrimaryChat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RetryInterval is the aggregator maintenance period
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalSec) * time.Second
}

// PollInterval is the growth monitor cycle period
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// AlertModes returns the distinct entries of ALERT_MODE, lowercased, in
// first-listed order
func (c *Config) AlertModes() []string {
	var modes []string
	seen := make(map[string]bool)
	for _, mode := range parseCSV(c.AlertMode) {
		mode = strings.ToLower(mode)
		if seen[mode] {
			continue
		}
		seen[mode] = true
		modes = append(modes, mode)
	}
	return modes
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.QuorumThreshold < 1 {
		return fmt.Errorf("QUORUM_THRESHOLD must be at least 1, got %d", c.QuorumThreshold)
	}
	if c.SecondaryThreshold < 1 {
		return fmt.Errorf("SECONDARY_THRESHOLD must be at least 1, got %d", c.SecondaryThreshold)
	}
	if c.TemporalWindowMinutes <= 0 {
		return fmt.Errorf("TEMPORAL_WINDOW_MINUTES must be positive, got %d", c.TemporalWindowMinutes)
	}
	if c.MaxAgeMinutes < 0 {
		return fmt.Errorf("MAX_AGE_MINUTES must not be negative, got %d", c.MaxAgeMinutes)
	}
	if c.PollIntervalSec <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive, got %d", c.PollIntervalSec)
	}
	if c.RetryIntervalSec <= 0 {
		return fmt.Errorf("RETRY_INTERVAL_SECONDS must be positive, got %d", c.RetryIntervalSec)
	}
	if c.RetentionPeriod <= 0 {
		return fmt.Errorf("RETENTION_PERIOD must be positive, got %s", c.RetentionPeriod)
	}
	if c.IngestQueueSize < 1 {
		return fmt.Errorf("INGEST_QUEUE_SIZE must be at least 1, got %d", c.IngestQueueSize)
	}
	if c.MonitorConcurrency < 1 {
		return fmt.Errorf("MONITOR_CONCURRENCY must be at least 1, got %d", c.MonitorConcurrency)
	}

	switch c.StoreBackend {
	case StoreBackendFile:
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required when STORE_BACKEND is file")
		}
	case StoreBackendMySQL:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required when STORE_BACKEND is mysql")
		}
	case StoreBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_BACKEND is redis")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %s (must be file, mysql, or redis)", c.StoreBackend)
	}

	if c.TelegramIngest && c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when TELEGRAM_INGEST is enabled")
	}

	modes := c.AlertModes()
	if len(modes) == 0 {
		return fmt.Errorf("ALERT_MODE must name at least one sender")
	}
	for _, mode := range modes {
		switch mode {
		case "log":
		case "telegram":
			if c.TelegramBotToken == "" {
				return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when telegram is in ALERT_MODE")
			}
			if c.PrimaryChat == "" {
				return fmt.Errorf("PRIMARY_CHAT is required when telegram is in ALERT_MODE")
			}
		case "discord":
			if c.DiscordWebhookURL == "" {
				return fmt.Errorf("DISCORD_WEBHOOK_URL is required when discord is in ALERT_MODE")
			}
		case "smtp":
			if c.SMTPHost == "" || len(c.SMTPTo) == 0 {
				return fmt.Errorf("SMTP_HOST and SMTP_TO are required when smtp is in ALERT_MODE")
			}
		case "kafka":
			if len(c.KafkaBrokers) == 0 {
				return fmt.Errorf("KAFKA_BROKERS is required when kafka is in ALERT_MODE")
			}
		default:
			return fmt.Errorf("invalid ALERT_MODE value: %s (valid values: telegram, discord, smtp, kafka, log)", mode)
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("36h") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseCSV(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

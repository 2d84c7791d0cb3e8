package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nearacct/acctsync/internal/constants"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the account sync service.
type Config struct {
	Gateway       GatewayConfig       `yaml:"gateway"`
	Data          DataConfig          `yaml:"data"`
	Log           LogConfig           `yaml:"log"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Registry      RegistryConfig      `yaml:"registry"`
	Hints         HintsConfig         `yaml:"hints"`
	EventBus      EventBusConfig      `yaml:"eventbus"`
	Node          NodeConfig          `yaml:"node"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// GatewayConfig holds RPC Gateway configuration against the NEAR
// archival JSON-RPC node.
type GatewayConfig struct {
	Endpoint               string        `yaml:"endpoint"`
	Timeout                time.Duration `yaml:"timeout"`
	PacingDelay            time.Duration `yaml:"pacing_delay"`
	MaxMissingBlockRetries int           `yaml:"max_missing_block_retries"`
	// ArchiveEndpoint is the optional raw-block-data fallback service
	// used when the archival JSON-RPC node itself lacks a method.
	ArchiveEndpoint string        `yaml:"archive_endpoint,omitempty"`
	ArchiveTimeout  time.Duration `yaml:"archive_timeout"`
}

// DataConfig holds on-disk storage configuration: the append-only
// per-account JSON ledger directory and the PebbleDB metadata store.
type DataConfig struct {
	// LedgerDir holds one JSON file per tracked account.
	LedgerDir string `yaml:"ledger_dir"`
	// MetadataPath is the PebbleDB directory for keysets, cursors, and
	// the account roster.
	MetadataPath         string `yaml:"metadata_path"`
	MetadataCacheMB      int    `yaml:"metadata_cache_mb"`
	MetadataMaxOpenFiles int    `yaml:"metadata_max_open_files"`
	ReadOnly             bool   `yaml:"readonly"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchedulerConfig holds Sync Scheduler configuration.
type SchedulerConfig struct {
	CycleDelay             time.Duration `yaml:"cycle_delay"`
	AccountTimeout          time.Duration `yaml:"account_timeout"`
	MaxConcurrentAccounts   int           `yaml:"max_concurrent_accounts"`
	ReEnrichBatchSize       int           `yaml:"re_enrich_batch_size"`
	CacheClearEvery         int           `yaml:"cache_clear_every"`
	AttributionLookbackBlocks uint64      `yaml:"attribution_lookback_blocks"`
}

// RegistryConfig holds account roster configuration.
type RegistryConfig struct {
	// Enabled is loaded from YAML and ACCTSYNC_REGISTRY_ENABLED. Nothing
	// reads it: the registry and scheduler run regardless of its value.
	Enabled bool `yaml:"enabled"`
	// BloomFilter holds bloom filter sizing (defaults applied in
	// SetDefaults). No registry code reads it; roster lookups go
	// straight to the in-memory map.
	BloomFilter BloomFilterConfig `yaml:"bloom_filter"`
	// DefaultRegistrationTTL defaults to 30 days. The registry does not
	// read it: Registry.Register takes an explicit expiry, and a zero
	// expiry means the registration never expires.
	DefaultRegistrationTTL time.Duration `yaml:"default_registration_ttl"`
}

// BloomFilterConfig holds bloom filter sizing for registry membership checks.
type BloomFilterConfig struct {
	ExpectedItems     int     `yaml:"expected_items"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

// HintsConfig holds the optional external Token Set Discoverer hint sources.
type HintsConfig struct {
	// ActivityEndpoint is an account-activity indexer used to discover
	// candidate FT contracts an account has interacted with.
	ActivityEndpoint string        `yaml:"activity_endpoint,omitempty"`
	ActivityTimeout  time.Duration `yaml:"activity_timeout"`
	// IntentsEndpoint is the NEP-245 intents swap-history API used to
	// discover candidate token ids, rate limited to ~1 req/5s.
	IntentsEndpoint string        `yaml:"intents_endpoint,omitempty"`
	IntentsToken    string        `yaml:"intents_token,omitempty"`
	IntentsTimeout  time.Duration `yaml:"intents_timeout"`
}

// EventBusConfig holds EventBus configuration for distributed operation.
type EventBusConfig struct {
	// Type is the event bus type: "local", "redis", "kafka", "hybrid".
	Type string `yaml:"type"`
	// PublishBufferSize is the size of the publish buffer.
	PublishBufferSize int `yaml:"publish_buffer_size"`
	// HistorySize is the number of events to keep in history for replay.
	HistorySize int `yaml:"history_size"`
	Redis       EventBusRedisConfig `yaml:"redis"`
	Kafka       EventBusKafkaConfig `yaml:"kafka"`
}

// EventBusRedisConfig holds Redis Pub/Sub EventBus configuration.
type EventBusRedisConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addresses     []string      `yaml:"addresses"`
	Password      string        `yaml:"password,omitempty"`
	DB            int           `yaml:"db"`
	PoolSize      int           `yaml:"pool_size"`
	MinIdleConns  int           `yaml:"min_idle_conns"`
	MaxRetries    int           `yaml:"max_retries"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	ChannelPrefix string        `yaml:"channel_prefix"`
	TLS           TLSConfig     `yaml:"tls"`
	ClusterMode   bool          `yaml:"cluster_mode"`
}

// EventBusKafkaConfig holds Kafka EventBus configuration.
type EventBusKafkaConfig struct {
	Enabled          bool      `yaml:"enabled"`
	Brokers          []string  `yaml:"brokers"`
	Topic            string    `yaml:"topic"`
	GroupID          string    `yaml:"group_id"`
	ClientID         string    `yaml:"client_id"`
	SecurityProtocol string    `yaml:"security_protocol"`
	SASLMechanism    string    `yaml:"sasl_mechanism"`
	SASLUsername     string    `yaml:"sasl_username,omitempty"`
	SASLPassword     string    `yaml:"sasl_password,omitempty"`
	BatchSize        int       `yaml:"batch_size"`
	LingerMs         int       `yaml:"linger_ms"`
	Compression      string    `yaml:"compression"`
	RequiredAcks     int       `yaml:"required_acks"`
	TLS              TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS configuration for secure connections.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CertFile           string `yaml:"cert_file,omitempty"`
	KeyFile            string `yaml:"key_file,omitempty"`
	CAFile             string `yaml:"ca_file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	ServerName         string `yaml:"server_name,omitempty"`
}

// NodeConfig holds configuration for multi-instance scheduler
// coordination (so two deployments can split a large roster).
type NodeConfig struct {
	ID       string `yaml:"id"`
	Role     string `yaml:"role"`
	Priority int    `yaml:"priority"`
}

// NotificationsConfig holds alerting configuration for operator-facing
// events: fatal ledger corruption, repeated rate-limit trips, and
// stalled accounts.
type NotificationsConfig struct {
	Enabled bool                      `yaml:"enabled"`
	Webhook WebhookNotificationConfig `yaml:"webhook"`
	Slack   SlackNotificationConfig   `yaml:"slack"`
	Retry   RetryNotificationConfig   `yaml:"retry"`
	Queue   QueueNotificationConfig   `yaml:"queue"`
}

// WebhookNotificationConfig holds webhook notification settings.
type WebhookNotificationConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	AllowedHosts    []string      `yaml:"allowed_hosts"`
	SignatureHeader string        `yaml:"signature_header"`
}

// SlackNotificationConfig holds Slack notification settings.
type SlackNotificationConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	DefaultUsername    string        `yaml:"default_username"`
	DefaultIconEmoji   string        `yaml:"default_icon_emoji"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
}

// RetryNotificationConfig holds retry behavior configuration.
type RetryNotificationConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// QueueNotificationConfig holds notification queue configuration.
type QueueNotificationConfig struct {
	BufferSize    int           `yaml:"buffer_size"`
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration.
func (c *Config) SetDefaults() {
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = constants.DefaultRPCTimeout
	}
	if c.Gateway.PacingDelay == 0 {
		c.Gateway.PacingDelay = constants.DefaultRPCPacingDelay
	}
	if c.Gateway.MaxMissingBlockRetries == 0 {
		c.Gateway.MaxMissingBlockRetries = constants.DefaultMaxMissingBlockRetries
	}
	if c.Gateway.ArchiveTimeout == 0 {
		c.Gateway.ArchiveTimeout = constants.DefaultArchiveTimeout
	}

	if c.Data.LedgerDir == "" {
		c.Data.LedgerDir = "./data/ledger"
	}
	if c.Data.MetadataPath == "" {
		c.Data.MetadataPath = "./data/metadata"
	}
	if c.Data.MetadataCacheMB == 0 {
		c.Data.MetadataCacheMB = constants.DefaultMetadataCacheSize
	}
	if c.Data.MetadataMaxOpenFiles == 0 {
		c.Data.MetadataMaxOpenFiles = constants.DefaultMetadataMaxOpenFiles
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Scheduler.CycleDelay == 0 {
		c.Scheduler.CycleDelay = constants.DefaultCycleDelay
	}
	if c.Scheduler.AccountTimeout == 0 {
		c.Scheduler.AccountTimeout = constants.DefaultAccountTimeout
	}
	if c.Scheduler.MaxConcurrentAccounts == 0 {
		c.Scheduler.MaxConcurrentAccounts = constants.DefaultMaxConcurrentAccounts
	}
	if c.Scheduler.ReEnrichBatchSize == 0 {
		c.Scheduler.ReEnrichBatchSize = constants.DefaultReEnrichBatchSize
	}
	if c.Scheduler.CacheClearEvery == 0 {
		c.Scheduler.CacheClearEvery = constants.DefaultCacheClearEvery
	}
	if c.Scheduler.AttributionLookbackBlocks == 0 {
		c.Scheduler.AttributionLookbackBlocks = constants.DefaultAttributionLookbackBlocks
	}

	if c.Registry.BloomFilter.ExpectedItems == 0 {
		c.Registry.BloomFilter.ExpectedItems = 100000
	}
	if c.Registry.BloomFilter.FalsePositiveRate == 0 {
		c.Registry.BloomFilter.FalsePositiveRate = 0.0001
	}
	if c.Registry.DefaultRegistrationTTL == 0 {
		c.Registry.DefaultRegistrationTTL = 720 * time.Hour // 30 days
	}

	if c.Hints.ActivityTimeout == 0 {
		c.Hints.ActivityTimeout = constants.DefaultHintRequestTimeout
	}
	if c.Hints.IntentsTimeout == 0 {
		c.Hints.IntentsTimeout = constants.DefaultHintRequestTimeout
	}

	if c.EventBus.Type == "" {
		c.EventBus.Type = "local"
	}
	if c.EventBus.PublishBufferSize == 0 {
		c.EventBus.PublishBufferSize = 1000
	}
	if c.EventBus.HistorySize == 0 {
		c.EventBus.HistorySize = 100
	}
	if c.EventBus.Redis.PoolSize == 0 {
		c.EventBus.Redis.PoolSize = 100
	}
	if c.EventBus.Redis.MinIdleConns == 0 {
		c.EventBus.Redis.MinIdleConns = 10
	}
	if c.EventBus.Redis.MaxRetries == 0 {
		c.EventBus.Redis.MaxRetries = 3
	}
	if c.EventBus.Redis.DialTimeout == 0 {
		c.EventBus.Redis.DialTimeout = 5 * time.Second
	}
	if c.EventBus.Redis.ReadTimeout == 0 {
		c.EventBus.Redis.ReadTimeout = 3 * time.Second
	}
	if c.EventBus.Redis.WriteTimeout == 0 {
		c.EventBus.Redis.WriteTimeout = 3 * time.Second
	}
	if c.EventBus.Redis.ChannelPrefix == "" {
		c.EventBus.Redis.ChannelPrefix = "acctsync:events"
	}
	if c.EventBus.Kafka.Topic == "" {
		c.EventBus.Kafka.Topic = "acctsync-events"
	}
	if c.EventBus.Kafka.GroupID == "" {
		c.EventBus.Kafka.GroupID = "acctsync-group"
	}
	if c.EventBus.Kafka.SecurityProtocol == "" {
		c.EventBus.Kafka.SecurityProtocol = "PLAINTEXT"
	}
	if c.EventBus.Kafka.BatchSize == 0 {
		c.EventBus.Kafka.BatchSize = 16384
	}
	if c.EventBus.Kafka.LingerMs == 0 {
		c.EventBus.Kafka.LingerMs = 5
	}
	if c.EventBus.Kafka.Compression == "" {
		c.EventBus.Kafka.Compression = "snappy"
	}
	if c.EventBus.Kafka.RequiredAcks == 0 {
		c.EventBus.Kafka.RequiredAcks = -1 // all replicas
	}

	if c.Node.ID == "" {
		hostname, err := os.Hostname()
		if err == nil {
			c.Node.ID = hostname
		} else {
			c.Node.ID = "node-1"
		}
	}
	if c.Node.Role == "" {
		c.Node.Role = "all"
	}
	if c.Node.Priority == 0 {
		c.Node.Priority = 1
	}

	if c.Notifications.Webhook.Timeout == 0 {
		c.Notifications.Webhook.Timeout = 10 * time.Second
	}
	if c.Notifications.Webhook.MaxRetries == 0 {
		c.Notifications.Webhook.MaxRetries = 3
	}
	if c.Notifications.Webhook.MaxConcurrent == 0 {
		c.Notifications.Webhook.MaxConcurrent = 10
	}
	if c.Notifications.Webhook.SignatureHeader == "" {
		c.Notifications.Webhook.SignatureHeader = "X-Signature-256"
	}
	if c.Notifications.Slack.Timeout == 0 {
		c.Notifications.Slack.Timeout = 10 * time.Second
	}
	if c.Notifications.Slack.MaxRetries == 0 {
		c.Notifications.Slack.MaxRetries = 3
	}
	if c.Notifications.Slack.DefaultUsername == "" {
		c.Notifications.Slack.DefaultUsername = "acctsync"
	}
	if c.Notifications.Slack.DefaultIconEmoji == "" {
		c.Notifications.Slack.DefaultIconEmoji = ":near:"
	}
	if c.Notifications.Slack.RateLimitPerMinute == 0 {
		c.Notifications.Slack.RateLimitPerMinute = 30
	}
	if c.Notifications.Retry.InitialDelay == 0 {
		c.Notifications.Retry.InitialDelay = time.Second
	}
	if c.Notifications.Retry.MaxDelay == 0 {
		c.Notifications.Retry.MaxDelay = 5 * time.Minute
	}
	if c.Notifications.Retry.Multiplier == 0 {
		c.Notifications.Retry.Multiplier = 2.0
	}
	if c.Notifications.Retry.MaxAttempts == 0 {
		c.Notifications.Retry.MaxAttempts = 5
	}
	if c.Notifications.Queue.BufferSize == 0 {
		c.Notifications.Queue.BufferSize = 1000
	}
	if c.Notifications.Queue.Workers == 0 {
		c.Notifications.Queue.Workers = 5
	}
	if c.Notifications.Queue.BatchSize == 0 {
		c.Notifications.Queue.BatchSize = 50
	}
	if c.Notifications.Queue.FlushInterval == 0 {
		c.Notifications.Queue.FlushInterval = time.Second
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over file configuration.
func (c *Config) LoadFromEnv() error {
	if endpoint := os.Getenv("ACCTSYNC_GATEWAY_ENDPOINT"); endpoint != "" {
		c.Gateway.Endpoint = endpoint
	}
	if timeout := os.Getenv("ACCTSYNC_GATEWAY_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_GATEWAY_TIMEOUT: %w", err)
		}
		c.Gateway.Timeout = d
	}
	if delay := os.Getenv("ACCTSYNC_GATEWAY_PACING_DELAY"); delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_GATEWAY_PACING_DELAY: %w", err)
		}
		c.Gateway.PacingDelay = d
	}
	if archive := os.Getenv("ACCTSYNC_GATEWAY_ARCHIVE_ENDPOINT"); archive != "" {
		c.Gateway.ArchiveEndpoint = archive
	}

	if dir := os.Getenv("ACCTSYNC_DATA_LEDGER_DIR"); dir != "" {
		c.Data.LedgerDir = dir
	}
	if path := os.Getenv("ACCTSYNC_DATA_METADATA_PATH"); path != "" {
		c.Data.MetadataPath = path
	}
	if readonly := os.Getenv("ACCTSYNC_DATA_READONLY"); readonly != "" {
		val, err := strconv.ParseBool(readonly)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_DATA_READONLY: %w", err)
		}
		c.Data.ReadOnly = val
	}

	if level := os.Getenv("ACCTSYNC_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("ACCTSYNC_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	if cycleDelay := os.Getenv("ACCTSYNC_SCHEDULER_CYCLE_DELAY"); cycleDelay != "" {
		d, err := time.ParseDuration(cycleDelay)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_SCHEDULER_CYCLE_DELAY: %w", err)
		}
		c.Scheduler.CycleDelay = d
	}
	if accountTimeout := os.Getenv("ACCTSYNC_SCHEDULER_ACCOUNT_TIMEOUT"); accountTimeout != "" {
		d, err := time.ParseDuration(accountTimeout)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_SCHEDULER_ACCOUNT_TIMEOUT: %w", err)
		}
		c.Scheduler.AccountTimeout = d
	}
	if concurrency := os.Getenv("ACCTSYNC_SCHEDULER_MAX_CONCURRENT_ACCOUNTS"); concurrency != "" {
		val, err := strconv.Atoi(concurrency)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_SCHEDULER_MAX_CONCURRENT_ACCOUNTS: %w", err)
		}
		c.Scheduler.MaxConcurrentAccounts = val
	}

	if enabled := os.Getenv("ACCTSYNC_REGISTRY_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_REGISTRY_ENABLED: %w", err)
		}
		c.Registry.Enabled = val
	}

	if endpoint := os.Getenv("ACCTSYNC_HINTS_ACTIVITY_ENDPOINT"); endpoint != "" {
		c.Hints.ActivityEndpoint = endpoint
	}
	if endpoint := os.Getenv("ACCTSYNC_HINTS_INTENTS_ENDPOINT"); endpoint != "" {
		c.Hints.IntentsEndpoint = endpoint
	}
	if token := os.Getenv("ACCTSYNC_HINTS_INTENTS_TOKEN"); token != "" {
		c.Hints.IntentsToken = token
	}

	if ebType := os.Getenv("ACCTSYNC_EVENTBUS_TYPE"); ebType != "" {
		c.EventBus.Type = ebType
	}
	if bufferSize := os.Getenv("ACCTSYNC_EVENTBUS_PUBLISH_BUFFER_SIZE"); bufferSize != "" {
		val, err := strconv.Atoi(bufferSize)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_EVENTBUS_PUBLISH_BUFFER_SIZE: %w", err)
		}
		c.EventBus.PublishBufferSize = val
	}
	if historySize := os.Getenv("ACCTSYNC_EVENTBUS_HISTORY_SIZE"); historySize != "" {
		val, err := strconv.Atoi(historySize)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_EVENTBUS_HISTORY_SIZE: %w", err)
		}
		c.EventBus.HistorySize = val
	}
	if redisEnabled := os.Getenv("ACCTSYNC_EVENTBUS_REDIS_ENABLED"); redisEnabled != "" {
		val, err := strconv.ParseBool(redisEnabled)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_EVENTBUS_REDIS_ENABLED: %w", err)
		}
		c.EventBus.Redis.Enabled = val
	}
	if redisAddrs := os.Getenv("ACCTSYNC_EVENTBUS_REDIS_ADDRESSES"); redisAddrs != "" {
		c.EventBus.Redis.Addresses = strings.Split(redisAddrs, ",")
	}
	if redisPassword := os.Getenv("ACCTSYNC_EVENTBUS_REDIS_PASSWORD"); redisPassword != "" {
		c.EventBus.Redis.Password = redisPassword
	}
	if redisDB := os.Getenv("ACCTSYNC_EVENTBUS_REDIS_DB"); redisDB != "" {
		val, err := strconv.Atoi(redisDB)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_EVENTBUS_REDIS_DB: %w", err)
		}
		c.EventBus.Redis.DB = val
	}
	if kafkaEnabled := os.Getenv("ACCTSYNC_EVENTBUS_KAFKA_ENABLED"); kafkaEnabled != "" {
		val, err := strconv.ParseBool(kafkaEnabled)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_EVENTBUS_KAFKA_ENABLED: %w", err)
		}
		c.EventBus.Kafka.Enabled = val
	}
	if kafkaBrokers := os.Getenv("ACCTSYNC_EVENTBUS_KAFKA_BROKERS"); kafkaBrokers != "" {
		c.EventBus.Kafka.Brokers = strings.Split(kafkaBrokers, ",")
	}
	if kafkaTopic := os.Getenv("ACCTSYNC_EVENTBUS_KAFKA_TOPIC"); kafkaTopic != "" {
		c.EventBus.Kafka.Topic = kafkaTopic
	}
	if kafkaGroupID := os.Getenv("ACCTSYNC_EVENTBUS_KAFKA_GROUP_ID"); kafkaGroupID != "" {
		c.EventBus.Kafka.GroupID = kafkaGroupID
	}

	if nodeID := os.Getenv("ACCTSYNC_NODE_ID"); nodeID != "" {
		c.Node.ID = nodeID
	}
	if nodeRole := os.Getenv("ACCTSYNC_NODE_ROLE"); nodeRole != "" {
		c.Node.Role = nodeRole
	}
	if nodePriority := os.Getenv("ACCTSYNC_NODE_PRIORITY"); nodePriority != "" {
		val, err := strconv.Atoi(nodePriority)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_NODE_PRIORITY: %w", err)
		}
		c.Node.Priority = val
	}

	if enabled := os.Getenv("ACCTSYNC_NOTIFICATIONS_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_NOTIFICATIONS_ENABLED: %w", err)
		}
		c.Notifications.Enabled = val
	}
	if webhookEnabled := os.Getenv("ACCTSYNC_NOTIFICATIONS_WEBHOOK_ENABLED"); webhookEnabled != "" {
		val, err := strconv.ParseBool(webhookEnabled)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_NOTIFICATIONS_WEBHOOK_ENABLED: %w", err)
		}
		c.Notifications.Webhook.Enabled = val
	}
	if slackEnabled := os.Getenv("ACCTSYNC_NOTIFICATIONS_SLACK_ENABLED"); slackEnabled != "" {
		val, err := strconv.ParseBool(slackEnabled)
		if err != nil {
			return fmt.Errorf("invalid ACCTSYNC_NOTIFICATIONS_SLACK_ENABLED: %w", err)
		}
		c.Notifications.Slack.Enabled = val
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file.
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Gateway.Endpoint == "" {
		return fmt.Errorf("gateway endpoint is required")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}

	if c.Data.LedgerDir == "" {
		return fmt.Errorf("ledger directory is required")
	}
	if c.Data.MetadataPath == "" {
		return fmt.Errorf("metadata path is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	if c.Scheduler.CycleDelay <= 0 {
		return fmt.Errorf("scheduler cycle delay must be positive")
	}
	if c.Scheduler.AccountTimeout <= 0 {
		return fmt.Errorf("scheduler account timeout must be positive")
	}
	if c.Scheduler.MaxConcurrentAccounts <= 0 {
		return fmt.Errorf("scheduler max concurrent accounts must be positive")
	}

	validEventBusTypes := map[string]bool{"local": true, "redis": true, "kafka": true, "hybrid": true}
	if !validEventBusTypes[c.EventBus.Type] {
		return fmt.Errorf("invalid eventbus type %q, must be one of: local, redis, kafka, hybrid", c.EventBus.Type)
	}
	if c.EventBus.PublishBufferSize <= 0 {
		return fmt.Errorf("eventbus publish buffer size must be positive")
	}
	if c.EventBus.HistorySize < 0 {
		return fmt.Errorf("eventbus history size cannot be negative")
	}
	if c.EventBus.Redis.Enabled {
		if len(c.EventBus.Redis.Addresses) == 0 {
			return fmt.Errorf("redis eventbus enabled but no addresses configured")
		}
		if c.EventBus.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis pool size must be positive")
		}
	}
	if c.EventBus.Kafka.Enabled {
		if len(c.EventBus.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka eventbus enabled but no brokers configured")
		}
		if c.EventBus.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when kafka is enabled")
		}
	}

	validNodeRoles := map[string]bool{"writer": true, "reader": true, "all": true}
	if !validNodeRoles[c.Node.Role] {
		return fmt.Errorf("invalid node role %q, must be one of: writer, reader, all", c.Node.Role)
	}

	return nil
}

// Load is a convenience method that loads configuration in the
// following order: set defaults, load from file (if provided), load
// from environment variables (override file), validate.
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

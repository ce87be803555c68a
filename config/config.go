package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/dedup"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

type Config struct {
	AppName            string `env:"APP_NAME" env-default:"clover-worker"`
	AppVersion         string `env:"APP_VERSION" env-default:"dev"`
	AppEnv             string `env:"APP_ENV" env-default:"local"`
	LogLevel           string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs         bool   `env:"PRETTY_LOGS" env-default:"false"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL (listing store)
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (candidate block cache)
	RedisHost         string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort         int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB           int           `env:"REDIS_DB" env-default:"0"`
	RedisPoolSize     int           `env:"REDIS_POOL_SIZE" env-default:"0"`
	RedisOpTimeout    time.Duration `env:"REDIS_OPERATION_TIMEOUT" env-default:"250ms"`
	BlockCacheEnabled bool          `env:"BLOCK_CACHE_ENABLED" env-default:"false"`
	BlockCacheTTL     time.Duration `env:"BLOCK_CACHE_TTL" env-default:"5m"`

	// Kafka consumer (scraped listing batches)
	KafkaBrokers       []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaInputTopic    string   `env:"KAFKA_INPUT_TOPIC" env-default:"listing-batches"`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" env-default:"clover-dedup"`

	// Kafka producer (dedup events)
	KafkaOutputTopic  string `env:"KAFKA_OUTPUT_TOPIC" env-default:"listing-dedup-events"`
	KafkaBatchSize    int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Tracing
	TracingEnabled     bool              `env:"TRACING_ENABLED" env-default:"false"`
	TracingSampleRatio float64           `env:"TRACING_SAMPLE_RATIO" env-default:"1"`
	OTLPEndpoint       string            `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol       string            `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure       bool              `env:"OTLP_INSECURE" env-default:"true"`
	OTLPCompression    string            `env:"OTLP_COMPRESSION" env-default:"none"`
	OTLPHeaders        map[string]string `env:"OTLP_HEADERS"`
	OTLPTimeout        time.Duration     `env:"OTLP_TIMEOUT" env-default:"10s"`

	// Metrics
	MetricsAddr string `env:"METRICS_ADDR" env-default:":9090"`

	// Matching
	MatchThreshold         float64       `env:"MATCH_THRESHOLD" env-default:"85"`
	AutoMatchThreshold     float64       `env:"AUTO_MATCH_THRESHOLD" env-default:"85"`
	ReviewThreshold        float64       `env:"REVIEW_THRESHOLD" env-default:"70"`
	PriceTolerance         float64       `env:"PRICE_TOLERANCE" env-default:"500"`
	MileageTolerance       float64       `env:"MILEAGE_TOLERANCE" env-default:"500"`
	LocationToleranceMiles float64       `env:"LOCATION_TOLERANCE_MILES" env-default:"10"`
	EnableFuzzyMatching    bool          `env:"ENABLE_FUZZY_MATCHING" env-default:"true"`
	EnableImageMatching    bool          `env:"ENABLE_IMAGE_MATCHING" env-default:"false"`
	BatchParallelism       int           `env:"BATCH_PARALLELISM" env-default:"0"`
	ProgressInterval       int           `env:"PROGRESS_INTERVAL" env-default:"100"`
	BatchTimeout           time.Duration `env:"BATCH_TIMEOUT" env-default:"5m"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Logging() logging.Config {
	return logging.Config{
		AppName: c.AppName,
		Level:   c.LogLevel,
		Pretty:  c.PrettyLogs,
	}
}

func (c *Config) Database() database.Config {
	return database.Config{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             uint(max(0, c.DatabaseMigrationVersion)),
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		PoolSize: c.RedisPoolSize,

		OperationTimeout: c.RedisOpTimeout,
	}
}

func (c *Config) Consumer() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:       c.KafkaBrokers,
		Topic:         c.KafkaInputTopic,
		ConsumerGroup: c.KafkaConsumerGroup,
	}
}

func (c *Config) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaOutputTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) OTLP() exporters.OTLPConfig {
	otlp := exporters.DefaultOTLPConfig()
	otlp.Endpoint = c.OTLPEndpoint
	otlp.Protocol = c.OTLPProtocol
	otlp.Insecure = c.OTLPInsecure
	otlp.Compression = c.OTLPCompression
	otlp.Headers = c.OTLPHeaders
	otlp.Timeout = c.OTLPTimeout
	return otlp
}

// Tracing returns the resource identity and sampling applied to exported spans
func (c *Config) Tracing() tracing.ProviderConfig {
	return tracing.ProviderConfig{
		ServiceName:    c.AppName,
		ServiceVersion: c.AppVersion,
		Environment:    c.AppEnv,
		SampleRatio:    c.TracingSampleRatio,
	}
}

// Scoring returns the single-item scorer configuration with the configured tolerances applied
func (c *Config) Scoring() scoring.Config {
	cfg := scoring.DefaultConfig()
	cfg.PriceTolerance = c.PriceTolerance
	cfg.MileageTolerance = c.MileageTolerance
	cfg.LocationToleranceMiles = c.LocationToleranceMiles
	return cfg
}

func (c *Config) Matching() matching.Config {
	cfg := matching.DefaultConfig()
	cfg.MatchThreshold = c.MatchThreshold
	return cfg
}

func (c *Config) Dedup() dedup.Config {
	cfg := dedup.DefaultConfig()
	cfg.Parallelism = c.BatchParallelism
	cfg.ProgressInterval = c.ProgressInterval
	return cfg
}

// DetectionOptions are the batch options used when a message carries none
func (c *Config) DetectionOptions() models.DuplicateDetectionOptions {
	return models.DuplicateDetectionOptions{
		EnableFuzzyMatching: c.EnableFuzzyMatching,
		EnableImageMatching: c.EnableImageMatching,
		AutoMatchThreshold:  c.AutoMatchThreshold,
		ReviewThreshold:     c.ReviewThreshold,
		MileageTolerance:    c.MileageTolerance,
		PriceTolerance:      c.PriceTolerance,
	}
}

func (c *Config) Processor() processor.ProcessorConfig {
	return processor.ProcessorConfig{
		ProcessTimeout: c.BatchTimeout,
		DefaultOptions: c.DetectionOptions(),
	}
}

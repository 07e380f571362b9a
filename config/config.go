package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	BodyLimit                     string   `env:"HTTP_SERVER_BODY_LIMIT" env-default:"10M"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	ShutdownTimeoutSeconds        int      `env:"SHUTDOWN_TIMEOUT_SECONDS" env-default:"30"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"fern"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      uint          `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (job queue and locks)
	RedisHost     string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int           `env:"REDIS_DB" env-default:"0"`
	RedisPoolSize int           `env:"REDIS_POOL_SIZE" env-default:"10"`
	LockPrefix    string        `env:"LOCK_PREFIX" env-default:"fern:lock:"`
	LockTTL       time.Duration `env:"LOCK_TTL" env-default:"30s"`
	LockWait      time.Duration `env:"LOCK_WAIT" env-default:"5s"`

	// Worker
	JobStream          string        `env:"JOB_STREAM" env-default:"fern:jobs"`
	JobConsumerGroup   string        `env:"JOB_CONSUMER_GROUP" env-default:"fern-workers"`
	WorkerCount        int           `env:"WORKER_COUNT" env-default:"4"`
	WorkerMaxRetries   int           `env:"WORKER_MAX_RETRIES" env-default:"3"`
	WorkerClaimMinIdle time.Duration `env:"WORKER_CLAIM_MIN_IDLE" env-default:"60s"`
	JobStreamMaxLen    int64         `env:"JOB_STREAM_MAX_LEN" env-default:"100000"`

	// Imports read files from here; empty allows any path
	UploadDir string `env:"UPLOAD_DIR" env-default:"/uploads"`

	// Job retention
	JobRetention     time.Duration `env:"JOB_RETENTION" env-default:"720h"`
	JobSweepInterval time.Duration `env:"JOB_SWEEP_INTERVAL" env-default:"1h"`

	// Kafka (data-quality events)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"true"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"data-quality-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Graph Database (Memgraph)
	GraphEnabled    bool          `env:"GRAPH_ENABLED" env-default:"true"`
	GraphDBHost     string        `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int           `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string        `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string        `env:"GRAPH_DB_PASSWORD" env-default:""`
	GraphDBName     string        `env:"GRAPH_DB_NAME" env-default:""`
	GraphPoolSize   int           `env:"GRAPH_POOL_SIZE" env-default:"20"`
	GraphTimeout    time.Duration `env:"GRAPH_WRITE_TIMEOUT" env-default:"10s"`

	// Tracing
	TraceExporter    string  `env:"TRACE_EXPORTER" env-default:"none"`
	TraceEndpoint    string  `env:"TRACE_ENDPOINT" env-default:"localhost:4317"`
	TraceProtocol    string  `env:"TRACE_PROTOCOL" env-default:"grpc"`
	TraceInsecure    bool    `env:"TRACE_INSECURE" env-default:"true"`
	TraceSampleRatio float64 `env:"TRACE_SAMPLE_RATIO" env-default:"1"`

	// Validation
	SimilarityMaxRunes int `env:"SIMILARITY_MAX_RUNES" env-default:"4096"`
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return &cfg, nil
}

package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"clover-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Entity store backend: memory or postgres
	StoreDriver string `env:"STORE_DRIVER" env-default:"postgres"`

	DatabaseDriver              string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode             string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion    uint          `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Redis backs identifier locks and session snapshots. Empty host disables it.
	RedisHost     string `env:"REDIS_HOST" env-default:""`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka brokers (comma-separated). Empty disables events and issue intake.
	KafkaBrokers       string `env:"KAFKA_BROKERS" env-default:""`
	KafkaEventTopic    string `env:"KAFKA_EVENT_TOPIC" env-default:"entity-events"`
	KafkaIssueTopic    string `env:"KAFKA_ISSUE_TOPIC" env-default:"integrity-issues"`
	KafkaConsumerGroup string `env:"KAFKA_CONSUMER_GROUP" env-default:"clover-issues"`
	KafkaBatchSize     int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout  int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks  int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`

	// JMESPath expressions that pull a raw fact out of an ingestion payload
	IssueKindPath   string `env:"ISSUE_KIND_PATH" env-default:"kind"`
	IssueTypePath   string `env:"ISSUE_TYPE_PATH" env-default:"issue_type"`
	IssueEmailPath  string `env:"ISSUE_EMAIL_PATH" env-default:"from.email"`
	IssueNamePath   string `env:"ISSUE_NAME_PATH" env-default:"from.name"`
	IssuePhonePath  string `env:"ISSUE_PHONE_PATH" env-default:"from.phone"`
	IssueDomainPath string `env:"ISSUE_DOMAIN_PATH" env-default:"domain"`
	IssueSamplePath string `env:"ISSUE_SAMPLE_EMAILS_PATH" env-default:"sample_emails"`

	// Graph projection (neo4j/memgraph). Empty host disables it.
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:""`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	AuthEnabled   bool   `env:"AUTH_ENABLED" env-default:"false"`
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	AuthClientID  string `env:"AUTH_CLIENT_ID" env-default:""`

	TracingEnabled bool          `env:"TRACING_ENABLED" env-default:"false"`
	OTLPEndpoint   string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol   string        `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure   bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	OTLPTimeout    time.Duration `env:"OTEL_EXPORTER_OTLP_TIMEOUT" env-default:"10s"`

	// Resolution tunables
	StrategyTimeout          time.Duration `env:"STRATEGY_TIMEOUT" env-default:"3s"`
	AutoSuggestionLimit      int           `env:"AUTO_SUGGESTION_LIMIT" env-default:"3"`
	ManualSuggestionLimit    int           `env:"MANUAL_SUGGESTION_LIMIT" env-default:"5"`
	MatchReverseSubstringCap int           `env:"MATCH_REVERSE_SUBSTRING_CAP" env-default:"15"`
	MatchWorkers             int           `env:"MATCH_WORKERS" env-default:"4"`
	SessionTTL               time.Duration `env:"SESSION_TTL" env-default:"30m"`
	IdentifierLockTTL        time.Duration `env:"IDENTIFIER_LOCK_TTL" env-default:"5s"`
}

// Load reads .env when present, then the environment
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

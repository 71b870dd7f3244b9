package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Scylla      ScyllaConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	S3          S3Config
	SNS         SNSConfig
	Mailgun     MailgunConfig
	Sumsub      SumsubConfig
	ClickHouse  ClickHouseConfig
	Elastic     ElasticConfig
	KMS         KMSConfig
	JWT         JWTConfig
	Bucketing   BucketingConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Enabled  bool
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

type S3Config struct {
	Bucket    string
	Region    string
	KeyPrefix string
}

type SNSConfig struct {
	Region  string
	Enabled bool
}

type MailgunConfig struct {
	Domain string
	APIKey string
	Sender string
}

// SumsubConfig carries the verification provider credentials. Token and
// secret are validated by the signer before any outbound call, not here, so
// a deployment that never reaches the provider can still boot.
type SumsubConfig struct {
	BaseURL   string
	AppToken  string
	SecretKey string
	LevelName string
	Timeout   time.Duration
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Enabled  bool
}

type ElasticConfig struct {
	Addresses []string
	Index     string
	Enabled   bool
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type BucketingConfig struct {
	UserBuckets int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from the environment. A local .env is
// loaded first when present so development does not need exported vars.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvList("SCYLLA_NODES", []string{"127.0.0.1:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "kyc"),
			Enabled:  getEnvBool("SCYLLA_ENABLED", true),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://127.0.0.1:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
			Topic:   getEnv("KAFKA_KYC_TOPIC", "kyc-events"),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
		},
		S3: S3Config{
			Bucket:    getEnv("S3_BUCKET", "ez-financials"),
			Region:    getEnv("AWS_REGION", "us-east-1"),
			KeyPrefix: getEnv("S3_KEY_PREFIX", "user_ids"),
		},
		SNS: SNSConfig{
			Region:  getEnv("AWS_REGION", "us-east-1"),
			Enabled: getEnvBool("SNS_ENABLED", false),
		},
		Mailgun: MailgunConfig{
			Domain: getEnv("MAILGUN_DOMAIN", ""),
			APIKey: getEnv("MAILGUN_API_KEY", ""),
			Sender: getEnv("MAILGUN_SENDER", "no-reply@localhost"),
		},
		Sumsub: SumsubConfig{
			BaseURL:   strings.TrimSpace(getEnv("SUMSUB_BASE_URL", "https://api.sumsub.com")),
			AppToken:  strings.TrimSpace(getEnv("SUMSUB_APP_TOKEN", "")),
			SecretKey: strings.TrimSpace(getEnv("SUMSUB_SECRET_KEY", "")),
			LevelName: getEnv("SUMSUB_LEVEL_NAME", "id-and-liveness"),
			Timeout:   getEnvDuration("SUMSUB_TIMEOUT", 30*time.Second),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     getEnv("CLICKHOUSE_ADDR", "127.0.0.1:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "kyc_audit"),
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
		},
		Elastic: ElasticConfig{
			Addresses: getEnvList("ELASTIC_ADDRESSES", []string{"http://127.0.0.1:9200"}),
			Index:     getEnv("ELASTIC_KYC_INDEX", "kyc-reviews"),
			Enabled:   getEnvBool("ELASTIC_ENABLED", false),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("AWS_REGION", "us-east-1"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			TTL:    getEnvDuration("JWT_TTL", 7*24*time.Hour),
		},
		Bucketing: BucketingConfig{
			UserBuckets: getEnvInt("USER_BUCKETS", 64),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

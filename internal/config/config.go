package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration, loaded once at process start.
type Config struct {
	Environment string

	Server        ServerConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Auth          AuthConfig
	OTP           OTPConfig
	RateLimit     RateLimitConfig
	Retention     RetentionConfig
	Bucketing     BucketingConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	AutoCertDir  string
	Domain       string
	Email        string
	CertFile     string
	KeyFile      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers           []string
	SMSTopic          string
	NotificationTopic string
}

type ElasticsearchConfig struct {
	URL        string
	Username   string
	Password   string
	AuditIndex string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type HashingConfig struct {
	Argon2MemoryCost   int
	Argon2TimeCost     int
	Argon2Parallelism  int
	PepperRotationDays int
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type OTPConfig struct {
	CodeLength      int
	Expiry          time.Duration
	MaxAttempts     int
	DispatchTimeout time.Duration
	// DispatchRate caps outbound SMS per second across the process.
	DispatchRate  float64
	DispatchBurst int
}

type RateLimitConfig struct {
	SendOTPLimit  int
	SendOTPWindow time.Duration
	VerifyLimit   int
	VerifyWindow  time.Duration
	SubmitLimit   int
	SubmitWindow  time.Duration
	LockDuration  time.Duration
}

type RetentionConfig struct {
	Horizon        time.Duration
	SweepBatchSize int
	PurgeApproved  bool
	ApprovedAfter  time.Duration
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

type LoggingConfig struct {
	Level  string
	Format string
}

var (
	global *Config
	once   sync.Once
)

// LoadConfig reads configuration from the environment, consulting a .env
// file when present. The first call wins; later calls return the same Config.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		global = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 8080),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTOCERT", false),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/cache/autocert"),
				Domain:       getEnv("SERVER_DOMAIN", ""),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Nodes:    getEnvList("SCYLLA_NODES", "localhost:9042"),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "verification"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Brokers:           getEnvList("KAFKA_BROKERS", "localhost:9092"),
				SMSTopic:          getEnv("KAFKA_SMS_TOPIC", "verification.sms-dispatch"),
				NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "verification.notifications"),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
				Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
				Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
				AuditIndex: getEnv("ELASTICSEARCH_AUDIT_INDEX", "verification-audit"),
			},
			Clickhouse: ClickhouseConfig{
				URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Database: getEnv("CLICKHOUSE_DATABASE", "verification_archive"),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				KeyID:   getEnv("KMS_KEY_ID", ""),
				Region:  getEnv("KMS_REGION", "eu-west-1"),
			},
			Hashing: HashingConfig{
				Argon2MemoryCost:   getEnvInt("ARGON2_MEMORY_COST", 64*1024),
				Argon2TimeCost:     getEnvInt("ARGON2_TIME_COST", 1),
				Argon2Parallelism:  getEnvInt("ARGON2_PARALLELISM", 4),
				PepperRotationDays: getEnvInt("PEPPER_ROTATION_DAYS", 30),
			},
			Auth: AuthConfig{
				JWTSecret: getEnv("JWT_SECRET", ""),
				Issuer:    getEnv("JWT_ISSUER", "verification-service"),
			},
			OTP: OTPConfig{
				CodeLength:      getEnvInt("OTP_CODE_LENGTH", 6),
				Expiry:          getEnvDuration("OTP_EXPIRY", 5*time.Minute),
				MaxAttempts:     getEnvInt("OTP_MAX_ATTEMPTS", 3),
				DispatchTimeout: getEnvDuration("OTP_DISPATCH_TIMEOUT", 5*time.Second),
				DispatchRate:    getEnvFloat("OTP_DISPATCH_RATE", 50),
				DispatchBurst:   getEnvInt("OTP_DISPATCH_BURST", 100),
			},
			RateLimit: RateLimitConfig{
				SendOTPLimit:  getEnvInt("RATE_SEND_OTP_LIMIT", 5),
				SendOTPWindow: getEnvDuration("RATE_SEND_OTP_WINDOW", time.Hour),
				VerifyLimit:   getEnvInt("RATE_VERIFY_LIMIT", 3),
				VerifyWindow:  getEnvDuration("RATE_VERIFY_WINDOW", time.Hour),
				SubmitLimit:   getEnvInt("RATE_SUBMIT_LIMIT", 10),
				SubmitWindow:  getEnvDuration("RATE_SUBMIT_WINDOW", 24*time.Hour),
				LockDuration:  getEnvDuration("RATE_LOCK_DURATION", 15*time.Minute),
			},
			Retention: RetentionConfig{
				Horizon:        getEnvDuration("RETENTION_HORIZON", 90*24*time.Hour),
				SweepBatchSize: getEnvInt("RETENTION_SWEEP_BATCH", 100),
				PurgeApproved:  getEnvBool("RETENTION_PURGE_APPROVED", false),
				ApprovedAfter:  getEnvDuration("RETENTION_APPROVED_AFTER", 365*24*time.Hour),
			},
			Bucketing: BucketingConfig{
				UserBuckets:  getEnvInt("USER_BUCKETS", 64),
				EventBuckets: getEnvInt("EVENT_BUCKETS", 16),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		}
	})
	return global
}

// Get returns the loaded config, loading it on first use.
func Get() *Config {
	if global == nil {
		return LoadConfig()
	}
	return global
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key, def string) []string {
	raw := getEnv(key, def)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

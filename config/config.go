package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerPort int             `yaml:"server_port"`
	JWTSecret  string          `yaml:"jwt_secret"`
	Database   DatabaseConfig  `yaml:"database"`
	Log        LogConfig       `yaml:"log"`
	MQ         MQConfig        `yaml:"mq"`
	Storage    StorageConfig   `yaml:"storage"`
	Presence   PresenceConfig  `yaml:"presence"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"name"`
	UseSSL          bool          `yaml:"use_ssl"`
	ApplicationName string        `yaml:"application_name"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MQConfig selects the broker that carries moderation decision events.
type MQConfig struct {
	Backend          string         `yaml:"backend"` // local, rabbitmq or pubsub
	DecisionsChannel string         `yaml:"decisions_channel"`
	LocalBuffer      int            `yaml:"local_buffer"`
	RabbitMQ         RabbitMQConfig `yaml:"rabbitmq"`
	PubSub           PubSubConfig   `yaml:"pubsub"`
}

type RabbitMQConfig struct {
	URL             string `yaml:"url"`
	QueueDurable    bool   `yaml:"queue_durable"`
	QueueAutoDelete bool   `yaml:"queue_auto_delete"`
	PrefetchCount   int    `yaml:"prefetch_count"`
}

type PubSubConfig struct {
	ProjectID          string `yaml:"project_id"`
	CredentialsFile    string `yaml:"credentials_file"`
	SubscriptionSuffix string `yaml:"subscription_suffix"`
	MaxOutstanding     int    `yaml:"max_outstanding"`
}

// StorageConfig selects the object store used for audit exports.
type StorageConfig struct {
	Backend string      `yaml:"backend"` // minio or gcs
	Minio   MinioConfig `yaml:"minio"`
	GCS     GCSConfig   `yaml:"gcs"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

type PresenceConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type RateLimitConfig struct {
	ReportsPerMinute int `yaml:"reports_per_minute"`
	ReportBurst      int `yaml:"report_burst"`
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by CONFIG_FILE, and finally environment variables.
func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
	}
	cfg.applyEnv()
	return cfg
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		ServerPort: 8080,
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "modsvc",
			Password: "password",
			DBName:   "modsvc_db",

			ApplicationName: "modsvc",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		MQ: MQConfig{
			Backend:          "local",
			DecisionsChannel: "moderation.decisions",
			LocalBuffer:      256,
			RabbitMQ: RabbitMQConfig{
				QueueDurable:  true,
				PrefetchCount: 10,
			},
		},
		Storage: StorageConfig{
			Backend: "minio",
		},
		Presence: PresenceConfig{
			QueueSize:    1024,
			WriteTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			ReportsPerMinute: 5,
			ReportBurst:      3,
		},
	}
}

// LoadFile overlays values from a YAML file onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerPort = getEnvInt("SERVER_PORT", c.ServerPort)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.UseSSL = getEnvBool("DB_USE_SSL", c.Database.UseSSL)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	c.MQ.Backend = getEnv("MQ_BACKEND", c.MQ.Backend)
	c.MQ.DecisionsChannel = getEnv("MQ_DECISIONS_CHANNEL", c.MQ.DecisionsChannel)
	c.MQ.RabbitMQ.URL = getEnv("RABBITMQ_URL", c.MQ.RabbitMQ.URL)
	c.MQ.PubSub.ProjectID = getEnv("PUBSUB_PROJECT_ID", c.MQ.PubSub.ProjectID)
	c.MQ.PubSub.CredentialsFile = getEnv("PUBSUB_CREDENTIALS_FILE", c.MQ.PubSub.CredentialsFile)

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Minio.Endpoint = getEnv("MINIO_ENDPOINT", c.Storage.Minio.Endpoint)
	c.Storage.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", c.Storage.Minio.AccessKey)
	c.Storage.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", c.Storage.Minio.SecretKey)
	c.Storage.Minio.Bucket = getEnv("MINIO_BUCKET", c.Storage.Minio.Bucket)
	c.Storage.Minio.UseSSL = getEnvBool("MINIO_USE_SSL", c.Storage.Minio.UseSSL)
	c.Storage.GCS.Bucket = getEnv("GCS_BUCKET", c.Storage.GCS.Bucket)
	c.Storage.GCS.ProjectID = getEnv("GCS_PROJECT_ID", c.Storage.GCS.ProjectID)
	c.Storage.GCS.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", c.Storage.GCS.CredentialsFile)

	c.Presence.QueueSize = getEnvInt("PRESENCE_QUEUE_SIZE", c.Presence.QueueSize)
	c.Presence.WriteTimeout = getEnvDuration("PRESENCE_WRITE_TIMEOUT", c.Presence.WriteTimeout)

	c.RateLimit.ReportsPerMinute = getEnvInt("REPORTS_PER_MINUTE", c.RateLimit.ReportsPerMinute)
	c.RateLimit.ReportBurst = getEnvInt("REPORT_BURST", c.RateLimit.ReportBurst)
}

// Validate reports configuration the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.MQ.Backend {
	case "local":
	case "rabbitmq":
		if strings.TrimSpace(c.MQ.RabbitMQ.URL) == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required for the rabbitmq backend"))
		}
	case "pubsub":
		if strings.TrimSpace(c.MQ.PubSub.ProjectID) == "" {
			errs = append(errs, errors.New("PUBSUB_PROJECT_ID is required for the pubsub backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mq backend %q", c.MQ.Backend))
	}
	if c.Presence.QueueSize < 1 {
		errs = append(errs, errors.New("presence queue size must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.Atoi(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

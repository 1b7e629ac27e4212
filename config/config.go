package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	SessionTTL time.Duration

	Database DatabaseConfig

	// EventBroker selects the event publisher backend: "rabbitmq",
	// "pubsub", or "" to disable event publishing.
	EventBroker   string
	EventsChannel string
	RabbitMQ      RabbitMQConfig
	PubSub        PubSubConfig

	// ArchiveBackend selects where export artifacts are archived:
	// "minio", "gcs", or "" to disable archiving.
	ArchiveBackend string
	Minio          MinioConfig
	GCS            GCSConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		SessionTTL: getEnvDuration("SESSION_TTL", 24*time.Hour),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "orderledger"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "orderledger_db"),
			UseSSL:   getEnvBool("DB_USE_SSL", false),
		},
		EventBroker:   getEnv("EVENT_BROKER", ""),
		EventsChannel: getEnv("EVENTS_CHANNEL", "order-events"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH_COUNT", 0),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
		ArchiveBackend: getEnv("ARCHIVE_BACKEND", ""),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "order-exports"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}
}

// Validate checks cross-field consistency of the loaded configuration.
func (c Config) Validate() error {
	var errs []string

	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Sprintf("invalid server port %d", c.ServerPort))
	}
	if c.SessionTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	switch c.EventBroker {
	case "", "rabbitmq", "pubsub":
	default:
		errs = append(errs, fmt.Sprintf("invalid event broker %q: must be rabbitmq, pubsub, or empty", c.EventBroker))
	}
	if c.EventBroker == "rabbitmq" && c.RabbitMQ.URL == "" {
		errs = append(errs, "RABBITMQ_URL is required when EVENT_BROKER=rabbitmq")
	}
	if c.EventBroker == "pubsub" && c.PubSub.ProjectID == "" {
		errs = append(errs, "PUBSUB_PROJECT_ID is required when EVENT_BROKER=pubsub")
	}
	if c.EventBroker != "" && c.EventsChannel == "" {
		errs = append(errs, "EVENTS_CHANNEL cannot be empty when an event broker is configured")
	}

	switch c.ArchiveBackend {
	case "", "minio", "gcs":
	default:
		errs = append(errs, fmt.Sprintf("invalid archive backend %q: must be minio, gcs, or empty", c.ArchiveBackend))
	}
	if c.ArchiveBackend == "minio" {
		if c.Minio.Endpoint == "" {
			errs = append(errs, "MINIO_ENDPOINT is required when ARCHIVE_BACKEND=minio")
		}
		if c.Minio.AccessKey == "" || c.Minio.SecretKey == "" {
			errs = append(errs, "MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when ARCHIVE_BACKEND=minio")
		}
	}
	if c.ArchiveBackend == "gcs" && c.GCS.Bucket == "" {
		errs = append(errs, "GCS_BUCKET is required when ARCHIVE_BACKEND=gcs")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is built once in main and handed to every component that needs it.
type Config struct {
	AppName string `envconfig:"APP_NAME" default:"LMS Backend API"`
	Version string `envconfig:"VERSION" default:"1.0.0"`
	Env     string `envconfig:"APP_ENV" default:"development"`
	Port    string `envconfig:"PORT" default:"8080"`
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080"`
	APIV1   string `envconfig:"API_V1_STR" default:"/api/v1"`

	DatabaseURL    string `envconfig:"DATABASE_URL"`
	DBHost         string `envconfig:"DB_HOST" default:"localhost"`
	DBUser         string `envconfig:"DB_USER" default:"postgres"`
	DBPassword     string `envconfig:"DB_PASSWORD"`
	DBName         string `envconfig:"DB_NAME" default:"lms"`
	DBPort         string `envconfig:"DB_PORT" default:"5432"`
	DBMaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`

	SecretKey                string   `envconfig:"SECRET_KEY" required:"true"`
	Algorithm                string   `envconfig:"ALGORITHM" default:"HS256"`
	AccessTokenExpireMinutes int      `envconfig:"ACCESS_TOKEN_EXPIRE_MINUTES" default:"30"`
	RefreshTokenExpireDays   int      `envconfig:"REFRESH_TOKEN_EXPIRE_DAYS" default:"7"`
	AllowedOrigins           []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5176"`

	UploadDir   string `envconfig:"UPLOAD_DIR" default:"uploads"`
	MaxFileSize int64  `envconfig:"MAX_FILE_SIZE" default:"52428800"`

	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	MinioBucket    string `envconfig:"MINIO_BUCKET" default:"uploadsdoc"`
	MinioSecure    bool   `envconfig:"MINIO_SECURE" default:"false"`

	SMTPHost      string `envconfig:"SMTP"`
	SMTPAddr      string `envconfig:"SMTP_ADDR"`
	EmailFrom     string `envconfig:"EMAIL"`
	EmailPassword string `envconfig:"EMAILPASS"`
	TemplateDir   string `envconfig:"PATH_TO_HTML" default:"./templates/"`

	RedisAddr     string `envconfig:"REDIS_URL" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"lms_notifications"`
	KafkaGroupID string   `envconfig:"KAFKA_GROUP_ID" default:"lms-notifications-consumer-group"`

	ESAddress  string `envconfig:"ES"`
	ESUser     string `envconfig:"ES_USER" default:"elastic"`
	ESPassword string `envconfig:"PASS_ES"`

	LogLevel         string `envconfig:"LOG_LEVEL" default:"info"`
	ReminderSchedule string `envconfig:"REMINDER_SCHEDULE" default:"0 9 * * *"`
	WebinarSchedule  string `envconfig:"WEBINAR_REMINDER_SCHEDULE" default:"*/15 * * * *"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, using process environment")
	}
	var cfg Config
	if err := envconfig.Process("lms", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY must be set")
	}
	switch strings.ToUpper(c.Algorithm) {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported signing algorithm %q", c.Algorithm)
	}
	if c.AccessTokenExpireMinutes <= 0 || c.RefreshTokenExpireDays <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.MaxFileSize <= 0 {
		return errors.New("MAX_FILE_SIZE must be positive")
	}
	return nil
}

// DSN prefers DATABASE_URL and falls back to the discrete DB_* settings.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireDays) * 24 * time.Hour
}

func (c *Config) IsProduction() bool {
	e := strings.ToLower(c.Env)
	return e == "prod" || e == "production"
}

func (c *Config) SearchEnabled() bool { return c.ESAddress != "" }

// EventsEnabled reports whether events go through Kafka. With KAFKA_BROKERS
// set to an empty string they are dispatched in-process.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaBrokers[0] != ""
}

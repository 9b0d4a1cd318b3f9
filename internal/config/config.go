package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs at startup
type Config struct {
	Environment string
	Port        string

	Database DatabaseConfig
	Auth     AuthConfig
	Email    EmailConfig
	Reminder ReminderConfig
	Notify   NotifyConfig

	CORSOrigins    []string
	TrustedProxies []string
}

// DatabaseConfig describes how to reach PostgreSQL
type DatabaseConfig struct {
	URL      string // used as-is when set
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	SSLMode  string
}

// AuthConfig configures JWT verification
type AuthConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
}

// EmailConfig configures the SendGrid sender. An empty APIKey means emails are only logged.
type EmailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

// ReminderConfig holds the scheduling constants of the reminder engine
type ReminderConfig struct {
	PollInterval   time.Duration // how often each driver ticks
	FrequencyUnit  time.Duration // unit of Course.Frequency
	WriteTimeout   time.Duration // bound on a single store write from a tick
	RearmOnStartup bool
	RearmSchedule  string        // cron spec; empty disables the sweep
	RearmTimeout   time.Duration // bound on a single sweep
}

// NotifyConfig tunes the asynchronous notification dispatcher
type NotifyConfig struct {
	Timeout    time.Duration
	QueueSize  int
	Workers    int
	RatePerSec float64
}

// Load reads the configuration from the environment, after loading .env when present
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     os.Getenv("DB_HOST"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
			Port:     getEnv("DB_PORT", "5432"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Email: EmailConfig{
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			FromEmail:      os.Getenv("SENDGRID_FROM_EMAIL"),
			FromName:       getEnv("SENDGRID_FROM_NAME", "Medicine Reminder"),
		},
		Reminder: ReminderConfig{
			RearmSchedule: getEnv("REARM_SCHEDULE", "@every 1m"),
		},
		CORSOrigins:    splitList(os.Getenv("CORS_ORIGINS")),
		TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "127.0.0.1")),
	}

	var err error
	if cfg.Auth, err = loadAuth(); err != nil {
		return nil, err
	}
	if cfg.Reminder.PollInterval, err = getDuration("REMINDER_POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.Reminder.FrequencyUnit, err = getDuration("REMINDER_FREQUENCY_UNIT", time.Second); err != nil {
		return nil, err
	}
	if cfg.Reminder.WriteTimeout, err = getDuration("REMINDER_WRITE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Reminder.RearmOnStartup, err = getBool("REARM_ON_STARTUP", true); err != nil {
		return nil, err
	}
	if cfg.Reminder.RearmTimeout, err = getDuration("REARM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Notify.Timeout, err = getDuration("NOTIFY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Notify.QueueSize, err = getInt("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.Notify.Workers, err = getInt("NOTIFY_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.Notify.RatePerSec, err = getFloat("NOTIFY_RATE_PER_SEC", 5); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAuth reads only the JWT settings, for tools that mint tokens without a database
func LoadAuth() (AuthConfig, error) {
	_ = godotenv.Load(".env")
	a, err := loadAuth()
	if err != nil {
		return a, err
	}
	if a.JWTSecret == "" {
		return a, fmt.Errorf("JWT_SECRET is required but not set")
	}
	return a, nil
}

func loadAuth() (AuthConfig, error) {
	a := AuthConfig{JWTSecret: os.Getenv("JWT_SECRET")}
	var err error
	if a.JWTExpiry, err = getDuration("JWT_EXPIRY", 24*time.Hour); err != nil {
		return a, err
	}
	return a, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	if c.Database.URL == "" {
		for key, v := range map[string]string{
			"DB_HOST": c.Database.Host,
			"DB_USER": c.Database.User,
			"DB_NAME": c.Database.Name,
		} {
			if v == "" {
				return fmt.Errorf("%s is required when DATABASE_URL is not set", key)
			}
		}
	}
	if c.Reminder.PollInterval <= 0 {
		return fmt.Errorf("REMINDER_POLL_INTERVAL must be positive, got %v", c.Reminder.PollInterval)
	}
	if c.Reminder.FrequencyUnit <= 0 {
		return fmt.Errorf("REMINDER_FREQUENCY_UNIT must be positive, got %v", c.Reminder.FrequencyUnit)
	}
	if c.Reminder.RearmTimeout <= 0 {
		return fmt.Errorf("REARM_TIMEOUT must be positive, got %v", c.Reminder.RearmTimeout)
	}
	if c.Notify.Workers <= 0 {
		return fmt.Errorf("NOTIFY_WORKERS must be positive, got %d", c.Notify.Workers)
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive, got %d", c.Notify.QueueSize)
	}
	return nil
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC connect_timeout=10",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

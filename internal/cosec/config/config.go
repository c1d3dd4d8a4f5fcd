// Package config loads the service configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable that overrides the config file location.
const EnvPath = "COSEC_CONFIG"

// DefaultPath is used when EnvPath is unset.
var DefaultPath = filepath.Join("internal", "cosec", "config", "config.yaml")

// Config struct for YAML configuration
type Config struct {
	GRPCPort int `yaml:"GRPC_PORT"`
	HTTPPort int `yaml:"HTTP_PORT"`

	DBHost     string `yaml:"DB_HOST"`
	DBPort     int    `yaml:"DB_PORT"`
	DBUser     string `yaml:"DB_USER"`
	DBPassword string `yaml:"DB_PASSWORD"`
	DBName     string `yaml:"DB_NAME"`
	DBSSLMode  string `yaml:"DB_SSLMODE"`

	KafkaBrokers       []string `yaml:"KAFKA_BROKERS"`
	Topic              string   `yaml:"TOPIC"`
	NotificationsTopic string   `yaml:"NOTIFICATIONS_TOPIC"`
	ConsumerGroup      string   `yaml:"CONSUMER_GROUP"`

	JWTSecret string `yaml:"JWT_SECRET"`

	SMTP      SMTPConfig      `yaml:"SMTP"`
	Documents DocumentsConfig `yaml:"DOCUMENTS"`
	Reminders RemindersConfig `yaml:"REMINDERS"`
}

// SMTPConfig describes the outbound mail relay.
type SMTPConfig struct {
	Host     string `yaml:"HOST"`
	Port     int    `yaml:"PORT"`
	Username string `yaml:"USERNAME"`
	Password string `yaml:"PASSWORD"`
	From     string `yaml:"FROM"`
	UseTLS   bool   `yaml:"USE_TLS"`
}

// DocumentsConfig tunes the generation pipeline.
type DocumentsConfig struct {
	TemplatesDir      string        `yaml:"TEMPLATES_DIR"`
	MediaRoot         string        `yaml:"MEDIA_ROOT"`
	WorkDir           string        `yaml:"WORK_DIR"`
	ConverterBinaries []string      `yaml:"CONVERTER_BINARIES"`
	ConvertTimeout    time.Duration `yaml:"CONVERT_TIMEOUT"`
	MaxConversions    int64         `yaml:"MAX_CONVERSIONS"`
	FetchTimeout      time.Duration `yaml:"FETCH_TIMEOUT"`
	DateFormat        string        `yaml:"DATE_FORMAT"`
}

// RemindersConfig tunes the reminder run.
type RemindersConfig struct {
	// Dispatch is "direct" to send mail from the run, or "kafka" to queue
	// notifications for the notifier worker.
	Dispatch        string   `yaml:"DISPATCH"`
	StaffRecipients []string `yaml:"STAFF_RECIPIENTS"`
	Timezone        string   `yaml:"TIMEZONE"`
}

// Load reads the file named by COSEC_CONFIG, or DefaultPath.
func Load() (*Config, error) {
	path := os.Getenv(EnvPath)
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile reads, defaults and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(file)
}

// Parse decodes raw YAML and applies defaults.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.GRPCPort == 0 {
		c.GRPCPort = 50051
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = 8080
	}
	if c.DBPort == 0 {
		c.DBPort = 5432
	}
	if c.DBSSLMode == "" {
		c.DBSSLMode = "disable"
	}
	if c.Topic == "" {
		c.Topic = "cosec.events"
	}
	if c.NotificationsTopic == "" {
		c.NotificationsTopic = "cosec.notifications"
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "cosec-notifier"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	d := &c.Documents
	if d.TemplatesDir == "" {
		d.TemplatesDir = filepath.Join("templates", "docs")
	}
	if d.WorkDir == "" {
		d.WorkDir = os.TempDir()
	}
	if len(d.ConverterBinaries) == 0 {
		d.ConverterBinaries = []string{"soffice", "libreoffice"}
	}
	if d.ConvertTimeout == 0 {
		d.ConvertTimeout = 120 * time.Second
	}
	if d.MaxConversions == 0 {
		d.MaxConversions = 2
	}
	if d.FetchTimeout == 0 {
		d.FetchTimeout = 30 * time.Second
	}
	if d.DateFormat == "" {
		d.DateFormat = "02-01-2006"
	}
	if c.Reminders.Dispatch == "" {
		c.Reminders.Dispatch = DispatchDirect
	}
	if c.Reminders.Timezone == "" {
		c.Reminders.Timezone = "Asia/Kuala_Lumpur"
	}
}

// Reminder dispatch modes.
const (
	DispatchDirect = "direct"
	DispatchKafka  = "kafka"
)

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Documents.MaxConversions < 1 {
		return fmt.Errorf("DOCUMENTS.MAX_CONVERSIONS must be positive, got %d", c.Documents.MaxConversions)
	}
	if c.Documents.ConvertTimeout < 0 || c.Documents.FetchTimeout < 0 {
		return fmt.Errorf("DOCUMENTS timeouts must not be negative")
	}
	switch c.Reminders.Dispatch {
	case DispatchDirect:
	case DispatchKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("REMINDERS.DISPATCH=kafka needs KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unknown REMINDERS.DISPATCH %q", c.Reminders.Dispatch)
	}
	if _, err := time.LoadLocation(c.Reminders.Timezone); err != nil {
		return fmt.Errorf("REMINDERS.TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the reminder time zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Reminders.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

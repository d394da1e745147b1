package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreMongoDB = "mongodb"
	StoreMemory  = "memory"
)

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	MongoDB  MongoDBConfig
	Identity IdentityConfig
	WhatsApp WhatsAppConfig
	Sheets   SheetsConfig
	Backup   BackupConfig
	Schedule ScheduleConfig
	Sync     SyncConfig
	LogLevel string
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// StoreConfig selects the document store implementation.
type StoreConfig struct {
	Driver string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// IdentityConfig points at the identity provider REST API.
type IdentityConfig struct {
	BaseURL string
	APIKey  string
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp
// Cloud API. Notifications are disabled when Recipient is empty.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
	Recipient     string
}

// Enabled reports whether enough is configured to deliver messages.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != "" && c.Recipient != ""
}

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether spreadsheet export is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// BackupConfig controls the auto-backup directory.
type BackupConfig struct {
	Dir       string
	Retention int
}

// ScheduleConfig holds the recurring job settings.
type ScheduleConfig struct {
	BackupCron   string
	BirthdayCron string
	Timezone     string
}

// SyncConfig tunes the collection sync layer.
type SyncConfig struct {
	ReconcileDelay time.Duration
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the
		// environment directly.
		_ = godotenv.Load()
	}

	retention, err := getenvInt("BACKUP_RETENTION", 7)
	if err != nil {
		return nil, err
	}
	delay, err := getenvDuration("RECONCILE_DELAY", time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Store: StoreConfig{
			Driver: getenvWithDefault("STORE_DRIVER", StoreMongoDB),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "tesouraria"),
		},
		Identity: IdentityConfig{
			BaseURL: getenvWithDefault("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com/v1"),
			APIKey:  os.Getenv("IDENTITY_API_KEY"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			Recipient:     os.Getenv("WHATSAPP_RECIPIENT"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_REPORT_ID"),
		},
		Backup: BackupConfig{
			Dir:       getenvWithDefault("BACKUP_DIR", "backups"),
			Retention: retention,
		},
		Schedule: ScheduleConfig{
			BackupCron:   getenvWithDefault("BACKUP_CRON", "0 2 * * *"),
			BirthdayCron: getenvWithDefault("BIRTHDAY_CRON", "0 8 * * *"),
			Timezone:     getenvWithDefault("TIMEZONE", "America/Sao_Paulo"),
		},
		Sync: SyncConfig{
			ReconcileDelay: delay,
		},
		LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Store.Driver {
	case StoreMongoDB:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must be provided")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %s or %s, got %q", StoreMongoDB, StoreMemory, c.Store.Driver)
	}

	if c.Identity.APIKey == "" {
		return errors.New("IDENTITY_API_KEY must be provided")
	}

	if c.WhatsApp.Recipient != "" && (c.WhatsApp.AccessToken == "" || c.WhatsApp.PhoneNumberID == "") {
		return errors.New("WHATSAPP_TOKEN and WHATSAPP_PHONE_NUMBER_ID must be provided with WHATSAPP_RECIPIENT")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_REPORT_ID must be provided together")
	}

	if c.Backup.Retention < 1 {
		return errors.New("BACKUP_RETENTION must be at least 1")
	}

	if c.Schedule.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	if c.Sync.ReconcileDelay <= 0 {
		return errors.New("RECONCILE_DELAY must be positive")
	}

	return nil
}

// Location returns the configured timezone. Validate has already checked
// that it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 1s: %w", key, err)
	}
	return d, nil
}

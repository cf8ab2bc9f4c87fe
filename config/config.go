package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	RecipientFixed    = "fixed"
	RecipientSettings = "settings"

	PackagingZip = "zip"
	PackagingPDF = "pdf"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type Config struct {
	Environment string
	LogLevel    string
	ServerPort  string

	DBDriver   string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret     string
	AdminUsername string
	AdminPassword string
	AdminEmail    string

	SMTP SMTPConfig

	// Fixed addresses, used directly by the "fixed" recipient strategies and
	// as the initial settings row.
	RejectionEmail     string
	ReportEmail        string
	RejectionRecipient string
	ReportRecipient    string

	ReportPackaging string
	ReportTimezone  string
	// ReportFontFile is a TrueType font for reports; empty uses Helvetica.
	ReportFontFile string
}

// LoadEnv reads a .env file when present. A missing file is not an error.
func LoadEnv(files ...string) bool {
	return godotenv.Load(files...) == nil
}

func Load() (*Config, error) {
	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	smtpTimeout, err := time.ParseDuration(getEnv("SMTP_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		ServerPort:  getEnv("PORT", "8080"),

		DBDriver:   getEnv("DB_DRIVER", DriverPostgres),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "testflow"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin"),
		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@example.com"),

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     smtpPort,
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", "Test Instruction Management System <noreply@example.com>"),
			Timeout:  smtpTimeout,
		},

		RejectionEmail:     getEnv("REJECTION_EMAIL", ""),
		ReportEmail:        getEnv("REPORT_EMAIL", ""),
		RejectionRecipient: getEnv("REJECTION_RECIPIENT", RecipientFixed),
		ReportRecipient:    getEnv("REPORT_RECIPIENT", RecipientSettings),

		ReportPackaging: getEnv("REPORT_PACKAGING", PackagingZip),
		ReportTimezone:  getEnv("REPORT_TIMEZONE", "Europe/Berlin"),
		ReportFontFile:  getEnv("REPORT_FONT_FILE", ""),
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.DBDriver != DriverPostgres && c.DBDriver != DriverMemory {
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.DBDriver)
	}
	if c.DBDriver == DriverPostgres && c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD environment variable is required")
	}
	for name, v := range map[string]string{
		"REJECTION_RECIPIENT": c.RejectionRecipient,
		"REPORT_RECIPIENT":    c.ReportRecipient,
	} {
		if v != RecipientFixed && v != RecipientSettings {
			return fmt.Errorf("%s must be %q or %q, got %q", name, RecipientFixed, RecipientSettings, v)
		}
	}
	if c.ReportPackaging != PackagingZip && c.ReportPackaging != PackagingPDF {
		return fmt.Errorf("REPORT_PACKAGING must be %q or %q, got %q", PackagingZip, PackagingPDF, c.ReportPackaging)
	}
	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		return fmt.Errorf("invalid REPORT_TIMEZONE: %w", err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

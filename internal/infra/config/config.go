package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string
	LogLevel    string
	Environment string

	ReminderWindow      time.Duration
	ReminderMaxOverdue  time.Duration
	ReminderInterval    time.Duration
	ReminderBatchSize   int
	ReminderDisabled    bool
	ReminderCallTimeout time.Duration
	SMSDisabled         bool
	SMSAPIURL           string
	SMSAPIKey           string
	SMSRatePerSecond    float64
	AccountNumber       string // INVOICE_ACCOUNT_NUMBER, first fallback after the invoice's own
	BankAccountNumber   string // BANK_ACCOUNT_NUMBER, second fallback
	PaymentURLTemplate  string
	AppBaseURL          string
	PhoneCountryCode    string
	ReminderTimezone    string
	CurrencySymbol      string
	RedisURL            string // Enables the cross-process reminder lock when set
	TelegramToken       string // Enables admin alerts when set together with AdminTelegramID
	AdminTelegramID     int64
}

const DefaultSMSAPIURL = "https://api.smsgateway.no/v1/send"

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	windowHours, err := intEnv("INVOICE_REMINDER_WINDOW_HOURS", 24)
	if err != nil {
		return nil, err
	}
	cfg.ReminderWindow = time.Duration(windowHours) * time.Hour

	maxOverdueHours, err := intEnv("INVOICE_REMINDER_MAX_OVERDUE_HOURS", 168) // 7 days
	if err != nil {
		return nil, err
	}
	cfg.ReminderMaxOverdue = time.Duration(maxOverdueHours) * time.Hour

	intervalMs, err := intEnv("INVOICE_REMINDER_INTERVAL_MS", 900000) // 15 minutes
	if err != nil {
		return nil, err
	}
	cfg.ReminderInterval = time.Duration(intervalMs) * time.Millisecond

	if cfg.ReminderBatchSize, err = intEnv("INVOICE_REMINDER_BATCH_SIZE", 25); err != nil {
		return nil, err
	}

	timeoutMs, err := intEnv("INVOICE_REMINDER_CALL_TIMEOUT_MS", 30000)
	if err != nil {
		return nil, err
	}
	cfg.ReminderCallTimeout = time.Duration(timeoutMs) * time.Millisecond

	if cfg.ReminderDisabled, err = boolEnv("INVOICE_REMINDER_DISABLED"); err != nil {
		return nil, err
	}
	if cfg.SMSDisabled, err = boolEnv("SMS_DISABLED"); err != nil {
		return nil, err
	}

	cfg.SMSAPIURL = stringEnv("SMS_API_URL", DefaultSMSAPIURL)
	cfg.SMSAPIKey = os.Getenv("SMS_API_KEY")

	if raw := os.Getenv("SMS_RATE_PER_SECOND"); raw != "" {
		cfg.SMSRatePerSecond, err = strconv.ParseFloat(raw, 64)
		if err != nil || cfg.SMSRatePerSecond < 0 {
			return nil, fmt.Errorf("invalid SMS_RATE_PER_SECOND %q", raw)
		}
	} else {
		cfg.SMSRatePerSecond = 5
	}

	cfg.AccountNumber = strings.TrimSpace(os.Getenv("INVOICE_ACCOUNT_NUMBER"))
	cfg.BankAccountNumber = strings.TrimSpace(os.Getenv("BANK_ACCOUNT_NUMBER"))
	cfg.PaymentURLTemplate = os.Getenv("PAYMENT_URL_TEMPLATE")
	cfg.AppBaseURL = stringEnv("APP_BASE_URL", "https://kartarkiv.no")
	cfg.PhoneCountryCode = strings.TrimPrefix(stringEnv("PHONE_COUNTRY_CODE", "47"), "+")
	cfg.ReminderTimezone = stringEnv("REMINDER_TIMEZONE", "Europe/Oslo")
	cfg.CurrencySymbol = stringEnv("CURRENCY_SYMBOL", "kr")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	return cfg, nil
}

// AlertsEnabled reports whether the Telegram alert channel is configured.
func (c *AppConfig) AlertsEnabled() bool {
	return c.TelegramToken != "" && c.AdminTelegramID != 0
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return v, nil
}

func boolEnv(key string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "", "0", "false", "no", "off":
		return false, nil
	case "1", "true", "yes", "on":
		return true, nil
	default:
		return false, fmt.Errorf("invalid %s %q: expected a boolean", key, os.Getenv(key))
	}
}

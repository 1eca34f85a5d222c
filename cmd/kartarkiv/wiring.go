package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"kartarkiv/internal/app"
	"kartarkiv/internal/domain/sms"
	"kartarkiv/internal/infra/config"
	idb "kartarkiv/internal/infra/database"
	"kartarkiv/internal/infra/lock"
	"kartarkiv/internal/infra/logger"
	"kartarkiv/internal/infra/smsgateway"
	"kartarkiv/internal/infra/telegram"
)

const minPassLockTTL = time.Minute

func loadConfig() (*config.AppConfig, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	log := logger.Get()
	log.Infof("Configuration loaded. LogLevel: %s, Environment: %s", cfg.LogLevel, cfg.Environment)
	return cfg, log, nil
}

func reminderConfig(cfg *config.AppConfig, log logrus.FieldLogger) app.ReminderConfig {
	rc := app.DefaultReminderConfig()
	rc.Window = cfg.ReminderWindow
	rc.MaxOverdue = cfg.ReminderMaxOverdue
	rc.CheckInterval = cfg.ReminderInterval
	rc.MaxBatchSize = cfg.ReminderBatchSize
	rc.Disabled = cfg.ReminderDisabled
	rc.CallTimeout = cfg.ReminderCallTimeout
	rc.SendRatePerSecond = cfg.SMSRatePerSecond
	rc.DefaultAccountNumber = cfg.AccountNumber
	rc.SecondaryAccountNumber = cfg.BankAccountNumber
	rc.PaymentURLTemplate = cfg.PaymentURLTemplate
	rc.PaymentBaseURL = cfg.AppBaseURL

	rc.Locale.CountryCode = cfg.PhoneCountryCode
	rc.Locale.CurrencySymbol = cfg.CurrencySymbol
	if loc, err := time.LoadLocation(cfg.ReminderTimezone); err != nil {
		log.Warnf("Unknown REMINDER_TIMEZONE %q, rendering due dates in %s: %v", cfg.ReminderTimezone, rc.Locale.Location, err)
	} else {
		rc.Locale.Location = loc
	}
	return rc
}

// buildReminderService wires the reminder core to Postgres, the SMS gateway and
// the optional alert and lock backends. cleanup closes everything it opened.
func buildReminderService(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger) (*app.ReminderServiceImpl, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, cleanup, fmt.Errorf("could not connect to database: %w", err)
	}
	closers = append(closers, func() { db.Close() })
	log.Info("Database connection established successfully.")

	invoiceRepo := idb.NewPostgresInvoiceRepository(db)

	var sender sms.Sender
	if cfg.SMSDisabled {
		log.Warn("SMS_DISABLED is set; reminders will not be delivered.")
		sender = smsgateway.DisabledSender{Logger: log}
	} else {
		if cfg.SMSAPIKey == "" {
			log.Warn("SMS_API_KEY is empty; the gateway will most likely reject messages.")
		}
		sender = smsgateway.NewHTTPSender(cfg.SMSAPIURL, cfg.SMSAPIKey, cfg.ReminderCallTimeout)
	}

	var opts []app.ReminderOption
	if cfg.AlertsEnabled() {
		bot, err := telegram.NewBot(cfg.TelegramToken)
		if err != nil {
			log.WithError(err).Warn("Could not create Telegram bot, alerts disabled")
		} else {
			opts = append(opts, app.WithAlerter(telegram.NewTelebotAdapter(bot, cfg.AdminTelegramID)))
			log.Info("Telegram alerts enabled.")
		}
	}

	if cfg.RedisURL != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { rdb.Close() })
		ttl := max(cfg.ReminderInterval, minPassLockTTL)
		opts = append(opts, app.WithPassLocker(lock.NewRedisPassLocker(rdb, lock.DefaultReminderPassKey, ttl)))
		log.Info("Redis reminder pass lock enabled.")
	}

	svc := app.NewReminderService(invoiceRepo, sender, log, reminderConfig(cfg, log), opts...)
	return svc, cleanup, nil
}

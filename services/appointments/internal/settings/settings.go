package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sytefy/backend/libs/config"
	"github.com/sytefy/backend/services/appointments/internal/channels"
	"github.com/sytefy/backend/services/appointments/internal/model"
)

const (
	QueueBackendPostgres = "postgres"
	QueueBackendRedis    = "redis"
)

type Reminder struct {
	OffsetMinutes   int
	DefaultChannels []string
	MaxRetries      int
	RetryBase       time.Duration
	RetryMax        time.Duration
	RetryJitter     float64
}

type Queue struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	PollInterval  time.Duration
	BatchSize     int
	Lease         time.Duration
}

type ICS struct {
	Domain  string
	Product string
}

// Settings is read once at process start and passed by value afterwards.
type Settings struct {
	DatabaseURL  string
	LogLevel     string
	KafkaBrokers string
	Reminder     Reminder
	Queue        Queue
	Channels     channels.Settings
	ICS          ICS
}

// Load reads the environment. Every malformed variable is reported, not just the first.
func Load() (Settings, error) {
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	intVar := func(key string, fallback int) int {
		v, err := config.Int(key, fallback)
		check(err)
		return v
	}
	boolVar := func(key string, fallback bool) bool {
		v, err := config.Bool(key, fallback)
		check(err)
		return v
	}
	durVar := func(key string, fallback time.Duration) time.Duration {
		v, err := config.Duration(key, fallback)
		check(err)
		return v
	}
	floatVar := func(key string, fallback float64) float64 {
		v, err := config.Float(key, fallback)
		check(err)
		return v
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	check(err)

	s := Settings{
		DatabaseURL:  dbURL,
		LogLevel:     config.String("LOG_LEVEL", "info"),
		KafkaBrokers: config.String("KAFKA_BROKERS", ""),
		Reminder: Reminder{
			OffsetMinutes:   intVar("REMINDER_OFFSET_MINUTES", 30),
			DefaultChannels: config.List("REMINDER_DEFAULT_CHANNELS", []string{model.ChannelLog}),
			MaxRetries:      intVar("REMINDER_MAX_RETRIES", 3),
			RetryBase:       durVar("REMINDER_RETRY_BASE", 30*time.Second),
			RetryMax:        durVar("REMINDER_RETRY_MAX", 10*time.Minute),
			RetryJitter:     floatVar("REMINDER_RETRY_JITTER", 0.2),
		},
		Queue: Queue{
			Backend:       strings.ToLower(config.String("REMINDER_QUEUE_BACKEND", QueueBackendPostgres)),
			RedisAddr:     config.String("REDIS_ADDR", "localhost:6379"),
			RedisPassword: config.String("REDIS_PASSWORD", ""),
			RedisDB:       intVar("REDIS_DB", 0),
			Prefix:        config.String("REMINDER_QUEUE_PREFIX", "reminders"),
			PollInterval:  durVar("REMINDER_POLL_INTERVAL", 2*time.Second),
			BatchSize:     intVar("REMINDER_BATCH_SIZE", 20),
			Lease:         durVar("REMINDER_LEASE", 5*time.Minute),
		},
		Channels: channels.Settings{
			Email: channels.EmailSettings{
				Enabled:         boolVar("NOTIFICATION_EMAIL_ENABLED", true),
				Provider:        strings.ToLower(config.String("NOTIFICATION_EMAIL_PROVIDER", channels.EmailProviderSMTP)),
				From:            config.String("NOTIFICATION_EMAIL_FROM", "no-reply@sytefy.local"),
				Host:            config.String("NOTIFICATION_EMAIL_HOST", ""),
				Port:            intVar("NOTIFICATION_EMAIL_PORT", 587),
				Username:        config.String("NOTIFICATION_EMAIL_USERNAME", ""),
				Password:        config.String("NOTIFICATION_EMAIL_PASSWORD", ""),
				UseTLS:          boolVar("NOTIFICATION_EMAIL_USE_TLS", true),
				UseSSL:          boolVar("NOTIFICATION_EMAIL_USE_SSL", false),
				Timeout:         durVar("NOTIFICATION_EMAIL_TIMEOUT", 10*time.Second),
				SendGridAPIKey:  config.String("SENDGRID_API_KEY", ""),
				SendGridBaseURL: config.String("SENDGRID_BASE_URL", ""),
				AWSRegion:       config.String("AWS_REGION", ""),
			},
			SMS: channels.SMSSettings{
				Enabled:       boolVar("NOTIFICATION_SMS_ENABLED", false),
				Provider:      strings.ToLower(config.String("NOTIFICATION_SMS_PROVIDER", channels.SMSProviderTwilio)),
				From:          config.String("NOTIFICATION_SMS_FROM", "Sytefy"),
				AccountSID:    config.String("NOTIFICATION_SMS_ACCOUNT_SID", ""),
				AuthToken:     config.String("NOTIFICATION_SMS_AUTH_TOKEN", ""),
				BaseURL:       config.String("NOTIFICATION_SMS_BASE_URL", "https://api.twilio.com"),
				Timeout:       durVar("NOTIFICATION_SMS_TIMEOUT", 10*time.Second),
				WebhookURL:    config.String("NOTIFICATION_SMS_WEBHOOK_URL", ""),
				WebhookToken:  config.String("NOTIFICATION_SMS_WEBHOOK_TOKEN", ""),
				RatePerSecond: floatVar("NOTIFICATION_SMS_RATE_PER_SECOND", 5),
			},
		},
		ICS: ICS{
			Domain:  config.String("ICS_DOMAIN", "sytefy.local"),
			Product: config.String("ICS_PRODUCT", "Sytefy"),
		},
	}

	if s.Reminder.OffsetMinutes < 0 {
		errs = append(errs, fmt.Errorf("REMINDER_OFFSET_MINUTES must not be negative (got %d)", s.Reminder.OffsetMinutes))
	}
	if s.Reminder.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("REMINDER_MAX_RETRIES must not be negative (got %d)", s.Reminder.MaxRetries))
	}
	if s.Queue.Backend != QueueBackendPostgres && s.Queue.Backend != QueueBackendRedis {
		errs = append(errs, fmt.Errorf("REMINDER_QUEUE_BACKEND must be %q or %q (got %q)", QueueBackendPostgres, QueueBackendRedis, s.Queue.Backend))
	}
	if err := errors.Join(errs...); err != nil {
		return Settings{}, err
	}
	return s, nil
}

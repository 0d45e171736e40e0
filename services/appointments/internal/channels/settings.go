package channels

import "time"

const (
	EmailProviderSMTP     = "smtp"
	EmailProviderSendGrid = "sendgrid"
	EmailProviderSES      = "ses"

	SMSProviderTwilio  = "twilio"
	SMSProviderWebhook = "webhook"
)

type EmailSettings struct {
	Enabled  bool
	Provider string
	From     string
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	UseSSL   bool
	Timeout  time.Duration

	SendGridAPIKey  string
	SendGridBaseURL string
	AWSRegion       string
}

type SMSSettings struct {
	Enabled       bool
	Provider      string
	From          string
	AccountSID    string
	AuthToken     string
	BaseURL       string
	Timeout       time.Duration
	WebhookURL    string
	WebhookToken  string
	RatePerSecond float64
}

// Settings is the channel configuration snapshot handed to the delivery task.
type Settings struct {
	Email EmailSettings
	SMS   SMSSettings
}

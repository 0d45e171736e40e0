package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type SMSBackend interface {
	Send(ctx context.Context, to, body string) error
}

// SMSService mirrors EmailService: failures are logged and reported as false.
type SMSService struct {
	sender  string
	enabled bool
	backend SMSBackend
	logger  *slog.Logger
}

func NewSMSServiceWithBackend(sender string, enabled bool, backend SMSBackend, logger *slog.Logger) *SMSService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMSService{sender: sender, enabled: enabled, backend: backend, logger: logger}
}

// NewSMSService builds the Twilio backend only when account sid, auth token
// and sender are all present.
func NewSMSService(cfg SMSSettings, logger *slog.Logger) *SMSService {
	var backend SMSBackend
	switch strings.ToLower(cfg.Provider) {
	case SMSProviderWebhook:
		if cfg.WebhookURL != "" {
			backend = NewWebhookBackend(cfg.WebhookURL, cfg.WebhookToken, cfg.Timeout)
		}
	default:
		if cfg.AccountSID != "" && cfg.AuthToken != "" && cfg.From != "" {
			backend = NewTwilioBackend(cfg)
		}
	}
	return NewSMSServiceWithBackend(cfg.From, cfg.Enabled, backend, logger)
}

func (s *SMSService) Send(ctx context.Context, recipient, body string) bool {
	if recipient == "" {
		s.logger.Warn("sms missing recipient")
		return false
	}
	if !s.enabled {
		s.logger.Info("sms channel disabled", "recipient", recipient)
		return false
	}
	if s.backend == nil {
		s.logger.Info("sms backend missing", "sender", s.sender, "recipient", recipient, "body", body)
		return false
	}
	if err := s.backend.Send(ctx, recipient, body); err != nil {
		s.logger.Error("sms send failed", "recipient", recipient, "err", err)
		return false
	}
	s.logger.Info("sms sent", "recipient", recipient)
	return true
}

type TwilioBackend struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
}

func NewTwilioBackend(cfg SMSSettings) *TwilioBackend {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &TwilioBackend{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		baseURL:    baseURL,
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

func (b *TwilioBackend) Send(ctx context.Context, to, body string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", b.baseURL, url.PathEscape(b.accountSID))
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", b.from)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(b.accountSID, b.authToken)

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twilio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// WebhookBackend posts {"to","body"} JSON to an arbitrary endpoint.
type WebhookBackend struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookBackend(endpoint, token string, timeout time.Duration) *WebhookBackend {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookBackend{
		url:   strings.TrimSpace(endpoint),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: timeout},
	}
}

func (b *WebhookBackend) Send(ctx context.Context, to, body string) error {
	raw, err := json.Marshal(map[string]string{"to": to, "body": body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
	return nil
}

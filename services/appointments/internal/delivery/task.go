package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	otelx "github.com/sytefy/backend/libs/otel"
	"github.com/sytefy/backend/services/appointments/internal/channels"
	"github.com/sytefy/backend/services/appointments/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const failureSuffix = " Delivery failed."

// channelOrder is the order channels are attempted in, whatever order they were requested in.
var channelOrder = []string{model.ChannelEmail, model.ChannelSMS, model.ChannelNotification, model.ChannelLog}

type NotificationStore interface {
	Create(ctx context.Context, n model.Notification) (model.Notification, error)
}

type Recorder interface {
	RecordTaskOutcome(status string)
	RecordChannelEvent(channel, status string)
}

type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) bool
}

type SMSSender interface {
	Send(ctx context.Context, recipient, body string) bool
}

type Request struct {
	AppointmentID int64          `json:"appointment_id"`
	RemindAt      string         `json:"remind_at"`
	Channels      []string       `json:"channels"`
	Context       map[string]any `json:"context"`
	TaskID        string         `json:"task_id"`
}

type Result struct {
	AppointmentID int64          `json:"appointment_id"`
	RemindAt      string         `json:"remind_at"`
	Channels      []string       `json:"channels"`
	TaskID        string         `json:"task_id"`
	Subject       string         `json:"subject"`
	Delivered     []string       `json:"delivered"`
	DeliveredAt   time.Time      `json:"delivered_at"`
	Context       map[string]any `json:"context"`
}

type Task struct {
	settings      channels.Settings
	notifications NotificationStore
	recorder      Recorder
	logger        *slog.Logger
	email         EmailSender
	sms           SMSSender
	now           func() time.Time
}

type Option func(*Task)

func WithEmailSender(s EmailSender) Option { return func(t *Task) { t.email = s } }

func WithSMSSender(s SMSSender) Option { return func(t *Task) { t.sms = s } }

func WithClock(now func() time.Time) Option { return func(t *Task) { t.now = now } }

func NewTask(settings channels.Settings, notifications NotificationStore, recorder Recorder, logger *slog.Logger, opts ...Option) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Task{
		settings:      settings,
		notifications: notifications,
		recorder:      recorder,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run delivers one reminder. Channel failures are recorded, not returned;
// only orchestration failures (persisting notifications) produce an error,
// which the queue turns into a retry.
func (t *Task) Run(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := otelx.Tracer("reminders").Start(ctx, "reminder.deliver")
	span.SetAttributes(
		attribute.Int64("appointment.id", req.AppointmentID),
		attribute.String("reminder.task_id", req.TaskID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	t.record("started")
	defer func() {
		if err != nil {
			t.record("failed")
		}
	}()

	email, sms := t.email, t.sms
	if email == nil {
		email = channels.NewEmailService(ctx, t.settings.Email, t.logger)
	}
	if sms == nil {
		sms = channels.NewSMSService(t.settings.SMS, t.logger)
	}

	requested := req.Channels
	if len(requested) == 0 {
		requested = []string{model.ChannelLog}
	}
	for _, ch := range requested {
		if !slices.Contains(channelOrder, ch) {
			t.logger.Warn("unknown reminder channel skipped", "appointment_id", req.AppointmentID, "channel", ch)
		}
	}
	rc := req.Context
	if rc == nil {
		rc = map[string]any{}
	}

	title := stringValue(rc["title"])
	if title == "" {
		title = "Appointment"
	}
	subject := stringValue(rc["subject"])
	if subject == "" {
		subject = title + " reminder"
	}
	body := stringValue(rc["body"])
	if body == "" {
		body = formatBody(rc, req.RemindAt)
	}

	type outcome struct {
		channel string
		ok      bool
	}
	var outcomes []outcome
	delivered := []string{}

	for _, ch := range channelOrder {
		if !slices.Contains(requested, ch) {
			continue
		}
		switch ch {
		case model.ChannelEmail:
			recipient := stringValue(rc["customer_email"])
			if recipient == "" {
				recipient = stringValue(rc["user_email"])
			}
			ok := email.Send(ctx, recipient, subject, body)
			outcomes = append(outcomes, outcome{ch, ok})
			t.channelEvent(ch, ok)
			if ok {
				delivered = append(delivered, ch)
			}
		case model.ChannelSMS:
			ok := sms.Send(ctx, stringValue(rc["customer_phone"]), body)
			outcomes = append(outcomes, outcome{ch, ok})
			t.channelEvent(ch, ok)
			if ok {
				delivered = append(delivered, ch)
			}
		case model.ChannelNotification:
			t.logger.Info("appointment reminder notification", "user_id", rc["user_id"], "title", subject)
			t.channelEvent(ch, true)
			delivered = append(delivered, ch)
		case model.ChannelLog:
			t.logger.Info("appointment reminder",
				"appointment_id", req.AppointmentID,
				"remind_at", req.RemindAt,
				"channels", requested,
				"task_id", req.TaskID,
				"subject", subject,
			)
			delivered = append(delivered, ch)
		}
	}

	if userID, ok := parseUserID(rc["user_id"]); ok {
		for _, o := range outcomes {
			n := model.Notification{
				UserID:  userID,
				Title:   subject,
				Body:    body,
				Channel: o.channel,
				Status:  model.NotificationSent,
			}
			if !o.ok {
				n.Body = body + failureSuffix
				n.Status = model.NotificationFailed
			}
			if _, err := t.notifications.Create(ctx, n); err != nil {
				return Result{}, fmt.Errorf("persist %s notification for appointment %d: %w", o.channel, req.AppointmentID, err)
			}
		}
	}

	t.record("succeeded")
	span.SetAttributes(attribute.StringSlice("reminder.delivered", delivered))
	return Result{
		AppointmentID: req.AppointmentID,
		RemindAt:      req.RemindAt,
		Channels:      requested,
		TaskID:        req.TaskID,
		Subject:       subject,
		Delivered:     delivered,
		DeliveredAt:   t.now().UTC(),
		Context:       rc,
	}, nil
}

func (t *Task) record(status string) {
	if t.recorder != nil {
		t.recorder.RecordTaskOutcome(status)
	}
}

func (t *Task) channelEvent(channel string, ok bool) {
	if t.recorder == nil {
		return
	}
	status := model.NotificationSent
	if !ok {
		status = model.NotificationFailed
	}
	t.recorder.RecordChannelEvent(channel, status)
}

func formatBody(rc map[string]any, remindAt string) string {
	title := stringValue(rc["title"])
	if title == "" {
		title = "Appointment"
	}
	start := stringValue(rc["start_at"])
	if start == "" {
		start = remindAt
	}
	location := stringValue(rc["location"])
	if location == "" {
		location = "Not specified"
	}
	lines := []string{
		"Reminder for " + title + ".",
		"Starts: " + start,
		"Location: " + location,
	}
	if extra := stringValue(rc["body_extra"]); extra != "" {
		lines = append(lines, extra)
	}
	return strings.Join(lines, "\n")
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	default:
		return fmt.Sprint(s)
	}
}

// parseUserID accepts the shapes a JSON round trip can leave behind.
func parseUserID(v any) (int64, bool) {
	var id int64
	switch n := v.(type) {
	case int64:
		id = n
	case int:
		id = int64(n)
	case float64:
		id = int64(n)
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0, false
		}
		id = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		id = parsed
	default:
		return 0, false
	}
	return id, id != 0
}

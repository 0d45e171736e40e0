package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/sytefy/backend/services/appointments/internal/channels"
	"github.com/sytefy/backend/services/appointments/internal/model"
)

type stubEmail struct {
	ok         bool
	recipients []string
	subjects   []string
}

func (s *stubEmail) Send(_ context.Context, recipient, subject, _ string) bool {
	s.recipients = append(s.recipients, recipient)
	s.subjects = append(s.subjects, subject)
	return s.ok && recipient != ""
}

type stubSMS struct {
	ok         bool
	recipients []string
}

func (s *stubSMS) Send(_ context.Context, recipient, _ string) bool {
	s.recipients = append(s.recipients, recipient)
	return s.ok && recipient != ""
}

type memoryNotifications struct {
	created []model.Notification
	err     error
}

func (m *memoryNotifications) Create(_ context.Context, n model.Notification) (model.Notification, error) {
	if m.err != nil {
		return model.Notification{}, m.err
	}
	n.ID = int64(len(m.created) + 1)
	m.created = append(m.created, n)
	return n, nil
}

type countingRecorder struct {
	tasks    map[string]int
	channels map[string]int
}

func newRecorder() *countingRecorder {
	return &countingRecorder{tasks: map[string]int{}, channels: map[string]int{}}
}

func (r *countingRecorder) RecordTaskOutcome(status string) { r.tasks[status]++ }

func (r *countingRecorder) RecordChannelEvent(channel, status string) {
	r.channels[channel+":"+status]++
}

var fixedNow = time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)

func contactPayload() map[string]any {
	return map[string]any{
		"user_id":        float64(42),
		"user_email":     "owner@example.com",
		"customer_email": "customer@example.com",
		"customer_phone": "+905551112233",
		"title":          "Consultation",
		"location":       "Office 2",
		"start_at":       "2025-06-10T10:00:00Z",
		"body":           "Consultation starts at 2025-06-10T10:00:00Z.",
	}
}

func TestRunMultiChannelDelivery(t *testing.T) {
	email, sms := &stubEmail{ok: true}, &stubSMS{ok: true}
	store, rec := &memoryNotifications{}, newRecorder()
	task := NewTask(channels.Settings{}, store, rec, nil,
		WithEmailSender(email), WithSMSSender(sms), WithClock(func() time.Time { return fixedNow }))

	res, err := task.Run(context.Background(), Request{
		AppointmentID: 7,
		RemindAt:      "2025-06-10T09:30:00Z",
		Channels:      []string{"log", "sms", "email"},
		Context:       contactPayload(),
		TaskID:        "task-1",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !slices.Equal(res.Delivered, []string{"email", "sms", "log"}) {
		t.Fatalf("unexpected delivered %v", res.Delivered)
	}
	if res.Subject != "Consultation reminder" || res.TaskID != "task-1" || !res.DeliveredAt.Equal(fixedNow) {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(store.created) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(store.created))
	}
	for i, ch := range []string{"email", "sms"} {
		n := store.created[i]
		if n.Channel != ch || n.Status != model.NotificationSent || n.UserID != 42 {
			t.Fatalf("unexpected notification %+v", n)
		}
	}
	if email.recipients[0] != "customer@example.com" {
		t.Fatalf("email should prefer customer address, got %q", email.recipients[0])
	}
	if rec.tasks["started"] != 1 || rec.tasks["succeeded"] != 1 || rec.tasks["failed"] != 0 {
		t.Fatalf("unexpected task metrics %v", rec.tasks)
	}
	if rec.channels["email:sent"] != 1 || rec.channels["sms:sent"] != 1 {
		t.Fatalf("unexpected channel metrics %v", rec.channels)
	}
}

func TestRunMissingPhoneRecordsFailure(t *testing.T) {
	sms := &stubSMS{ok: true}
	store, rec := &memoryNotifications{}, newRecorder()
	task := NewTask(channels.Settings{}, store, rec, nil, WithEmailSender(&stubEmail{}), WithSMSSender(sms))

	payload := contactPayload()
	delete(payload, "customer_phone")
	res, err := task.Run(context.Background(), Request{AppointmentID: 1, Channels: []string{"sms"}, Context: payload})
	if err != nil {
		t.Fatalf("run must not fail on channel failure: %v", err)
	}
	if len(res.Delivered) != 0 {
		t.Fatalf("expected nothing delivered, got %v", res.Delivered)
	}
	if len(store.created) != 1 || store.created[0].Status != model.NotificationFailed {
		t.Fatalf("expected one failed notification, got %+v", store.created)
	}
	if !strings.HasSuffix(store.created[0].Body, " Delivery failed.") {
		t.Fatalf("missing failure suffix: %q", store.created[0].Body)
	}
	if rec.channels["sms:failed"] != 1 || rec.tasks["succeeded"] != 1 {
		t.Fatalf("unexpected metrics %v %v", rec.channels, rec.tasks)
	}
}

func TestRunEmailFallsBackToUserEmail(t *testing.T) {
	email := &stubEmail{ok: true}
	task := NewTask(channels.Settings{}, &memoryNotifications{}, nil, nil, WithEmailSender(email), WithSMSSender(&stubSMS{}))

	payload := contactPayload()
	payload["customer_email"] = nil
	if _, err := task.Run(context.Background(), Request{Channels: []string{"email"}, Context: payload}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if email.recipients[0] != "owner@example.com" {
		t.Fatalf("expected user email fallback, got %q", email.recipients[0])
	}
}

func TestRunWithoutUserIDSkipsPersistence(t *testing.T) {
	store := &memoryNotifications{err: errors.New("must not be called")}
	task := NewTask(channels.Settings{}, store, nil, nil, WithEmailSender(&stubEmail{ok: true}), WithSMSSender(&stubSMS{}))

	payload := contactPayload()
	delete(payload, "user_id")
	if _, err := task.Run(context.Background(), Request{Channels: []string{"email"}, Context: payload}); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunPersistenceFailureFailsTask(t *testing.T) {
	store, rec := &memoryNotifications{err: errors.New("db down")}, newRecorder()
	task := NewTask(channels.Settings{}, store, rec, nil, WithEmailSender(&stubEmail{ok: true}), WithSMSSender(&stubSMS{}))

	_, err := task.Run(context.Background(), Request{AppointmentID: 3, Channels: []string{"email"}, Context: contactPayload()})
	if err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if rec.tasks["failed"] != 1 || rec.tasks["succeeded"] != 0 {
		t.Fatalf("unexpected task metrics %v", rec.tasks)
	}
}

func TestRunDefaultsAndGeneratedBody(t *testing.T) {
	email := &stubEmail{ok: true}
	task := NewTask(channels.Settings{}, &memoryNotifications{}, nil, nil, WithEmailSender(email), WithSMSSender(&stubSMS{}))

	res, err := task.Run(context.Background(), Request{RemindAt: "2025-06-10T09:30:00Z"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !slices.Equal(res.Channels, []string{"log"}) || !slices.Equal(res.Delivered, []string{"log"}) {
		t.Fatalf("expected log default, got %v / %v", res.Channels, res.Delivered)
	}
	if res.Subject != "Appointment reminder" {
		t.Fatalf("unexpected subject %q", res.Subject)
	}
	if len(email.recipients) != 0 {
		t.Fatal("email must not be attempted")
	}

	body := formatBody(map[string]any{"title": "Checkup", "body_extra": "Bring your card."}, "2025-06-10T09:30:00Z")
	want := "Reminder for Checkup.\nStarts: 2025-06-10T09:30:00Z\nLocation: Not specified\nBring your card."
	if body != want {
		t.Fatalf("unexpected body:\n%s", body)
	}
}

func TestRunNotificationAndUnknownChannels(t *testing.T) {
	store := &memoryNotifications{}
	task := NewTask(channels.Settings{}, store, nil, nil, WithEmailSender(&stubEmail{}), WithSMSSender(&stubSMS{}))

	res, err := task.Run(context.Background(), Request{Channels: []string{"pigeon", "notification"}, Context: contactPayload()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !slices.Equal(res.Delivered, []string{"notification"}) {
		t.Fatalf("unexpected delivered %v", res.Delivered)
	}
	if len(store.created) != 0 {
		t.Fatalf("in-app channel has no persisted outcome, got %+v", store.created)
	}
}

func TestRunBuildsServicesFromSettings(t *testing.T) {
	store := &memoryNotifications{}
	task := NewTask(channels.Settings{
		Email: channels.EmailSettings{Enabled: false},
		SMS:   channels.SMSSettings{Enabled: false},
	}, store, nil, nil)

	res, err := task.Run(context.Background(), Request{Channels: []string{"email", "sms"}, Context: contactPayload()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Delivered) != 0 || len(store.created) != 2 {
		t.Fatalf("disabled channels should fail softly: %v %+v", res.Delivered, store.created)
	}
}

func TestParseUserID(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{float64(12), 12, true},
		{json.Number("13"), 13, true},
		{int64(14), 14, true},
		{15, 15, true},
		{"16", 16, true},
		{"abc", 0, false},
		{nil, 0, false},
		{float64(0), 0, false},
	}
	for _, tc := range cases {
		got, ok := parseUserID(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parseUserID(%v) = %d, %v", tc.in, got, ok)
		}
	}
}

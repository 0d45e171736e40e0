package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sytefy/backend/services/appointments/internal/model"
)

type Repository interface {
	Create(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	GetByID(ctx context.Context, id int64) (*model.Appointment, error)
	Update(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	UpdateReminderMetadata(ctx context.Context, id int64, remindAt *time.Time, taskID string, channels []string) (model.Appointment, error)
	ListByUser(ctx context.Context, filter model.ListFilter) (int, []model.Appointment, error)
}

type CustomerFinder interface {
	GetByID(ctx context.Context, id int64) (*model.Customer, error)
}

type ReminderScheduler interface {
	Schedule(ctx context.Context, appointmentID int64, appointmentTime time.Time, channels []string, payload map[string]any) (model.ReminderScheduled, error)
	Cancel(ctx context.Context, taskID string) error
}

const DefaultChannel = "in_person"

type Service struct {
	repo            Repository
	customers       CustomerFinder
	scheduler       ReminderScheduler
	defaultChannels []string
	logger          *slog.Logger
}

func NewService(repo Repository, customers CustomerFinder, scheduler ReminderScheduler, defaultChannels []string, logger *slog.Logger) *Service {
	if len(defaultChannels) == 0 {
		defaultChannels = []string{model.ChannelLog}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:            repo,
		customers:       customers,
		scheduler:       scheduler,
		defaultChannels: defaultChannels,
		logger:          logger,
	}
}

type CreateInput struct {
	UserID           int64
	UserEmail        string
	CustomerID       *int64
	Title            string
	Description      string
	Location         string
	Channel          string
	StartAt          time.Time
	EndAt            time.Time
	ReminderChannels []string
}

type CreateResult struct {
	Appointment model.Appointment
	Reminder    *model.ReminderScheduled
}

func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	title, err := normalizeTitle(in.Title)
	if err != nil {
		return CreateResult{}, err
	}
	start, end := in.StartAt.UTC(), in.EndAt.UTC()
	if !end.After(start) {
		return CreateResult{}, invalid("end time must be after start", nil)
	}
	channels := in.ReminderChannels
	if len(channels) == 0 {
		channels = s.defaultChannels
	}
	channel := strings.TrimSpace(in.Channel)
	if channel == "" {
		channel = DefaultChannel
	}

	stored, err := s.repo.Create(ctx, model.Appointment{
		UserID:           in.UserID,
		CustomerID:       in.CustomerID,
		Title:            title,
		Description:      in.Description,
		Location:         in.Location,
		Channel:          channel,
		StartAt:          start,
		EndAt:            end,
		ReminderChannels: slices.Clone(channels),
		Status:           model.StatusScheduled,
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("create appointment: %w", err)
	}

	scheduled, updated, err := s.schedule(ctx, stored, channels, in.UserEmail)
	if err != nil {
		return CreateResult{Appointment: stored}, err
	}
	return CreateResult{Appointment: updated, Reminder: &scheduled}, nil
}

type UpdateInput struct {
	AppointmentID    int64
	UserID           int64
	UserEmail        string
	Title            *string
	Description      *string
	Location         *string
	Channel          *string
	StartAt          *time.Time
	EndAt            *time.Time
	Status           *string
	ReminderChannels *[]string
}

func (s *Service) Update(ctx context.Context, in UpdateInput) (model.Appointment, error) {
	existing, err := s.load(ctx, in.AppointmentID, in.UserID)
	if err != nil {
		return model.Appointment{}, err
	}
	appt := *existing
	originalStatus := appt.Status
	previousTask := appt.ReminderTaskID

	startChanged, channelsChanged := false, false
	if in.StartAt != nil {
		appt.StartAt = in.StartAt.UTC()
		startChanged = true
	}
	if in.EndAt != nil {
		appt.EndAt = in.EndAt.UTC()
	}
	if !appt.EndAt.After(appt.StartAt) {
		return model.Appointment{}, invalid("end time must be after start", nil)
	}
	if in.Title != nil {
		title, err := normalizeTitle(*in.Title)
		if err != nil {
			return model.Appointment{}, err
		}
		appt.Title = title
	}
	if in.Description != nil {
		appt.Description = *in.Description
	}
	if in.Location != nil {
		appt.Location = *in.Location
	}
	if in.Channel != nil {
		appt.Channel = *in.Channel
	}
	if in.Status != nil {
		next, err := model.ParseStatus(*in.Status)
		if err != nil {
			return model.Appointment{}, invalid("invalid status value", err)
		}
		if err := model.ValidateTransition(appt.Status, next); err != nil {
			return model.Appointment{}, invalid("status cannot transition from "+string(appt.Status)+" to "+string(next), err)
		}
		appt.Status = next
	}
	statusChanged := appt.Status != originalStatus
	if in.ReminderChannels != nil {
		appt.ReminderChannels = slices.Clone(*in.ReminderChannels)
		channelsChanged = true
	}

	terminal := appt.Status.Terminal()
	if terminal || len(appt.ReminderChannels) == 0 {
		s.revoke(ctx, appt.ID, previousTask)
		appt.ClearReminder()
	}

	updated, err := s.repo.Update(ctx, appt)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("update appointment %d: %w", appt.ID, err)
	}

	if terminal || len(appt.ReminderChannels) == 0 || !(startChanged || channelsChanged || statusChanged) {
		return updated, nil
	}

	s.revoke(ctx, appt.ID, previousTask)
	_, rescheduled, err := s.schedule(ctx, updated, appt.ReminderChannels, in.UserEmail)
	if err != nil {
		return updated, err
	}
	return rescheduled, nil
}

func (s *Service) Cancel(ctx context.Context, appointmentID, userID int64) (model.Appointment, error) {
	existing, err := s.load(ctx, appointmentID, userID)
	if err != nil {
		return model.Appointment{}, err
	}
	if existing.Status == model.StatusCompleted || existing.Status == model.StatusCancelled {
		return model.Appointment{}, invalid("appointment is already finalized", nil)
	}
	appt := *existing
	s.revoke(ctx, appt.ID, appt.ReminderTaskID)
	appt.Status = model.StatusCancelled
	appt.ClearReminder()

	updated, err := s.repo.Update(ctx, appt)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("cancel appointment %d: %w", appt.ID, err)
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, appointmentID, userID int64) (model.Appointment, error) {
	appt, err := s.load(ctx, appointmentID, userID)
	if err != nil {
		return model.Appointment{}, err
	}
	return *appt, nil
}

func (s *Service) List(ctx context.Context, filter model.ListFilter) (int, []model.Appointment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return 0, nil, invalid("invalid status value", model.ErrInvalidStatus)
	}
	if filter.StartFrom != nil && filter.StartTo != nil && filter.StartTo.Before(*filter.StartFrom) {
		return 0, nil, invalid("start_to must not be before start_from", nil)
	}
	total, items, err := s.repo.ListByUser(ctx, filter)
	if err != nil {
		return 0, nil, fmt.Errorf("list appointments: %w", err)
	}
	return total, items, nil
}

// load hides appointments owned by someone else behind ErrNotFound.
func (s *Service) load(ctx context.Context, appointmentID, userID int64) (*model.Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment %d: %w", appointmentID, err)
	}
	if appt == nil || appt.UserID != userID {
		return nil, ErrNotFound
	}
	return appt, nil
}

func (s *Service) schedule(ctx context.Context, appt model.Appointment, channels []string, userEmail string) (model.ReminderScheduled, model.Appointment, error) {
	payload, err := s.buildPayload(ctx, appt, userEmail)
	if err != nil {
		return model.ReminderScheduled{}, appt, err
	}
	scheduled, err := s.scheduler.Schedule(ctx, appt.ID, appt.StartAt, channels, payload)
	if err != nil {
		return model.ReminderScheduled{}, appt, fmt.Errorf("schedule reminder for appointment %d: %w", appt.ID, err)
	}
	remindAt := scheduled.RemindAt
	updated, err := s.repo.UpdateReminderMetadata(ctx, appt.ID, &remindAt, scheduled.TaskID, slices.Clone(channels))
	if err != nil {
		return scheduled, appt, fmt.Errorf("store reminder metadata for appointment %d: %w", appt.ID, err)
	}
	s.logger.Info("reminder scheduled",
		"appointment_id", appt.ID,
		"task_id", scheduled.TaskID,
		"remind_at", scheduled.RemindAt,
		"channels", channels,
	)
	return scheduled, updated, nil
}

// revoke is best effort: a job that already fired cannot be stopped anyway.
func (s *Service) revoke(ctx context.Context, appointmentID int64, taskID string) {
	if taskID == "" {
		return
	}
	if err := s.scheduler.Cancel(ctx, taskID); err != nil {
		s.logger.Warn("reminder revoke failed", "appointment_id", appointmentID, "task_id", taskID, "err", err)
	}
}

// normalizeTitle trims the title and rejects line breaks, since it becomes
// the reminder email subject.
func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", invalid("title is required", nil)
	}
	if strings.ContainsAny(title, "\r\n") {
		return "", invalid("title must be a single line", nil)
	}
	return title, nil
}

// IsValidation reports whether err is a client-caused failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

package model

import "time"

const (
	ChannelLog          = "log"
	ChannelEmail        = "email"
	ChannelSMS          = "sms"
	ChannelNotification = "notification"
)

type Appointment struct {
	ID               int64
	UserID           int64
	CustomerID       *int64
	Title            string
	Description      string
	Location         string
	Channel          string
	StartAt          time.Time
	EndAt            time.Time
	RemindAt         *time.Time
	ReminderChannels []string
	ReminderTaskID   string
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ClearReminder drops every trace of a pending reminder.
func (a *Appointment) ClearReminder() {
	a.RemindAt = nil
	a.ReminderTaskID = ""
	a.ReminderChannels = []string{}
}

// Reminder is one delivery request handed to the task queue.
type Reminder struct {
	AppointmentID int64
	RemindAt      time.Time
	Channels      []string
	Payload       map[string]any
}

type ReminderScheduled struct {
	AppointmentID int64
	RemindAt      time.Time
	TaskID        string
}

type Customer struct {
	ID    int64
	Name  string
	Email string
	Phone string
}

const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

type Notification struct {
	ID        int64
	UserID    int64
	Title     string
	Body      string
	Channel   string
	Status    string
	CreatedAt time.Time
}

// ListFilter narrows a user's appointments. Zero values mean "no filter".
type ListFilter struct {
	UserID    int64
	Status    Status
	StartFrom *time.Time
	StartTo   *time.Time
	Limit     int
	Offset    int
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReminderMetrics is safe to use through a nil pointer; calls become no-ops.
type ReminderMetrics struct {
	taskTotal     *prometheus.CounterVec
	channelEvents *prometheus.CounterVec
	queueEvents   *prometheus.CounterVec
	taskDuration  prometheus.Histogram
}

func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	m := &ReminderMetrics{
		taskTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminder_task_total",
			Help: "Reminder delivery task executions by outcome",
		}, []string{"status"}),
		channelEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminder_channel_event_total",
			Help: "Reminder channel deliveries by channel and outcome",
		}, []string{"channel", "status"}),
		queueEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminder_queue_event_total",
			Help: "Reminder queue transitions (enqueued, revoked, completed, retried, dead)",
		}, []string{"backend", "event"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminder_task_duration_seconds",
			Help:    "Wall time of a reminder delivery task",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.taskTotal, m.channelEvents, m.queueEvents, m.taskDuration)
	return m
}

// RecordTaskOutcome takes started, succeeded or failed.
func (m *ReminderMetrics) RecordTaskOutcome(status string) {
	if m == nil {
		return
	}
	m.taskTotal.WithLabelValues(status).Inc()
}

func (m *ReminderMetrics) RecordChannelEvent(channel, status string) {
	if m == nil {
		return
	}
	m.channelEvents.WithLabelValues(channel, status).Inc()
}

func (m *ReminderMetrics) RecordQueueEvent(backend, event string) {
	if m == nil {
		return
	}
	m.queueEvents.WithLabelValues(backend, event).Inc()
}

func (m *ReminderMetrics) ObserveTaskDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.Observe(d.Seconds())
}

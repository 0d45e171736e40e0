package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sytefy/backend/libs/httpx"
	"github.com/sytefy/backend/services/appointments/internal/appointments"
	"github.com/sytefy/backend/services/appointments/internal/ics"
	"github.com/sytefy/backend/services/appointments/internal/model"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

type AppointmentService interface {
	Create(ctx context.Context, in appointments.CreateInput) (appointments.CreateResult, error)
	Update(ctx context.Context, in appointments.UpdateInput) (model.Appointment, error)
	Cancel(ctx context.Context, appointmentID, userID int64) (model.Appointment, error)
	Get(ctx context.Context, appointmentID, userID int64) (model.Appointment, error)
	List(ctx context.Context, filter model.ListFilter) (int, []model.Appointment, error)
}

type AppointmentHandler struct {
	svc        AppointmentService
	logger     *slog.Logger
	icsDomain  string
	icsProduct string
	now        func() time.Time
}

func NewAppointmentHandler(svc AppointmentService, logger *slog.Logger, icsDomain, icsProduct string) *AppointmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppointmentHandler{
		svc:        svc,
		logger:     logger,
		icsDomain:  icsDomain,
		icsProduct: icsProduct,
		now:        time.Now,
	}
}

type createAppointmentRequest struct {
	CustomerID       *int64    `json:"customer_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Location         string    `json:"location"`
	Channel          string    `json:"channel"`
	StartAt          timestamp `json:"start_at"`
	EndAt            timestamp `json:"end_at"`
	ReminderChannels []string  `json:"reminder_channels"`
}

type updateAppointmentRequest struct {
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	Location         *string    `json:"location"`
	Channel          *string    `json:"channel"`
	StartAt          *timestamp `json:"start_at"`
	EndAt            *timestamp `json:"end_at"`
	ReminderChannels *[]string  `json:"reminder_channels"`
	Status           *string    `json:"status"`
}

type appointmentResponse struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Description      *string    `json:"description"`
	Location         *string    `json:"location"`
	Channel          string     `json:"channel"`
	StartAt          time.Time  `json:"start_at"`
	EndAt            time.Time  `json:"end_at"`
	Status           string     `json:"status"`
	RemindAt         *time.Time `json:"remind_at"`
	ReminderChannels []string   `json:"reminder_channels"`
	CustomerID       *int64     `json:"customer_id"`
	ReminderTaskID   *string    `json:"reminder_task_id"`
}

type listAppointmentsResponse struct {
	Items []appointmentResponse `json:"items"`
	Total int                   `json:"total"`
}

func toResponse(a model.Appointment) appointmentResponse {
	channels := a.ReminderChannels
	if channels == nil {
		channels = []string{}
	}
	return appointmentResponse{
		ID:               a.ID,
		Title:            a.Title,
		Description:      optional(a.Description),
		Location:         optional(a.Location),
		Channel:          a.Channel,
		StartAt:          a.StartAt.UTC(),
		EndAt:            a.EndAt.UTC(),
		Status:           string(a.Status),
		RemindAt:         a.RemindAt,
		ReminderChannels: channels,
		CustomerID:       a.CustomerID,
		ReminderTaskID:   optional(a.ReminderTaskID),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFromContext(r.Context())

	var req createAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.StartAt.Time().IsZero() || req.EndAt.Time().IsZero() {
		httpx.WriteError(w, http.StatusBadRequest, "start_at and end_at are required")
		return
	}

	res, err := h.svc.Create(r.Context(), appointments.CreateInput{
		UserID:           ident.UserID,
		UserEmail:        ident.Email,
		CustomerID:       req.CustomerID,
		Title:            req.Title,
		Description:      req.Description,
		Location:         req.Location,
		Channel:          req.Channel,
		StartAt:          req.StartAt.Time(),
		EndAt:            req.EndAt.Time(),
		ReminderChannels: req.ReminderChannels,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(res.Appointment))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFromContext(r.Context())
	q := r.URL.Query()

	filter := model.ListFilter{UserID: ident.UserID, Limit: defaultListLimit}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		filter.Status = model.Status(strings.ToLower(v))
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"start_from", &filter.StartFrom}, {"start_to", &filter.StartTo}} {
		v := strings.TrimSpace(q.Get(p.key))
		if v == "" {
			continue
		}
		t, err := parseTimestamp(v)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid "+p.key)
			return
		}
		*p.dst = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpx.WriteError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	total, items, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := listAppointmentsResponse{Items: make([]appointmentResponse, 0, len(items)), Total: total}
	for _, a := range items {
		resp.Items = append(resp.Items, toResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFromContext(r.Context())
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), id, ident.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFromContext(r.Context())
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req updateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.svc.Update(r.Context(), appointments.UpdateInput{
		AppointmentID:    id,
		UserID:           ident.UserID,
		UserEmail:        ident.Email,
		Title:            req.Title,
		Description:      req.Description,
		Location:         req.Location,
		Channel:          req.Channel,
		StartAt:          optionalTime(req.StartAt),
		EndAt:            optionalTime(req.EndAt),
		Status:           req.Status,
		ReminderChannels: req.ReminderChannels,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFromContext(r.Context())
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Cancel(r.Context(), id, ident.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) ICS(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFromContext(r.Context())
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), id, ident.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	body := ics.Generate(appt, h.icsDomain, h.icsProduct, h.now())
	w.Header().Set("Content-Type", "text/calendar")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ics.Filename(id)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func appointmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid appointment id")
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func (h *AppointmentHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *appointments.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, appointments.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("appointment request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sto-booking/stobot/services/booking-service/internal/booking"
	"github.com/sto-booking/stobot/services/booking-service/internal/conversation"
	"github.com/sto-booking/stobot/services/booking-service/internal/model"
)

// BookingHandler exposes the booking core to the chat transport as JSON over HTTP.
type BookingHandler struct {
	svc      *booking.Service
	sessions *conversation.Sessions
	logger   *slog.Logger
	now      func() time.Time
}

func NewBookingHandler(svc *booking.Service, sessions *conversation.Sessions, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, sessions: sessions, logger: logger, now: time.Now}
}

// Mount registers every route under /api/v1 on mux.
func (h *BookingHandler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/users", h.Users)
	mux.HandleFunc("/api/v1/users/registered", h.IsRegistered)
	mux.HandleFunc("/api/v1/registration", h.Registration)
	mux.HandleFunc("/api/v1/services", h.ListServices)
	mux.HandleFunc("/api/v1/services/get", h.GetService)
	mux.HandleFunc("/api/v1/schedule", h.Schedule)
	mux.HandleFunc("/api/v1/slots", h.Slots)
	mux.HandleFunc("/api/v1/book", h.Book)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments/future", h.Future)
	mux.HandleFunc("/api/v1/appointments/past", h.Past)
}

type bookRequest struct {
	UserID    int64  `json:"user_id"`
	ServiceID int64  `json:"service_id"`
	StartTime string `json:"start_time"`
}

type cancelRequest struct {
	AppointmentID int64 `json:"appointment_id"`
	UserID        int64 `json:"user_id,omitempty"`
}

type cancelResponse struct {
	AppointmentID int64 `json:"appointment_id"`
	Cancelled     bool  `json:"cancelled"`
}

type appointmentItem struct {
	AppointmentID int64        `json:"appointment_id"`
	UserID        int64        `json:"user_id"`
	ServiceID     int64        `json:"service_id"`
	StartTime     string       `json:"start_time"`
	StartTimeUTC  string       `json:"start_time_utc"`
	Status        string       `json:"status"`
	Service       *serviceItem `json:"service,omitempty"`
}

type slotsResponse struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

func toAppointmentItem(appt model.Appointment, svc *model.Service) appointmentItem {
	item := appointmentItem{
		AppointmentID: appt.ID,
		UserID:        appt.UserID,
		ServiceID:     appt.ServiceID,
		StartTime:     appt.StartTime.Format(booking.TimestampLayout),
		StartTimeUTC:  appt.StartTime.UTC().Format(time.RFC3339),
		Status:        appt.Status.String(),
	}
	if svc != nil {
		s := toServiceItem(*svc)
		item.Service = &s
	}
	return item
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.UserID == 0 || req.ServiceID == 0 || strings.TrimSpace(req.StartTime) == "" {
		http.Error(w, "user_id, service_id and start_time are required", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Book(r.Context(), req.UserID, req.ServiceID, req.StartTime)
	if err != nil {
		h.writeError(w, "book", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(appt, nil))
}

// Cancel flips an active appointment to cancelled. When user_id is given the appointment must
// belong to that user.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.AppointmentID == 0 {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if req.UserID != 0 {
		appt, found, err := h.svc.GetAppointment(ctx, req.AppointmentID)
		if err != nil {
			h.writeError(w, "cancel", err)
			return
		}
		if !found || appt.UserID != req.UserID {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
	}

	ok, err := h.svc.Cancel(ctx, req.AppointmentID)
	if err != nil {
		h.writeError(w, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{AppointmentID: req.AppointmentID, Cancelled: ok})
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		http.Error(w, "date required", http.StatusBadRequest)
		return
	}

	free, err := h.svc.FreeSlots(r.Context(), date)
	if err != nil {
		h.writeError(w, "slots", err)
		return
	}
	resp := slotsResponse{Date: date, Slots: make([]string, 0, len(free))}
	for _, s := range free {
		resp.Slots = append(resp.Slots, s.Format(booking.TimestampLayout))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) Future(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := queryID(w, r, "user_id")
	if !ok {
		return
	}

	appts, err := h.svc.FutureAppointments(r.Context(), userID, h.now())
	if err != nil {
		h.writeError(w, "future appointments", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItems(appts))
}

func (h *BookingHandler) Past(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := queryID(w, r, "user_id")
	if !ok {
		return
	}

	appts, err := h.svc.PastAppointments(r.Context(), userID)
	if err != nil {
		h.writeError(w, "past appointments", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItems(appts))
}

func toAppointmentItems(appts []model.AppointmentWithService) []appointmentItem {
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		svc := a.Service
		items = append(items, toAppointmentItem(a.Appointment, &svc))
	}
	return items
}

// writeError maps core errors onto status codes. Validation and conflict outcomes are normal
// answers for the transport; anything else is logged.
func (h *BookingHandler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotTaken):
		http.Error(w, booking.ErrSlotTaken.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrServiceNotFound):
		http.Error(w, booking.ErrServiceNotFound.Error(), http.StatusNotFound)
	case errors.Is(err, booking.ErrOutsideWorkingHours), errors.Is(err, booking.ErrUserNotRegistered):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case booking.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrStorageUnavailable):
		h.logger.Error(op+" failed", "err", err)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error(op+" failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		http.Error(w, name+" required", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

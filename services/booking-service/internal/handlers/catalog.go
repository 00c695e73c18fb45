package handlers

import (
	"net/http"

	"github.com/sto-booking/stobot/services/booking-service/internal/model"
	"github.com/sto-booking/stobot/services/booking-service/internal/schedule"
)

type serviceItem struct {
	ServiceID       int64  `json:"service_id"`
	Name            string `json:"name"`
	ImageURL        string `json:"image_url,omitempty"`
	Price           string `json:"price"`
	Currency        string `json:"currency"`
	DurationMinutes int    `json:"duration_minutes"`
	Description     string `json:"description,omitempty"`
}

type scheduleDay struct {
	Day        string `json:"day"`
	Closed     bool   `json:"closed"`
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
	BreakStart string `json:"break_start,omitempty"`
	BreakEnd   string `json:"break_end,omitempty"`
}

type scheduleResponse struct {
	Timezone string        `json:"timezone"`
	Days     []scheduleDay `json:"days"`
}

func toServiceItem(s model.Service) serviceItem {
	return serviceItem{
		ServiceID:       s.ID,
		Name:            s.Name,
		ImageURL:        s.ImageURL,
		Price:           s.Price,
		Currency:        s.Currency,
		DurationMinutes: s.DurationMinutes,
		Description:     s.Description,
	}
}

func (h *BookingHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	services, err := h.svc.ListServices(r.Context())
	if err != nil {
		h.writeError(w, "list services", err)
		return
	}
	items := make([]serviceItem, 0, len(services))
	for _, s := range services {
		items = append(items, toServiceItem(s))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) GetService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	svc, found, err := h.svc.GetService(r.Context(), id)
	if err != nil {
		h.writeError(w, "get service", err)
		return
	}
	if !found {
		http.Error(w, "service not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toServiceItem(svc))
}

// Schedule reports the working hours currently in force, Monday first.
func (h *BookingHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	week := h.svc.Schedule()
	resp := scheduleResponse{Timezone: h.svc.Location().String(), Days: make([]scheduleDay, 0, len(week))}
	for i, d := range week {
		day := scheduleDay{Day: schedule.DayName(i)}
		if d == nil {
			day.Closed = true
		} else {
			day.Start = d.Open.Start.String()
			day.End = d.Open.End.String()
			if d.Break != nil {
				day.BreakStart = d.Break.Start.String()
				day.BreakEnd = d.Break.End.String()
			}
		}
		resp.Days = append(resp.Days, day)
	}
	writeJSON(w, http.StatusOK, resp)
}

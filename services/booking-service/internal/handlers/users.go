package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sto-booking/stobot/services/booking-service/internal/conversation"
)

type registerRequest struct {
	UserID      int64  `json:"user_id"`
	PhoneNumber string `json:"phone_number"`
	FullName    string `json:"full_name"`
}

type registerResponse struct {
	UserID     int64 `json:"user_id"`
	Registered bool  `json:"registered"`
}

type userItem struct {
	UserID      int64  `json:"user_id"`
	PhoneNumber string `json:"phone_number"`
	FullName    string `json:"full_name"`
}

// registrationRequest is one message of the registration dialogue. Kind is "contact" for a
// shared contact card or "text" for a typed message.
type registrationRequest struct {
	UserID        int64  `json:"user_id"`
	Kind          string `json:"kind"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	ContactUserID int64  `json:"contact_user_id,omitempty"`
	Text          string `json:"text,omitempty"`
}

type registrationResponse struct {
	UserID            int64  `json:"user_id"`
	State             string `json:"state"`
	Registered        bool   `json:"registered"`
	AlreadyRegistered bool   `json:"already_registered,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Users handles POST (register) and GET (look up) on /api/v1/users.
func (h *BookingHandler) Users(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.register(w, r)
	case http.MethodGet:
		h.getUser(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BookingHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.UserID == 0 {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	ok, err := h.svc.Register(r.Context(), req.UserID, req.PhoneNumber, req.FullName)
	if err != nil {
		h.writeError(w, "register", err)
		return
	}
	status := http.StatusCreated
	if !ok {
		status = http.StatusOK
	}
	writeJSON(w, status, registerResponse{UserID: req.UserID, Registered: ok})
}

func (h *BookingHandler) getUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryID(w, r, "user_id")
	if !ok {
		return
	}
	u, found, err := h.svc.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get user", err)
		return
	}
	if !found {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, userItem{UserID: u.ID, PhoneNumber: u.PhoneNumber, FullName: u.FullName})
}

func (h *BookingHandler) IsRegistered(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := queryID(w, r, "user_id")
	if !ok {
		return
	}
	registered, err := h.svc.IsRegistered(r.Context(), userID)
	if err != nil {
		h.writeError(w, "is registered", err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{UserID: userID, Registered: registered})
}

// Registration advances the contact, then name dialogue by one message and registers the
// user once it completes. A rejected message answers 422 with the unchanged state so the
// transport can repeat its prompt.
func (h *BookingHandler) Registration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.UserID == 0 {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	registered, err := h.svc.IsRegistered(ctx, req.UserID)
	if err != nil {
		h.writeError(w, "registration", err)
		return
	}
	if registered {
		h.sessions.Reset(req.UserID)
		writeJSON(w, http.StatusOK, registrationResponse{
			UserID:            req.UserID,
			State:             conversation.Complete.String(),
			AlreadyRegistered: true,
		})
		return
	}

	var in conversation.Input
	switch req.Kind {
	case "contact":
		in = conversation.Input{Kind: conversation.InputContact, Phone: req.PhoneNumber, ContactUser: req.ContactUserID}
	case "text":
		in = conversation.Input{Kind: conversation.InputText, Text: req.Text}
	case "":
		// No message: report where the dialogue stands.
		reg := h.sessions.Get(req.UserID)
		writeJSON(w, http.StatusOK, registrationResponse{UserID: req.UserID, State: reg.State.String()})
		return
	default:
		http.Error(w, "kind must be contact or text", http.StatusBadRequest)
		return
	}

	reg, err := h.sessions.Apply(req.UserID, in)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, registrationResponse{
			UserID: req.UserID,
			State:  reg.State.String(),
			Error:  err.Error(),
		})
		return
	}

	resp := registrationResponse{UserID: req.UserID, State: reg.State.String()}
	if reg.State == conversation.Complete {
		ok, err := h.svc.Register(ctx, reg.UserID, reg.Phone, reg.FullName)
		if err != nil {
			h.writeError(w, "registration", err)
			return
		}
		resp.Registered = ok
		resp.AlreadyRegistered = !ok
	}
	writeJSON(w, http.StatusOK, resp)
}

package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"meeting-reminders/internal/meeting"
	"meeting-reminders/internal/notify"
	"meeting-reminders/internal/storage"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler serves the meeting-management endpoints. Creating a meeting sends
// a one-time invitation to its participants.
type Handler struct {
	Store      storage.Storage
	Dispatcher notify.Dispatcher
	Log        *zap.Logger
}

func New(store storage.Storage, dispatcher notify.Dispatcher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:      store,
		Dispatcher: dispatcher,
		Log:        log.With(zap.String("component", "http")),
	}
}

// Register adds the meeting routes to r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/meetings", h.CreateMeetingHandler).Methods("POST")
	r.HandleFunc("/meetings", h.ListMeetingsHandler).Methods("GET")
	r.HandleFunc("/meetings/{id}", h.GetMeetingHandler).Methods("GET")
}

type reminderRequest struct {
	TimeBefore float64      `json:"timeBefore"`
	Unit       meeting.Unit `json:"unit"`
}

type createMeetingRequest struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Organizer    string            `json:"organizer"`
	StartTime    string            `json:"startTime"`
	EndTime      string            `json:"endTime"`
	Participants []string          `json:"participants"`
	Reminders    []reminderRequest `json:"reminders"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (h *Handler) access(r *http.Request, status int, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("user_agent", r.UserAgent()),
		zap.Int("status", status),
	}, fields...)
	if status >= http.StatusInternalServerError {
		h.Log.Error("request", fields...)
		return
	}
	h.Log.Info("request", fields...)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.Warn("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, message string, err error, fields ...zap.Field) {
	h.writeJSON(w, status, errorResponse{Message: message})
	h.access(r, status, append(fields, zap.Error(err))...)
}

func (h *Handler) CreateMeetingHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	var req createMeetingRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		h.fail(w, r, http.StatusBadRequest, err.Error(), err, zap.ByteString("body", body))
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "invalid startTime format", err)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "invalid endTime format", err)
		return
	}

	reminders := make([]meeting.Reminder, len(req.Reminders))
	for i, rr := range req.Reminders {
		reminders[i] = meeting.NewReminder(rr.TimeBefore, rr.Unit)
	}
	m := meeting.NewMeeting(req.Title, req.Description, req.Organizer, start.UTC(), end.UTC(), req.Participants, reminders)
	if err := m.Validate(); err != nil {
		h.fail(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	if err := h.Store.CreateMeeting(r.Context(), m); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Something went wrong", err)
		return
	}

	// Invitation failures are not surfaced; the meeting is already stored.
	if err := h.Dispatcher.Dispatch(r.Context(), m.Participants, meeting.InvitationMessage(m)); err != nil {
		h.Log.Warn("invitation dispatch failed", zap.String("meeting_id", m.ID), zap.Error(err))
	}

	h.writeJSON(w, http.StatusCreated, m)
	h.access(r, http.StatusCreated, zap.String("meeting_id", m.ID))
}

func (h *Handler) ListMeetingsHandler(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	list, err := h.Store.ListMeetings(r.Context(), identity)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Something went wrong", err)
		return
	}
	if list == nil {
		list = []*meeting.Meeting{}
	}
	h.writeJSON(w, http.StatusOK, list)
	h.access(r, http.StatusOK)
}

func (h *Handler) GetMeetingHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := h.Store.GetMeeting(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.fail(w, r, http.StatusNotFound, "meeting not found", err)
		return
	}
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "Something went wrong", err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
	h.access(r, http.StatusOK)
}

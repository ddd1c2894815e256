package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/andresmejia3/rollcall/internal/ledger"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/go-chi/chi/v5"
)

// AttendanceResponse lists identity rows.
type AttendanceResponse struct {
	Date   string                  `json:"date,omitempty"`
	Name   string                  `json:"name,omitempty"`
	Count  int                     `json:"count"`
	Events []types.AttendanceEvent `json:"events"`
}

// PresenceResponse lists presence rows.
type PresenceResponse struct {
	Date   string                `json:"date,omitempty"`
	Count  int                   `json:"count"`
	Events []types.PresenceEvent `json:"events"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// ledgerError maps ledger failures onto status codes.
func ledgerError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrWrongMode) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	slog.Error("ledger read failed", "error", err)
	respondError(w, http.StatusInternalServerError, "failed to read ledger")
}

// dateParam returns the ?date= filter. ok is false when it was not a YYYY-MM-DD date.
func dateParam(r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return "", true
	}
	if _, err := time.Parse(types.DateLayout, date); err != nil {
		return "", false
	}
	return date, true
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listAttendance(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	events, err := s.ledger.Events(r.Context(), date)
	if err != nil {
		ledgerError(w, err)
		return
	}
	if events == nil {
		events = []types.AttendanceEvent{}
	}
	respondJSON(w, http.StatusOK, AttendanceResponse{Date: date, Count: len(events), Events: events})
}

func (s *Server) subjectHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	events, err := ledger.History(r.Context(), s.ledger, name)
	if err != nil {
		ledgerError(w, err)
		return
	}
	if len(events) == 0 {
		respondError(w, http.StatusNotFound, "no attendance recorded for "+name)
		return
	}
	respondJSON(w, http.StatusOK, AttendanceResponse{Name: events[0].Name, Count: len(events), Events: events})
}

func (s *Server) listPresence(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	events, err := s.ledger.Presence(r.Context(), date)
	if err != nil {
		ledgerError(w, err)
		return
	}
	if events == nil {
		events = []types.PresenceEvent{}
	}
	respondJSON(w, http.StatusOK, PresenceResponse{Date: date, Count: len(events), Events: events})
}

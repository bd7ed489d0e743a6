package inspect

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/getburrow/burrow/pkg/history"
)

// ErrorResponse is the error body returned by all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Health is the response body for GET /api/health.
type Health struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// Status is the response body for GET /api/status.
type Status struct {
	Connected     bool   `json:"connected"`
	PublicURL     string `json:"publicUrl,omitempty"`
	Tunnel        string `json:"tunnel,omitempty"`
	Backend       string `json:"backend,omitempty"`
	Version       string `json:"version,omitempty"`
	Uptime        string `json:"uptime"`
	Requests      int64  `json:"requests"`
	BytesIn       int64  `json:"bytesIn"`
	BytesOut      int64  `json:"bytesOut"`
	Recorded      int    `json:"recorded"`
	DroppedEvents int64  `json:"droppedStreamEvents"`
}

// RequestList is the response body for GET /api/requests.
type RequestList struct {
	Total    int              `json:"total"`
	Requests []history.Record `json:"requests"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Health{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		Backend:       s.backend,
		Version:       s.version,
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		Recorded:      s.ledger.Len(),
		DroppedEvents: s.stream.droppedEvents(),
	}

	if s.source != nil {
		status.Connected = s.source.IsConnected()
		status.PublicURL = s.source.PublicURL()
		status.Tunnel = s.source.Tunnel()
		if stats := s.source.Stats(); stats != nil {
			status.Requests = stats.RequestsServed
			status.BytesIn = stats.BytesIn
			status.BytesOut = stats.BytesOut
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// handleListRequests handles GET /api/requests. Records are returned newest
// first. The limit query parameter caps the result.
func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	records := s.ledger.Records()
	total := len(records)

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "bad_limit", "limit must be a non-negative integer")
			return
		}
		if limit < len(records) {
			records = records[:limit]
		}
	}

	writeJSON(w, http.StatusOK, RequestList{
		Total:    total,
		Requests: records,
	})
}

// handleGetRequest handles GET /api/requests/{id}.
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, ok := s.ledger.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no request with that ID")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleClearRequests handles DELETE /api/requests.
func (s *Server) handleClearRequests(w http.ResponseWriter, r *http.Request) {
	cleared := s.ledger.Len()
	s.ledger.Clear()

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "request history cleared",
		"cleared": cleared,
	})
}

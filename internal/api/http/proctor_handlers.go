package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adaptiq/adaptiq-engine/internal/proctor"
)

// RecordViolationHandler is the non-streaming ingestion path for clients
// that cannot hold a websocket open.
func RecordViolationHandler(m *proctor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Type     string           `json:"type"`
			Severity proctor.Severity `json:"severity"`
			At       int64            `json:"at,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Type == "" {
			http.Error(w, "type required", http.StatusBadRequest)
			return
		}
		s, err := m.Record(r.Context(), chi.URLParam(r, "attemptID"), proctor.Violation{
			Type:     req.Type,
			Severity: req.Severity,
			At:       req.At,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"suspicion_score": s.SuspicionScore,
			"integrity":       s.Integrity(),
		})
	}
}

// ProctorReportHandler serves the sealed (or live) violation log for
// instructor review; the engine itself never fails an attempt over it.
func ProctorReportHandler(m *proctor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Report(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"attempt_id":      s.AttemptID,
			"violations":      s.Violations,
			"suspicion_score": s.SuspicionScore,
			"integrity":       s.Integrity(),
			"sealed":          s.Sealed,
		})
	}
}

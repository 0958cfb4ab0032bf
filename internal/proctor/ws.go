package proctor

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser proctoring scripts connect cross-origin in dev; CORS policy
	// is enforced at the gateway router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsEvent struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	At       int64    `json:"at,omitempty"`
}

type wsAck struct {
	SuspicionScore float64    `json:"suspicion_score"`
	Integrity      Assessment `json:"integrity"`
	Sealed         bool       `json:"sealed,omitempty"`
}

// StreamHandler ingests a live stream of violation events for one attempt
// over a websocket, acking each with the updated suspicion score. A sealed
// session acks once more and closes.
func StreamHandler(m *Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		if attemptID == "" {
			http.Error(w, "attemptID required", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var ev wsEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			s, err := m.Record(r.Context(), attemptID, Violation{
				Type:     ev.Type,
				Severity: ev.Severity,
				At:       ev.At,
			})
			if err != nil {
				if errors.Is(err, ErrSessionSealed) {
					_ = conn.WriteJSON(wsAck{SuspicionScore: s.SuspicionScore, Integrity: s.Integrity(), Sealed: true})
				}
				return
			}
			if err := conn.WriteJSON(wsAck{SuspicionScore: s.SuspicionScore, Integrity: s.Integrity()}); err != nil {
				return
			}
		}
	}
}

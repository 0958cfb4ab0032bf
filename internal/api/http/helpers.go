package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/adaptiq/adaptiq-engine/internal/attempt"
	"github.com/adaptiq/adaptiq-engine/internal/proctor"
	"github.com/adaptiq/adaptiq-engine/internal/quiz"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps engine errors onto HTTP statuses. Every surfaced error
// already carries attempt/question context from the package that raised it.
func writeErr(w http.ResponseWriter, err error) {
	var invalid *attempt.InvalidTransitionError
	var validation *quiz.ValidationError
	switch {
	case errors.Is(err, attempt.ErrQuizNotFound),
		errors.Is(err, attempt.ErrAttemptNotFound),
		errors.Is(err, attempt.ErrQuestionNotFound),
		errors.Is(err, proctor.ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, attempt.ErrAttemptLimitExceeded),
		errors.Is(err, proctor.ErrSessionSealed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &invalid):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &validation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

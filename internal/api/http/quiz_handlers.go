package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adaptiq/adaptiq-engine/internal/attempt"
	"github.com/adaptiq/adaptiq-engine/internal/quiz"
	"github.com/adaptiq/adaptiq-engine/internal/rbac"
)

// CreateQuizHandler accepts a quiz definition from the authoring system.
// Malformed quizzes are rejected here and never surface mid-attempt.
func CreateQuizHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.MaxAttempts == 0 {
			q.MaxAttempts = 1
		}
		q.CreatedAt = time.Now().Unix()
		if err := quiz.Validate(q); err != nil {
			writeErr(w, err)
			return
		}
		if err := store.PutQuiz(r.Context(), q); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

func ListQuizzesHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := store.ListQuizzes(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GetQuizHandler serves a quiz. Answer keys and explanations are stripped
// unless the caller may review them.
func GetQuizHandler(store attempt.Store) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		q, err := store.GetQuiz(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		if !checker.Has(rbac.RoleFromContext(r.Context()), "quiz:view-keys") {
			q = q.Redacted()
		}
		writeJSON(w, http.StatusOK, q)
	}
}

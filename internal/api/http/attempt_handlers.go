package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adaptiq/adaptiq-engine/internal/attempt"
	auth "github.com/adaptiq/adaptiq-engine/internal/auth/middleware"
	"github.com/adaptiq/adaptiq-engine/internal/rbac"
)

// attemptResult is the outbound record emitted when an attempt finishes.
type attemptResult struct {
	AttemptID        string      `json:"attempt_id"`
	Status           string      `json:"status"`
	Score            int         `json:"score"`
	MaxScore         int         `json:"max_score"`
	Passed           bool        `json:"passed"`
	TimeTakenSeconds int64       `json:"time_taken_seconds"`
	Breakdown        interface{} `json:"breakdown,omitempty"`
	Feedback         string      `json:"feedback,omitempty"`
}

func toResult(a attempt.Attempt) attemptResult {
	out := attemptResult{
		AttemptID:        a.ID,
		Status:           string(a.Status),
		Score:            a.Score,
		MaxScore:         a.MaxScore,
		Passed:           a.Passed,
		TimeTakenSeconds: a.TimeTakenSeconds,
		Feedback:         a.Feedback,
	}
	if a.Result != nil {
		out.Breakdown = a.Result.Breakdown
	}
	return out
}

func CreateAttemptHandler(lc *attempt.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuizID string `json:"quiz_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		userID := auth.SubjectFromContext(r.Context())
		if req.QuizID == "" || userID == "" {
			http.Error(w, "quiz_id required", http.StatusBadRequest)
			return
		}
		a, err := lc.Create(r.Context(), req.QuizID, userID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func StartAttemptHandler(lc *attempt.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := lc.Start(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func SubmitAnswerHandler(lc *attempt.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID     string      `json:"question_id"`
			Value          interface{} `json:"value"`
			ResponseTimeMs int64       `json:"response_time_ms,omitempty"`
			Confidence     float64     `json:"confidence,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.QuestionID == "" {
			http.Error(w, "question_id required", http.StatusBadRequest)
			return
		}
		a, err := lc.SubmitAnswer(r.Context(), chi.URLParam(r, "attemptID"), req.QuestionID, req.Value,
			attempt.AnswerMeta{ResponseTimeMs: req.ResponseTimeMs, Confidence: req.Confidence})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// NextQuestionHandler serves the adaptive controller's pick (or the next
// unanswered question on fixed-order quizzes), learner-safe.
func NextQuestionHandler(lc *attempt.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok, err := lc.NextQuestion(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, map[string]interface{}{"done": true})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"done": false, "question": q})
	}
}

func SubmitAttemptHandler(lc *attempt.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := lc.Submit(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toResult(a))
	}
}

func AbandonAttemptHandler(lc *attempt.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := lc.Abandon(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toResult(a))
	}
}

func TickHandler(lc *attempt.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ElapsedMs int64 `json:"elapsed_ms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		a, err := lc.Tick(r.Context(), chi.URLParam(r, "attemptID"), req.ElapsedMs)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GetAttemptHandler guards ownership: a learner only sees their own
// attempts, reviewers see all.
func GetAttemptHandler(store attempt.Store) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := store.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		role := rbac.RoleFromContext(r.Context())
		if !checker.Has(role, "attempt:view-all") && a.UserID != auth.SubjectFromContext(r.Context()) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// ListAttemptsHandler backs the instructor dashboard.
func ListAttemptsHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := attempt.ListOpts{
			QuizID: q.Get("quiz_id"),
			UserID: q.Get("user_id"),
			Status: attempt.Status(q.Get("status")),
			Limit:  queryInt(q.Get("limit"), 50),
			Offset: queryInt(q.Get("offset"), 0),
		}
		out, err := store.ListAttempts(r.Context(), opts)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}

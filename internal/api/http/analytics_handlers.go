package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adaptiq/adaptiq-engine/internal/analytics"
	auth "github.com/adaptiq/adaptiq-engine/internal/auth/middleware"
	"github.com/adaptiq/adaptiq-engine/internal/rbac"
)

// UserAnalyticsHandler serves the per-learner rollup consumed by dashboards.
// Learners read their own; instructors read anyone's.
func UserAnalyticsHandler(agg *analytics.Aggregator) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		role := rbac.RoleFromContext(r.Context())
		if !checker.Has(role, "analytics:view-all") && userID != auth.SubjectFromContext(r.Context()) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		s, ok := agg.Get(r.Context(), userID)
		if !ok {
			http.Error(w, "no analytics for user", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

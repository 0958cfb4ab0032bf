package analytics

import (
	"math"

	"github.com/adaptiq/adaptiq-engine/internal/attempt"
)

// TrendLimit bounds the recent-score series kept for dashboards.
const TrendLimit = 20

// Snapshot is the derived per-learner rollup. It is recomputed by folding
// terminal attempts; nothing else mutates it.
type Snapshot struct {
	UserID string `json:"user_id"`

	Attempts  int `json:"attempts"`
	Completed int `json:"completed"`
	Expired   int `json:"expired"`
	Abandoned int `json:"abandoned"`

	// Welford accumulators over percent scores: the mean needs no stored
	// history, and M2 yields the running standard deviation. M2 is carried
	// in the serialized form so a cached snapshot can keep folding.
	MeanScore float64 `json:"mean_score"`
	M2        float64 `json:"m2"`

	StdDev         float64   `json:"std_dev"`
	CompletionRate float64   `json:"completion_rate"`
	Trend          []float64 `json:"trend"` // most recent TrendLimit percent scores
}

// Fold adds one terminal attempt to the rollup. Non-terminal attempts are
// ignored so a snapshot can never double-count an in-flight attempt. The
// running mean is order-insensitive up to floating-point tolerance.
func Fold(s Snapshot, a attempt.Attempt) Snapshot {
	if !a.Status.Terminal() {
		return s
	}
	s.UserID = a.UserID

	switch a.Status {
	case attempt.StatusCompleted:
		s.Completed++
	case attempt.StatusExpired:
		s.Expired++
	case attempt.StatusAbandoned:
		s.Abandoned++
	}

	percent := 0.0
	if a.Result != nil {
		percent = a.Result.Percent
	} else if a.MaxScore > 0 {
		percent = float64(a.Score) / float64(a.MaxScore) * 100
	}

	s.Attempts++
	delta := percent - s.MeanScore
	s.MeanScore += delta / float64(s.Attempts)
	s.M2 += delta * (percent - s.MeanScore)
	if s.Attempts > 1 {
		s.StdDev = math.Sqrt(s.M2 / float64(s.Attempts-1))
	}

	total := s.Completed + s.Expired + s.Abandoned
	if total > 0 {
		s.CompletionRate = float64(s.Completed) / float64(total)
	}

	trend := append(append([]float64(nil), s.Trend...), percent)
	if len(trend) > TrendLimit {
		trend = trend[len(trend)-TrendLimit:]
	}
	s.Trend = trend
	return s
}

package adaptive

import (
	"math"

	"github.com/adaptiq/adaptiq-engine/internal/quiz"
)

const (
	// StartDifficulty is the mid-scale entry point for a fresh attempt.
	StartDifficulty = 3.0
	minDifficulty   = 1.0
	maxDifficulty   = 5.0

	step       = 0.5
	raiseAbove = 0.8
	lowerBelow = 0.5

	// WindowSize bounds the rolling outcome window; older samples fall off.
	WindowSize = 10
)

// Sample is one answered question's contribution to the rolling window.
type Sample struct {
	Difficulty     float64 `json:"difficulty"`
	Correct        bool    `json:"correct"`
	ResponseTimeMs int64   `json:"response_time_ms"`
	Confidence     float64 `json:"confidence"`
}

// State is the per-attempt adaptive record. It is owned by the attempt it
// belongs to and discarded when the attempt leaves in_progress. All
// transitions are pure: RecordOutcome returns a new State, so difficulty
// progression is reproducible in tests.
type State struct {
	CurrentDifficulty float64  `json:"current_difficulty"`
	Window            []Sample `json:"window"`
}

func NewState() State {
	return State{CurrentDifficulty: StartDifficulty}
}

// RecordOutcome appends a sample to the window (dropping the oldest beyond
// WindowSize) and moves the current difficulty by the recent success rate:
// above 0.8 steps up, below 0.5 steps down, otherwise unchanged. The result
// is always clamped to [1.0, 5.0].
func RecordOutcome(s State, sample Sample) State {
	window := make([]Sample, 0, WindowSize)
	window = append(window, s.Window...)
	window = append(window, sample)
	if len(window) > WindowSize {
		window = window[len(window)-WindowSize:]
	}

	next := State{CurrentDifficulty: s.CurrentDifficulty, Window: window}
	rate := successRate(window)
	switch {
	case rate > raiseAbove:
		next.CurrentDifficulty = math.Min(next.CurrentDifficulty+step, maxDifficulty)
	case rate < lowerBelow:
		next.CurrentDifficulty = math.Max(next.CurrentDifficulty-step, minDifficulty)
	}
	return next
}

func successRate(window []Sample) float64 {
	if len(window) == 0 {
		return 0
	}
	correct := 0
	for _, s := range window {
		if s.Correct {
			correct++
		}
	}
	return float64(correct) / float64(len(window))
}

// SuccessRate exposes the rolling success rate for dashboards.
func (s State) SuccessRate() float64 { return successRate(s.Window) }

// TargetDifficulty is the integer difficulty the next question should match.
func (s State) TargetDifficulty() int {
	return int(math.Round(s.CurrentDifficulty))
}

// NextQuestion picks the first unanswered question, in quiz order, whose
// difficulty is closest to the current target. Ties keep the earlier
// question, so progression through equally distant questions follows the
// authored order. ok is false once every question has an answer.
func NextQuestion(qz quiz.Quiz, answered map[string]bool, s State) (quiz.Question, bool) {
	target := s.TargetDifficulty()
	best := quiz.Question{}
	bestDist := math.MaxFloat64
	found := false
	for _, q := range qz.Questions {
		if answered[q.ID] {
			continue
		}
		dist := math.Abs(float64(q.Difficulty - target))
		if dist < bestDist {
			best, bestDist, found = q, dist, true
		}
	}
	return best, found
}

package grading

import (
	"math"

	"github.com/adaptiq/adaptiq-engine/internal/quiz"
)

// DefaultPartialCreditThreshold is the minimum short-answer similarity that
// still earns proportional points.
const DefaultPartialCreditThreshold = 0.5

// QuestionScore is one row of a scoring breakdown.
type QuestionScore struct {
	QuestionID     string  `json:"question_id"`
	Answered       bool    `json:"answered"`
	Correct        bool    `json:"correct"`
	PartialCredit  bool    `json:"partial_credit"`
	Similarity     float64 `json:"similarity"`
	EarnedPoints   int     `json:"earned_points"`
	PossiblePoints int     `json:"possible_points"`
}

// Result is the scored outcome of one attempt over one quiz.
type Result struct {
	EarnedPoints int             `json:"earned_points"`
	MaxPoints    int             `json:"max_points"`
	Percent      float64         `json:"percent"`
	Passed       bool            `json:"passed"`
	Breakdown    []QuestionScore `json:"breakdown"`
}

// Engine converts (question, submitted answer) pairs into points. It holds
// no mutable state: Score is pure and deterministic for fixed inputs, and it
// never fails — unparseable answers score zero rather than erroring out
// mid-quiz.
type Engine struct {
	partialCreditThreshold float64
}

type Option func(*Engine)

// WithPartialCreditThreshold overrides the short-answer similarity floor.
func WithPartialCreditThreshold(t float64) Option {
	return func(e *Engine) { e.partialCreditThreshold = t }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{partialCreditThreshold: DefaultPartialCreditThreshold}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Score walks every question in the quiz. Missing answers are treated as
// empty submissions and count against the learner: MaxPoints is the sum over
// all questions, not just answered ones.
func (e *Engine) Score(qz quiz.Quiz, answers map[string]interface{}) Result {
	res := Result{
		MaxPoints: qz.MaxPoints(),
		Breakdown: make([]QuestionScore, 0, len(qz.Questions)),
	}
	for _, q := range qz.Questions {
		row := QuestionScore{QuestionID: q.ID, PossiblePoints: q.Points}
		response, answered := answers[q.ID]
		row.Answered = answered
		if answered {
			m := Match(response, q.AnswerKey, q.Type)
			row.Similarity = m.Similarity
			switch {
			case m.Exact:
				row.Correct = true
				row.EarnedPoints = q.Points
			case q.Type == quiz.TypeShortAnswer && m.Similarity >= e.partialCreditThreshold:
				row.PartialCredit = true
				row.EarnedPoints = int(math.Round(float64(q.Points) * m.Similarity))
			}
		}
		res.EarnedPoints += row.EarnedPoints
		res.Breakdown = append(res.Breakdown, row)
	}
	if res.MaxPoints > 0 {
		res.Percent = float64(res.EarnedPoints) / float64(res.MaxPoints) * 100
	}
	res.Passed = res.Percent >= qz.PassingScore
	return res
}

package quiz

import "fmt"

// Question types the engine can auto-grade.
const (
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeShortAnswer    = "short_answer"
	TypeCodeCompletion = "code_completion"
	TypeDragDrop       = "drag_drop"
)

type Choice struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label,omitempty"`
}

type Question struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Prompt      string   `json:"prompt,omitempty"`
	Choices     []Choice `json:"choices,omitempty"`
	AnswerKey   []string `json:"answer_key,omitempty"`
	Points      int      `json:"points"`
	Difficulty  int      `json:"difficulty"` // 1..5
	Explanation string   `json:"explanation,omitempty"`
	Hints       []string `json:"hints,omitempty"`
}

// Quiz is immutable once published; the engine never mutates one.
type Quiz struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Questions    []Question `json:"questions"`
	TimeLimitSec int        `json:"time_limit_sec"` // 0 = untimed
	MaxAttempts  int        `json:"max_attempts"`
	PassingScore float64    `json:"passing_score"` // percentage, 0..100
	Adaptive     bool       `json:"adaptive,omitempty"`
	Proctored    bool       `json:"proctored,omitempty"`
	CreatedAt    int64      `json:"created_at,omitempty"`
}

type Summary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	QuestionCount int    `json:"question_count"`
	TimeLimitSec  int    `json:"time_limit_sec"`
	CreatedAt     int64  `json:"created_at,omitempty"`
}

// MaxPoints is the sum of all question points, answered or not.
func (q Quiz) MaxPoints() int {
	total := 0
	for _, qs := range q.Questions {
		total += qs.Points
	}
	return total
}

func (q Quiz) QuestionByID(id string) (Question, bool) {
	for _, qs := range q.Questions {
		if qs.ID == id {
			return qs, true
		}
	}
	return Question{}, false
}

// Redacted returns a learner-safe copy with answer keys and explanations removed.
func (q Quiz) Redacted() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	copy(out.Questions, q.Questions)
	for i := range out.Questions {
		out.Questions[i].AnswerKey = nil
		out.Questions[i].Explanation = ""
	}
	return out
}

// ValidationError rejects a malformed quiz at creation time. It never
// surfaces mid-attempt: a quiz that passed Validate stays valid for its
// whole life.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid quiz: %s: %s", e.Field, e.Reason)
}

var validTypes = map[string]bool{
	TypeMultipleChoice: true,
	TypeTrueFalse:      true,
	TypeShortAnswer:    true,
	TypeCodeCompletion: true,
	TypeDragDrop:       true,
}

func Validate(q Quiz) error {
	if q.ID == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if len(q.Questions) == 0 {
		return &ValidationError{Field: "questions", Reason: "at least one question required"}
	}
	if q.PassingScore < 0 || q.PassingScore > 100 {
		return &ValidationError{Field: "passing_score", Reason: "must be within [0,100]"}
	}
	if q.MaxAttempts < 1 {
		return &ValidationError{Field: "max_attempts", Reason: "must be >= 1"}
	}
	if q.TimeLimitSec < 0 {
		return &ValidationError{Field: "time_limit_sec", Reason: "must be >= 0"}
	}
	seen := map[string]bool{}
	total := 0
	for i, qs := range q.Questions {
		where := fmt.Sprintf("questions[%d]", i)
		if qs.ID == "" {
			return &ValidationError{Field: where + ".id", Reason: "required"}
		}
		if seen[qs.ID] {
			return &ValidationError{Field: where + ".id", Reason: "duplicate question id " + qs.ID}
		}
		seen[qs.ID] = true
		if !validTypes[qs.Type] {
			return &ValidationError{Field: where + ".type", Reason: "unknown type " + qs.Type}
		}
		if qs.Points <= 0 {
			return &ValidationError{Field: where + ".points", Reason: "must be a positive integer"}
		}
		if qs.Difficulty < 1 || qs.Difficulty > 5 {
			return &ValidationError{Field: where + ".difficulty", Reason: "must be within 1..5"}
		}
		if len(qs.AnswerKey) == 0 {
			return &ValidationError{Field: where + ".answer_key", Reason: "required for auto-graded questions"}
		}
		total += qs.Points
	}
	if total <= 0 {
		return &ValidationError{Field: "questions", Reason: "sum of question points must be > 0"}
	}
	return nil
}

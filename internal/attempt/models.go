package attempt

import (
	"errors"
	"fmt"

	"github.com/adaptiq/adaptiq-engine/internal/adaptive"
	"github.com/adaptiq/adaptiq-engine/internal/grading"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusAbandoned
}

// Attempt is one learner's pass through a quiz. The attempt owns its answer
// map exclusively; it becomes immutable once Status turns terminal.
type Attempt struct {
	ID            string `json:"id"`
	QuizID        string `json:"quiz_id"`
	UserID        string `json:"user_id"`
	AttemptNumber int    `json:"attempt_number"`
	Status        Status `json:"status"`

	StartedAt   int64 `json:"started_at,omitempty"`   // unix seconds
	CompletedAt int64 `json:"completed_at,omitempty"` // unix seconds, 0 while open
	Deadline    int64 `json:"deadline,omitempty"`     // unix seconds, 0 when untimed

	Answers map[string]interface{} `json:"answers"` // questionID -> submitted value

	// Adaptive is present only while an adaptive attempt is in progress.
	Adaptive *adaptive.State `json:"adaptive,omitempty"`

	// Populated exactly once, by the terminal transition.
	Result           *grading.Result `json:"result,omitempty"`
	Score            int             `json:"score"`
	MaxScore         int             `json:"max_score"`
	Passed           bool            `json:"passed"`
	TimeTakenSeconds int64           `json:"time_taken_seconds"`
	Feedback         string          `json:"feedback,omitempty"`
}

// AnswerMeta carries optional per-submission telemetry consumed by the
// adaptive controller.
type AnswerMeta struct {
	ResponseTimeMs int64   `json:"response_time_ms,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
}

var (
	ErrQuizNotFound         = errors.New("quiz not found")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	ErrQuestionNotFound     = errors.New("question not found")
)

// InvalidTransitionError reports an operation applied in the wrong state;
// the attempt is left unchanged.
type InvalidTransitionError struct {
	AttemptID string
	From      Status
	Op        string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("attempt %s: cannot %s while %s", e.AttemptID, e.Op, e.From)
}

// ListOpts filters instructor-facing attempt listings.
type ListOpts struct {
	QuizID string
	UserID string
	Status Status
	Limit  int
	Offset int
}

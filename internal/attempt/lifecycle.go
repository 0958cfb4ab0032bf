package attempt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/adaptiq/adaptiq-engine/internal/adaptive"
	"github.com/adaptiq/adaptiq-engine/internal/grading"
	"github.com/adaptiq/adaptiq-engine/internal/quiz"
)

// FinishHook runs after an attempt reaches a terminal state. Hooks run
// exactly once per attempt, in registration order, outside the attempt lock.
type FinishHook func(ctx context.Context, a Attempt)

// Lifecycle drives an attempt from creation through its terminal state. The
// terminal transition is guarded per attempt: whichever of manual submit,
// timer expiry or abandonment arrives first wins, the rest collapse into
// no-ops that return the already-computed result.
type Lifecycle struct {
	store  Store
	engine *grading.Engine
	log    *logrus.Logger
	now    func() time.Time
	hooks  []FinishHook

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type LifecycleOption func(*Lifecycle)

// WithClock fixes the time source, for deterministic tests.
func WithClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) { l.now = now }
}

func WithFinishHook(h FinishHook) LifecycleOption {
	return func(l *Lifecycle) { l.hooks = append(l.hooks, h) }
}

func NewLifecycle(store Store, engine *grading.Engine, log *logrus.Logger, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		store:  store,
		engine: engine,
		log:    log,
		now:    time.Now,
		locks:  map[string]*sync.Mutex{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Lifecycle) lockFor(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[id] = mu
	}
	return mu
}

// Create builds a fresh attempt, enforcing the quiz's max-attempts budget.
// Every prior attempt counts against the budget, abandoned ones included.
func (l *Lifecycle) Create(ctx context.Context, quizID, userID string) (Attempt, error) {
	qz, err := l.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	n, err := l.store.CountAttempts(ctx, quizID, userID)
	if err != nil {
		return Attempt{}, err
	}
	if qz.MaxAttempts > 0 && n >= qz.MaxAttempts {
		return Attempt{}, fmt.Errorf("quiz %s, user %s: %w", quizID, userID, ErrAttemptLimitExceeded)
	}
	a := Attempt{
		ID:            uuid.NewString(),
		QuizID:        quizID,
		UserID:        userID,
		AttemptNumber: n + 1,
		Status:        StatusNotStarted,
		Answers:       map[string]interface{}{},
	}
	if qz.Adaptive {
		st := adaptive.NewState()
		a.Adaptive = &st
	}
	if err := l.store.CreateAttempt(ctx, a); err != nil {
		return Attempt{}, err
	}
	l.log.WithFields(logrus.Fields{"attempt": a.ID, "quiz": quizID, "user": userID, "n": a.AttemptNumber}).
		Info("attempt created")
	return a, nil
}

// Start moves not_started to in_progress and arms the countdown when the
// quiz carries a time limit.
func (l *Lifecycle) Start(ctx context.Context, attemptID string) (Attempt, error) {
	mu := l.lockFor(attemptID)
	mu.Lock()
	defer mu.Unlock()

	a, err := l.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != StatusNotStarted {
		return Attempt{}, &InvalidTransitionError{AttemptID: attemptID, From: a.Status, Op: "start"}
	}
	qz, err := l.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	now := l.now().Unix()
	a.Status = StatusInProgress
	a.StartedAt = now
	if qz.TimeLimitSec > 0 {
		a.Deadline = now + int64(qz.TimeLimitSec)
	}
	if err := l.store.SaveAttempt(ctx, a); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

// SubmitAnswer stores a learner's answer. Resubmission overwrites the
// previous value. Past the deadline the attempt is expired instead and the
// answer is rejected.
func (l *Lifecycle) SubmitAnswer(ctx context.Context, attemptID, questionID string, value interface{}, meta AnswerMeta) (Attempt, error) {
	mu := l.lockFor(attemptID)
	mu.Lock()

	a, err := l.store.GetAttempt(ctx, attemptID)
	if err != nil {
		mu.Unlock()
		return Attempt{}, err
	}
	if a.Status != StatusInProgress {
		mu.Unlock()
		return Attempt{}, &InvalidTransitionError{AttemptID: attemptID, From: a.Status, Op: "submit answer"}
	}
	if a.Deadline > 0 && l.now().Unix() >= a.Deadline {
		mu.Unlock()
		if _, err := l.finish(ctx, attemptID, StatusExpired, "deadline passed on answer"); err != nil {
			return Attempt{}, err
		}
		return Attempt{}, &InvalidTransitionError{AttemptID: attemptID, From: StatusExpired, Op: "submit answer"}
	}
	defer mu.Unlock()

	qz, err := l.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	q, ok := qz.QuestionByID(questionID)
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %s, question %s: %w", attemptID, questionID, ErrQuestionNotFound)
	}

	_, resubmission := a.Answers[questionID]
	a.Answers[questionID] = value

	// First submission of a question feeds the adaptive window; overwrites
	// do not, so a learner cannot grind the difficulty down by resubmitting.
	if a.Adaptive != nil && !resubmission {
		m := grading.Match(value, q.AnswerKey, q.Type)
		st := adaptive.RecordOutcome(*a.Adaptive, adaptive.Sample{
			Difficulty:     float64(q.Difficulty),
			Correct:        m.Exact,
			ResponseTimeMs: meta.ResponseTimeMs,
			Confidence:     meta.Confidence,
		})
		a.Adaptive = &st
	}
	if err := l.store.SaveAttempt(ctx, a); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

// NextQuestion returns the learner-safe next question for an in-progress
// attempt. Adaptive attempts follow the difficulty controller; fixed-order
// quizzes serve the first unanswered question. ok is false when the quiz is
// exhausted.
func (l *Lifecycle) NextQuestion(ctx context.Context, attemptID string) (quiz.Question, bool, error) {
	a, err := l.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return quiz.Question{}, false, err
	}
	if a.Status != StatusInProgress {
		return quiz.Question{}, false, &InvalidTransitionError{AttemptID: attemptID, From: a.Status, Op: "next question"}
	}
	qz, err := l.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return quiz.Question{}, false, err
	}
	answered := make(map[string]bool, len(a.Answers))
	for id := range a.Answers {
		answered[id] = true
	}

	var q quiz.Question
	var ok bool
	if a.Adaptive != nil {
		q, ok = adaptive.NextQuestion(qz, answered, *a.Adaptive)
	} else {
		for _, cand := range qz.Questions {
			if !answered[cand.ID] {
				q, ok = cand, true
				break
			}
		}
	}
	if !ok {
		return quiz.Question{}, false, nil
	}
	q.AnswerKey = nil
	q.Explanation = ""
	return q, true, nil
}

// Submit is the learner's explicit completion.
func (l *Lifecycle) Submit(ctx context.Context, attemptID string) (Attempt, error) {
	return l.finish(ctx, attemptID, StatusCompleted, "manual submit")
}

// Abandon records that the learner walked away. The attempt still scores
// over whatever answers are present and still consumes an attempt slot.
func (l *Lifecycle) Abandon(ctx context.Context, attemptID string) (Attempt, error) {
	return l.finish(ctx, attemptID, StatusAbandoned, "abandoned")
}

// Tick checks the countdown. The caller reports its elapsed time; the engine
// trusts whichever of the wall clock and the report says more time has
// passed. An overdue attempt is expired and auto-submitted with the answers
// present.
func (l *Lifecycle) Tick(ctx context.Context, attemptID string, elapsedMs int64) (Attempt, error) {
	a, err := l.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status.Terminal() {
		return a, nil
	}
	if a.Status != StatusInProgress || a.Deadline == 0 {
		return a, nil
	}
	elapsed := l.now().Unix() - a.StartedAt
	if reported := elapsedMs / 1000; reported > elapsed {
		elapsed = reported
	}
	if a.StartedAt+elapsed >= a.Deadline {
		return l.finish(ctx, attemptID, StatusExpired, "countdown reached zero")
	}
	return a, nil
}

// ExpireOverdue sweeps in_progress attempts past their deadline. Called by
// the background worker so expiry does not depend on client ticks.
func (l *Lifecycle) ExpireOverdue(ctx context.Context) int {
	ids, err := l.store.ListOverdue(ctx, l.now().Unix())
	if err != nil {
		l.log.WithError(err).Warn("expiry sweep failed")
		return 0
	}
	n := 0
	for _, id := range ids {
		if _, err := l.finish(ctx, id, StatusExpired, "expiry sweep"); err != nil {
			l.log.WithError(err).WithField("attempt", id).Warn("sweep expire failed")
			continue
		}
		n++
	}
	return n
}

// finish is the single writer for terminal transitions. A second caller for
// an already-terminal attempt gets the stored result back and no error: the
// losing side of the submit/expiry race is absorbed as a no-op.
func (l *Lifecycle) finish(ctx context.Context, attemptID string, target Status, reason string) (Attempt, error) {
	mu := l.lockFor(attemptID)
	mu.Lock()

	a, err := l.store.GetAttempt(ctx, attemptID)
	if err != nil {
		mu.Unlock()
		return Attempt{}, err
	}
	if a.Status.Terminal() {
		mu.Unlock()
		l.log.WithFields(logrus.Fields{"attempt": attemptID, "status": a.Status, "reason": reason}).
			Debug("terminal transition already applied")
		return a, nil
	}
	if a.Status == StatusNotStarted && target != StatusAbandoned {
		mu.Unlock()
		return Attempt{}, &InvalidTransitionError{AttemptID: attemptID, From: a.Status, Op: reason}
	}

	qz, err := l.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		mu.Unlock()
		return Attempt{}, err
	}

	res := l.engine.Score(qz, a.Answers)
	now := l.now().Unix()
	a.Status = target
	a.CompletedAt = now
	if a.StartedAt > 0 {
		a.TimeTakenSeconds = now - a.StartedAt
	}
	a.Result = &res
	a.Score = res.EarnedPoints
	a.MaxScore = res.MaxPoints
	a.Passed = res.Passed
	a.Adaptive = nil // adaptive state dies with the in_progress phase

	if err := l.store.SaveAttempt(ctx, a); err != nil {
		mu.Unlock()
		return Attempt{}, err
	}
	mu.Unlock()

	l.log.WithFields(logrus.Fields{
		"attempt": attemptID,
		"status":  target,
		"score":   a.Score,
		"max":     a.MaxScore,
		"passed":  a.Passed,
		"reason":  reason,
	}).Info("attempt finished")

	for _, h := range l.hooks {
		h(ctx, a)
	}
	return a, nil
}

package attempt

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adaptiq/adaptiq-engine/internal/grading"
	"github.com/adaptiq/adaptiq-engine/internal/quiz"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testQuiz() quiz.Quiz {
	return quiz.Quiz{
		ID:           "quiz-1",
		Title:        "Capitals",
		TimeLimitSec: 600,
		MaxAttempts:  2,
		PassingScore: 70,
		Questions: []quiz.Question{
			{ID: "q1", Type: quiz.TypeMultipleChoice, Points: 10, Difficulty: 2, AnswerKey: []string{"paris"}},
			{ID: "q2", Type: quiz.TypeShortAnswer, Points: 10, Difficulty: 3, AnswerKey: []string{"Eiffel Tower"}},
		},
	}
}

func newTestLifecycle(t *testing.T, qz quiz.Quiz, opts ...LifecycleOption) (*Lifecycle, Store, *fakeClock) {
	t.Helper()
	store := NewMemoryStore()
	if err := store.PutQuiz(context.Background(), qz); err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock()
	opts = append([]LifecycleOption{WithClock(clock.Now)}, opts...)
	lc := NewLifecycle(store, grading.NewEngine(), quietLogger(), opts...)
	return lc, store, clock
}

func TestHappyPath(t *testing.T) {
	lc, _, clock := newTestLifecycle(t, testQuiz())
	ctx := context.Background()

	a, err := lc.Create(ctx, "quiz-1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != StatusNotStarted || a.AttemptNumber != 1 {
		t.Fatalf("fresh attempt: %+v", a)
	}

	a, err = lc.Start(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != StatusInProgress || a.Deadline != a.StartedAt+600 {
		t.Fatalf("started attempt: %+v", a)
	}

	if _, err := lc.SubmitAnswer(ctx, a.ID, "q1", "Paris", AnswerMeta{}); err != nil {
		t.Fatal(err)
	}
	if _, err := lc.SubmitAnswer(ctx, a.ID, "q2", "eiffel tower", AnswerMeta{}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Minute)
	done, err := lc.Submit(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != StatusCompleted || done.Score != 20 || done.MaxScore != 20 || !done.Passed {
		t.Fatalf("final attempt: %+v", done)
	}
	if done.TimeTakenSeconds != 120 {
		t.Fatalf("time taken %d, want 120", done.TimeTakenSeconds)
	}
	if done.Result == nil || len(done.Result.Breakdown) != 2 {
		t.Fatalf("missing breakdown: %+v", done.Result)
	}
}

func TestAttemptLimit(t *testing.T) {
	lc, _, _ := newTestLifecycle(t, testQuiz()) // MaxAttempts 2
	ctx := context.Background()

	first, err := lc.Create(ctx, "quiz-1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	// An abandoned attempt still consumes a slot.
	if _, err := lc.Abandon(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := lc.Create(ctx, "quiz-1", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := lc.Create(ctx, "quiz-1", "alice"); !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Fatalf("third attempt: %v, want limit error", err)
	}
	// A different learner is unaffected.
	if _, err := lc.Create(ctx, "quiz-1", "bob"); err != nil {
		t.Fatal(err)
	}
}

func TestUnknownQuiz(t *testing.T) {
	lc, _, _ := newTestLifecycle(t, testQuiz())
	if _, err := lc.Create(context.Background(), "nope", "alice"); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("got %v, want quiz not found", err)
	}
}

func TestAnswerBeforeStartRejected(t *testing.T) {
	lc, _, _ := newTestLifecycle(t, testQuiz())
	ctx := context.Background()
	a, _ := lc.Create(ctx, "quiz-1", "alice")

	var invalid *InvalidTransitionError
	_, err := lc.SubmitAnswer(ctx, a.ID, "q1", "paris", AnswerMeta{})
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want invalid transition", err)
	}
	if invalid.From != StatusNotStarted {
		t.Fatalf("From = %s", invalid.From)
	}
}

func TestResubmissionOverwrites(t *testing.T) {
	lc, store, _ := newTestLifecycle(t, testQuiz())
	ctx := context.Background()
	a, _ := lc.Create(ctx, "quiz-1", "alice")
	a, _ = lc.Start(ctx, a.ID)

	if _, err := lc.SubmitAnswer(ctx, a.ID, "q1", "london", AnswerMeta{}); err != nil {
		t.Fatal(err)
	}
	if _, err := lc.SubmitAnswer(ctx, a.ID, "q1", "paris", AnswerMeta{}); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetAttempt(ctx, a.ID)
	if got.Answers["q1"] != "paris" {
		t.Fatalf("answer not overwritten: %v", got.Answers["q1"])
	}

	done, _ := lc.Submit(ctx, a.ID)
	if done.Result.Breakdown[0].EarnedPoints != 10 {
		t.Fatal("latest answer should score")
	}
}

func TestUnknownQuestionRejected(t *testing.T) {
	lc, _, _ := newTestLifecycle(t, testQuiz())
	ctx := context.Background()
	a, _ := lc.Create(ctx, "quiz-1", "alice")
	a, _ = lc.Start(ctx, a.ID)

	if _, err := lc.SubmitAnswer(ctx, a.ID, "ghost", "x", AnswerMeta{}); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("got %v, want question not found", err)
	}
}

func TestTickExpiresOverdueAttempt(t *testing.T) {
	lc, _, clock := newTestLifecycle(t, testQuiz())
	ctx := context.Background()
	a, _ := lc.Create(ctx, "quiz-1", "alice")
	a, _ = lc.Start(ctx, a.ID)
	if _, err := lc.SubmitAnswer(ctx, a.ID, "q1", "paris", AnswerMeta{}); err != nil {
		t.Fatal(err)
	}

	// Under the limit: nothing happens.
	got, err := lc.Tick(ctx, a.ID, 0)
	if err != nil || got.Status != StatusInProgress {
		t.Fatalf("early tick: %v %s", err, got.Status)
	}

	clock.Advance(11 * time.Minute)
	got, err = lc.Tick(ctx, a.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("status %s, want expired", got.Status)
	}
	// Auto-submit scores the answers present; the unanswered question is zero.
	if got.Score != 10 || got.MaxScore != 20 {
		t.Fatalf("got %d/%d, want 10/20", got.Score, got.MaxScore)
	}
}

func TestTickTrustsReportedElapsed(t *testing.T) {
	lc, _, _ := newTestLifecycle(t, testQuiz())
	ctx := context.Background()
	a, _ := lc.Create(ctx, "quiz-1", "alice")
	a, _ = lc.Start(ctx, a.ID)

	// Wall clock says fresh, the client reports 11 minutes elapsed. The
	// larger value wins.
	got, err := lc.Tick(ctx, a.ID, 11*60*1000)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("status %s, want expired", got.Status)
	}
}

func TestLateAnswerExpiresInstead(t *testing.T) {
	lc, _, clock := newTestLifecycle(t, testQuiz())
	ctx := context.Background()
	a, _ := lc.Create(ctx, "quiz-1", "alice")
	a, _ = lc.Start(ctx, a.ID)

	clock.Advance(11 * time.Minute)
	var invalid *InvalidTransitionError
	_, err := lc.SubmitAnswer(ctx, a.ID, "q1", "paris", AnswerMeta{})
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want invalid transition", err)
	}
	got, _ := lc.Tick(ctx, a.ID, 0)
	if got.Status != StatusExpired {
		t.Fatalf("status %s, want expired", got.Status)
	}
	if _, ok := got.Answers["q1"]; ok {
		t.Fatal("late answer must not be recorded")
	}
}

func TestTerminalTransitionIdempotent(t *testing.T) {
	var hookRuns int64
	lc, _, _ := newTestLifecycle(t, testQuiz(),
		WithFinishHook(func(context.Context, Attempt) { atomic.AddInt64(&hookRuns, 1) }))
	ctx := context.Background()
	a, _ := lc.Create(ctx, "quiz-1", "alice")
	a, _ = lc.Start(ctx, a.ID)
	lc.SubmitAnswer(ctx, a.ID, "q1", "paris", AnswerMeta{})

	first, err := lc.Submit(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	// A second submit and a later abandon both collapse into the stored result.
	again, err := lc.Submit(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	abandoned, err := lc.Abandon(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != StatusCompleted || abandoned.Status != StatusCompleted {
		t.Fatalf("terminal status changed: %s / %s", again.Status, abandoned.Status)
	}
	if again.Score != first.Score || abandoned.Score != first.Score {
		t.Fatal("stored score changed on repeat transition")
	}
	if n := atomic.LoadInt64(&hookRuns); n != 1 {
		t.Fatalf("finish hooks ran %d times, want 1", n)
	}
}

func TestSubmitExpiryRaceScoresOnce(t *testing.T) {
	var hookRuns int64
	lc, _, clock := newTestLifecycle(t, testQuiz(),
		WithFinishHook(func(context.Context, Attempt) { atomic.AddInt64(&hookRuns, 1) }))
	ctx := context.Background()
	a, _ := lc.Create(ctx, "quiz-1", "alice")
	a, _ = lc.Start(ctx, a.ID)
	lc.SubmitAnswer(ctx, a.ID, "q1", "paris", AnswerMeta{})
	lc.SubmitAnswer(ctx, a.ID, "q2", "eiffel tower", AnswerMeta{})

	clock.Advance(10 * time.Minute) // exactly at the deadline

	var wg sync.WaitGroup
	results := make([]Attempt, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], _ = lc.Submit(ctx, a.ID)
	}()
	go func() {
		defer wg.Done()
		results[1], _ = lc.Tick(ctx, a.ID, 10*60*1000)
	}()
	wg.Wait()

	if n := atomic.LoadInt64(&hookRuns); n != 1 {
		t.Fatalf("finish hooks ran %d times, want exactly 1", n)
	}
	// Both callers see the same terminal record, whichever transition won.
	if results[0].Status != results[1].Status {
		t.Fatalf("diverging status: %s vs %s", results[0].Status, results[1].Status)
	}
	if results[0].Score != 20 || results[1].Score != 20 {
		t.Fatalf("scores %d / %d, want 20", results[0].Score, results[1].Score)
	}
	if !results[0].Status.Terminal() {
		t.Fatalf("non-terminal status %s", results[0].Status)
	}
}

func TestAbandonBeforeStart(t *testing.T) {
	lc, _, _ := newTestLifecycle(t, testQuiz())
	ctx := context.Background()
	a, _ := lc.Create(ctx, "quiz-1", "alice")

	got, err := lc.Abandon(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusAbandoned || got.Score != 0 || got.MaxScore != 20 {
		t.Fatalf("abandoned-before-start: %+v", got)
	}
}

func TestSubmitBeforeStartRejected(t *testing.T) {
	lc, _, _ := newTestLifecycle(t, testQuiz())
	ctx := context.Background()
	a, _ := lc.Create(ctx, "quiz-1", "alice")

	var invalid *InvalidTransitionError
	if _, err := lc.Submit(ctx, a.ID); !errors.As(err, &invalid) {
		t.Fatalf("got %v, want invalid transition", err)
	}
}

func TestNextQuestionFixedOrderAndRedaction(t *testing.T) {
	lc, _, _ := newTestLifecycle(t, testQuiz())
	ctx := context.Background()
	a, _ := lc.Create(ctx, "quiz-1", "alice")
	a, _ = lc.Start(ctx, a.ID)

	q, ok, err := lc.NextQuestion(ctx, a.ID)
	if err != nil || !ok || q.ID != "q1" {
		t.Fatalf("first question: %q ok=%v err=%v", q.ID, ok, err)
	}
	if q.AnswerKey != nil || q.Explanation != "" {
		t.Fatal("answer key leaked to learner")
	}

	lc.SubmitAnswer(ctx, a.ID, "q1", "paris", AnswerMeta{})
	q, ok, _ = lc.NextQuestion(ctx, a.ID)
	if !ok || q.ID != "q2" {
		t.Fatalf("second question: %q ok=%v", q.ID, ok)
	}

	lc.SubmitAnswer(ctx, a.ID, "q2", "eiffel tower", AnswerMeta{})
	if _, ok, _ = lc.NextQuestion(ctx, a.ID); ok {
		t.Fatal("exhausted quiz should report done")
	}
}

func TestAdaptiveFlow(t *testing.T) {
	qz := testQuiz()
	qz.Adaptive = true
	qz.Questions = append(qz.Questions,
		quiz.Question{ID: "q3", Type: quiz.TypeMultipleChoice, Points: 10, Difficulty: 4, AnswerKey: []string{"a"}},
		quiz.Question{ID: "q4", Type: quiz.TypeMultipleChoice, Points: 10, Difficulty: 1, AnswerKey: []string{"a"}},
	)
	lc, store, _ := newTestLifecycle(t, qz)
	ctx := context.Background()
	a, _ := lc.Create(ctx, "quiz-1", "alice")
	if a.Adaptive == nil {
		t.Fatal("adaptive quiz should carry controller state")
	}
	a, _ = lc.Start(ctx, a.ID)

	// Entry difficulty 3.0 picks the difficulty-3 question first.
	q, ok, _ := lc.NextQuestion(ctx, a.ID)
	if !ok || q.ID != "q2" {
		t.Fatalf("want q2 at difficulty 3, got %q", q.ID)
	}

	// A correct first answer raises difficulty to 3.5 (target 4).
	if _, err := lc.SubmitAnswer(ctx, a.ID, "q2", "eiffel tower", AnswerMeta{ResponseTimeMs: 4000}); err != nil {
		t.Fatal(err)
	}
	q, ok, _ = lc.NextQuestion(ctx, a.ID)
	if !ok || q.ID != "q3" {
		t.Fatalf("want q3 at difficulty 4, got %q", q.ID)
	}

	// Resubmitting the same question must not feed the window again.
	before, _ := store.GetAttempt(ctx, a.ID)
	lc.SubmitAnswer(ctx, a.ID, "q2", "eiffel tower", AnswerMeta{})
	after, _ := store.GetAttempt(ctx, a.ID)
	if len(after.Adaptive.Window) != len(before.Adaptive.Window) {
		t.Fatalf("window grew on resubmission: %d -> %d", len(before.Adaptive.Window), len(after.Adaptive.Window))
	}

	// Terminal state drops the controller.
	done, _ := lc.Submit(ctx, a.ID)
	if done.Adaptive != nil {
		t.Fatal("adaptive state should not survive completion")
	}
}

func TestExpireOverdueSweep(t *testing.T) {
	lc, _, clock := newTestLifecycle(t, testQuiz())
	ctx := context.Background()

	a1, _ := lc.Create(ctx, "quiz-1", "alice")
	a1, _ = lc.Start(ctx, a1.ID)
	b1, _ := lc.Create(ctx, "quiz-1", "bob")
	b1, _ = lc.Start(ctx, b1.ID)

	clock.Advance(5 * time.Minute)
	if n := lc.ExpireOverdue(ctx); n != 0 {
		t.Fatalf("premature sweep expired %d", n)
	}

	clock.Advance(6 * time.Minute)
	if n := lc.ExpireOverdue(ctx); n != 2 {
		t.Fatalf("sweep expired %d, want 2", n)
	}
	got, _ := lc.Tick(ctx, a1.ID, 0)
	if got.Status != StatusExpired {
		t.Fatalf("status %s, want expired", got.Status)
	}
}

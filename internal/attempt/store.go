package attempt

import (
	"context"
	"sync"

	"github.com/adaptiq/adaptiq-engine/internal/quiz"
)

// Store persists quizzes and attempts. Implementations must return stable
// copies: callers may mutate what they get back without racing the store.
type Store interface {
	PutQuiz(ctx context.Context, q quiz.Quiz) error
	GetQuiz(ctx context.Context, id string) (quiz.Quiz, error)
	ListQuizzes(ctx context.Context) ([]quiz.Summary, error)

	CreateAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	SaveAttempt(ctx context.Context, a Attempt) error
	CountAttempts(ctx context.Context, quizID, userID string) (int, error)
	ListAttempts(ctx context.Context, opts ListOpts) ([]Attempt, error)

	// ListOverdue returns ids of in_progress attempts whose deadline has
	// passed, for the expiry sweeper.
	ListOverdue(ctx context.Context, nowUnix int64) ([]string, error)
}

type memoryStore struct {
	mu       sync.RWMutex
	quizzes  map[string]quiz.Quiz
	attempts map[string]Attempt
	order    []string // attempt insertion order, for stable listings
}

// NewMemoryStore is the zero-dependency store used by tests and offline runs.
func NewMemoryStore() Store {
	return &memoryStore{
		quizzes:  map[string]quiz.Quiz{},
		attempts: map[string]Attempt{},
	}
}

func (m *memoryStore) PutQuiz(_ context.Context, q quiz.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (quiz.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return quiz.Quiz{}, ErrQuizNotFound
	}
	return q, nil
}

func (m *memoryStore) ListQuizzes(_ context.Context) ([]quiz.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]quiz.Summary, 0, len(m.quizzes))
	for _, q := range m.quizzes {
		out = append(out, quiz.Summary{
			ID:            q.ID,
			Title:         q.Title,
			QuestionCount: len(q.Questions),
			TimeLimitSec:  q.TimeLimitSec,
			CreatedAt:     q.CreatedAt,
		})
	}
	return out, nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = copyAttempt(a)
	m.order = append(m.order, a.ID)
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return copyAttempt(a), nil
}

func (m *memoryStore) SaveAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[a.ID]; !ok {
		return ErrAttemptNotFound
	}
	m.attempts[a.ID] = copyAttempt(a)
	return nil
}

func (m *memoryStore) CountAttempts(_ context.Context, quizID, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts ListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, id := range m.order {
		a := m.attempts[id]
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, copyAttempt(a))
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []Attempt{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memoryStore) ListOverdue(_ context.Context, nowUnix int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, id := range m.order {
		a := m.attempts[id]
		if a.Status == StatusInProgress && a.Deadline > 0 && nowUnix >= a.Deadline {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func copyAttempt(a Attempt) Attempt {
	out := a
	out.Answers = make(map[string]interface{}, len(a.Answers))
	for k, v := range a.Answers {
		out.Answers[k] = v
	}
	if a.Adaptive != nil {
		st := *a.Adaptive
		st.Window = append(st.Window[:0:0], a.Adaptive.Window...)
		out.Adaptive = &st
	}
	if a.Result != nil {
		r := *a.Result
		r.Breakdown = append(r.Breakdown[:0:0], a.Result.Breakdown...)
		out.Result = &r
	}
	return out
}

package proctor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Weight is the suspicion added per violation. Unknown severities count as
// minor rather than being dropped.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityMajor:
		return 0.10
	case SeverityCritical:
		return 0.30
	default:
		return 0.05
	}
}

// Violation is one observed integrity event (tab switch, paste, ...).
type Violation struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	At       int64    `json:"at"` // unix seconds
}

type Assessment string

const (
	IntegrityHigh   Assessment = "high"
	IntegrityMedium Assessment = "medium"
	IntegrityLow    Assessment = "low"
)

// Session is the ordered violation log for one monitored attempt. It mirrors
// the attempt's lifecycle and is sealed when the attempt ends.
type Session struct {
	AttemptID      string      `json:"attempt_id"`
	Violations     []Violation `json:"violations"`
	SuspicionScore float64     `json:"suspicion_score"` // monotonic, clamped to 1
	Sealed         bool        `json:"sealed"`
}

// Integrity is derived from the suspicion score, never stored independently.
func (s Session) Integrity() Assessment {
	switch {
	case s.SuspicionScore < 0.2:
		return IntegrityHigh
	case s.SuspicionScore < 0.5:
		return IntegrityMedium
	default:
		return IntegrityLow
	}
}

var (
	ErrSessionNotFound = errors.New("proctoring session not found")
	ErrSessionSealed   = errors.New("proctoring session sealed")
)

// Store persists proctoring sessions, keyed by attempt id.
type Store interface {
	Get(ctx context.Context, attemptID string) (Session, error)
	Put(ctx context.Context, s Session) error
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() Store {
	return &memoryStore{sessions: map[string]Session{}}
}

func (m *memoryStore) Get(_ context.Context, attemptID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[attemptID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	s.Violations = append(s.Violations[:0:0], s.Violations...)
	return s, nil
}

func (m *memoryStore) Put(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Violations = append(s.Violations[:0:0], s.Violations...)
	m.sessions[s.AttemptID] = s
	return nil
}

// Monitor ingests violations and maintains the running suspicion score. It
// only scores and logs; halting an attempt is a caller policy, never taken
// here. Recording never blocks the attempt state machine.
type Monitor struct {
	mu    sync.Mutex
	store Store
	log   *logrus.Logger
	now   func() time.Time
}

func NewMonitor(store Store, log *logrus.Logger) *Monitor {
	return &Monitor{store: store, log: log, now: time.Now}
}

// Record appends a violation and bumps the suspicion score by the severity
// weight, clamped to 1.0. The first violation for an attempt opens its
// session implicitly.
func (m *Monitor) Record(ctx context.Context, attemptID string, v Violation) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.store.Get(ctx, attemptID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			return Session{}, err
		}
		s = Session{AttemptID: attemptID}
	}
	if s.Sealed {
		return s, ErrSessionSealed
	}
	if v.At == 0 {
		v.At = m.now().Unix()
	}
	s.Violations = append(s.Violations, v)
	s.SuspicionScore += v.Severity.Weight()
	if s.SuspicionScore > 1 {
		s.SuspicionScore = 1
	}
	if err := m.store.Put(ctx, s); err != nil {
		return Session{}, err
	}

	entry := m.log.WithFields(logrus.Fields{
		"attempt":   attemptID,
		"type":      v.Type,
		"severity":  v.Severity,
		"suspicion": s.SuspicionScore,
	})
	if v.Severity == SeverityCritical {
		entry.Warn("proctoring violation")
	} else {
		entry.Info("proctoring violation")
	}
	return s, nil
}

// Report returns the session for instructor review.
func (m *Monitor) Report(ctx context.Context, attemptID string) (Session, error) {
	return m.store.Get(ctx, attemptID)
}

// Seal freezes the session when its attempt reaches a terminal state.
// Sealing an attempt that never produced a violation is a no-op.
func (m *Monitor) Seal(ctx context.Context, attemptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.store.Get(ctx, attemptID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if s.Sealed {
		return nil
	}
	s.Sealed = true
	return m.store.Put(ctx, s)
}

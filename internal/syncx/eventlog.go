package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adaptiq/adaptiq-engine/internal/attempt"
)

type Event struct {
	Offset    int64
	SiteID    string
	Type      string // attempt.completed | attempt.expired | attempt.abandoned
	Key       string // natural key: attemptID
	DataJSON  string
	CreatedAt int64
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// FinishHook appends one event per terminal transition, for downstream
// consumers that replay the log. Append failures are logged and swallowed:
// the event log must never undo a finished attempt.
func FinishHook(repo *EventRepo, log *logrus.Logger) attempt.FinishHook {
	return func(ctx context.Context, a attempt.Attempt) {
		payload, _ := json.Marshal(map[string]interface{}{
			"quiz_id":   a.QuizID,
			"user_id":   a.UserID,
			"score":     a.Score,
			"max_score": a.MaxScore,
			"passed":    a.Passed,
		})
		err := repo.Append(ctx, Event{
			SiteID:   "local",
			Type:     "attempt." + string(a.Status),
			Key:      a.ID,
			DataJSON: string(payload),
		})
		if err != nil {
			log.WithError(err).WithField("attempt", a.ID).Warn("event log append failed")
		}
	}
}

package proctor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Get(ctx context.Context, attemptID string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT attempt_id,suspicion_score,sealed,violations_json FROM proctor_sessions WHERE attempt_id=$1`,
		attemptID)
	var sess Session
	var vjson string
	if err := row.Scan(&sess.AttemptID, &sess.SuspicionScore, &sess.Sealed, &vjson); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	if err := json.Unmarshal([]byte(vjson), &sess.Violations); err != nil {
		sess.Violations = nil
	}
	return sess, nil
}

func (s *SQLStore) Put(ctx context.Context, sess Session) error {
	vjson, err := json.Marshal(sess.Violations)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO proctor_sessions (attempt_id,suspicion_score,sealed,violations_json)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (attempt_id) DO UPDATE SET suspicion_score=EXCLUDED.suspicion_score,
			sealed=EXCLUDED.sealed, violations_json=EXCLUDED.violations_json`,
		sess.AttemptID, sess.SuspicionScore, sess.Sealed, string(vjson))
	return err
}

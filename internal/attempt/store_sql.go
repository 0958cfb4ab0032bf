package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adaptiq/adaptiq-engine/internal/adaptive"
	"github.com/adaptiq/adaptiq-engine/internal/grading"
	"github.com/adaptiq/adaptiq-engine/internal/quiz"
)

// SQLStore persists quizzes and attempts via database/sql; works against
// both the sqlite and pgx drivers ($N placeholders).
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) PutQuiz(ctx context.Context, q quiz.Quiz) error {
	qj, err := json.Marshal(q.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes
		(id,title,time_limit_sec,max_attempts,passing_score,adaptive,proctored,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title,
			time_limit_sec=EXCLUDED.time_limit_sec, max_attempts=EXCLUDED.max_attempts,
			passing_score=EXCLUDED.passing_score, adaptive=EXCLUDED.adaptive,
			proctored=EXCLUDED.proctored, questions_json=EXCLUDED.questions_json`,
		q.ID, q.Title, q.TimeLimitSec, q.MaxAttempts, q.PassingScore, q.Adaptive, q.Proctored, string(qj), q.CreatedAt)
	return err
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (quiz.Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,title,time_limit_sec,max_attempts,passing_score,adaptive,proctored,questions_json,created_at
		FROM quizzes WHERE id=$1`, id)
	var q quiz.Quiz
	var qjson string
	if err := row.Scan(&q.ID, &q.Title, &q.TimeLimitSec, &q.MaxAttempts, &q.PassingScore, &q.Adaptive, &q.Proctored, &qjson, &q.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quiz.Quiz{}, ErrQuizNotFound
		}
		return quiz.Quiz{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &q.Questions); err != nil {
		return quiz.Quiz{}, err
	}
	return q, nil
}

func (s *SQLStore) ListQuizzes(ctx context.Context) ([]quiz.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,title,time_limit_sec,questions_json,created_at
		FROM quizzes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []quiz.Summary{}
	for rows.Next() {
		var sum quiz.Summary
		var qjson string
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.TimeLimitSec, &qjson, &sum.CreatedAt); err != nil {
			return nil, err
		}
		var questions []quiz.Question
		if err := json.Unmarshal([]byte(qjson), &questions); err == nil {
			sum.QuestionCount = len(questions)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	answers, adaptiveJSON, resultJSON, err := marshalAttempt(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts
		(id,quiz_id,user_id,attempt_number,status,score,max_score,passed,time_taken_sec,
		 answers_json,adaptive_json,result_json,feedback,started_at,completed_at,deadline)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		a.ID, a.QuizID, a.UserID, a.AttemptNumber, string(a.Status), a.Score, a.MaxScore, a.Passed,
		a.TimeTakenSeconds, answers, adaptiveJSON, resultJSON, a.Feedback, a.StartedAt, a.CompletedAt, a.Deadline)
	return err
}

func (s *SQLStore) SaveAttempt(ctx context.Context, a Attempt) error {
	answers, adaptiveJSON, resultJSON, err := marshalAttempt(a)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET status=$1, score=$2, max_score=$3, passed=$4,
		time_taken_sec=$5, answers_json=$6, adaptive_json=$7, result_json=$8, feedback=$9,
		started_at=$10, completed_at=$11, deadline=$12 WHERE id=$13`,
		string(a.Status), a.Score, a.MaxScore, a.Passed, a.TimeTakenSeconds,
		answers, adaptiveJSON, resultJSON, a.Feedback, a.StartedAt, a.CompletedAt, a.Deadline, a.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,quiz_id,user_id,attempt_number,status,score,max_score,passed,
		time_taken_sec,answers_json,adaptive_json,result_json,feedback,started_at,completed_at,deadline
		FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) CountAttempts(ctx context.Context, quizID, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE quiz_id=$1 AND user_id=$2`, quizID, userID).Scan(&n)
	return n, err
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts ListOpts) ([]Attempt, error) {
	query := `SELECT id,quiz_id,user_id,attempt_number,status,score,max_score,passed,
		time_taken_sec,answers_json,adaptive_json,result_json,feedback,started_at,completed_at,deadline
		FROM attempts WHERE 1=1`
	args := []interface{}{}
	n := 0
	add := func(clause string, v interface{}) {
		n++
		query += fmt.Sprintf(" AND %s=$%d", clause, n)
		args = append(args, v)
	}
	if opts.QuizID != "" {
		add("quiz_id", opts.QuizID)
	}
	if opts.UserID != "" {
		add("user_id", opts.UserID)
	}
	if opts.Status != "" {
		add("status", string(opts.Status))
	}
	query += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListOverdue(ctx context.Context, nowUnix int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM attempts WHERE status=$1 AND deadline > 0 AND deadline <= $2`,
		string(StatusInProgress), nowUnix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func marshalAttempt(a Attempt) (answers, adaptiveJSON, resultJSON string, err error) {
	buf, err := json.Marshal(a.Answers)
	if err != nil {
		return "", "", "", err
	}
	answers = string(buf)
	if a.Adaptive != nil {
		buf, err = json.Marshal(a.Adaptive)
		if err != nil {
			return "", "", "", err
		}
		adaptiveJSON = string(buf)
	}
	if a.Result != nil {
		buf, err = json.Marshal(a.Result)
		if err != nil {
			return "", "", "", err
		}
		resultJSON = string(buf)
	}
	return answers, adaptiveJSON, resultJSON, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var status, answers string
	var adaptiveJSON, resultJSON sql.NullString
	var started, completed, deadline sql.NullInt64
	if err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &a.AttemptNumber, &status, &a.Score, &a.MaxScore,
		&a.Passed, &a.TimeTakenSeconds, &answers, &adaptiveJSON, &resultJSON, &a.Feedback,
		&started, &completed, &deadline); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	a.StartedAt = started.Int64
	a.CompletedAt = completed.Int64
	a.Deadline = deadline.Int64
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		a.Answers = map[string]interface{}{}
	}
	if adaptiveJSON.Valid && adaptiveJSON.String != "" {
		var st adaptive.State
		if err := json.Unmarshal([]byte(adaptiveJSON.String), &st); err == nil {
			a.Adaptive = &st
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var r grading.Result
		if err := json.Unmarshal([]byte(resultJSON.String), &r); err == nil {
			a.Result = &r
		}
	}
	return a, nil
}

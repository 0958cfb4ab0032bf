package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/adaptiq/adaptiq-engine/internal/attempt"
	"github.com/adaptiq/adaptiq-engine/internal/feedback"
)

const feedbackQueue = "queue:feedback-generation"

type job struct {
	AttemptID string `json:"attempt_id"`
}

// Pool runs the engine's background work: the attempt-expiry sweep, so
// overdue attempts expire even when no client tick arrives, and feedback
// generation for finished attempts. With redis configured the feedback queue
// is shared across instances; without it jobs run in-process.
type Pool struct {
	redis       *redis.Client // optional
	generator   feedback.Generator
	store       attempt.Store
	lifecycle   *attempt.Lifecycle
	log         *logrus.Logger
	workerCount int
	sweepEvery  time.Duration
	stopChan    chan struct{}
}

func NewPool(redisClient *redis.Client, gen feedback.Generator, store attempt.Store, lc *attempt.Lifecycle, log *logrus.Logger, workerCount int, sweepEvery time.Duration) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if sweepEvery <= 0 {
		sweepEvery = 15 * time.Second
	}
	return &Pool{
		redis:       redisClient,
		generator:   gen,
		store:       store,
		lifecycle:   lc,
		log:         log,
		workerCount: workerCount,
		sweepEvery:  sweepEvery,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	go p.sweeper()
	if p.redis != nil && p.generator != nil {
		for i := 0; i < p.workerCount; i++ {
			go p.worker(i)
		}
	}
	p.log.WithField("workers", p.workerCount).Info("worker pool started")
}

func (p *Pool) Stop() { close(p.stopChan) }

// Enqueue schedules feedback generation for a finished attempt. Intended as
// an attempt.FinishHook; it never blocks the terminal transition.
func (p *Pool) Enqueue(ctx context.Context, a attempt.Attempt) {
	if p.generator == nil {
		return
	}
	if p.redis == nil {
		go p.process(context.Background(), a.ID)
		return
	}
	buf, _ := json.Marshal(job{AttemptID: a.ID})
	if err := p.redis.LPush(ctx, feedbackQueue, string(buf)).Err(); err != nil {
		p.log.WithError(err).WithField("attempt", a.ID).Warn("feedback enqueue failed")
	}
}

func (p *Pool) sweeper() {
	ticker := time.NewTicker(p.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			if n := p.lifecycle.ExpireOverdue(context.Background()); n > 0 {
				p.log.WithField("expired", n).Info("expiry sweep")
			}
		}
	}
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			return
		default:
		}

		ctx := context.Background()
		result, err := p.redis.BLPop(ctx, 30*time.Second, feedbackQueue).Result()
		if err != nil || len(result) < 2 {
			continue
		}
		var j job
		if err := json.Unmarshal([]byte(result[1]), &j); err != nil {
			p.log.WithError(err).WithField("worker", id).Warn("bad feedback job")
			continue
		}

		// One instance works a given attempt; duplicates skip.
		lockKey := "feedback_lock:" + j.AttemptID
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 5*time.Minute).Result()
		if err != nil || !locked {
			continue
		}
		p.process(ctx, j.AttemptID)
		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) process(ctx context.Context, attemptID string) {
	a, err := p.store.GetAttempt(ctx, attemptID)
	if err != nil {
		p.log.WithError(err).WithField("attempt", attemptID).Warn("feedback: load attempt failed")
		return
	}
	if !a.Status.Terminal() || a.Feedback != "" {
		return
	}
	qz, err := p.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		p.log.WithError(err).WithField("attempt", attemptID).Warn("feedback: load quiz failed")
		return
	}

	genCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	text, err := p.generator.Generate(genCtx, qz, a)
	if err != nil {
		// Feedback is best-effort; the attempt result stands without it.
		p.log.WithError(err).WithField("attempt", attemptID).Warn("feedback generation failed")
		return
	}
	a.Feedback = text
	if err := p.store.SaveAttempt(ctx, a); err != nil {
		p.log.WithError(err).WithField("attempt", attemptID).Warn("feedback: save failed")
	}
}

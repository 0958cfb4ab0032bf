package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/adaptiq/adaptiq-engine/internal/analytics"
	api "github.com/adaptiq/adaptiq-engine/internal/api/http"
	"github.com/adaptiq/adaptiq-engine/internal/attempt"
	auth "github.com/adaptiq/adaptiq-engine/internal/auth/middleware"
	"github.com/adaptiq/adaptiq-engine/internal/config"
	"github.com/adaptiq/adaptiq-engine/internal/db"
	"github.com/adaptiq/adaptiq-engine/internal/feedback"
	"github.com/adaptiq/adaptiq-engine/internal/grading"
	"github.com/adaptiq/adaptiq-engine/internal/logging"
	"github.com/adaptiq/adaptiq-engine/internal/proctor"
	"github.com/adaptiq/adaptiq-engine/internal/rbac"
	"github.com/adaptiq/adaptiq-engine/internal/syncx"
	"github.com/adaptiq/adaptiq-engine/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logging.New(cfg.LogLevel, cfg.LogJSON)

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.WithError(err).Fatal("db open failed")
	}
	store := attempt.NewSQLStore(dbh)
	events := syncx.NewEventRepo(dbh)

	// --- Redis (optional: feedback queue + analytics cache) ---
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("bad redis url")
		}
		redisClient = redis.NewClient(opt)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.WithError(err).Fatal("redis ping failed")
		}
	}

	// --- Engine wiring ---
	engine := grading.NewEngine(grading.WithPartialCreditThreshold(cfg.PartialCreditThreshold))
	monitor := proctor.NewMonitor(proctor.NewSQLStore(dbh), log)
	aggregator := analytics.NewAggregator(redisClient, log)

	var generator feedback.Generator
	if cfg.GeminiAPIKey != "" {
		gem, err := feedback.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.WithError(err).Warn("gemini unavailable, feedback disabled")
		} else {
			defer gem.Close()
			generator = gem
		}
	}

	var pool *worker.Pool
	lifecycle := attempt.NewLifecycle(store, engine, log,
		attempt.WithFinishHook(syncx.FinishHook(events, log)),
		attempt.WithFinishHook(aggregator.FinishHook),
		attempt.WithFinishHook(func(ctx context.Context, a attempt.Attempt) {
			if err := monitor.Seal(ctx, a.ID); err != nil {
				log.WithError(err).WithField("attempt", a.ID).Warn("seal proctoring session failed")
			}
		}),
		attempt.WithFinishHook(func(ctx context.Context, a attempt.Attempt) {
			pool.Enqueue(ctx, a)
		}),
	)
	pool = worker.NewPool(redisClient, generator, store, lifecycle, log,
		cfg.WorkerCount, time.Duration(cfg.SweepIntervalSec)*time.Second)
	pool.Start()
	defer pool.Stop()

	authSvc := auth.NewAuthService(cfg.AuthSecret, cfg.AdminUser, cfg.AdminPassHash, cfg.EnableDevLogin)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", api.CreateQuizHandler(store))
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes", api.ListQuizzesHandler(store))
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", api.GetQuizHandler(store))

		// Learner flow
		pr.With(rbac.Require("attempt:create")).
			Post("/attempts", api.CreateAttemptHandler(lifecycle))
		pr.With(rbac.Require("attempt:answer")).
			Post("/attempts/{attemptID}/start", api.StartAttemptHandler(lifecycle))
		pr.With(rbac.Require("attempt:answer")).
			Post("/attempts/{attemptID}/answers", api.SubmitAnswerHandler(lifecycle))
		pr.With(rbac.Require("attempt:answer")).
			Get("/attempts/{attemptID}/next", api.NextQuestionHandler(lifecycle))
		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(lifecycle))
		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/abandon", api.AbandonAttemptHandler(lifecycle))
		pr.With(rbac.Require("attempt:answer")).
			Post("/attempts/{attemptID}/tick", api.TickHandler(lifecycle))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(store))
		pr.With(rbac.Require("attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(store))

		// Proctoring
		pr.With(rbac.Require("violation:report")).
			Post("/attempts/{attemptID}/violations", api.RecordViolationHandler(monitor))
		pr.With(rbac.Require("violation:report")).
			Get("/ws/proctor/{attemptID}", proctor.StreamHandler(monitor))
		pr.With(rbac.Require("proctor:review")).
			Get("/attempts/{attemptID}/proctoring", api.ProctorReportHandler(monitor))

		// Dashboards
		pr.With(rbac.RequireAny("analytics:view-own", "analytics:view-all")).
			Get("/users/{userID}/analytics", api.UserAnalyticsHandler(aggregator))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.WithFields(map[string]interface{}{
		"addr": cfg.HTTPAddr,
		"mode": cfg.Mode,
		"db":   cfg.DBDriver,
	}).Info("listening")
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

package config

import (
	"os"
	"strconv"
	"strings"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	// Optional: enables the shared feedback queue and the analytics
	// snapshot cache.
	RedisURL string

	// Optional: AI feedback generation is skipped entirely without a key.
	GeminiAPIKey string
	GeminiModel  string

	AuthSecret     string
	AdminUser      string
	AdminPassHash  string // bcrypt
	EnableDevLogin bool

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	PartialCreditThreshold float64
	WorkerCount            int
	SweepIntervalSec       int

	LogLevel string
	LogJSON  bool
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:     mode,
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		RedisURL: os.Getenv("REDIS_URL"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  envOr("GEMINI_MODEL", "gemini-2.0-flash"),

		AuthSecret:     envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AdminUser:      envOr("ADMIN_USER", "admin"),
		AdminPassHash:  envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),
		EnableDevLogin: envBool("ENABLE_DEV_LOGIN", mode == ModeOffline),

		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://app.adaptiq.dev"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010"),

		PartialCreditThreshold: envFloat("PARTIAL_CREDIT_THRESHOLD", 0.5),
		WorkerCount:            envInt("WORKER_COUNT", 2),
		SweepIntervalSec:       envInt("SWEEP_INTERVAL_SEC", 15),

		LogLevel: envOr("LOG_LEVEL", "info"),
		LogJSON:  envBool("LOG_JSON", mode == ModeOnline),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil {
		return v
	}
	return def
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

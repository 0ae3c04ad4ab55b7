package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	// CronSecret gates the external reaper trigger endpoint.
	CronSecret string

	// AnalyzerURL is the base URL of the external QC analysis service.
	AnalyzerURL string

	WorkerCount  int
	MaxAttempts  int
	PollInterval time.Duration
	StaleAfter   time.Duration
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		AnalyzerURL:          mustGetenv("ANALYZER_URL"),
		WorkerCount:          getenvInt("WORKER_COUNT", 4),
		MaxAttempts:          getenvInt("MAX_ATTEMPTS", 3),
		PollInterval:         time.Duration(getenvInt("POLL_INTERVAL_MS", 800)) * time.Millisecond,
		StaleAfter:           time.Duration(getenvInt("STALE_AFTER_HOURS", 24)) * time.Hour,
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	cfg.JWTSecret = mustGetenv("JWT_SECRET")
	cfg.CronSecret = mustGetenv("CRON_SECRET")
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}
